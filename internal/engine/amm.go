package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// The swap fee is taken on the input side: only FeeNominator/FeeDenominator
// of the amount paid in counts toward the product, the rest accrues to the
// pool. 9_940_000_000/10_000_000_000 is a 0.6% fee.
const (
	FeeNominator   = 9_940_000_000
	FeeDenominator = 10_000_000_000
)

var (
	feeNominator   = big.NewInt(FeeNominator)
	feeDenominator = big.NewInt(FeeDenominator)
)

// reserve reads a token's trading liquidity. Missing entries are zero.
func (c *callCtx) reserve(id domain.TokenID) (*big.Int, error) {
	raw, err := c.sess.Get(ledger.Key(ledger.PrefixReserve, id.Bytes()))
	if err == ledger.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

func (c *callCtx) setReserve(id domain.TokenID, amount *big.Int) {
	c.sess.Put(ledger.Key(ledger.PrefixReserve, id.Bytes()), amount.Bytes())
}

// quoteOut computes the output for a swap paying amountIn of tokenOut's
// counterpart. Division truncates toward the pool and one extra unit is
// withheld, so the reserve product never decreases; the explicit product
// check after rounding enforces that.
func (c *callCtx) quoteOut(tokenOut domain.TokenState, tokenOutID domain.TokenID, amountIn *big.Int) (*big.Int, error) {
	tokenInID, err := c.counterpart(tokenOut)
	if err != nil {
		return nil, err
	}
	reserveIn, err := c.reserve(tokenInID)
	if err != nil {
		return nil, err
	}
	reserveOut, err := c.reserve(tokenOutID)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, fmt.Errorf("engine: pool for token %s is empty: %w", tokenOutID, domain.ErrNoLiquidity)
	}

	product := new(big.Int).Mul(reserveIn, reserveOut)
	effectiveIn := new(big.Int).Mul(amountIn, feeNominator)
	effectiveIn.Quo(effectiveIn, feeDenominator)

	newReserveOut := new(big.Int).Add(reserveIn, effectiveIn)
	newReserveOut.Quo(product, newReserveOut)
	newReserveOut.Add(newReserveOut, big.NewInt(1))
	amountOut := new(big.Int).Sub(reserveOut, newReserveOut)

	if err := checkProduct(reserveIn, reserveOut, amountIn, amountOut, product); err != nil {
		return nil, err
	}
	return amountOut, nil
}

// quoteIn computes the input needed to take amountOut of the given token,
// rounding the charge up.
func (c *callCtx) quoteIn(tokenOut domain.TokenState, tokenOutID domain.TokenID, amountOut *big.Int) (*big.Int, error) {
	tokenInID, err := c.counterpart(tokenOut)
	if err != nil {
		return nil, err
	}
	reserveIn, err := c.reserve(tokenInID)
	if err != nil {
		return nil, err
	}
	reserveOut, err := c.reserve(tokenOutID)
	if err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(reserveOut, amountOut)
	if reserveIn.Sign() == 0 || remaining.Sign() <= 0 {
		return nil, fmt.Errorf("engine: pool cannot cover %s of token %s: %w", amountOut, tokenOutID, domain.ErrNoLiquidity)
	}

	product := new(big.Int).Mul(reserveIn, reserveOut)
	amountIn := new(big.Int).Quo(product, remaining)
	amountIn.Sub(amountIn, reserveIn)
	amountIn.Mul(amountIn, feeDenominator)
	amountIn.Quo(amountIn, feeNominator)
	amountIn.Add(amountIn, big.NewInt(1))

	if err := checkProduct(reserveIn, reserveOut, amountIn, amountOut, product); err != nil {
		return nil, err
	}
	return amountIn, nil
}

// checkProduct verifies (Rout-out)*(Rin+in) >= Rin*Rout after rounding.
func checkProduct(reserveIn, reserveOut, amountIn, amountOut, product *big.Int) error {
	after := new(big.Int).Sub(reserveOut, amountOut)
	after.Mul(after, new(big.Int).Add(reserveIn, amountIn))
	if after.Cmp(product) < 0 {
		return fmt.Errorf("engine: reserve product would shrink: %w", domain.ErrProductInvariant)
	}
	return nil
}

// buy swaps amountIn of one claim token for its counterpart. The input
// tokens are already held by the contract when this runs.
func (e *Engine) buy(ctx context.Context, c *callCtx, from common.Address, tokenInID domain.TokenID, amountIn, minAmountOut *big.Int, deadlineMS int64) (*big.Int, error) {
	release, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if e.nowMS() > deadlineMS {
		return nil, fmt.Errorf("engine: buy deadline %d: %w", deadlineMS, domain.ErrDeadlineExceeded)
	}
	tokenIn, err := c.reg.Token(tokenInID)
	if err != nil {
		return nil, err
	}
	tokenOutID, err := c.counterpart(tokenIn)
	if err != nil {
		return nil, err
	}
	liq, err := c.reg.Token(tokenIn.LiquidityTokenID)
	if err != nil {
		return nil, err
	}
	if e.nowMS() > liq.DueTimeMS {
		return nil, fmt.Errorf("engine: proposition %s: %w", tokenIn.LiquidityTokenID, domain.ErrDueTimePassed)
	}
	tokenOut, err := c.reg.Token(tokenOutID)
	if err != nil {
		return nil, err
	}

	amountOut, err := c.quoteOut(tokenOut, tokenOutID, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && amountOut.Cmp(minAmountOut) < 0 {
		return nil, fmt.Errorf("engine: output %s below minimum %s: %w", amountOut, minAmountOut, domain.ErrSlippage)
	}

	reserveIn, err := c.reserve(tokenInID)
	if err != nil {
		return nil, err
	}
	reserveOut, err := c.reserve(tokenOutID)
	if err != nil {
		return nil, err
	}
	c.setReserve(tokenInID, reserveIn.Add(reserveIn, amountIn))
	c.setReserve(tokenOutID, reserveOut.Sub(reserveOut, amountOut))

	if err := c.transferOut(ctx, from, tokenOutID, amountOut); err != nil {
		return nil, err
	}

	c.emit(domain.BuyEvent{
		Sender:    from,
		TokenIn:   tokenInID,
		TokenOut:  tokenOutID,
		AmountIn:  amountIn,
		AmountOut: amountOut,
	})
	e.logger.DebugContext(ctx, "swap executed",
		slog.Uint64("token_in", uint64(tokenInID)),
		slog.Uint64("token_out", uint64(tokenOutID)),
		slog.String("amount_in", amountIn.String()),
		slog.String("amount_out", amountOut.String()))
	return amountOut, nil
}
