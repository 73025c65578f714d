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

// addLiquidity runs one leg of the two-phase provision protocol. The first
// claim-token transfer of a pair stages its maximum; the second matches the
// two sides, deposits into the reserves, mints liquidity tokens, and refunds
// whatever the match did not consume. amountAMax is the amount received with
// this leg, amountAMin/amountBMin bound what the second leg accepts.
func (e *Engine) addLiquidity(ctx context.Context, c *callCtx, from common.Address, tokenIDA domain.TokenID, amountAMax, amountAMin, amountBMin *big.Int, deadlineMS int64) error {
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()

	if e.nowMS() > deadlineMS {
		return fmt.Errorf("engine: add-liquidity deadline %d: %w", deadlineMS, domain.ErrDeadlineExceeded)
	}
	tokenA, err := c.reg.Token(tokenIDA)
	if err != nil {
		return err
	}
	tokenIDB, err := c.counterpart(tokenA)
	if err != nil {
		return err
	}
	liq, err := c.reg.Token(tokenA.LiquidityTokenID)
	if err != nil {
		return err
	}
	if e.nowMS() > liq.DueTimeMS {
		return fmt.Errorf("engine: proposition %s: %w", tokenA.LiquidityTokenID, domain.ErrDueTimePassed)
	}

	stagedKey := ledger.Key(ledger.PrefixStaged, tokenIDB.Bytes())
	raw, err := c.sess.Get(stagedKey)
	if err == ledger.ErrNotFound {
		// First leg: stage this side under its own id and wait for the
		// counterpart transfer in the same batch.
		c.sess.Put(ledger.Key(ledger.PrefixStaged, tokenIDA.Bytes()), amountAMax.Bytes())
		return nil
	}
	if err != nil {
		return err
	}
	amountBMax := new(big.Int).SetBytes(raw)
	c.sess.Delete(stagedKey)

	reserveA, err := c.reserve(tokenIDA)
	if err != nil {
		return err
	}
	reserveB, err := c.reserve(tokenIDB)
	if err != nil {
		return err
	}

	amountA := new(big.Int)
	amountB := new(big.Int)
	if reserveA.Sign() == 0 && reserveB.Sign() == 0 {
		// Genesis deposit: seed both sides equally with the smaller max.
		amountA.Set(amountAMax)
		if amountBMax.Cmp(amountA) < 0 {
			amountA.Set(amountBMax)
		}
		amountB.Set(amountA)
	} else {
		// Match the counterpart side at the pool's current ratio. When the
		// implied B overshoots what was staged, flip and size A from B
		// instead.
		amountB.Mul(amountAMax, reserveB)
		amountB.Quo(amountB, reserveA)
		if amountB.Cmp(amountBMax) <= 0 {
			if amountB.Cmp(amountBMin) < 0 {
				return fmt.Errorf("engine: matched %s below minimum %s: %w", amountB, amountBMin, domain.ErrSlippage)
			}
			amountA.Set(amountAMax)
		} else {
			amountA.Mul(amountBMax, reserveA)
			amountA.Quo(amountA, reserveB)
			if amountA.Cmp(amountAMax) > 0 {
				return fmt.Errorf("engine: matched %s above received %s: %w", amountA, amountAMax, domain.ErrInvalidAmount)
			}
			if amountA.Cmp(amountAMin) < 0 {
				return fmt.Errorf("engine: matched %s below minimum %s: %w", amountA, amountAMin, domain.ErrSlippage)
			}
			amountB.Set(amountBMax)
		}
	}

	minted := new(big.Int).Mul(amountA, amountB)
	if minted.Sign() <= 0 {
		return fmt.Errorf("engine: both sides must contribute: %w", domain.ErrInvalidAmount)
	}

	c.setReserve(tokenIDA, new(big.Int).Add(reserveA, amountA))
	c.setReserve(tokenIDB, new(big.Int).Add(reserveB, amountB))
	if err := c.mint(from, tokenA.LiquidityTokenID, minted); err != nil {
		return err
	}

	if excess := new(big.Int).Sub(amountAMax, amountA); excess.Sign() > 0 {
		if err := c.transferOut(ctx, from, tokenIDA, excess); err != nil {
			return err
		}
	}
	if excess := new(big.Int).Sub(amountBMax, amountB); excess.Sign() > 0 {
		if err := c.transferOut(ctx, from, tokenIDB, excess); err != nil {
			return err
		}
	}

	c.emit(domain.AddLiquidityEvent{
		Sender:  from,
		TokenA:  tokenIDA,
		TokenB:  tokenIDB,
		AmountA: amountA,
		AmountB: amountB,
		Minted:  minted,
	})
	e.logger.DebugContext(ctx, "liquidity added",
		slog.Uint64("liquidity_token", uint64(tokenA.LiquidityTokenID)),
		slog.String("minted", minted.String()))
	return nil
}

// removeLiquidity burns liquidity tokens and pays out both reserves pro rata
// to the burned share of the liquidity supply.
func (e *Engine) removeLiquidity(ctx context.Context, c *callCtx, from common.Address, liquidityTokenID domain.TokenID, amount, minTrue, minFalse *big.Int, deadlineMS int64) error {
	release, err := c.enter()
	if err != nil {
		return err
	}
	defer release()

	if e.nowMS() > deadlineMS {
		return fmt.Errorf("engine: remove-liquidity deadline %d: %w", deadlineMS, domain.ErrDeadlineExceeded)
	}
	if minTrue == nil || minTrue.Sign() <= 0 || minFalse == nil || minFalse.Sign() <= 0 {
		return fmt.Errorf("engine: minimum payouts must be positive: %w", domain.ErrInvalidAmount)
	}
	liq, err := c.reg.Token(liquidityTokenID)
	if err != nil {
		return err
	}
	if liq.Type != domain.TokenLiquidity {
		return fmt.Errorf("engine: token %s is not a liquidity token: %w", liquidityTokenID, domain.ErrWrongTokenType)
	}

	reserveTrue, err := c.reserve(liq.TrueTokenID)
	if err != nil {
		return err
	}
	reserveFalse, err := c.reserve(liq.FalseTokenID)
	if err != nil {
		return err
	}
	if reserveTrue.Sign() == 0 || reserveFalse.Sign() == 0 {
		return fmt.Errorf("engine: pool for proposition %s is empty: %w", liquidityTokenID, domain.ErrNoLiquidity)
	}
	supply, err := c.reg.SupplyOf(liquidityTokenID)
	if err != nil {
		return err
	}

	payTrue := new(big.Int).Mul(amount, reserveTrue)
	payTrue.Quo(payTrue, supply)
	payFalse := new(big.Int).Mul(amount, reserveFalse)
	payFalse.Quo(payFalse, supply)
	if payTrue.Cmp(minTrue) < 0 || payFalse.Cmp(minFalse) < 0 {
		return fmt.Errorf("engine: payout %s/%s below minimum %s/%s: %w",
			payTrue, payFalse, minTrue, minFalse, domain.ErrSlippage)
	}

	c.setReserve(liq.TrueTokenID, new(big.Int).Sub(reserveTrue, payTrue))
	c.setReserve(liq.FalseTokenID, new(big.Int).Sub(reserveFalse, payFalse))
	if err := c.burn(e.self, liquidityTokenID, amount); err != nil {
		return err
	}
	if err := c.transferOut(ctx, from, liq.TrueTokenID, payTrue); err != nil {
		return err
	}
	if err := c.transferOut(ctx, from, liq.FalseTokenID, payFalse); err != nil {
		return err
	}

	c.emit(domain.RemoveLiquidityEvent{
		Sender:      from,
		TokenTrue:   liq.TrueTokenID,
		TokenFalse:  liq.FalseTokenID,
		AmountTrue:  payTrue,
		AmountFalse: payFalse,
		Burned:      amount,
	})
	e.logger.DebugContext(ctx, "liquidity removed",
		slog.Uint64("liquidity_token", uint64(liquidityTokenID)),
		slog.String("burned", amount.String()))
	return nil
}
