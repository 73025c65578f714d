package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// deposit mints a matched true/false pair against collateral already pulled
// into the contract account. One unit of collateral backs one unit of each
// claim, so the pair is always fully collateralized.
func (e *Engine) deposit(c *callCtx, sender, asset common.Address, liquidityTokenID domain.TokenID, amount *big.Int) error {
	liq, err := c.reg.Token(liquidityTokenID)
	if err != nil {
		return err
	}
	if liq.Type != domain.TokenLiquidity {
		return fmt.Errorf("engine: deposit against token %s: %w", liquidityTokenID, domain.ErrWrongTokenType)
	}
	if asset != liq.CollateralToken {
		return fmt.Errorf("engine: received %s, proposition settles in %s: %w",
			asset, liq.CollateralToken, domain.ErrWrongCollateral)
	}
	if e.nowMS() > liq.DueTimeMS {
		return fmt.Errorf("engine: proposition %s: %w", liquidityTokenID, domain.ErrDueTimePassed)
	}
	if err := c.mint(sender, liq.TrueTokenID, amount); err != nil {
		return err
	}
	if err := c.mint(sender, liq.FalseTokenID, amount); err != nil {
		return err
	}
	c.emit(domain.DepositEvent{
		Sender:           sender,
		LiquidityTokenID: liquidityTokenID,
		Amount:           amount,
	})
	return nil
}

// redeem burns a matched pair back into collateral. It runs in two legs
// within one batch: the true leg burns and stages its amount, the false leg
// must match that amount exactly, burns, and releases the collateral.
func (e *Engine) redeem(ctx context.Context, c *callCtx, sender common.Address, tokenID domain.TokenID, amount *big.Int) error {
	tok, err := c.reg.Token(tokenID)
	if err != nil {
		return err
	}
	stagedKey := ledger.Key(ledger.PrefixStaged, tok.LiquidityTokenID.Bytes())

	switch tok.Type {
	case domain.TokenTrue:
		if err := c.burn(e.self, tokenID, amount); err != nil {
			return err
		}
		c.sess.Put(stagedKey, amount.Bytes())
		return nil

	case domain.TokenFalse:
		raw, err := c.sess.Get(stagedKey)
		if err == ledger.ErrNotFound {
			raw = nil
		} else if err != nil {
			return err
		}
		staged := new(big.Int).SetBytes(raw)
		if staged.Cmp(amount) != 0 {
			return fmt.Errorf("engine: staged %s, received %s: %w", staged, amount, domain.ErrStagedMismatch)
		}
		c.sess.Delete(stagedKey)
		if err := c.burn(e.self, tokenID, amount); err != nil {
			return err
		}
		liq, err := c.reg.Token(tok.LiquidityTokenID)
		if err != nil {
			return err
		}
		if err := c.bank.Transfer(ctx, liq.CollateralToken, e.self, sender, amount); err != nil {
			return fmt.Errorf("engine: %w: %v", domain.ErrTransferFailed, err)
		}
		c.emit(domain.RedeemEvent{
			Sender:           sender,
			LiquidityTokenID: tok.LiquidityTokenID,
			Amount:           amount,
		})
		return nil

	default:
		return fmt.Errorf("engine: redeem token %s: %w", tokenID, domain.ErrWrongTokenType)
	}
}

// winnerRedeem burns winning claim tokens one-for-one into collateral after
// the proposition has been judged.
func (e *Engine) winnerRedeem(ctx context.Context, c *callCtx, sender common.Address, tokenID domain.TokenID, amount *big.Int) error {
	tok, err := c.reg.Token(tokenID)
	if err != nil {
		return err
	}
	if tok.Type != domain.TokenTrue && tok.Type != domain.TokenFalse {
		return fmt.Errorf("engine: winner redeem token %s: %w", tokenID, domain.ErrWrongTokenType)
	}
	liq, err := c.reg.Token(tok.LiquidityTokenID)
	if err != nil {
		return err
	}
	if liq.WinnerType != tok.Type {
		return fmt.Errorf("engine: token %s did not win: %w", tokenID, domain.ErrNotWinner)
	}
	if err := c.burn(e.self, tokenID, amount); err != nil {
		return err
	}
	if err := c.bank.Transfer(ctx, liq.CollateralToken, e.self, sender, amount); err != nil {
		return fmt.Errorf("engine: %w: %v", domain.ErrTransferFailed, err)
	}
	c.emit(domain.RedeemEvent{
		Sender:           sender,
		LiquidityTokenID: tok.LiquidityTokenID,
		Amount:           amount,
	})
	return nil
}
