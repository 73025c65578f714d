package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/access"
	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// CreateProposition mints a fresh liquidity/true/false token triple for a
// yes-or-no question settling against a whitelisted collateral asset. Only
// the admin may create propositions, and the due time must lie in the
// future. It returns the three new token ids.
func (e *Engine) CreateProposition(ctx context.Context, caller common.Address, proposition string, collateralToken common.Address, dueTimeMS int64) (liquidityID, trueID, falseID domain.TokenID, err error) {
	err = e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleAdmin); err != nil {
			return err
		}
		ok, err := c.auth.Whitelisted(collateralToken)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("engine: collateral %s: %w", collateralToken, domain.ErrNotWhitelisted)
		}
		if dueTimeMS <= e.nowMS() {
			return fmt.Errorf("engine: due time %d already passed: %w", dueTimeMS, domain.ErrInvalidDueTime)
		}

		if liquidityID, err = c.reg.NewTokenID(); err != nil {
			return err
		}
		if trueID, err = c.reg.NewTokenID(); err != nil {
			return err
		}
		if falseID, err = c.reg.NewTokenID(); err != nil {
			return err
		}

		liq := domain.TokenState{
			Type:             domain.TokenLiquidity,
			LiquidityTokenID: liquidityID,
			CollateralToken:  collateralToken,
			DueTimeMS:        dueTimeMS,
			TrueTokenID:      trueID,
			FalseTokenID:     falseID,
			WinnerType:       domain.TokenLiquidity,
		}
		if err := c.reg.SetToken(liquidityID, liq); err != nil {
			return err
		}
		if err := c.reg.SetToken(trueID, domain.TokenState{Type: domain.TokenTrue, LiquidityTokenID: liquidityID}); err != nil {
			return err
		}
		if err := c.reg.SetToken(falseID, domain.TokenState{Type: domain.TokenFalse, LiquidityTokenID: liquidityID}); err != nil {
			return err
		}

		c.sess.Put(ledger.Key(ledger.PrefixProposition, liquidityID.Bytes()), []byte(proposition))
		c.sess.Put(ledger.Key(ledger.PrefixUnjudged, liquidityID.Bytes()), liquidityID.Bytes())

		c.emit(domain.CreatedEvent{
			LiquidityTokenID: liquidityID,
			TrueTokenID:      trueID,
			FalseTokenID:     falseID,
			CollateralToken:  collateralToken,
			Proposition:      proposition,
			DueTimeMS:        dueTimeMS,
		})
		e.logger.InfoContext(ctx, "proposition created",
			slog.Uint64("liquidity_token", uint64(liquidityID)),
			slog.String("collateral", collateralToken.Hex()),
			slog.Int64("due_ms", dueTimeMS))
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return liquidityID, trueID, falseID, nil
}

// Judge settles a proposition by naming the winning claim token. It may only
// be called by the judge role, only after the due time, and at most once per
// proposition.
func (e *Engine) Judge(ctx context.Context, caller common.Address, winningTokenID domain.TokenID) error {
	return e.runTx(ctx, func(c *callCtx) error {
		if err := c.auth.Require(caller, access.RoleJudge); err != nil {
			return err
		}
		tok, err := c.reg.Token(winningTokenID)
		if err != nil {
			return err
		}
		if tok.Type != domain.TokenTrue && tok.Type != domain.TokenFalse {
			return fmt.Errorf("engine: token %s is not a claim token: %w", winningTokenID, domain.ErrWrongTokenType)
		}
		liq, err := c.reg.Token(tok.LiquidityTokenID)
		if err != nil {
			return err
		}
		if e.nowMS() <= liq.DueTimeMS {
			return fmt.Errorf("engine: due time %d not reached: %w", liq.DueTimeMS, domain.ErrDueTimeNotReached)
		}
		if liq.Judged() {
			return fmt.Errorf("engine: proposition %s: %w", tok.LiquidityTokenID, domain.ErrAlreadyJudged)
		}

		liq.WinnerType = tok.Type
		if err := c.reg.SetToken(tok.LiquidityTokenID, liq); err != nil {
			return err
		}
		c.sess.Delete(ledger.Key(ledger.PrefixUnjudged, tok.LiquidityTokenID.Bytes()))
		c.sess.Put(ledger.Key(ledger.PrefixWinning, winningTokenID.Bytes()), []byte{1})

		c.emit(domain.JudgedEvent{
			LiquidityTokenID: tok.LiquidityTokenID,
			WinningTokenID:   winningTokenID,
			WinnerType:       tok.Type,
		})
		e.logger.InfoContext(ctx, "proposition judged",
			slog.Uint64("liquidity_token", uint64(tok.LiquidityTokenID)),
			slog.Uint64("winning_token", uint64(winningTokenID)))
		return nil
	})
}

// counterpart resolves the other claim token of tok's proposition: the false
// token for a true token and vice versa. Liquidity tokens have none.
func (c *callCtx) counterpart(tok domain.TokenState) (domain.TokenID, error) {
	liq, err := c.reg.Token(tok.LiquidityTokenID)
	if err != nil {
		return 0, err
	}
	switch tok.Type {
	case domain.TokenTrue:
		return liq.FalseTokenID, nil
	case domain.TokenFalse:
		return liq.TrueTokenID, nil
	default:
		return 0, fmt.Errorf("engine: liquidity token has no counterpart: %w", domain.ErrWrongTokenType)
	}
}
