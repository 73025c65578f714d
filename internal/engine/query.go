package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/access"
	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// Read-only queries run against an uncommitted throwaway session, so they
// observe the last committed state without blocking writers.

func (e *Engine) readCall() *callCtx { return e.newCall() }

// Properties aggregates the market-level view of any token id: proposition
// text, collateral, due time, the three sibling ids, and the outcome.
func (e *Engine) Properties(id domain.TokenID) (domain.TokenProperties, error) {
	c := e.readCall()
	tok, err := c.reg.Token(id)
	if err != nil {
		return domain.TokenProperties{}, err
	}
	liq := tok
	if tok.Type != domain.TokenLiquidity {
		if liq, err = c.reg.Token(tok.LiquidityTokenID); err != nil {
			return domain.TokenProperties{}, err
		}
	}
	raw, err := c.sess.Get(ledger.Key(ledger.PrefixProposition, liq.LiquidityTokenID.Bytes()))
	if err != nil && err != ledger.ErrNotFound {
		return domain.TokenProperties{}, err
	}
	winner := "Unknown"
	if liq.Judged() {
		winner = liq.WinnerType.String()
	}
	return domain.TokenProperties{
		TokenID:          id,
		Type:             tok.Type.String(),
		Proposition:      string(raw),
		CollateralToken:  liq.CollateralToken,
		DueTimeMS:        liq.DueTimeMS,
		LiquidityTokenID: liq.LiquidityTokenID,
		TrueTokenID:      liq.TrueTokenID,
		FalseTokenID:     liq.FalseTokenID,
		Winner:           winner,
	}, nil
}

// Proposition returns the question text for a liquidity token id.
func (e *Engine) Proposition(id domain.TokenID) (string, error) {
	c := e.readCall()
	raw, err := c.sess.Get(ledger.Key(ledger.PrefixProposition, id.Bytes()))
	if err == ledger.ErrNotFound {
		return "", fmt.Errorf("engine: proposition %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// TradingLiquidity returns a claim token's pool reserve.
func (e *Engine) TradingLiquidity(id domain.TokenID) (*big.Int, error) {
	return e.readCall().reserve(id)
}

// QuoteAmountOut prices a swap that pays amountIn of tokenOut's counterpart.
func (e *Engine) QuoteAmountOut(tokenOut domain.TokenID, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("engine: quote input must be positive: %w", domain.ErrInvalidAmount)
	}
	c := e.readCall()
	tok, err := c.reg.Token(tokenOut)
	if err != nil {
		return nil, err
	}
	return c.quoteOut(tok, tokenOut, amountIn)
}

// QuoteAmountIn prices the input needed to take amountOut of tokenOut.
func (e *Engine) QuoteAmountIn(tokenOut domain.TokenID, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, fmt.Errorf("engine: quote output must be positive: %w", domain.ErrInvalidAmount)
	}
	c := e.readCall()
	tok, err := c.reg.Token(tokenOut)
	if err != nil {
		return nil, err
	}
	return c.quoteIn(tok, tokenOut, amountOut)
}

// UnjudgedMarkets lists liquidity token ids awaiting judgment.
func (e *Engine) UnjudgedMarkets() ([]domain.TokenID, error) {
	return e.scanIDs(ledger.PrefixUnjudged)
}

// WinningTokens lists claim token ids that have been declared winners.
func (e *Engine) WinningTokens() ([]domain.TokenID, error) {
	return e.scanIDs(ledger.PrefixWinning)
}

func (e *Engine) scanIDs(prefix byte) ([]domain.TokenID, error) {
	c := e.readCall()
	var ids []domain.TokenID
	err := c.sess.Iterate(ledger.Key(prefix), func(key, _ []byte) bool {
		if id, err := domain.TokenIDFromBytes(key[1:]); err == nil {
			ids = append(ids, id)
		}
		return true
	})
	return ids, err
}

// Balance returns owner's holding of one token id.
func (e *Engine) Balance(owner common.Address, id domain.TokenID) (*big.Int, error) {
	return e.readCall().reg.Balance(owner, id)
}

// BalanceOf returns owner's holdings summed over all token ids.
func (e *Engine) BalanceOf(owner common.Address) (*big.Int, error) {
	return e.readCall().reg.BalanceOf(owner)
}

// SupplyOf returns the outstanding supply of one token id.
func (e *Engine) SupplyOf(id domain.TokenID) (*big.Int, error) {
	return e.readCall().reg.SupplyOf(id)
}

// TotalSupply returns the supply summed over all token ids.
func (e *Engine) TotalSupply() (*big.Int, error) {
	return e.readCall().reg.TotalSupply()
}

// Holders lists accounts holding a token id with their balances.
func (e *Engine) Holders(id domain.TokenID) ([]domain.Holding, error) {
	return e.readCall().reg.Holders(id)
}

// TokensOf lists the token ids owner holds with balances.
func (e *Engine) TokensOf(owner common.Address) ([]domain.TokenBalance, error) {
	return e.readCall().reg.Tokens(owner)
}

// LastTokenID returns the highest allocated token id.
func (e *Engine) LastTokenID() (domain.TokenID, error) {
	return e.readCall().reg.LastTokenID()
}

// RoleHolder returns the account holding a role.
func (e *Engine) RoleHolder(role access.Role) (common.Address, error) {
	return e.readCall().auth.Holder(role)
}

// IsWhitelisted reports whether an asset may collateralize new propositions.
func (e *Engine) IsWhitelisted(asset common.Address) (bool, error) {
	return e.readCall().auth.Whitelisted(asset)
}

// Whitelist lists the whitelisted collateral assets.
func (e *Engine) Whitelist() ([]common.Address, error) {
	return e.readCall().auth.Whitelist()
}

// CollateralBalance returns an account's holding of a collateral asset.
func (e *Engine) CollateralBalance(asset, account common.Address) (*big.Int, error) {
	return e.readCall().bank.Balance(asset, account)
}
