// Package token implements the divisible-token registry: token records,
// per-account and per-token balances, and supplies, all persisted through a
// ledger session so that every mutation in one top-level call commits or
// rolls back together.
package token

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// Registry provides token bookkeeping over one ledger session.
type Registry struct {
	s *ledger.Session
}

// NewRegistry binds a registry to a session.
func NewRegistry(s *ledger.Session) *Registry {
	return &Registry{s: s}
}

// NewTokenID allocates the next token id. The returned id equals the current
// counter value; the counter then advances, so the very first allocation
// (consumed at deploy) returns id 0.
func (r *Registry) NewTokenID() (domain.TokenID, error) {
	key := ledger.Key(ledger.PrefixTokenCounter)
	id := domain.TokenID(0)
	raw, err := r.s.Get(key)
	switch err {
	case nil:
		id, err = domain.TokenIDFromBytes(raw)
		if err != nil {
			return 0, fmt.Errorf("token: corrupt id counter: %w", err)
		}
	case ledger.ErrNotFound:
		// first allocation
	default:
		return 0, err
	}
	r.s.Put(key, (id + 1).Bytes())
	return id, nil
}

// LastTokenID returns the highest allocated id, or 0 when none exists.
func (r *Registry) LastTokenID() (domain.TokenID, error) {
	raw, err := r.s.Get(ledger.Key(ledger.PrefixTokenCounter))
	if err == ledger.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	next, err := domain.TokenIDFromBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("token: corrupt id counter: %w", err)
	}
	if next == 0 {
		return 0, nil
	}
	return next - 1, nil
}

// Token loads the persisted state for id.
func (r *Registry) Token(id domain.TokenID) (domain.TokenState, error) {
	raw, err := r.s.Get(ledger.Key(ledger.PrefixTokenState, id.Bytes()))
	if err == ledger.ErrNotFound {
		return domain.TokenState{}, fmt.Errorf("token: id %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TokenState{}, err
	}
	var st domain.TokenState
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.TokenState{}, fmt.Errorf("token: decode state %s: %w", id, err)
	}
	return st, nil
}

// SetToken persists the state record for id.
func (r *Registry) SetToken(id domain.TokenID, st domain.TokenState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("token: encode state %s: %w", id, err)
	}
	r.s.Put(ledger.Key(ledger.PrefixTokenState, id.Bytes()), raw)
	return nil
}

// Mint credits amount of id to owner and grows both supplies.
func (r *Registry) Mint(owner common.Address, id domain.TokenID, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("token: mint %s: %w", amount, domain.ErrInvalidAmount)
	}
	if err := r.updateBalance(owner, id, amount); err != nil {
		return err
	}
	if err := r.bumpSupply(id, amount); err != nil {
		return err
	}
	return nil
}

// Burn debits amount of id from owner and shrinks both supplies. Token
// records are never deleted, even when the supply reaches zero.
func (r *Registry) Burn(owner common.Address, id domain.TokenID, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("token: burn %s: %w", amount, domain.ErrInvalidAmount)
	}
	neg := new(big.Int).Neg(amount)
	if err := r.updateBalance(owner, id, neg); err != nil {
		return err
	}
	if err := r.bumpSupply(id, neg); err != nil {
		return err
	}
	return nil
}

// Transfer moves amount of id between accounts. A self-transfer is a no-op,
// as in the originating token standard.
func (r *Registry) Transfer(from, to common.Address, id domain.TokenID, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("token: transfer %s: %w", amount, domain.ErrInvalidAmount)
	}
	if from == to {
		return nil
	}
	if err := r.updateBalance(from, id, new(big.Int).Neg(amount)); err != nil {
		return err
	}
	return r.updateBalance(to, id, amount)
}

// Balance returns owner's balance of one token id.
func (r *Registry) Balance(owner common.Address, id domain.TokenID) (*big.Int, error) {
	return r.readAmount(ledger.Key(ledger.PrefixAccountToken, owner.Bytes(), id.Bytes()))
}

// BalanceOf returns owner's balance summed across all token ids.
func (r *Registry) BalanceOf(owner common.Address) (*big.Int, error) {
	return r.readAmount(ledger.Key(ledger.PrefixAccountTotal, owner.Bytes()))
}

// SupplyOf returns the total supply of one token id.
func (r *Registry) SupplyOf(id domain.TokenID) (*big.Int, error) {
	return r.readAmount(ledger.Key(ledger.PrefixTokenSupply, id.Bytes()))
}

// TotalSupply returns the supply across all token ids.
func (r *Registry) TotalSupply() (*big.Int, error) {
	return r.readAmount(ledger.Key(ledger.PrefixTotalSupply))
}

// Holders lists every account holding id, in key order.
func (r *Registry) Holders(id domain.TokenID) ([]domain.Holding, error) {
	prefix := ledger.Key(ledger.PrefixTokenAccount, id.Bytes())
	var out []domain.Holding
	err := r.s.Iterate(prefix, func(key, value []byte) bool {
		addr := common.BytesToAddress(key[len(prefix):])
		out = append(out, domain.Holding{Account: addr, Amount: new(big.Int).SetBytes(value)})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("token: holders of %s: %w", id, err)
	}
	return out, nil
}

// Tokens lists every token id owner holds, in id order.
func (r *Registry) Tokens(owner common.Address) ([]domain.TokenBalance, error) {
	prefix := ledger.Key(ledger.PrefixAccountToken, owner.Bytes())
	var out []domain.TokenBalance
	var iterErr error
	err := r.s.Iterate(prefix, func(key, value []byte) bool {
		id, err := domain.TokenIDFromBytes(key[len(prefix):])
		if err != nil {
			iterErr = err
			return false
		}
		out = append(out, domain.TokenBalance{TokenID: id, Amount: new(big.Int).SetBytes(value)})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("token: tokens of %s: %w", owner, err)
	}
	if iterErr != nil {
		return nil, fmt.Errorf("token: tokens of %s: %w", owner, iterErr)
	}
	return out, nil
}

// updateBalance applies a signed delta to owner's balance of id, maintaining
// the per-account total and the holder-scan mirror. Zero balances are deleted
// rather than stored.
func (r *Registry) updateBalance(owner common.Address, id domain.TokenID, delta *big.Int) error {
	totalKey := ledger.Key(ledger.PrefixAccountTotal, owner.Bytes())
	total, err := r.readAmount(totalKey)
	if err != nil {
		return err
	}
	total.Add(total, delta)
	if total.Sign() < 0 {
		return fmt.Errorf("token: account %s total: %w", owner, domain.ErrInsufficientFunds)
	}

	balKey := ledger.Key(ledger.PrefixAccountToken, owner.Bytes(), id.Bytes())
	mirrorKey := ledger.Key(ledger.PrefixTokenAccount, id.Bytes(), owner.Bytes())
	bal, err := r.readAmount(balKey)
	if err != nil {
		return err
	}
	bal.Add(bal, delta)
	if bal.Sign() < 0 {
		return fmt.Errorf("token: account %s token %s: %w", owner, id, domain.ErrInsufficientFunds)
	}

	if total.Sign() == 0 {
		r.s.Delete(totalKey)
	} else {
		r.s.Put(totalKey, total.Bytes())
	}
	if bal.Sign() == 0 {
		r.s.Delete(balKey)
		r.s.Delete(mirrorKey)
	} else {
		r.s.Put(balKey, bal.Bytes())
		r.s.Put(mirrorKey, bal.Bytes())
	}
	return nil
}

func (r *Registry) bumpSupply(id domain.TokenID, delta *big.Int) error {
	supplyKey := ledger.Key(ledger.PrefixTokenSupply, id.Bytes())
	supply, err := r.readAmount(supplyKey)
	if err != nil {
		return err
	}
	supply.Add(supply, delta)
	if supply.Sign() < 0 {
		return fmt.Errorf("token: supply of %s: %w", id, domain.ErrInsufficientFunds)
	}
	r.s.Put(supplyKey, supply.Bytes())

	totalKey := ledger.Key(ledger.PrefixTotalSupply)
	total, err := r.readAmount(totalKey)
	if err != nil {
		return err
	}
	total.Add(total, delta)
	r.s.Put(totalKey, total.Bytes())
	return nil
}

func (r *Registry) readAmount(key []byte) (*big.Int, error) {
	raw, err := r.s.Get(key)
	if err == ledger.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}
