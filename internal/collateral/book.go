// Package collateral keeps the fungible collateral balances backing
// propositions. The book lives in the same ledger session as the rest of the
// contract state, so payouts roll back together with the call that made them.
package collateral

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

// Book is a session-bound view of collateral balances, keyed by asset and
// account.
type Book struct {
	sess *ledger.Session
}

// NewBook binds a book to a session.
func NewBook(sess *ledger.Session) *Book { return &Book{sess: sess} }

var _ domain.CollateralClient = (*Book)(nil)

func key(asset, account common.Address) []byte {
	return ledger.Key(ledger.PrefixCollateral, asset.Bytes(), account.Bytes())
}

// Balance reads an account's holding of asset. Missing entries are zero.
func (b *Book) Balance(asset, account common.Address) (*big.Int, error) {
	raw, err := b.sess.Get(key(asset, account))
	if err == ledger.ErrNotFound {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Credit adds amount to account's holding of asset.
func (b *Book) Credit(asset, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("collateral: credit %v: %w", amount, domain.ErrInvalidAmount)
	}
	bal, err := b.Balance(asset, account)
	if err != nil {
		return err
	}
	b.put(asset, account, bal.Add(bal, amount))
	return nil
}

// Transfer moves amount of asset between accounts. It fails when the payer
// holds less than amount.
func (b *Book) Transfer(_ context.Context, asset, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("collateral: transfer %v: %w", amount, domain.ErrInvalidAmount)
	}
	if from == to {
		return nil
	}
	src, err := b.Balance(asset, from)
	if err != nil {
		return err
	}
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("collateral: %s holds %s of %s, needs %s: %w",
			from, src, asset, amount, domain.ErrInsufficientFunds)
	}
	dst, err := b.Balance(asset, to)
	if err != nil {
		return err
	}
	b.put(asset, from, src.Sub(src, amount))
	b.put(asset, to, dst.Add(dst, amount))
	return nil
}

func (b *Book) put(asset, account common.Address, bal *big.Int) {
	k := key(asset, account)
	if bal.Sign() == 0 {
		b.sess.Delete(k)
		return
	}
	b.sess.Put(k, bal.Bytes())
}
