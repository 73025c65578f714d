package collateral

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

var (
	usd   = common.HexToAddress("0xfd")
	alice = common.HexToAddress("0x01")
	bob   = common.HexToAddress("0x02")
)

func newBook(t *testing.T) *Book {
	t.Helper()
	return NewBook(ledger.NewSession(ledger.NewMemory()))
}

func TestCreditAndBalance(t *testing.T) {
	b := newBook(t)

	bal, err := b.Balance(usd, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal.Int64())

	require.NoError(t, b.Credit(usd, alice, big.NewInt(100)))
	require.NoError(t, b.Credit(usd, alice, big.NewInt(50)))
	bal, err = b.Balance(usd, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 150, bal.Int64())

	assert.ErrorIs(t, b.Credit(usd, alice, big.NewInt(0)), domain.ErrInvalidAmount)
}

func TestTransfer(t *testing.T) {
	b := newBook(t)
	ctx := context.Background()
	require.NoError(t, b.Credit(usd, alice, big.NewInt(100)))

	require.NoError(t, b.Transfer(ctx, usd, alice, bob, big.NewInt(60)))
	a, _ := b.Balance(usd, alice)
	bb, _ := b.Balance(usd, bob)
	assert.EqualValues(t, 40, a.Int64())
	assert.EqualValues(t, 60, bb.Int64())

	err := b.Transfer(ctx, usd, alice, bob, big.NewInt(41))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Balances per asset are independent.
	other := common.HexToAddress("0xee")
	bal, err := b.Balance(other, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 0, bal.Int64())
}
