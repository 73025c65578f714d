package token

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

var (
	alice = common.HexToAddress("0x01")
	bob   = common.HexToAddress("0x02")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(ledger.NewSession(ledger.NewMemory()))
}

func TestNewTokenIDMonotonic(t *testing.T) {
	r := newRegistry(t)
	for want := domain.TokenID(0); want < 4; want++ {
		id, err := r.NewTokenID()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	last, err := r.LastTokenID()
	require.NoError(t, err)
	assert.Equal(t, domain.TokenID(3), last)
}

func TestTokenStateRoundTrip(t *testing.T) {
	r := newRegistry(t)
	st := domain.TokenState{
		Type:             domain.TokenLiquidity,
		LiquidityTokenID: 1,
		CollateralToken:  common.HexToAddress("0xfd"),
		DueTimeMS:        42,
		TrueTokenID:      2,
		FalseTokenID:     3,
	}
	require.NoError(t, r.SetToken(1, st))
	got, err := r.Token(1)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	_, err = r.Token(9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMintBurnBalances(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Mint(alice, 1, big.NewInt(100)))
	require.NoError(t, r.Mint(alice, 2, big.NewInt(30)))

	b, err := r.Balance(alice, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, b.Int64())

	total, err := r.BalanceOf(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 130, total.Int64())

	supply, err := r.SupplyOf(1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, supply.Int64())

	all, err := r.TotalSupply()
	require.NoError(t, err)
	assert.EqualValues(t, 130, all.Int64())

	require.NoError(t, r.Burn(alice, 1, big.NewInt(100)))
	b, err = r.Balance(alice, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, b.Int64())

	err = r.Burn(alice, 1, big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestMintRejectsNonPositive(t *testing.T) {
	r := newRegistry(t)
	assert.ErrorIs(t, r.Mint(alice, 1, big.NewInt(0)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, r.Mint(alice, 1, big.NewInt(-5)), domain.ErrInvalidAmount)
	assert.ErrorIs(t, r.Burn(alice, 1, big.NewInt(0)), domain.ErrInvalidAmount)
}

func TestTransfer(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Mint(alice, 1, big.NewInt(100)))

	require.NoError(t, r.Transfer(alice, bob, 1, big.NewInt(40)))
	a, _ := r.Balance(alice, 1)
	b, _ := r.Balance(bob, 1)
	assert.EqualValues(t, 60, a.Int64())
	assert.EqualValues(t, 40, b.Int64())

	// Supply is preserved by transfers.
	supply, err := r.SupplyOf(1)
	require.NoError(t, err)
	assert.EqualValues(t, 100, supply.Int64())

	err = r.Transfer(alice, bob, 1, big.NewInt(1000))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Self-transfer is a no-op.
	require.NoError(t, r.Transfer(alice, alice, 1, big.NewInt(60)))
	a, _ = r.Balance(alice, 1)
	assert.EqualValues(t, 60, a.Int64())
}

func TestHoldersAndTokensScans(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Mint(alice, 1, big.NewInt(10)))
	require.NoError(t, r.Mint(bob, 1, big.NewInt(20)))
	require.NoError(t, r.Mint(alice, 2, big.NewInt(5)))

	holders, err := r.Holders(1)
	require.NoError(t, err)
	require.Len(t, holders, 2)

	tokens, err := r.Tokens(alice)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, domain.TokenID(1), tokens[0].TokenID)
	assert.EqualValues(t, 10, tokens[0].Amount.Int64())

	// Zero balances drop out of the scans.
	require.NoError(t, r.Burn(alice, 1, big.NewInt(10)))
	holders, err = r.Holders(1)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, bob, holders[0].Account)
}
