package engine

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/access"
	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/ledger"
)

type fakeClock struct{ ms int64 }

func (f *fakeClock) Now() time.Time          { return time.UnixMilli(f.ms) }
func (f *fakeClock) advance(d time.Duration) { f.ms += d.Milliseconds() }

type captureSink struct{ events []domain.Event }

func (s *captureSink) Emit(_ context.Context, ev domain.Event) { s.events = append(s.events, ev) }

var (
	contractAddr = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	ownerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	aliceAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bobAddr      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdAddr      = common.HexToAddress("0x00000000000000000000000000000000000000fd")
)

const dayMS = int64(24 * 60 * 60 * 1000)

type fixture struct {
	t     *testing.T
	eng   *Engine
	clock *fakeClock
	sink  *captureSink
	store *ledger.Memory

	liqID   domain.TokenID
	trueID  domain.TokenID
	falseID domain.TokenID
}

// newFixture deploys a fresh engine with one judged-in-the-future market and
// owner holding all three roles.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		clock: &fakeClock{ms: 1_000_000},
		sink:  &captureSink{},
		store: ledger.NewMemory(),
	}
	f.eng = New(f.store, contractAddr, Options{Clock: f.clock, Sink: f.sink})
	ctx := context.Background()
	require.NoError(t, f.eng.Deploy(ctx, ownerAddr))
	require.NoError(t, f.eng.AddWhitelist(ctx, ownerAddr, usdAddr))
	var err error
	f.liqID, f.trueID, f.falseID, err = f.eng.CreateProposition(
		ctx, ownerAddr, "Will it rain tomorrow?", usdAddr, f.clock.ms+dayMS)
	require.NoError(t, err)
	f.sink.events = nil
	return f
}

func (f *fixture) fund(account common.Address, amount int64) {
	f.t.Helper()
	require.NoError(f.t, f.eng.MintCollateral(context.Background(), ownerAddr, usdAddr, account, big.NewInt(amount)))
}

func (f *fixture) deposit(account common.Address, amount int64) {
	f.t.Helper()
	err := f.eng.Execute(context.Background(), account, []domain.Transfer{{
		From:        account,
		Asset:       usdAddr,
		Amount:      big.NewInt(amount),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}})
	require.NoError(f.t, err)
}

func (f *fixture) provide(account common.Address, amountTrue, amountFalse int64) {
	f.t.Helper()
	deadline := f.clock.ms + dayMS
	err := f.eng.Execute(context.Background(), account, []domain.Transfer{
		{
			From: account, TokenID: f.trueID, Amount: big.NewInt(amountTrue),
			Instruction: domain.AddLiquidityInstruction{MinSelf: big.NewInt(0), MinOther: big.NewInt(0), DeadlineMS: deadline},
		},
		{
			From: account, TokenID: f.falseID, Amount: big.NewInt(amountFalse),
			Instruction: domain.AddLiquidityInstruction{MinSelf: big.NewInt(0), MinOther: big.NewInt(0), DeadlineMS: deadline},
		},
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(account common.Address, id domain.TokenID) int64 {
	f.t.Helper()
	b, err := f.eng.Balance(account, id)
	require.NoError(f.t, err)
	return b.Int64()
}

func (f *fixture) collateral(account common.Address) int64 {
	f.t.Helper()
	b, err := f.eng.CollateralBalance(usdAddr, account)
	require.NoError(f.t, err)
	return b.Int64()
}

func (f *fixture) reserve(id domain.TokenID) int64 {
	f.t.Helper()
	r, err := f.eng.TradingLiquidity(id)
	require.NoError(f.t, err)
	return r.Int64()
}

// assertConserved checks that balances held outside the contract plus the
// pool reserve account for the token's full supply, and that the contract's
// own holding exactly backs the reserve.
func (f *fixture) assertConserved(ids ...domain.TokenID) {
	f.t.Helper()
	for _, id := range ids {
		holders, err := f.eng.Holders(id)
		require.NoError(f.t, err)
		external := big.NewInt(0)
		contractHeld := big.NewInt(0)
		for _, h := range holders {
			if h.Account == contractAddr {
				contractHeld.Add(contractHeld, h.Amount)
				continue
			}
			external.Add(external, h.Amount)
		}
		reserve, err := f.eng.TradingLiquidity(id)
		require.NoError(f.t, err)
		supply, err := f.eng.SupplyOf(id)
		require.NoError(f.t, err)

		assert.Equal(f.t, reserve.String(), contractHeld.String(),
			"token %d: contract holding must back the reserve", id)
		assert.Equal(f.t, supply.String(), new(big.Int).Add(external, reserve).String(),
			"token %d: external holdings plus reserve must equal supply", id)
	}
}

func TestDeployOnce(t *testing.T) {
	f := newFixture(t)
	err := f.eng.Deploy(context.Background(), bobAddr)
	require.Error(t, err)

	holder, err := f.eng.RoleHolder(access.RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, holder)
}

func TestCreateProposition(t *testing.T) {
	f := newFixture(t)

	// Id zero is burned at deploy time, so the first market takes 1..3.
	assert.Equal(t, domain.TokenID(1), f.liqID)
	assert.Equal(t, domain.TokenID(2), f.trueID)
	assert.Equal(t, domain.TokenID(3), f.falseID)

	props, err := f.eng.Properties(f.trueID)
	require.NoError(t, err)
	assert.Equal(t, "True", props.Type)
	assert.Equal(t, "Will it rain tomorrow?", props.Proposition)
	assert.Equal(t, usdAddr, props.CollateralToken)
	assert.Equal(t, f.liqID, props.LiquidityTokenID)
	assert.Equal(t, "Unknown", props.Winner)

	unjudged, err := f.eng.UnjudgedMarkets()
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenID{f.liqID}, unjudged)
}

func TestCreatePropositionGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, _, err := f.eng.CreateProposition(ctx, bobAddr, "q", usdAddr, f.clock.ms+dayMS)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	other := common.HexToAddress("0xdead")
	_, _, _, err = f.eng.CreateProposition(ctx, ownerAddr, "q", other, f.clock.ms+dayMS)
	assert.ErrorIs(t, err, domain.ErrNotWhitelisted)

	_, _, _, err = f.eng.CreateProposition(ctx, ownerAddr, "q", usdAddr, f.clock.ms)
	assert.ErrorIs(t, err, domain.ErrInvalidDueTime)
}

func TestDepositMintsMatchedPair(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 500)
	f.deposit(aliceAddr, 300)

	assert.EqualValues(t, 300, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 300, f.balance(aliceAddr, f.falseID))
	assert.EqualValues(t, 200, f.collateral(aliceAddr))
	assert.EqualValues(t, 300, f.collateral(contractAddr))

	supply, err := f.eng.SupplyOf(f.trueID)
	require.NoError(t, err)
	assert.EqualValues(t, 300, supply.Int64())
}

func TestDepositWrongCollateral(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0xbeef")
	require.NoError(t, f.eng.MintCollateral(context.Background(), ownerAddr, other, aliceAddr, big.NewInt(100)))

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, Asset: other, Amount: big.NewInt(100),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}})
	assert.ErrorIs(t, err, domain.ErrWrongCollateral)
}

func TestDepositAfterDueTime(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.clock.advance(48 * time.Hour)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, Asset: usdAddr, Amount: big.NewInt(100),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}})
	assert.ErrorIs(t, err, domain.ErrDueTimePassed)
	assert.EqualValues(t, 100, f.collateral(aliceAddr))
}

func TestRedeemRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{
		{From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100), Instruction: domain.RedeemInstruction{}},
		{From: aliceAddr, TokenID: f.falseID, Amount: big.NewInt(100), Instruction: domain.RedeemInstruction{}},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 0, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 0, f.balance(aliceAddr, f.falseID))
	assert.EqualValues(t, 100, f.collateral(aliceAddr))
	assert.EqualValues(t, 0, f.collateral(contractAddr))

	supply, err := f.eng.SupplyOf(f.trueID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, supply.Int64())
}

func TestRedeemStagedMismatch(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{
		{From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100), Instruction: domain.RedeemInstruction{}},
		{From: aliceAddr, TokenID: f.falseID, Amount: big.NewInt(60), Instruction: domain.RedeemInstruction{}},
	})
	assert.ErrorIs(t, err, domain.ErrStagedMismatch)

	// Nothing from the failed batch sticks, the burned first leg included.
	assert.EqualValues(t, 100, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 100, f.balance(aliceAddr, f.falseID))
	assert.EqualValues(t, 0, f.collateral(aliceAddr))
}

func TestRedeemDanglingFirstLeg(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{
		{From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100), Instruction: domain.RedeemInstruction{}},
	})
	assert.ErrorIs(t, err, domain.ErrIncompleteTransfer)
	assert.EqualValues(t, 100, f.balance(aliceAddr, f.trueID))
}

func TestJudgeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.eng.Judge(ctx, ownerAddr, f.trueID)
	assert.ErrorIs(t, err, domain.ErrDueTimeNotReached)

	f.clock.advance(48 * time.Hour)
	err = f.eng.Judge(ctx, bobAddr, f.trueID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.eng.Judge(ctx, ownerAddr, f.liqID)
	assert.ErrorIs(t, err, domain.ErrWrongTokenType)

	require.NoError(t, f.eng.Judge(ctx, ownerAddr, f.trueID))

	err = f.eng.Judge(ctx, ownerAddr, f.falseID)
	assert.ErrorIs(t, err, domain.ErrAlreadyJudged)

	props, err := f.eng.Properties(f.liqID)
	require.NoError(t, err)
	assert.Equal(t, "True", props.Winner)

	unjudged, err := f.eng.UnjudgedMarkets()
	require.NoError(t, err)
	assert.Empty(t, unjudged)

	winning, err := f.eng.WinningTokens()
	require.NoError(t, err)
	assert.Equal(t, []domain.TokenID{f.trueID}, winning)
}

func TestWinnerRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	f.clock.advance(48 * time.Hour)
	require.NoError(t, f.eng.Judge(ctx, ownerAddr, f.trueID))

	// The losing side pays nothing.
	err := f.eng.Execute(ctx, aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.falseID, Amount: big.NewInt(100),
		Instruction: domain.WinnerRedeemInstruction{},
	}})
	assert.ErrorIs(t, err, domain.ErrNotWinner)

	err = f.eng.Execute(ctx, aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.WinnerRedeemInstruction{},
	}})
	require.NoError(t, err)
	assert.EqualValues(t, 100, f.collateral(aliceAddr))
	assert.EqualValues(t, 0, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 100, f.balance(aliceAddr, f.falseID))
}

func TestWinnerRedeemBeforeJudgment(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.WinnerRedeemInstruction{},
	}})
	assert.ErrorIs(t, err, domain.ErrNotWinner)
}

func TestAddLiquidityGenesis(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 80)
	f.deposit(aliceAddr, 80)
	f.provide(aliceAddr, 80, 80)

	assert.EqualValues(t, 80, f.reserve(f.trueID))
	assert.EqualValues(t, 80, f.reserve(f.falseID))
	assert.EqualValues(t, 6400, f.balance(aliceAddr, f.liqID))
	assert.EqualValues(t, 0, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 0, f.balance(aliceAddr, f.falseID))
}

func TestAddLiquidityGenesisRefundsExcess(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)
	f.provide(aliceAddr, 100, 80)

	// Genesis seeds both sides with the smaller maximum.
	assert.EqualValues(t, 80, f.reserve(f.trueID))
	assert.EqualValues(t, 80, f.reserve(f.falseID))
	assert.EqualValues(t, 6400, f.balance(aliceAddr, f.liqID))
	assert.EqualValues(t, 20, f.balance(aliceAddr, f.trueID))
}

func TestAddLiquidityProportional(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 200)
	f.deposit(aliceAddr, 200)
	f.provide(aliceAddr, 100, 100)
	f.provide(aliceAddr, 50, 60)

	// The second deposit matches at the pool ratio and refunds the surplus.
	assert.EqualValues(t, 150, f.reserve(f.trueID))
	assert.EqualValues(t, 150, f.reserve(f.falseID))
	assert.EqualValues(t, 10000+2500, f.balance(aliceAddr, f.liqID))
	assert.EqualValues(t, 50, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 40, f.balance(aliceAddr, f.falseID))
}

func TestAddLiquiditySingleLegRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.AddLiquidityInstruction{MinSelf: big.NewInt(0), MinOther: big.NewInt(0), DeadlineMS: f.clock.ms + dayMS},
	}})
	assert.ErrorIs(t, err, domain.ErrIncompleteTransfer)
	assert.EqualValues(t, 100, f.balance(aliceAddr, f.trueID))
}

func TestQuoteAmountOut(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	// eff = 100*0.994 = 99, new out reserve = floor(1e6/1099)+1 = 911.
	out, err := f.eng.QuoteAmountOut(f.falseID, big.NewInt(100))
	require.NoError(t, err)
	assert.EqualValues(t, 89, out.Int64())

	in, err := f.eng.QuoteAmountIn(f.falseID, big.NewInt(89))
	require.NoError(t, err)
	assert.EqualValues(t, 98, in.Int64())
}

func TestQuoteRejectsNonPositiveAmounts(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	_, err := f.eng.QuoteAmountOut(f.falseID, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.eng.QuoteAmountOut(f.falseID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.eng.QuoteAmountIn(f.falseID, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestQuoteEmptyPool(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.QuoteAmountOut(f.falseID, big.NewInt(100))
	assert.ErrorIs(t, err, domain.ErrNoLiquidity)
}

func TestBuy(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	f.fund(bobAddr, 100)
	f.deposit(bobAddr, 100)

	err := f.eng.Execute(context.Background(), bobAddr, []domain.Transfer{{
		From: bobAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(89), DeadlineMS: f.clock.ms + dayMS},
	}})
	require.NoError(t, err)

	assert.EqualValues(t, 0, f.balance(bobAddr, f.trueID))
	assert.EqualValues(t, 100+89, f.balance(bobAddr, f.falseID))
	assert.EqualValues(t, 1100, f.reserve(f.trueID))
	assert.EqualValues(t, 911, f.reserve(f.falseID))
}

func TestBuySlippage(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	f.fund(bobAddr, 100)
	f.deposit(bobAddr, 100)

	err := f.eng.Execute(context.Background(), bobAddr, []domain.Transfer{{
		From: bobAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(90), DeadlineMS: f.clock.ms + dayMS},
	}})
	assert.ErrorIs(t, err, domain.ErrSlippage)
	assert.EqualValues(t, 100, f.balance(bobAddr, f.trueID))
	assert.EqualValues(t, 1000, f.reserve(f.falseID))
}

func TestBuyDeadline(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	f.fund(bobAddr, 100)
	f.deposit(bobAddr, 100)

	err := f.eng.Execute(context.Background(), bobAddr, []domain.Transfer{{
		From: bobAddr, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(0), DeadlineMS: f.clock.ms - 1},
	}})
	assert.ErrorIs(t, err, domain.ErrDeadlineExceeded)
}

func TestReserveProductNeverShrinks(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	f.fund(bobAddr, 500)
	f.deposit(bobAddr, 500)

	product := func() *big.Int {
		return new(big.Int).Mul(big.NewInt(f.reserve(f.trueID)), big.NewInt(f.reserve(f.falseID)))
	}
	prev := product()
	for _, in := range []int64{7, 131, 59, 303} {
		err := f.eng.Execute(context.Background(), bobAddr, []domain.Transfer{{
			From: bobAddr, TokenID: f.trueID, Amount: big.NewInt(in),
			Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(0), DeadlineMS: f.clock.ms + dayMS},
		}})
		require.NoError(t, err)
		cur := product()
		assert.True(t, cur.Cmp(prev) >= 0, "product shrank: %s -> %s", prev, cur)
		prev = cur
	}
}

func TestRemoveLiquidity(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)
	f.provide(aliceAddr, 100, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.liqID, Amount: big.NewInt(5000),
		Instruction: domain.RemoveLiquidityInstruction{MinTrue: big.NewInt(1), MinFalse: big.NewInt(1), DeadlineMS: f.clock.ms + dayMS},
	}})
	require.NoError(t, err)

	assert.EqualValues(t, 50, f.reserve(f.trueID))
	assert.EqualValues(t, 50, f.reserve(f.falseID))
	assert.EqualValues(t, 5000, f.balance(aliceAddr, f.liqID))
	assert.EqualValues(t, 50, f.balance(aliceAddr, f.trueID))
	assert.EqualValues(t, 50, f.balance(aliceAddr, f.falseID))
}

func TestRemoveLiquidityMinimumsMustBePositive(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)
	f.provide(aliceAddr, 100, 100)

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.liqID, Amount: big.NewInt(5000),
		Instruction: domain.RemoveLiquidityInstruction{MinTrue: big.NewInt(0), MinFalse: big.NewInt(1), DeadlineMS: f.clock.ms + dayMS},
	}})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestReentrantBuyRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)

	attacker := common.HexToAddress("0xbad")
	f.fund(attacker, 100)
	require.NoError(t, f.eng.Execute(context.Background(), attacker, []domain.Transfer{{
		From: attacker, Asset: usdAddr, Amount: big.NewInt(100),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}}))

	var hookErr error
	f.eng.RegisterHook(attacker, func(ctx context.Context, call Reentrant, _ common.Address, _ domain.TokenID, _ *big.Int) error {
		_, hookErr = call.Buy(ctx, attacker, f.falseID, big.NewInt(10), big.NewInt(0), f.clock.ms+dayMS)
		return hookErr
	})

	err := f.eng.Execute(context.Background(), attacker, []domain.Transfer{{
		From: attacker, TokenID: f.trueID, Amount: big.NewInt(100),
		Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(0), DeadlineMS: f.clock.ms + dayMS},
	}})
	assert.ErrorIs(t, err, domain.ErrReentrant)
	assert.ErrorIs(t, hookErr, domain.ErrReentrant)

	// The rejected transaction rolled back in full.
	assert.EqualValues(t, 100, f.balance(attacker, f.trueID))
	assert.EqualValues(t, 1000, f.reserve(f.trueID))
	assert.EqualValues(t, 1000, f.reserve(f.falseID))
}

func TestEventsPublishedOnlyOnCommit(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)
	f.sink.events = nil

	err := f.eng.Execute(context.Background(), aliceAddr, []domain.Transfer{{
		From: aliceAddr, Asset: usdAddr, Amount: big.NewInt(200),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Empty(t, f.sink.events)

	f.deposit(aliceAddr, 100)
	require.NotEmpty(t, f.sink.events)
	last := f.sink.events[len(f.sink.events)-1]
	dep, ok := last.(domain.DepositEvent)
	require.True(t, ok)
	assert.Equal(t, aliceAddr, dep.Sender)
	assert.EqualValues(t, 100, dep.Amount.Int64())
}

func TestExecuteRejectsForeignTransfers(t *testing.T) {
	f := newFixture(t)
	f.fund(aliceAddr, 100)

	err := f.eng.Execute(context.Background(), bobAddr, []domain.Transfer{{
		From: aliceAddr, Asset: usdAddr, Amount: big.NewInt(100),
		Instruction: domain.DepositInstruction{LiquidityTokenID: f.liqID},
	}})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRecoverToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(aliceAddr, 100)
	f.deposit(aliceAddr, 100)
	f.provide(aliceAddr, 100, 100)

	err := f.eng.RecoverToken(ctx, aliceAddr, bobAddr, f.trueID, big.NewInt(10))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, f.eng.RecoverToken(ctx, ownerAddr, bobAddr, f.trueID, big.NewInt(10)))
	assert.EqualValues(t, 10, f.balance(bobAddr, f.trueID))
	assert.EqualValues(t, 90, f.balance(contractAddr, f.trueID))

	err = f.eng.RecoverToken(ctx, ownerAddr, bobAddr, f.trueID, big.NewInt(1000))
	assert.ErrorIs(t, err, domain.ErrTransferFailed)
}

// Full market lifecycle: provision, trading, judgment, settlement of both
// the winner and the pool.
func TestMarketLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fund(aliceAddr, 1000)
	f.deposit(aliceAddr, 1000)
	f.provide(aliceAddr, 1000, 1000)
	f.assertConserved(f.trueID, f.falseID)

	f.fund(bobAddr, 100)
	f.deposit(bobAddr, 100)
	require.NoError(t, f.eng.Execute(ctx, bobAddr, []domain.Transfer{{
		From: bobAddr, TokenID: f.falseID, Amount: big.NewInt(100),
		Instruction: domain.BuyInstruction{MinAmountOut: big.NewInt(0), DeadlineMS: f.clock.ms + dayMS},
	}}))
	bobTrue := f.balance(bobAddr, f.trueID)
	assert.EqualValues(t, 100+89, bobTrue)
	f.assertConserved(f.trueID, f.falseID)

	f.clock.advance(48 * time.Hour)
	require.NoError(t, f.eng.Judge(ctx, ownerAddr, f.trueID))

	require.NoError(t, f.eng.Execute(ctx, bobAddr, []domain.Transfer{{
		From: bobAddr, TokenID: f.trueID, Amount: big.NewInt(bobTrue),
		Instruction: domain.WinnerRedeemInstruction{},
	}}))
	assert.EqualValues(t, 189, f.collateral(bobAddr))

	// The provider unwinds the pool and settles the winning side.
	require.NoError(t, f.eng.Execute(ctx, aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.liqID, Amount: big.NewInt(1000 * 1000),
		Instruction: domain.RemoveLiquidityInstruction{MinTrue: big.NewInt(1), MinFalse: big.NewInt(1), DeadlineMS: f.clock.ms + dayMS},
	}}))
	aliceTrue := f.balance(aliceAddr, f.trueID)
	assert.EqualValues(t, 911, aliceTrue)
	f.assertConserved(f.trueID, f.falseID)
	require.NoError(t, f.eng.Execute(ctx, aliceAddr, []domain.Transfer{{
		From: aliceAddr, TokenID: f.trueID, Amount: big.NewInt(aliceTrue),
		Instruction: domain.WinnerRedeemInstruction{},
	}}))
	f.assertConserved(f.trueID, f.falseID)

	// Collateral never left the system: what the contract still holds plus
	// the payouts equals the deposits.
	total := f.collateral(aliceAddr) + f.collateral(bobAddr) + f.collateral(contractAddr)
	assert.EqualValues(t, 1100, total)
}
