package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/domain"
)

var discard = slog.New(slog.NewTextHandler(new(strings.Builder), nil))

type fakeMarketQueries struct {
	props    map[domain.TokenID]domain.TokenProperties
	reserves map[domain.TokenID]*big.Int
	unjudged []domain.TokenID
}

func (f *fakeMarketQueries) Properties(id domain.TokenID) (domain.TokenProperties, error) {
	p, ok := f.props[id]
	if !ok {
		return domain.TokenProperties{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeMarketQueries) TradingLiquidity(id domain.TokenID) (*big.Int, error) {
	r, ok := f.reserves[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r, nil
}

func (f *fakeMarketQueries) QuoteAmountOut(_ domain.TokenID, amountIn *big.Int) (*big.Int, error) {
	if amountIn.Sign() == 0 {
		return nil, domain.ErrNoLiquidity
	}
	return new(big.Int).Sub(amountIn, big.NewInt(11)), nil
}

func (f *fakeMarketQueries) QuoteAmountIn(_ domain.TokenID, amountOut *big.Int) (*big.Int, error) {
	return new(big.Int).Add(amountOut, big.NewInt(9)), nil
}

func (f *fakeMarketQueries) UnjudgedMarkets() ([]domain.TokenID, error) { return f.unjudged, nil }

func (f *fakeMarketQueries) WinningTokens() ([]domain.TokenID, error) { return nil, nil }

func routed(pattern string, h http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	return mux
}

func TestGetToken(t *testing.T) {
	eng := &fakeMarketQueries{props: map[domain.TokenID]domain.TokenProperties{
		2: {TokenID: 2, Type: "True", Proposition: "Will it rain tomorrow?", LiquidityTokenID: 1},
	}}
	h := NewMarketHandler(eng, nil, 9_940_000_000, 10_000_000_000, discard)
	mux := routed("GET /api/tokens/{id}", h.GetToken)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var props domain.TokenProperties
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &props))
	assert.Equal(t, domain.TokenID(2), props.TokenID)
	assert.Equal(t, "Will it rain tomorrow?", props.Proposition)
}

func TestGetTokenNotFound(t *testing.T) {
	h := NewMarketHandler(&fakeMarketQueries{}, nil, 0, 0, discard)
	mux := routed("GET /api/tokens/{id}", h.GetToken)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/99", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTokenBadID(t *testing.T) {
	h := NewMarketHandler(&fakeMarketQueries{}, nil, 0, 0, discard)
	mux := routed("GET /api/tokens/{id}", h.GetToken)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/notanumber", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteOut(t *testing.T) {
	h := NewMarketHandler(&fakeMarketQueries{}, nil, 0, 0, discard)

	rec := httptest.NewRecorder()
	h.QuoteOut(rec, httptest.NewRequest(http.MethodGet, "/api/quote/out?tokenOut=3&amountIn=100", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "100", resp["amountIn"])
	assert.Equal(t, "89", resp["amountOut"])
}

func TestQuoteOutEmptyPool(t *testing.T) {
	h := NewMarketHandler(&fakeMarketQueries{}, nil, 0, 0, discard)

	rec := httptest.NewRecorder()
	h.QuoteOut(rec, httptest.NewRequest(http.MethodGet, "/api/quote/out?tokenOut=3&amountIn=0", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetFees(t *testing.T) {
	h := NewMarketHandler(&fakeMarketQueries{}, nil, 9_940_000_000, 10_000_000_000, discard)

	rec := httptest.NewRecorder()
	h.GetFees(rec, httptest.NewRequest(http.MethodGet, "/api/fees", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 9_940_000_000, resp["feeNominator"])
	assert.EqualValues(t, 10_000_000_000, resp["feeDenominator"])
}

type markerCache struct {
	stored map[domain.TokenID]domain.TokenProperties
}

func (c *markerCache) Get(_ context.Context, id domain.TokenID) (domain.TokenProperties, error) {
	p, ok := c.stored[id]
	if !ok {
		return domain.TokenProperties{}, domain.ErrNotFound
	}
	return p, nil
}

func (c *markerCache) Set(_ context.Context, props domain.TokenProperties) error {
	c.stored[props.TokenID] = props
	return nil
}

func (c *markerCache) Invalidate(_ context.Context, ids ...domain.TokenID) error {
	for _, id := range ids {
		delete(c.stored, id)
	}
	return nil
}

func TestGetTokenBackfillsCache(t *testing.T) {
	eng := &fakeMarketQueries{props: map[domain.TokenID]domain.TokenProperties{
		2: {TokenID: 2, Type: "True"},
	}}
	cache := &markerCache{stored: map[domain.TokenID]domain.TokenProperties{}}
	h := NewMarketHandler(eng, cache, 0, 0, discard)
	mux := routed("GET /api/tokens/{id}", h.GetToken)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, cache.stored, domain.TokenID(2))

	// A cached entry is served even after the engine forgets the token.
	delete(eng.props, 2)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tokens/2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type captureExecutor struct {
	caller    common.Address
	transfers []domain.Transfer
	err       error
}

func (e *captureExecutor) Execute(_ context.Context, caller common.Address, transfers []domain.Transfer) error {
	e.caller = caller
	e.transfers = transfers
	return e.err
}

func TestExecuteDecodesBatch(t *testing.T) {
	exec := &captureExecutor{}
	h := NewExecuteHandler(exec, discard)

	body := `{
		"caller": "0x00000000000000000000000000000000000a11ce",
		"transfers": [
			{"asset": "0x00000000000000000000000000000000000005ee", "amount": "100", "tag": "deposit", "args": ["1"]},
			{"tokenId": 2, "amount": "50", "tag": "buy", "args": ["40", "9999999999999"]}
		]
	}`

	rec := httptest.NewRecorder()
	h.Execute(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, exec.transfers, 2)
	dep := exec.transfers[0]
	assert.Equal(t, exec.caller, dep.From)
	assert.Equal(t, domain.DepositInstruction{LiquidityTokenID: 1}, dep.Instruction)
	assert.Equal(t, "100", dep.Amount.String())

	buy := exec.transfers[1]
	require.IsType(t, domain.BuyInstruction{}, buy.Instruction)
	assert.Equal(t, domain.TokenID(2), buy.TokenID)
	assert.Equal(t, "40", buy.Instruction.(domain.BuyInstruction).MinAmountOut.String())
}

func TestExecuteRejectsUnknownTag(t *testing.T) {
	h := NewExecuteHandler(&captureExecutor{}, discard)

	body := `{"caller": "0x00000000000000000000000000000000000a11ce",
		"transfers": [{"tokenId": 2, "amount": "50", "tag": "steal", "args": []}]}`
	rec := httptest.NewRecorder()
	h.Execute(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteMapsEngineErrors(t *testing.T) {
	h := NewExecuteHandler(&captureExecutor{err: domain.ErrSlippage}, discard)

	body := `{"caller": "0x00000000000000000000000000000000000a11ce",
		"transfers": [{"tokenId": 2, "amount": "50", "tag": "redeem", "args": []}]}`
	rec := httptest.NewRecorder()
	h.Execute(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestExecuteRequiresTransfers(t *testing.T) {
	h := NewExecuteHandler(&captureExecutor{}, discard)

	body := `{"caller": "0x00000000000000000000000000000000000a11ce", "transfers": []}`
	rec := httptest.NewRecorder()
	h.Execute(rec, httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
