package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// MarketQueries defines the read-only engine surface the market handler
// needs. It is declared locally so the handler package does not depend on the
// concrete engine implementation.
type MarketQueries interface {
	Properties(id domain.TokenID) (domain.TokenProperties, error)
	TradingLiquidity(id domain.TokenID) (*big.Int, error)
	QuoteAmountOut(tokenOut domain.TokenID, amountIn *big.Int) (*big.Int, error)
	QuoteAmountIn(tokenOut domain.TokenID, amountOut *big.Int) (*big.Int, error)
	UnjudgedMarkets() ([]domain.TokenID, error)
	WinningTokens() ([]domain.TokenID, error)
}

// MarketHandler serves market and pool read endpoints. When a properties
// cache is configured, token property lookups go through it and misses are
// back-filled.
type MarketHandler struct {
	engine MarketQueries
	cache  domain.PropertiesCache
	logger *slog.Logger

	feeNominator   int64
	feeDenominator int64
}

// NewMarketHandler creates a MarketHandler. cache may be nil.
func NewMarketHandler(engine MarketQueries, cache domain.PropertiesCache, feeNominator, feeDenominator int64, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		engine:         engine,
		cache:          cache,
		logger:         logger,
		feeNominator:   feeNominator,
		feeDenominator: feeDenominator,
	}
}

// properties resolves token properties through the cache when present.
func (h *MarketHandler) properties(ctx context.Context, id domain.TokenID) (domain.TokenProperties, error) {
	if h.cache != nil {
		if props, err := h.cache.Get(ctx, id); err == nil {
			return props, nil
		}
	}
	props, err := h.engine.Properties(id)
	if err != nil {
		return domain.TokenProperties{}, err
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, props); err != nil {
			h.logger.WarnContext(ctx, "properties cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return props, nil
}

// listMarketsResponse wraps the market list output.
type listMarketsResponse struct {
	Markets []domain.TokenProperties `json:"markets"`
}

// ListUnjudged returns the properties of every market that has not been
// judged yet.
// GET /api/markets
func (h *MarketHandler) ListUnjudged(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.UnjudgedMarkets()
	if err != nil {
		writeEngineError(w, r, h.logger, "list markets", err)
		return
	}

	markets := make([]domain.TokenProperties, 0, len(ids))
	for _, id := range ids {
		props, err := h.properties(r.Context(), id)
		if err != nil {
			writeEngineError(w, r, h.logger, "list markets", err)
			return
		}
		markets = append(markets, props)
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: markets})
}

// ListWinning returns the token ids recorded as winners by past judgments.
// GET /api/markets/winning
func (h *MarketHandler) ListWinning(w http.ResponseWriter, r *http.Request) {
	ids, err := h.engine.WinningTokens()
	if err != nil {
		writeEngineError(w, r, h.logger, "list winning tokens", err)
		return
	}
	if ids == nil {
		ids = []domain.TokenID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"winningTokenIds": ids})
}

// GetToken returns the aggregated properties of one token.
// GET /api/tokens/{id}
func (h *MarketHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	props, err := h.properties(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "get token", err)
		return
	}
	writeJSON(w, http.StatusOK, props)
}

// GetReserve returns the pool reserve of one claim token.
// GET /api/tokens/{id}/reserve
func (h *MarketHandler) GetReserve(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reserve, err := h.engine.TradingLiquidity(id)
	if err != nil {
		writeEngineError(w, r, h.logger, "get reserve", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokenId": id,
		"reserve": reserve.String(),
	})
}

// QuoteOut answers "how much comes out for this much in".
// GET /api/quote/out?tokenOut=3&amountIn=100
func (h *MarketHandler) QuoteOut(w http.ResponseWriter, r *http.Request) {
	h.quote(w, r, "amountIn", h.engine.QuoteAmountOut, "amountOut")
}

// QuoteIn answers "how much must go in for this much out".
// GET /api/quote/in?tokenOut=3&amountOut=89
func (h *MarketHandler) QuoteIn(w http.ResponseWriter, r *http.Request) {
	h.quote(w, r, "amountOut", h.engine.QuoteAmountIn, "amountIn")
}

func (h *MarketHandler) quote(w http.ResponseWriter, r *http.Request, inParam string, fn func(domain.TokenID, *big.Int) (*big.Int, error), outField string) {
	q := r.URL.Query()

	tokenOut, err := parseTokenID(q.Get("tokenOut"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBigInt(q.Get(inParam))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := fn(tokenOut, amount)
	if err != nil {
		writeEngineError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokenOut": tokenOut,
		inParam:    amount.String(),
		outField:   result.String(),
	})
}

// GetFees returns the swap fee constants.
// GET /api/fees
func (h *MarketHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"feeNominator":   h.feeNominator,
		"feeDenominator": h.feeDenominator,
	})
}
