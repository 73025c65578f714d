package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// AccountQueries defines the balance and holder surface the account handler
// needs from the engine.
type AccountQueries interface {
	Balance(owner common.Address, id domain.TokenID) (*big.Int, error)
	BalanceOf(owner common.Address) (*big.Int, error)
	TokensOf(owner common.Address) ([]domain.TokenBalance, error)
	Holders(id domain.TokenID) ([]domain.Holding, error)
	CollateralBalance(asset, account common.Address) (*big.Int, error)
	Whitelist() ([]common.Address, error)
}

// AccountHandler serves account and holder read endpoints.
type AccountHandler struct {
	engine AccountQueries
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(engine AccountQueries, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{engine: engine, logger: logger}
}

// ListBalances returns every token balance of one account together with the
// account's aggregate balance.
// GET /api/accounts/{address}/balances
func (h *AccountHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.engine.TokensOf(owner)
	if err != nil {
		writeEngineError(w, r, h.logger, "list balances", err)
		return
	}
	total, err := h.engine.BalanceOf(owner)
	if err != nil {
		writeEngineError(w, r, h.logger, "list balances", err)
		return
	}
	if tokens == nil {
		tokens = []domain.TokenBalance{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": owner,
		"tokens":  tokens,
		"total":   total.String(),
	})
}

// GetBalance returns one token balance of one account.
// GET /api/accounts/{address}/tokens/{id}
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := parseTokenID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.engine.Balance(owner, id)
	if err != nil {
		writeEngineError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": owner,
		"tokenId": id,
		"balance": balance.String(),
	})
}

// GetCollateral returns the in-ledger collateral balance of one account for
// one asset.
// GET /api/accounts/{address}/collateral?asset=0x...
func (h *AccountHandler) GetCollateral(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAddress(r.URL.Query().Get("asset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.engine.CollateralBalance(asset, owner)
	if err != nil {
		writeEngineError(w, r, h.logger, "get collateral balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": owner,
		"asset":   asset,
		"balance": balance.String(),
	})
}

// ListHolders returns every account holding a nonzero balance of a token.
// GET /api/tokens/{id}/holders
func (h *AccountHandler) ListHolders(w http.ResponseWriter, r *http.Request) {
	id, err := parseTokenID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	holders, err := h.engine.Holders(id)
	if err != nil {
		writeEngineError(w, r, h.logger, "list holders", err)
		return
	}
	if holders == nil {
		holders = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokenId": id,
		"holders": holders,
	})
}

// ListWhitelist returns the collateral assets accepted for new markets.
// GET /api/whitelist
func (h *AccountHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	assets, err := h.engine.Whitelist()
	if err != nil {
		writeEngineError(w, r, h.logger, "list whitelist", err)
		return
	}
	if assets == nil {
		assets = []common.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"whitelist": assets})
}
