package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/access"
	"github.com/prophetlabs/prophetd/internal/domain"
)

// AdminService defines the privileged engine surface: market creation,
// judgment, role and whitelist management, and recovery transfers. Role
// checks happen inside the engine; the handler only shapes requests.
type AdminService interface {
	CreateProposition(ctx context.Context, caller common.Address, proposition string, collateralToken common.Address, dueTimeMS int64) (liquidityID, trueID, falseID domain.TokenID, err error)
	Judge(ctx context.Context, caller common.Address, winningTokenID domain.TokenID) error
	ChangeRole(ctx context.Context, caller common.Address, role access.Role, holder common.Address) error
	AddWhitelist(ctx context.Context, caller, asset common.Address) error
	RemoveWhitelist(ctx context.Context, caller, asset common.Address) error
	Recover(ctx context.Context, caller common.Address, asset, to common.Address, amount *big.Int) error
	RecoverToken(ctx context.Context, caller common.Address, to common.Address, id domain.TokenID, amount *big.Int) error
	MintCollateral(ctx context.Context, caller common.Address, asset, to common.Address, amount *big.Int) error
	RoleHolder(role access.Role) (common.Address, error)
}

// AdminHandler serves the privileged mutation endpoints.
type AdminHandler struct {
	engine AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(engine AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, logger: logger}
}

type createPropositionRequest struct {
	Caller          string `json:"caller"`
	Proposition     string `json:"proposition"`
	CollateralToken string `json:"collateralToken"`
	DueTimeMS       int64  `json:"dueTimeMs"`
}

// CreateProposition registers a new market and returns its token triple.
// POST /api/admin/propositions
func (h *AdminHandler) CreateProposition(w http.ResponseWriter, r *http.Request) {
	var req createPropositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAddress(req.CollateralToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Proposition == "" {
		writeError(w, http.StatusBadRequest, "proposition text is required")
		return
	}

	liqID, trueID, falseID, err := h.engine.CreateProposition(r.Context(), caller, req.Proposition, collateral, req.DueTimeMS)
	if err != nil {
		writeEngineError(w, r, h.logger, "create proposition", err)
		return
	}

	h.logger.InfoContext(r.Context(), "proposition created",
		slog.Uint64("liquidity_token_id", uint64(liqID)),
		slog.String("caller", caller.Hex()),
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"liquidityTokenId": liqID,
		"trueTokenId":      trueID,
		"falseTokenId":     falseID,
	})
}

type judgeRequest struct {
	Caller         string         `json:"caller"`
	WinningTokenID domain.TokenID `json:"winningTokenId"`
}

// Judge records the outcome of a market.
// POST /api/admin/judge
func (h *AdminHandler) Judge(w http.ResponseWriter, r *http.Request) {
	var req judgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Judge(r.Context(), caller, req.WinningTokenID); err != nil {
		writeEngineError(w, r, h.logger, "judge", err)
		return
	}

	h.logger.InfoContext(r.Context(), "market judged",
		slog.Uint64("winning_token_id", uint64(req.WinningTokenID)),
		slog.String("caller", caller.Hex()),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "judged",
		"winningTokenId": req.WinningTokenID,
	})
}

type changeRoleRequest struct {
	Caller string `json:"caller"`
	Role   string `json:"role"`
	Holder string `json:"holder"`
}

// ChangeRole reassigns one of the three singleton roles.
// POST /api/admin/roles
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	var req changeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	holder, err := parseAddress(req.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.ChangeRole(r.Context(), caller, access.Role(req.Role), holder); err != nil {
		writeEngineError(w, r, h.logger, "change role", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":   req.Role,
		"holder": holder,
	})
}

// GetRoleHolder returns the current holder of a role.
// GET /api/admin/roles/{role}
func (h *AdminHandler) GetRoleHolder(w http.ResponseWriter, r *http.Request) {
	role := access.Role(pathParam(r, "role"))
	holder, err := h.engine.RoleHolder(role)
	if err != nil {
		writeEngineError(w, r, h.logger, "get role holder", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":   role,
		"holder": holder,
	})
}

type whitelistRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

// AddWhitelist accepts a collateral asset for new markets.
// POST /api/admin/whitelist
func (h *AdminHandler) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	h.mutateWhitelist(w, r, h.engine.AddWhitelist, "whitelisted")
}

// RemoveWhitelist removes a collateral asset. Existing markets keep working.
// DELETE /api/admin/whitelist
func (h *AdminHandler) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	h.mutateWhitelist(w, r, h.engine.RemoveWhitelist, "removed")
}

func (h *AdminHandler) mutateWhitelist(w http.ResponseWriter, r *http.Request, fn func(context.Context, common.Address, common.Address) error, status string) {
	var req whitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := fn(r.Context(), caller, asset); err != nil {
		writeEngineError(w, r, h.logger, "update whitelist", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"asset":  asset,
	})
}

type collateralMoveRequest struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Recover moves collateral held by the contract account. Super-admin escape
// hatch for funds stranded by external mistakes.
// POST /api/admin/recover
func (h *AdminHandler) Recover(w http.ResponseWriter, r *http.Request) {
	h.moveCollateral(w, r, h.engine.Recover, "recovered")
}

// MintCollateral credits collateral to an account.
// POST /api/admin/collateral/mint
func (h *AdminHandler) MintCollateral(w http.ResponseWriter, r *http.Request) {
	h.moveCollateral(w, r, h.engine.MintCollateral, "minted")
}

type tokenMoveRequest struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	TokenID uint64 `json:"tokenId"`
	Amount  string `json:"amount"`
}

// RecoverToken moves claim or liquidity tokens held by the contract account.
// POST /api/admin/recover/token
func (h *AdminHandler) RecoverToken(w http.ResponseWriter, r *http.Request) {
	var req tokenMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.RecoverToken(r.Context(), caller, to, domain.TokenID(req.TokenID), amount); err != nil {
		writeEngineError(w, r, h.logger, "recover token", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "recovered",
		"to":      to,
		"tokenId": req.TokenID,
		"amount":  amount.String(),
	})
}

func (h *AdminHandler) moveCollateral(w http.ResponseWriter, r *http.Request, fn func(context.Context, common.Address, common.Address, common.Address, *big.Int) error, status string) {
	var req collateralMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := fn(r.Context(), caller, asset, to, amount); err != nil {
		writeEngineError(w, r, h.logger, "move collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"asset":  asset,
		"to":     to,
		"amount": amount.String(),
	})
}
