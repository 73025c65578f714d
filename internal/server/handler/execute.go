package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// Executor runs one atomic transfer batch against the engine.
type Executor interface {
	Execute(ctx context.Context, caller common.Address, transfers []domain.Transfer) error
}

// ExecuteHandler serves the transfer-batch endpoint. One request is one
// transaction: every transfer in it applies or none do.
type ExecuteHandler struct {
	engine Executor
	logger *slog.Logger
}

// NewExecuteHandler creates an ExecuteHandler.
func NewExecuteHandler(engine Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{engine: engine, logger: logger}
}

// wireTransfer is the JSON shape of one transfer. The instruction travels as
// a tag plus positional decimal arguments, matching the notification payload
// layout of the settlement contracts this node mirrors.
type wireTransfer struct {
	Asset   string   `json:"asset,omitempty"`
	TokenID uint64   `json:"tokenId,omitempty"`
	Amount  string   `json:"amount"`
	Tag     string   `json:"tag"`
	Args    []string `json:"args"`
}

type executeRequest struct {
	Caller    string         `json:"caller"`
	Transfers []wireTransfer `json:"transfers"`
}

// Execute decodes and runs a transfer batch.
// POST /api/execute
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Transfers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one transfer is required")
		return
	}

	transfers := make([]domain.Transfer, 0, len(req.Transfers))
	for _, wt := range req.Transfers {
		t, err := decodeTransfer(caller, wt)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		transfers = append(transfers, t)
	}

	if err := h.engine.Execute(r.Context(), caller, transfers); err != nil {
		writeEngineError(w, r, h.logger, "execute", err)
		return
	}

	h.logger.InfoContext(r.Context(), "batch executed",
		slog.String("caller", caller.Hex()),
		slog.Int("transfers", len(transfers)),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "committed",
		"transfers": len(transfers),
	})
}

func decodeTransfer(caller common.Address, wt wireTransfer) (domain.Transfer, error) {
	amount, err := parseBigInt(wt.Amount)
	if err != nil {
		return domain.Transfer{}, err
	}

	args := make([]*big.Int, 0, len(wt.Args))
	for _, a := range wt.Args {
		n, err := parseBigInt(a)
		if err != nil {
			return domain.Transfer{}, err
		}
		args = append(args, n)
	}
	instr, err := domain.ParseInstruction(wt.Tag, args)
	if err != nil {
		return domain.Transfer{}, err
	}

	t := domain.Transfer{
		From:        caller,
		TokenID:     domain.TokenID(wt.TokenID),
		Amount:      amount,
		Instruction: instr,
	}
	if wt.Asset != "" {
		asset, err := parseAddress(wt.Asset)
		if err != nil {
			return domain.Transfer{}, err
		}
		t.Asset = asset
	}
	return t, nil
}
