package domain

import "errors"

// Sentinel errors. Every failed engine call aborts the whole top-level
// transaction; these classify why. ErrProductInvariant is the only one that
// indicates a logic defect rather than a rejected input.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrWrongTokenType     = errors.New("wrong token type")
	ErrWrongCollateral    = errors.New("wrong collateral")
	ErrNotWhitelisted     = errors.New("collateral not whitelisted")
	ErrDueTimePassed      = errors.New("due time exceeded")
	ErrDueTimeNotReached  = errors.New("due time not reached")
	ErrInvalidDueTime     = errors.New("invalid due time")
	ErrDeadlineExceeded   = errors.New("transaction deadline exceeded")
	ErrAlreadyJudged      = errors.New("already judged")
	ErrNotWinner          = errors.New("not winner")
	ErrStagedMismatch     = errors.New("staged amount mismatch")
	ErrIncompleteTransfer = errors.New("incomplete multi-leg transfer")
	ErrSlippage           = errors.New("insufficient amount out")
	ErrNoLiquidity        = errors.New("no liquidity in pool")
	ErrProductInvariant   = errors.New("constant-product invariant violated")
	ErrReentrant          = errors.New("reentrant call")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrInsufficientFunds  = errors.New("insufficient balance")
	ErrUnknownInstruction = errors.New("unknown instruction")
)
