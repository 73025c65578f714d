// Package domain defines the core types shared across the prophetd node:
// token identifiers and records, inbound transfer instructions, engine
// events, sentinel errors, and the interfaces implemented by the storage,
// cache, and blob layers.
package domain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenType discriminates the three token kinds of a market triple.
type TokenType uint8

const (
	TokenLiquidity TokenType = 0
	TokenTrue      TokenType = 1
	TokenFalse     TokenType = 2
)

// String returns the canonical name used in events and API responses. The
// liquidity type doubles as the "unjudged" winner marker, reported as
// "Unknown" by Properties.
func (t TokenType) String() string {
	switch t {
	case TokenLiquidity:
		return "Liquidity"
	case TokenTrue:
		return "True"
	case TokenFalse:
		return "False"
	default:
		return fmt.Sprintf("TokenType(%d)", uint8(t))
	}
}

// TokenID identifies a single divisible token. IDs are allocated from a
// monotonically increasing counter; id 0 is consumed at deploy time and never
// names a live token.
type TokenID uint64

// Bytes returns the fixed-width big-endian key encoding, so that lexicographic
// key order matches numeric order in prefix scans.
func (id TokenID) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

// TokenIDFromBytes decodes the fixed-width encoding produced by Bytes.
func TokenIDFromBytes(b []byte) (TokenID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("domain: token id must be 8 bytes, got %d", len(b))
	}
	return TokenID(binary.BigEndian.Uint64(b)), nil
}

func (id TokenID) String() string { return fmt.Sprintf("%d", uint64(id)) }

// TokenState is the persisted record for one token id. True/False records
// carry only their type and the back reference to the owning liquidity token;
// the remaining fields are populated on Liquidity records only.
type TokenState struct {
	Type             TokenType `json:"type"`
	LiquidityTokenID TokenID   `json:"liquidityTokenId"`

	// Liquidity-record fields.
	CollateralToken common.Address `json:"collateralToken,omitempty"`
	DueTimeMS       int64          `json:"dueTimeMs,omitempty"`
	TrueTokenID     TokenID        `json:"trueTokenId,omitempty"`
	FalseTokenID    TokenID        `json:"falseTokenId,omitempty"`
	// WinnerType is TokenLiquidity while the market is unjudged and is set
	// exactly once, to TokenTrue or TokenFalse, by a successful judge call.
	WinnerType TokenType `json:"winnerType"`
}

// Judged reports whether the winner has been recorded. Only meaningful on a
// Liquidity record.
func (s TokenState) Judged() bool { return s.WinnerType != TokenLiquidity }

// TokenProperties is the aggregated read-model for one token id, resolving
// its market's proposition text, collateral, due time, siblings, and outcome.
type TokenProperties struct {
	TokenID          TokenID        `json:"tokenId"`
	Type             string         `json:"tokenType"`
	Proposition      string         `json:"proposition"`
	CollateralToken  common.Address `json:"collateralToken"`
	DueTimeMS        int64          `json:"dueTimeMs"`
	LiquidityTokenID TokenID        `json:"liquidityTokenId"`
	TrueTokenID      TokenID        `json:"trueTokenId"`
	FalseTokenID     TokenID        `json:"falseTokenId"`
	Winner           string         `json:"winnerTokenType"`
}

// Holding pairs an account with a balance, used by holder scans.
type Holding struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// TokenBalance pairs a token id with a balance, used by per-account scans.
type TokenBalance struct {
	TokenID TokenID  `json:"tokenId"`
	Amount  *big.Int `json:"amount"`
}
