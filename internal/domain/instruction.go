package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Instruction is the closed set of operations an inbound asset transfer can
// request. The wire form (a tag plus positional integer arguments) is decoded
// once, at the API boundary, into one of the variants below; the engine never
// sees raw tags.
type Instruction interface {
	Tag() string
	isInstruction()
}

// DepositInstruction accompanies a collateral transfer: mint a matched pair
// of claim tokens for the named market.
type DepositInstruction struct {
	LiquidityTokenID TokenID `json:"liquidityTokenId"`
}

// RedeemInstruction accompanies a claim-token transfer. Redemption is a
// two-leg protocol (True leg then False leg) within one transaction, so the
// instruction itself carries no arguments.
type RedeemInstruction struct{}

// WinnerRedeemInstruction accompanies a winning claim-token transfer after the
// market has been judged.
type WinnerRedeemInstruction struct{}

// BuyInstruction accompanies a claim-token transfer: swap the transferred
// token for its counterpart through the pool.
type BuyInstruction struct {
	MinAmountOut *big.Int `json:"minAmountOut"`
	DeadlineMS   int64    `json:"deadlineMs"`
}

// AddLiquidityInstruction accompanies a claim-token transfer and is submitted
// twice per transaction, once per side. MinSelf bounds the matched amount of
// the transferred token, MinOther the counterpart side.
type AddLiquidityInstruction struct {
	MinSelf    *big.Int `json:"minSelf"`
	MinOther   *big.Int `json:"minOther"`
	DeadlineMS int64    `json:"deadlineMs"`
}

// RemoveLiquidityInstruction accompanies a liquidity-token transfer.
type RemoveLiquidityInstruction struct {
	MinTrue    *big.Int `json:"minTrue"`
	MinFalse   *big.Int `json:"minFalse"`
	DeadlineMS int64    `json:"deadlineMs"`
}

func (DepositInstruction) Tag() string         { return "deposit" }
func (RedeemInstruction) Tag() string          { return "redeem" }
func (WinnerRedeemInstruction) Tag() string    { return "winnerRedeem" }
func (BuyInstruction) Tag() string             { return "buy" }
func (AddLiquidityInstruction) Tag() string    { return "addLiquidity" }
func (RemoveLiquidityInstruction) Tag() string { return "removeLiquidity" }

func (DepositInstruction) isInstruction()         {}
func (RedeemInstruction) isInstruction()          {}
func (WinnerRedeemInstruction) isInstruction()    {}
func (BuyInstruction) isInstruction()             {}
func (AddLiquidityInstruction) isInstruction()    {}
func (RemoveLiquidityInstruction) isInstruction() {}

// Transfer is one inbound asset movement into the contract account together
// with its instruction. Collateral transfers set Asset and leave TokenID
// zero; claim/liquidity transfers set TokenID and leave Asset empty. A
// top-level transaction is an ordered batch of transfers executed atomically.
type Transfer struct {
	From        common.Address
	Asset       common.Address
	TokenID     TokenID
	Amount      *big.Int
	Instruction Instruction
}

// ParseInstruction decodes the wire form. Args are positional, matching the
// original notification payloads; surplus arguments are rejected.
func ParseInstruction(tag string, args []*big.Int) (Instruction, error) {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("domain: instruction %q wants %d args, got %d: %w", tag, n, len(args), ErrUnknownInstruction)
		}
		return nil
	}
	switch tag {
	case "deposit":
		if err := need(1); err != nil {
			return nil, err
		}
		if !args[0].IsUint64() {
			return nil, fmt.Errorf("domain: deposit token id out of range: %w", ErrUnknownInstruction)
		}
		return DepositInstruction{LiquidityTokenID: TokenID(args[0].Uint64())}, nil
	case "redeem":
		if err := need(0); err != nil {
			return nil, err
		}
		return RedeemInstruction{}, nil
	case "winnerRedeem":
		if err := need(0); err != nil {
			return nil, err
		}
		return WinnerRedeemInstruction{}, nil
	case "buy":
		if err := need(2); err != nil {
			return nil, err
		}
		if !args[1].IsInt64() {
			return nil, fmt.Errorf("domain: buy deadline out of range: %w", ErrUnknownInstruction)
		}
		return BuyInstruction{MinAmountOut: args[0], DeadlineMS: args[1].Int64()}, nil
	case "addLiquidity":
		if err := need(3); err != nil {
			return nil, err
		}
		if !args[2].IsInt64() {
			return nil, fmt.Errorf("domain: addLiquidity deadline out of range: %w", ErrUnknownInstruction)
		}
		return AddLiquidityInstruction{MinSelf: args[0], MinOther: args[1], DeadlineMS: args[2].Int64()}, nil
	case "removeLiquidity":
		if err := need(3); err != nil {
			return nil, err
		}
		if !args[2].IsInt64() {
			return nil, fmt.Errorf("domain: removeLiquidity deadline out of range: %w", ErrUnknownInstruction)
		}
		return RemoveLiquidityInstruction{MinTrue: args[0], MinFalse: args[1], DeadlineMS: args[2].Int64()}, nil
	default:
		return nil, fmt.Errorf("domain: tag %q: %w", tag, ErrUnknownInstruction)
	}
}
