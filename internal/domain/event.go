package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event is a fact recorded by a committed transaction. Events are buffered
// during execution and published only after the ledger session commits, so a
// failed call never emits.
type Event interface {
	EventType() string
}

// CreatedEvent: a new proposition triple exists.
type CreatedEvent struct {
	LiquidityTokenID TokenID        `json:"liquidityTokenId"`
	TrueTokenID      TokenID        `json:"trueTokenId"`
	FalseTokenID     TokenID        `json:"falseTokenId"`
	CollateralToken  common.Address `json:"collateralToken"`
	Proposition      string         `json:"proposition"`
	DueTimeMS        int64          `json:"dueTimeMs"`
}

// JudgedEvent: the outcome of a market was recorded.
type JudgedEvent struct {
	LiquidityTokenID TokenID   `json:"liquidityTokenId"`
	WinningTokenID   TokenID   `json:"winningTokenId"`
	WinnerType       TokenType `json:"winnerType"`
}

// DepositEvent: collateral converted into a matched claim pair.
type DepositEvent struct {
	Sender           common.Address `json:"sender"`
	LiquidityTokenID TokenID        `json:"liquidityTokenId"`
	Amount           *big.Int       `json:"amount"`
}

// RedeemEvent: a matched pair (or a judged winner) converted back into
// collateral.
type RedeemEvent struct {
	Sender           common.Address `json:"sender"`
	LiquidityTokenID TokenID        `json:"liquidityTokenId"`
	Amount           *big.Int       `json:"amount"`
}

// TransferEvent mirrors every balance movement, mints included (From zero)
// and burns included (To zero).
type TransferEvent struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	TokenID TokenID        `json:"tokenId"`
	Amount  *big.Int       `json:"amount"`
}

// BuyEvent: a pool trade.
type BuyEvent struct {
	Sender    common.Address `json:"sender"`
	TokenIn   TokenID        `json:"tokenIdIn"`
	TokenOut  TokenID        `json:"tokenIdOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
}

// AddLiquidityEvent: both legs matched and liquidity minted.
type AddLiquidityEvent struct {
	Sender  common.Address `json:"sender"`
	TokenA  TokenID        `json:"tokenIdA"`
	TokenB  TokenID        `json:"tokenIdB"`
	AmountA *big.Int       `json:"amountA"`
	AmountB *big.Int       `json:"amountB"`
	Minted  *big.Int       `json:"minted"`
}

// RemoveLiquidityEvent: liquidity burned and both reserves paid out.
type RemoveLiquidityEvent struct {
	Sender      common.Address `json:"sender"`
	TokenTrue   TokenID        `json:"tokenIdTrue"`
	TokenFalse  TokenID        `json:"tokenIdFalse"`
	AmountTrue  *big.Int       `json:"amountTrue"`
	AmountFalse *big.Int       `json:"amountFalse"`
	Burned      *big.Int       `json:"burned"`
}

// EventTypes lists every event type the engine emits. Consumers that need a
// per-type channel for each event derive the full set from here.
func EventTypes() []string {
	return []string{
		"Created",
		"Judged",
		"Deposit",
		"Redeem",
		"Transfer",
		"Buy",
		"AddLiquidity",
		"RemoveLiquidity",
	}
}

func (CreatedEvent) EventType() string         { return "Created" }
func (JudgedEvent) EventType() string          { return "Judged" }
func (DepositEvent) EventType() string         { return "Deposit" }
func (RedeemEvent) EventType() string          { return "Redeem" }
func (TransferEvent) EventType() string        { return "Transfer" }
func (BuyEvent) EventType() string             { return "Buy" }
func (AddLiquidityEvent) EventType() string    { return "AddLiquidity" }
func (RemoveLiquidityEvent) EventType() string { return "RemoveLiquidity" }
