// Package model defines the persistence records shared across the policy
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation kinds recorded in the immutable ledger.
const (
	OpBuyBonds    = "BUY_BONDS"
	OpRedeemBonds = "REDEEM_BONDS"
	OpStake       = "STAKE"
	OpWithdraw    = "WITHDRAW"
	OpClaim       = "CLAIM"
	OpAllocate    = "ALLOCATE"
)

// Operation is an immutable record of a state-mutating call against the
// treasury or boardroom. Once created, these are never modified or deleted.
type Operation struct {
	ID        string          `json:"id" db:"id"`
	Account   string          `json:"account" db:"account"`
	Kind      string          `json:"kind" db:"kind"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Price     decimal.Decimal `json:"price" db:"price"` // oracle price at execution, zero when not price-gated
	Epoch     uint64          `json:"epoch" db:"epoch"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// EpochRecord captures one successful treasury allocation: the epoch it
// opened, the oracle price it saw, and how the minted expansion was routed.
// Expanded is zero for epochs where price stayed at or below the ceiling.
type EpochRecord struct {
	Epoch       uint64          `json:"epoch" db:"epoch"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Expanded    decimal.Decimal `json:"expanded" db:"expanded"`
	ToFund      decimal.Decimal `json:"to_fund" db:"to_fund"`
	ToLiquidity decimal.Decimal `json:"to_liquidity" db:"to_liquidity"`
	ToReserve   decimal.Decimal `json:"to_reserve" db:"to_reserve"`
	ToBoardroom decimal.Decimal `json:"to_boardroom" db:"to_boardroom"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}
