// Package fund implements the escrow that receives the treasury's fixed
// percentage cut of each expansion.
package fund

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Deposit is one recorded escrow contribution.
type Deposit struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Memo   string          `json:"memo"`
	Time   time.Time       `json:"time"`
}

// Escrow records deposits. The asset transfer itself happens on the token
// ledger; the escrow keeps the audit trail.
type Escrow struct {
	mu       sync.Mutex
	now      func() time.Time
	deposits []Deposit
}

// NewEscrow creates an empty escrow.
func NewEscrow() *Escrow {
	return &Escrow{now: time.Now}
}

// Deposit records a contribution.
func (e *Escrow) Deposit(asset string, amount decimal.Decimal, memo string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deposits = append(e.deposits, Deposit{Asset: asset, Amount: amount, Memo: memo, Time: e.now()})
	return nil
}

// Deposits returns a copy of the recorded history.
func (e *Escrow) Deposits() []Deposit {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Deposit, len(e.deposits))
	copy(out, e.deposits)
	return out
}

// Total returns the sum deposited for asset.
func (e *Escrow) Total(asset string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := decimal.Zero
	for _, d := range e.deposits {
		if d.Asset == asset {
			total = total.Add(d.Amount)
		}
	}
	return total
}
