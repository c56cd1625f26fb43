// Package token implements the pegged, bond, and share ledgers the policy
// engine mints against. Mint, burn-from, and transfer-from are gated to the
// ledger's operator — the policy engine holds exclusive authority until it
// migrates.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotOperator is returned when a gated call comes from anyone but
	// the ledger's current operator.
	ErrNotOperator = errors.New("token: caller is not the operator")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")

	// ErrInsufficientBalance is returned when a transfer or burn exceeds
	// the source account's balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")

	// ErrInsufficientAllowance is returned when a non-operator TransferFrom
	// exceeds the spender's approved allowance.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Ledger is an in-memory balance ledger with an operator gate and ERC-20
// style allowances.
type Ledger struct {
	mu        sync.RWMutex
	symbol    string
	operator  string
	balances  map[string]decimal.Decimal
	allowance map[string]map[string]decimal.Decimal // owner → spender → amount
	total     decimal.Decimal
}

// New creates an empty ledger with the given symbol and operator.
func New(symbol, operator string) *Ledger {
	return &Ledger{
		symbol:    symbol,
		operator:  operator,
		balances:  make(map[string]decimal.Decimal),
		allowance: make(map[string]map[string]decimal.Decimal),
	}
}

// Symbol returns the ledger's asset symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Operator returns the identity currently holding mint/burn authority.
func (l *Ledger) Operator() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.operator
}

// TransferOperator hands mint/burn authority to next. Only the current
// operator may call it; the handoff is how treasury migration severs the
// old engine's authority.
func (l *Ledger) TransferOperator(caller, next string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrNotOperator
	}
	if next == "" {
		return fmt.Errorf("token: empty operator for %s", l.symbol)
	}
	l.operator = next
	return nil
}

// Mint creates amount units in to's balance. Operator only.
func (l *Ledger) Mint(caller, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrNotOperator
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	l.balances[to] = l.balances[to].Add(amount)
	l.total = l.total.Add(amount)
	return nil
}

// Burn destroys amount units from the caller's own balance.
func (l *Ledger) Burn(caller string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(caller, amount); err != nil {
		return err
	}
	l.total = l.total.Sub(amount)
	return nil
}

// BurnFrom destroys amount units from account's balance. Operator only.
func (l *Ledger) BurnFrom(caller, account string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrNotOperator
	}
	if err := l.debit(account, amount); err != nil {
		return err
	}
	l.total = l.total.Sub(amount)
	return nil
}

// Transfer moves amount from from's balance to to's.
func (l *Ledger) Transfer(from, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// Approve grants spender the right to move up to amount from owner's
// balance via TransferFrom. A fresh approval replaces any prior one.
func (l *Ledger) Approve(owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.allowance[owner]
	if !ok {
		m = make(map[string]decimal.Decimal)
		l.allowance[owner] = m
	}
	m[spender] = amount
	return nil
}

// Allowance returns the remaining amount spender may move from owner.
func (l *Ledger) Allowance(owner, spender string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowance[owner][spender]
}

// TransferFrom moves amount from from's balance to to's on behalf of caller.
// The operator spends freely; anyone else draws down an approved allowance.
func (l *Ledger) TransferFrom(caller, from, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, need %s",
			ErrInsufficientBalance, from, l.balances[from], l.symbol, amount)
	}
	if caller != l.operator {
		granted := l.allowance[from][caller]
		if granted.LessThan(amount) {
			return fmt.Errorf("%w: %s approved %s %s for %s, need %s",
				ErrInsufficientAllowance, from, granted, l.symbol, caller, amount)
		}
		l.allowance[from][caller] = granted.Sub(amount)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// BalanceOf returns account's balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(account string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// debit removes amount from account's balance. Callers hold the lock.
func (l *Ledger) debit(account string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	bal := l.balances[account]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s %s, need %s",
			ErrInsufficientBalance, account, bal, l.symbol, amount)
	}
	l.balances[account] = bal.Sub(amount)
	return nil
}
