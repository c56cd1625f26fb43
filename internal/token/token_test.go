package token_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/token"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestMintRequiresOperator(t *testing.T) {
	l := token.New("CASH", "treasury")

	if err := l.Mint("alice", "alice", d(100)); !errors.Is(err, token.ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if err := l.Mint("treasury", "alice", d(100)); err != nil {
		t.Fatalf("operator mint failed: %v", err)
	}
	if !l.BalanceOf("alice").Equal(d(100)) {
		t.Errorf("balance = %s, want 100", l.BalanceOf("alice"))
	}
	if !l.TotalSupply().Equal(d(100)) {
		t.Errorf("total supply = %s, want 100", l.TotalSupply())
	}
}

func TestBurnReducesSupply(t *testing.T) {
	l := token.New("CASH", "treasury")
	l.Mint("treasury", "alice", d(100))

	if err := l.Burn("alice", d(40)); err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if !l.BalanceOf("alice").Equal(d(60)) {
		t.Errorf("balance = %s, want 60", l.BalanceOf("alice"))
	}
	if !l.TotalSupply().Equal(d(60)) {
		t.Errorf("total supply = %s, want 60", l.TotalSupply())
	}

	if err := l.Burn("alice", d(100)); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBurnFromIsOperatorGated(t *testing.T) {
	l := token.New("BOND", "treasury")
	l.Mint("treasury", "alice", d(50))

	if err := l.BurnFrom("bob", "alice", d(10)); !errors.Is(err, token.ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if err := l.BurnFrom("treasury", "alice", d(10)); err != nil {
		t.Fatalf("operator burn-from failed: %v", err)
	}
	if !l.TotalSupply().Equal(d(40)) {
		t.Errorf("total supply = %s, want 40", l.TotalSupply())
	}
}

func TestTransferPreservesSupply(t *testing.T) {
	l := token.New("CASH", "treasury")
	l.Mint("treasury", "alice", d(100))

	if err := l.Transfer("alice", "bob", d(30)); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if !l.BalanceOf("alice").Equal(d(70)) || !l.BalanceOf("bob").Equal(d(30)) {
		t.Errorf("balances = %s/%s, want 70/30", l.BalanceOf("alice"), l.BalanceOf("bob"))
	}
	if !l.TotalSupply().Equal(d(100)) {
		t.Errorf("transfer changed total supply: %s", l.TotalSupply())
	}
}

func TestTransferFromDrawsDownAllowance(t *testing.T) {
	l := token.New("CASH", "treasury")
	l.Mint("treasury", "alice", d(100))

	// No allowance yet.
	if err := l.TransferFrom("bob", "alice", "bob", d(10)); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}

	l.Approve("alice", "bob", d(25))
	if err := l.TransferFrom("bob", "alice", "bob", d(10)); err != nil {
		t.Fatalf("approved transfer-from failed: %v", err)
	}
	if !l.Allowance("alice", "bob").Equal(d(15)) {
		t.Errorf("allowance = %s, want 15", l.Allowance("alice", "bob"))
	}

	// Exceeding the remaining allowance fails and leaves it untouched.
	if err := l.TransferFrom("bob", "alice", "bob", d(20)); !errors.Is(err, token.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	if !l.Allowance("alice", "bob").Equal(d(15)) {
		t.Errorf("failed transfer-from changed allowance: %s", l.Allowance("alice", "bob"))
	}
}

func TestOperatorSpendsWithoutAllowance(t *testing.T) {
	l := token.New("CASH", "treasury")
	l.Mint("treasury", "alice", d(100))

	if err := l.TransferFrom("treasury", "alice", "vault", d(60)); err != nil {
		t.Fatalf("operator transfer-from failed: %v", err)
	}
	if !l.BalanceOf("vault").Equal(d(60)) {
		t.Errorf("vault balance = %s, want 60", l.BalanceOf("vault"))
	}
}

func TestTransferOperator(t *testing.T) {
	l := token.New("CASH", "treasury")

	if err := l.TransferOperator("mallory", "mallory"); !errors.Is(err, token.ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if err := l.TransferOperator("treasury", "successor"); err != nil {
		t.Fatalf("handoff failed: %v", err)
	}
	if l.Operator() != "successor" {
		t.Errorf("operator = %s, want successor", l.Operator())
	}
	// Old operator's authority is severed.
	if err := l.Mint("treasury", "alice", d(1)); !errors.Is(err, token.ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator after handoff, got %v", err)
	}
	if err := l.Mint("successor", "alice", d(1)); err != nil {
		t.Fatalf("successor mint failed: %v", err)
	}
}

func TestInvalidAmounts(t *testing.T) {
	l := token.New("CASH", "treasury")
	l.Mint("treasury", "alice", d(100))

	for _, amt := range []decimal.Decimal{decimal.Zero, d(-5)} {
		if err := l.Mint("treasury", "alice", amt); !errors.Is(err, token.ErrInvalidAmount) {
			t.Errorf("mint %s: expected ErrInvalidAmount, got %v", amt, err)
		}
		if err := l.Transfer("alice", "bob", amt); !errors.Is(err, token.ErrInvalidAmount) {
			t.Errorf("transfer %s: expected ErrInvalidAmount, got %v", amt, err)
		}
	}
}
