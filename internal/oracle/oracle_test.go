package oracle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/oracle"
)

func TestConsultScalesByAmount(t *testing.T) {
	orc := oracle.NewSim("CASH", decimal.NewFromFloat(0.95), time.Hour)

	got, err := orc.Consult("CASH", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("consult failed: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(95)) {
		t.Errorf("consult = %s, want 95", got)
	}
}

func TestConsultUnknownAsset(t *testing.T) {
	orc := oracle.NewSim("CASH", decimal.NewFromInt(1), time.Hour)

	if _, err := orc.Consult("GOLD", decimal.NewFromInt(1)); err == nil {
		t.Fatal("expected error for unknown asset")
	}
}

func TestConsultStale(t *testing.T) {
	orc := oracle.NewSim("CASH", decimal.NewFromInt(1), time.Hour)
	orc.SetStale(true)

	if _, err := orc.Consult("CASH", decimal.NewFromInt(1)); !errors.Is(err, oracle.ErrStalePrice) {
		t.Fatalf("expected ErrStalePrice, got %v", err)
	}

	orc.SetStale(false)
	if _, err := orc.Consult("CASH", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("consult after clearing stale failed: %v", err)
	}
}

func TestUpdateEnforcesPeriod(t *testing.T) {
	orc := oracle.NewSim("CASH", decimal.NewFromInt(1), time.Hour)
	now := time.Unix(1_700_000_000, 0)
	orc.SetNow(func() time.Time { return now })

	if err := orc.Update(); err != nil {
		t.Fatalf("first update failed: %v", err)
	}
	now = now.Add(30 * time.Minute)
	if err := orc.Update(); !errors.Is(err, oracle.ErrUpdateTooSoon) {
		t.Fatalf("expected ErrUpdateTooSoon, got %v", err)
	}
	now = now.Add(30 * time.Minute)
	if err := orc.Update(); err != nil {
		t.Fatalf("update after period failed: %v", err)
	}
}
