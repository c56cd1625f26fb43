package fixed_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
)

func TestMulDivMultipliesFirst(t *testing.T) {
	// 1 × 1e18 / 3: dividing first at full precision then multiplying
	// would drift in the final places; multiply-first keeps them.
	v := decimal.New(1, 18)
	got := fixed.MulDiv(decimal.New(1, 0), v, decimal.NewFromInt(3))
	want := decimal.RequireFromString("333333333333333333.333333333333333333")
	if !got.Equal(want) {
		t.Errorf("MulDiv = %s, want %s", got, want)
	}
}

func TestPercent(t *testing.T) {
	got := fixed.Percent(decimal.NewFromInt(1_000_000), decimal.NewFromFloat(0.045))
	if !got.Equal(decimal.NewFromInt(45_000)) {
		t.Errorf("Percent = %s, want 45000", got)
	}
}

func TestClamp(t *testing.T) {
	lo, hi := decimal.Zero, decimal.NewFromFloat(0.045)
	if got := fixed.Clamp(decimal.NewFromFloat(0.10), lo, hi); !got.Equal(hi) {
		t.Errorf("Clamp above = %s, want %s", got, hi)
	}
	if got := fixed.Clamp(decimal.NewFromFloat(-0.01), lo, hi); !got.Equal(lo) {
		t.Errorf("Clamp below = %s, want %s", got, lo)
	}
	mid := decimal.NewFromFloat(0.02)
	if got := fixed.Clamp(mid, lo, hi); !got.Equal(mid) {
		t.Errorf("Clamp inside = %s, want %s", got, mid)
	}
}

func TestRoundToScale(t *testing.T) {
	v := decimal.RequireFromString("1.0000000000000000005")
	got := fixed.Round(v)
	want := decimal.RequireFromString("1.000000000000000001")
	if !got.Equal(want) {
		t.Errorf("Round = %s, want %s", got, want)
	}
}
