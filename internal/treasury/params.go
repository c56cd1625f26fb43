package treasury

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
)

// Variant selects between the two treasury policies.
type Variant int

const (
	// VariantSimple routes a fund-escrow cut of each expansion, tops the
	// reserve toward the bond depletion floor, and sends the rest to the
	// boardroom. No contraction budget, debt ratio, or bootstrap phase.
	VariantSimple Variant = iota

	// VariantExtended adds the per-epoch contraction budget, the debt
	// ratio ceiling on bond purchases, tiered expansion caps keyed on
	// collateralization, and bootstrap epochs with liquidity incentives.
	VariantExtended
)

// Params is the treasury's policy configuration. All rates are fractions
// (0.045 = 4.5%). Every field is bounded; Validate and the setters hold the
// only range checks — parameters are never re-validated at use time.
type Params struct {
	Variant Variant

	// PriceOne is the peg target, fixed-point 1.0.
	PriceOne decimal.Decimal

	// PriceCeiling gates expansion and bond redemption. [PriceOne, PriceOne × 1.20].
	PriceCeiling decimal.Decimal

	// BondDepletionFloorPercent is the fraction of bond supply the reserve
	// is measured against for collateralization; below it the system is
	// under-collateralized. The simple variant's reserve always targets the
	// full bond supply. [0.05, 1].
	BondDepletionFloorPercent decimal.Decimal

	// MaxSupplyExpansionPercent caps a single epoch's expansion. (0, 0.10].
	MaxSupplyExpansionPercent decimal.Decimal

	// MaxSupplyContractionPercent sizes the per-epoch contraction budget
	// for bond purchases. Extended variant. (0, 0.15].
	MaxSupplyContractionPercent decimal.Decimal

	// MaxDebtRatioPercent caps bondSupply/cashSupply after a purchase.
	// Extended variant. (0, 1].
	MaxDebtRatioPercent decimal.Decimal

	// FundAllocationRate is the escrow cut of each expansion. Simple
	// variant. [0, 0.20].
	FundAllocationRate decimal.Decimal

	// SeigniorageExpansionFloorPercent is the guaranteed boardroom share
	// of an expansion while under-collateralized. Extended variant. [0, 1].
	SeigniorageExpansionFloorPercent decimal.Decimal

	// BootstrapEpochs expand at BootstrapSupplyExpansionPercent
	// irrespective of price. Extended variant. [0, 120].
	BootstrapEpochs uint64

	// BootstrapSupplyExpansionPercent is the fixed bootstrap rate.
	// Extended variant; required when BootstrapEpochs > 0. (0, 0.10].
	BootstrapSupplyExpansionPercent decimal.Decimal

	// LiquidityIncentivePercent of early expansions goes to the fixed
	// recipient list, split evenly. Extended variant. [0, 0.50].
	LiquidityIncentivePercent decimal.Decimal

	// LiquidityRecipients receive the liquidity incentive.
	LiquidityRecipients []string

	// LiquidityIncentiveEpochs is the epoch window the incentive applies in.
	LiquidityIncentiveEpochs uint64
}

// DefaultParams returns the production defaults for a variant.
func DefaultParams(v Variant) Params {
	p := Params{
		Variant:                   v,
		PriceOne:                  fixed.One,
		PriceCeiling:              decimal.NewFromFloat(1.05),
		BondDepletionFloorPercent: fixed.One,
		MaxSupplyExpansionPercent: decimal.NewFromFloat(0.045),
		FundAllocationRate:        decimal.NewFromFloat(0.02),
	}
	if v == VariantExtended {
		p.FundAllocationRate = decimal.Zero
		p.MaxSupplyContractionPercent = decimal.NewFromFloat(0.03)
		p.MaxDebtRatioPercent = decimal.NewFromFloat(0.35)
		p.SeigniorageExpansionFloorPercent = decimal.NewFromFloat(0.35)
		p.BootstrapEpochs = 28
		p.BootstrapSupplyExpansionPercent = decimal.NewFromFloat(0.045)
	}
	return p
}

// ErrParamOutOfRange is returned by Validate and every setter when a value
// falls outside its documented bound.
var ErrParamOutOfRange = errors.New("treasury: parameter out of range")

func inRange(name string, v, lo, hi decimal.Decimal, loOpen bool) error {
	if v.GreaterThan(hi) || v.LessThan(lo) || (loOpen && v.Equal(lo)) {
		lb := "["
		if loOpen {
			lb = "("
		}
		return fmt.Errorf("%w: %s = %s not in %s%s, %s]", ErrParamOutOfRange, name, v, lb, lo, hi)
	}
	return nil
}

// Validate checks every bound for the configured variant.
func (p Params) Validate() error {
	if p.PriceOne.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: priceOne must be positive", ErrParamOutOfRange)
	}
	if err := inRange("priceCeiling", p.PriceCeiling, p.PriceOne, p.PriceOne.Mul(decimal.NewFromFloat(1.20)), false); err != nil {
		return err
	}
	if err := inRange("bondDepletionFloorPercent", p.BondDepletionFloorPercent, decimal.NewFromFloat(0.05), fixed.One, false); err != nil {
		return err
	}
	if err := inRange("maxSupplyExpansionPercent", p.MaxSupplyExpansionPercent, decimal.Zero, decimal.NewFromFloat(0.10), true); err != nil {
		return err
	}
	if err := inRange("fundAllocationRate", p.FundAllocationRate, decimal.Zero, decimal.NewFromFloat(0.20), false); err != nil {
		return err
	}
	if p.Variant != VariantExtended {
		return nil
	}
	if err := inRange("maxSupplyContractionPercent", p.MaxSupplyContractionPercent, decimal.Zero, decimal.NewFromFloat(0.15), true); err != nil {
		return err
	}
	if err := inRange("maxDebtRatioPercent", p.MaxDebtRatioPercent, decimal.Zero, fixed.One, true); err != nil {
		return err
	}
	if err := inRange("seigniorageExpansionFloorPercent", p.SeigniorageExpansionFloorPercent, decimal.Zero, fixed.One, false); err != nil {
		return err
	}
	if p.BootstrapEpochs > 120 {
		return fmt.Errorf("%w: bootstrapEpochs = %d not in range [0, 120]", ErrParamOutOfRange, p.BootstrapEpochs)
	}
	if p.BootstrapEpochs > 0 {
		if err := inRange("bootstrapSupplyExpansionPercent", p.BootstrapSupplyExpansionPercent, decimal.Zero, decimal.NewFromFloat(0.10), true); err != nil {
			return err
		}
	}
	if err := inRange("liquidityIncentivePercent", p.LiquidityIncentivePercent, decimal.Zero, decimal.NewFromFloat(0.50), false); err != nil {
		return err
	}
	if p.LiquidityIncentivePercent.IsPositive() && len(p.LiquidityRecipients) == 0 {
		return fmt.Errorf("%w: liquidity incentive set with no recipients", ErrParamOutOfRange)
	}
	return nil
}
