package treasury

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
)

// Governance setters. Each is operator-only and rejects out-of-range values
// synchronously; parameters are never re-validated at use time.

func (t *Treasury) governed(caller string) error {
	if caller != t.cfg.Operator {
		return ErrNotOperator
	}
	if t.status == StatusMigrated {
		return ErrMigrated
	}
	return nil
}

// SetPriceCeiling bounds: [priceOne, priceOne × 1.20].
func (t *Treasury) SetPriceCeiling(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if err := inRange("priceCeiling", v, t.params.PriceOne, t.params.PriceOne.Mul(decimal.NewFromFloat(1.20)), false); err != nil {
		return err
	}
	t.params.PriceCeiling = v
	return nil
}

// SetBondDepletionFloorPercent bounds: [0.05, 1].
func (t *Treasury) SetBondDepletionFloorPercent(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if err := inRange("bondDepletionFloorPercent", v, decimal.NewFromFloat(0.05), fixed.One, false); err != nil {
		return err
	}
	t.params.BondDepletionFloorPercent = v
	return nil
}

// SetMaxSupplyExpansionPercent bounds: (0, 0.10].
func (t *Treasury) SetMaxSupplyExpansionPercent(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if err := inRange("maxSupplyExpansionPercent", v, decimal.Zero, decimal.NewFromFloat(0.10), true); err != nil {
		return err
	}
	t.params.MaxSupplyExpansionPercent = v
	return nil
}

// SetMaxSupplyContractionPercent bounds: (0, 0.15]. Extended variant.
func (t *Treasury) SetMaxSupplyContractionPercent(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if t.params.Variant != VariantExtended {
		return errors.New("treasury: contraction budget applies to the extended variant only")
	}
	if err := inRange("maxSupplyContractionPercent", v, decimal.Zero, decimal.NewFromFloat(0.15), true); err != nil {
		return err
	}
	t.params.MaxSupplyContractionPercent = v
	return nil
}

// SetMaxDebtRatioPercent bounds: (0, 1]. Extended variant.
func (t *Treasury) SetMaxDebtRatioPercent(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if t.params.Variant != VariantExtended {
		return errors.New("treasury: debt ratio applies to the extended variant only")
	}
	if err := inRange("maxDebtRatioPercent", v, decimal.Zero, fixed.One, true); err != nil {
		return err
	}
	t.params.MaxDebtRatioPercent = v
	return nil
}

// SetFundAllocationRate bounds: [0, 0.20]. Simple variant.
func (t *Treasury) SetFundAllocationRate(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if err := inRange("fundAllocationRate", v, decimal.Zero, decimal.NewFromFloat(0.20), false); err != nil {
		return err
	}
	t.params.FundAllocationRate = v
	return nil
}

// SetSeigniorageExpansionFloorPercent bounds: [0, 1]. Extended variant.
func (t *Treasury) SetSeigniorageExpansionFloorPercent(caller string, v decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if t.params.Variant != VariantExtended {
		return errors.New("treasury: expansion floor applies to the extended variant only")
	}
	if err := inRange("seigniorageExpansionFloorPercent", v, decimal.Zero, fixed.One, false); err != nil {
		return err
	}
	t.params.SeigniorageExpansionFloorPercent = v
	return nil
}

// SetBootstrap configures the fixed-rate bootstrap phase. Extended variant.
// Bounds: epochs [0, 120], rate (0, 0.10].
func (t *Treasury) SetBootstrap(caller string, epochs uint64, rate decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if t.params.Variant != VariantExtended {
		return errors.New("treasury: bootstrap applies to the extended variant only")
	}
	if epochs > 120 {
		return ErrParamOutOfRange
	}
	if epochs > 0 {
		if err := inRange("bootstrapSupplyExpansionPercent", rate, decimal.Zero, decimal.NewFromFloat(0.10), true); err != nil {
			return err
		}
	}
	t.params.BootstrapEpochs = epochs
	t.params.BootstrapSupplyExpansionPercent = rate
	return nil
}

// SetLiquidityIncentive configures the early-expansion carve-out. Extended
// variant. Bounds: percent [0, 0.50], recipients required when positive.
func (t *Treasury) SetLiquidityIncentive(caller string, percent decimal.Decimal, recipients []string, epochs uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.governed(caller); err != nil {
		return err
	}
	if t.params.Variant != VariantExtended {
		return errors.New("treasury: liquidity incentive applies to the extended variant only")
	}
	if err := inRange("liquidityIncentivePercent", percent, decimal.Zero, decimal.NewFromFloat(0.50), false); err != nil {
		return err
	}
	if percent.IsPositive() && len(recipients) == 0 {
		return ErrParamOutOfRange
	}
	t.params.LiquidityIncentivePercent = percent
	t.params.LiquidityRecipients = append([]string(nil), recipients...)
	t.params.LiquidityIncentiveEpochs = epochs
	return nil
}

// TransferOperator hands governance to next. Current operator only.
func (t *Treasury) TransferOperator(caller, next string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.cfg.Operator {
		return ErrNotOperator
	}
	if next == "" {
		return errors.New("treasury: empty operator")
	}
	t.cfg.Operator = next
	return nil
}
