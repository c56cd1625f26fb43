// Package treasury implements the monetary policy engine: an epoch-gated
// decision procedure that expands or contracts the pegged asset's supply
// from an oracle price signal, routes expansion proceeds to the bond
// reserve, the boardroom, and fixed incentive recipients, and converts
// bonds bidirectionally outside the epoch cycle.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every mutating entry point either commits all of its state changes or
// fails with none of them applied.
package treasury

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
	"github.com/pegdao/policy-engine/internal/guard"
	"github.com/pegdao/policy-engine/internal/oracle"
	"github.com/pegdao/policy-engine/internal/token"
)

var (
	// ErrNotOperator is returned for governance calls from anyone but the
	// operator.
	ErrNotOperator = errors.New("treasury: caller is not the operator")

	// ErrNotInitialized is returned when a mutating call arrives before
	// Initialize.
	ErrNotInitialized = errors.New("treasury: not initialized")

	// ErrAlreadyInitialized guards re-initialization.
	ErrAlreadyInitialized = errors.New("treasury: already initialized")

	// ErrMigrated is returned once the engine has handed its authority to
	// a successor; the state is terminal.
	ErrMigrated = errors.New("treasury: migrated")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("treasury: amount must be positive")

	// ErrStaleQuote is returned when the caller's expected price does not
	// match the freshly read oracle price.
	ErrStaleQuote = errors.New("treasury: expected price does not match oracle price")

	// ErrPriceNotBelowPeg gates bond purchases.
	ErrPriceNotBelowPeg = errors.New("treasury: price is not below the peg target")

	// ErrPriceNotAboveCeiling gates bond redemptions.
	ErrPriceNotAboveCeiling = errors.New("treasury: price is not above the ceiling")

	// ErrEpochNotReady is returned when allocateSeigniorage is called
	// before the next epoch point.
	ErrEpochNotReady = errors.New("treasury: epoch window not open")

	// ErrContractionExhausted is returned when a purchase exceeds the
	// epoch's remaining contraction budget.
	ErrContractionExhausted = errors.New("treasury: epoch contraction budget exhausted")

	// ErrDebtRatioExceeded is returned when a purchase would push the
	// bond/cash ratio over the configured ceiling.
	ErrDebtRatioExceeded = errors.New("treasury: debt ratio ceiling exceeded")

	// ErrInsufficientReserveBalance is returned when the treasury's raw
	// pegged balance cannot cover a redemption.
	ErrInsufficientReserveBalance = errors.New("treasury: treasury balance cannot cover redemption")

	// ErrNoStakers is returned when an expansion must route to the
	// boardroom but nothing is staked; aborting keeps the epoch atomic.
	ErrNoStakers = errors.New("treasury: boardroom has no stakers to receive seigniorage")
)

// Status is the engine lifecycle. Migrated is terminal.
type Status int

const (
	StatusUninitialized Status = iota
	StatusActive
	StatusMigrated
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusMigrated:
		return "migrated"
	default:
		return "uninitialized"
	}
}

// Fund receives the escrow cut of expansions in the simple variant.
type Fund interface {
	Deposit(asset string, amount decimal.Decimal, memo string) error
}

// Boardroom is the reward ledger the treasury pushes funding into.
type Boardroom interface {
	AllocateSeigniorage(caller string, amount decimal.Decimal) error
	TotalStaked() decimal.Decimal
}

// Config holds the treasury's identities and clocks.
type Config struct {
	// Account is the treasury's identity in the token ledgers; it must be
	// the operator of all three at construction.
	Account string

	// Operator is the governance identity allowed to initialize, tune
	// parameters, and migrate.
	Operator string

	// FundAccount is the escrow's ledger identity. Simple variant.
	FundAccount string

	// BoardroomAccount is the boardroom's ledger identity, the spender
	// approved to pull its seigniorage share.
	BoardroomAccount string

	// Period is the epoch length.
	Period time.Duration

	// Now and Block supply wall time and the admission-control time unit.
	// Defaults: time.Now, and wall-clock seconds as blocks.
	Now   func() time.Time
	Block func() uint64
}

// BondPurchase reports a completed buyBonds call.
type BondPurchase struct {
	Burned      decimal.Decimal `json:"burned"`
	BondsMinted decimal.Decimal `json:"bonds_minted"`
	Price       decimal.Decimal `json:"price"`
	Epoch       uint64          `json:"epoch"`
}

// BondRedemption reports a completed redeemBonds call.
type BondRedemption struct {
	BondsBurned decimal.Decimal `json:"bonds_burned"`
	Paid        decimal.Decimal `json:"paid"`
	FromReserve decimal.Decimal `json:"from_reserve"`
	Price       decimal.Decimal `json:"price"`
	Epoch       uint64          `json:"epoch"`
}

// Allocation reports one epoch allocation and how the expansion was routed.
type Allocation struct {
	Epoch       uint64          `json:"epoch"`
	Price       decimal.Decimal `json:"price"`
	Expanded    decimal.Decimal `json:"expanded"`
	ToFund      decimal.Decimal `json:"to_fund"`
	ToLiquidity decimal.Decimal `json:"to_liquidity"`
	ToReserve   decimal.Decimal `json:"to_reserve"`
	ToBoardroom decimal.Decimal `json:"to_boardroom"`
}

// Treasury is the monetary policy engine.
type Treasury struct {
	mu     sync.Mutex
	cfg    Config
	params Params
	status Status

	epoch           uint64
	startTime       time.Time
	reserve         decimal.Decimal // accumulatedSeigniorage
	contractionLeft decimal.Decimal // per-epoch bond purchase budget, extended

	cash  *token.Ledger
	bond  *token.Ledger
	share *token.Ledger
	orc   oracle.Oracle
	brd   Boardroom
	fund  Fund
	adm   *guard.Guard
}

// New wires a treasury over its collaborators. The engine starts
// uninitialized; Initialize opens it.
func New(cfg Config, params Params, cash, bond, share *token.Ledger, orc oracle.Oracle, brd Boardroom, fund Fund, adm *guard.Guard) (*Treasury, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Account == "" || cfg.Operator == "" {
		return nil, errors.New("treasury: account and operator are required")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("treasury: period must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Block == nil {
		cfg.Block = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Treasury{
		cfg:    cfg,
		params: params,
		cash:   cash,
		bond:   bond,
		share:  share,
		orc:    orc,
		brd:    brd,
		fund:   fund,
		adm:    adm,
	}, nil
}

// Initialize opens the engine at startTime. Operator only, once.
func (t *Treasury) Initialize(caller string, startTime time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.cfg.Operator {
		return ErrNotOperator
	}
	switch t.status {
	case StatusActive:
		return ErrAlreadyInitialized
	case StatusMigrated:
		return ErrMigrated
	}
	t.status = StatusActive
	t.startTime = startTime
	t.epoch = 0
	t.reserve = decimal.Zero
	return nil
}

// GetPrice reads the oracle's time-weighted price for one unit of the
// pegged asset. Oracle failure here is fatal to the calling operation.
func (t *Treasury) GetPrice() (decimal.Decimal, error) {
	price, err := t.orc.Consult(t.cash.Symbol(), fixed.One)
	if err != nil {
		return decimal.Zero, fmt.Errorf("treasury: consult oracle: %w", err)
	}
	return price, nil
}

// updatePrice refreshes the oracle's window. Best-effort: failure must not
// block conversions, so it is logged and swallowed.
func (t *Treasury) updatePrice() {
	if err := t.orc.Update(); err != nil {
		slog.Debug("oracle update skipped", "err", err)
	}
}

// BuyBonds burns amount of the caller's pegged asset and mints
// amount/price bonds while price sits below the peg. expectedPrice must
// match the freshly read price — the caller's slippage guard.
func (t *Treasury) BuyBonds(caller string, amount, expectedPrice decimal.Decimal) (res BondPurchase, err error) {
	blk := t.cfg.Block()
	if err := t.adm.Admit(caller, blk); err != nil {
		return BondPurchase{}, err
	}
	defer func() {
		if err != nil {
			t.adm.Release(caller, blk)
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireActive(); err != nil {
		return BondPurchase{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return BondPurchase{}, ErrInvalidAmount
	}
	t.updatePrice()
	price, err := t.GetPrice()
	if err != nil {
		return BondPurchase{}, err
	}
	if !expectedPrice.Equal(price) {
		return BondPurchase{}, fmt.Errorf("%w: expected %s, got %s", ErrStaleQuote, expectedPrice, price)
	}
	if price.GreaterThanOrEqual(t.params.PriceOne) {
		return BondPurchase{}, fmt.Errorf("%w: price %s", ErrPriceNotBelowPeg, price)
	}

	bonds := fixed.MulDiv(amount, fixed.One, price)

	if t.params.Variant == VariantExtended {
		if amount.GreaterThan(t.contractionLeft) {
			return BondPurchase{}, fmt.Errorf("%w: %s left, requested %s",
				ErrContractionExhausted, t.contractionLeft, amount)
		}
		// Both caps must hold after the mint.
		newBondSupply := t.bond.TotalSupply().Add(bonds)
		newCashSupply := t.cash.TotalSupply().Sub(amount)
		if newCashSupply.LessThanOrEqual(decimal.Zero) ||
			newBondSupply.GreaterThan(fixed.Percent(newCashSupply, t.params.MaxDebtRatioPercent)) {
			return BondPurchase{}, ErrDebtRatioExceeded
		}
	}

	if err := t.cash.BurnFrom(t.cfg.Account, caller, amount); err != nil {
		return BondPurchase{}, fmt.Errorf("treasury: burn pegged: %w", err)
	}
	if err := t.bond.Mint(t.cfg.Account, caller, bonds); err != nil {
		// Burn succeeded; minting is operator-gated to us, so this only
		// fires on a zero rounding result. Restore the burn.
		if rerr := t.cash.Mint(t.cfg.Account, caller, amount); rerr != nil {
			return BondPurchase{}, errors.Join(err, rerr)
		}
		return BondPurchase{}, fmt.Errorf("treasury: mint bonds: %w", err)
	}
	if t.params.Variant == VariantExtended {
		t.contractionLeft = t.contractionLeft.Sub(amount)
	}
	return BondPurchase{Burned: amount, BondsMinted: bonds, Price: price, Epoch: t.epoch}, nil
}

// RedeemBonds burns the caller's bonds 1:1 for pegged asset while price
// sits above the ceiling. The reserve draws down by min(reserve, amount)
// and floors at zero; the payout only requires the treasury's raw balance
// to cover it.
func (t *Treasury) RedeemBonds(caller string, amount, expectedPrice decimal.Decimal) (res BondRedemption, err error) {
	blk := t.cfg.Block()
	if err := t.adm.Admit(caller, blk); err != nil {
		return BondRedemption{}, err
	}
	defer func() {
		if err != nil {
			t.adm.Release(caller, blk)
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireActive(); err != nil {
		return BondRedemption{}, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return BondRedemption{}, ErrInvalidAmount
	}
	t.updatePrice()
	price, err := t.GetPrice()
	if err != nil {
		return BondRedemption{}, err
	}
	if !expectedPrice.Equal(price) {
		return BondRedemption{}, fmt.Errorf("%w: expected %s, got %s", ErrStaleQuote, expectedPrice, price)
	}
	if price.LessThanOrEqual(t.params.PriceCeiling) {
		return BondRedemption{}, fmt.Errorf("%w: price %s, ceiling %s", ErrPriceNotAboveCeiling, price, t.params.PriceCeiling)
	}
	if t.cash.BalanceOf(t.cfg.Account).LessThan(amount) {
		return BondRedemption{}, fmt.Errorf("%w: balance %s, requested %s",
			ErrInsufficientReserveBalance, t.cash.BalanceOf(t.cfg.Account), amount)
	}

	if err := t.bond.BurnFrom(t.cfg.Account, caller, amount); err != nil {
		return BondRedemption{}, fmt.Errorf("treasury: burn bonds: %w", err)
	}
	if err := t.cash.Transfer(t.cfg.Account, caller, amount); err != nil {
		// Balance was checked above; restore the burn if this ever fires.
		if rerr := t.bond.Mint(t.cfg.Account, caller, amount); rerr != nil {
			return BondRedemption{}, errors.Join(err, rerr)
		}
		return BondRedemption{}, fmt.Errorf("treasury: pay redemption: %w", err)
	}
	fromReserve := fixed.Min(t.reserve, amount)
	t.reserve = t.reserve.Sub(fromReserve)
	return BondRedemption{BondsBurned: amount, Paid: amount, FromReserve: fromReserve, Price: price, Epoch: t.epoch}, nil
}

// AllocateSeigniorage runs one epoch: refreshes the oracle, reads the
// price, and — when price clears the ceiling (or during bootstrap epochs)
// — mints an expansion and routes it. The epoch counter advances and the
// contraction budget resets on every success, expansion or not.
func (t *Treasury) AllocateSeigniorage(caller string) (res Allocation, err error) {
	blk := t.cfg.Block()
	if err := t.adm.Admit(caller, blk); err != nil {
		return Allocation{}, err
	}
	defer func() {
		if err != nil {
			t.adm.Release(caller, blk)
		}
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireActive(); err != nil {
		return Allocation{}, err
	}
	now := t.cfg.Now()
	if now.Before(t.startTime) || now.Before(t.nextEpochPoint()) {
		return Allocation{}, fmt.Errorf("%w: opens at %s", ErrEpochNotReady, t.nextEpochPoint())
	}

	t.updatePrice()
	price, err := t.GetPrice()
	if err != nil {
		return Allocation{}, err
	}

	alloc := Allocation{Epoch: t.epoch, Price: price}
	if err := t.expand(&alloc, price, blk); err != nil {
		return Allocation{}, err
	}

	// Epoch advance and budget reset commit together with the expansion.
	t.epoch++
	if t.params.Variant == VariantExtended {
		t.contractionLeft = fixed.Percent(t.cash.TotalSupply(), t.params.MaxSupplyContractionPercent)
	}
	return alloc, nil
}

// expand computes and executes this epoch's expansion, filling alloc.
// Callers hold the lock. No state is mutated on error.
func (t *Treasury) expand(alloc *Allocation, price decimal.Decimal, blk uint64) error {
	bootstrap := t.params.Variant == VariantExtended && alloc.Epoch < t.params.BootstrapEpochs

	var pct decimal.Decimal
	switch {
	case bootstrap:
		// Bootstrap epochs expand at the fixed rate irrespective of price.
		pct = t.params.BootstrapSupplyExpansionPercent
	case price.LessThanOrEqual(t.params.PriceCeiling):
		// No expansion this epoch; advancing the epoch is still a success.
		return nil
	default:
		pct = price.Sub(t.params.PriceOne)
	}

	collateralTarget := fixed.Percent(t.bond.TotalSupply(), t.params.BondDepletionFloorPercent)
	underCollateralized := t.reserve.LessThan(collateralTarget)

	if !bootstrap {
		limit := t.params.MaxSupplyExpansionPercent
		if t.params.Variant == VariantExtended && underCollateralized {
			limit = limit.Mul(decimal.NewFromInt(2))
		}
		pct = fixed.Clamp(pct, decimal.Zero, limit)
	}

	circulating := t.cash.TotalSupply().Sub(t.reserve)
	expanded := fixed.Percent(circulating, pct)
	if expanded.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	var toFund, toLiquidity, toReserve, toBoardroom decimal.Decimal
	remainder := expanded

	switch t.params.Variant {
	case VariantSimple:
		toFund = fixed.Percent(expanded, t.params.FundAllocationRate)
		remainder = remainder.Sub(toFund)
		// The simple reserve tops up toward the full bond supply; the
		// depletion floor only grades collateralization in the extended
		// variant.
		roomLeft := t.bond.TotalSupply().Sub(t.reserve)
		if roomLeft.IsNegative() {
			roomLeft = decimal.Zero
		}
		toReserve = fixed.Min(remainder, roomLeft)
		toBoardroom = remainder.Sub(toReserve)

	case VariantExtended:
		if alloc.Epoch < t.params.LiquidityIncentiveEpochs && t.params.LiquidityIncentivePercent.IsPositive() {
			toLiquidity = fixed.Percent(expanded, t.params.LiquidityIncentivePercent)
			remainder = remainder.Sub(toLiquidity)
		}
		if bootstrap || !underCollateralized {
			toBoardroom = remainder
		} else {
			// Guaranteed boardroom floor even while rebuilding the reserve.
			toBoardroom = fixed.Percent(remainder, t.params.SeigniorageExpansionFloorPercent)
			toReserve = remainder.Sub(toBoardroom)
		}
	}

	// Pre-check the fallible routes before minting so the whole epoch stays
	// atomic: the boardroom needs stakers, and its admission guard must
	// still accept the funding identity this block — a catch-up allocation
	// in the same block has already used it.
	if toBoardroom.IsPositive() {
		if t.brd.TotalStaked().LessThanOrEqual(decimal.Zero) {
			return ErrNoStakers
		}
		if t.adm.Admitted(t.cfg.Account, blk) {
			return fmt.Errorf("treasury: fund boardroom: %w", guard.ErrReentry)
		}
	}

	if err := t.cash.Mint(t.cfg.Account, t.cfg.Account, expanded); err != nil {
		return fmt.Errorf("treasury: mint seigniorage: %w", err)
	}
	if toFund.IsPositive() {
		if err := t.cash.Transfer(t.cfg.Account, t.cfg.FundAccount, toFund); err != nil {
			return fmt.Errorf("treasury: fund transfer: %w", err)
		}
		if err := t.fund.Deposit(t.cash.Symbol(), toFund, fmt.Sprintf("seigniorage epoch %d", alloc.Epoch)); err != nil {
			return fmt.Errorf("treasury: fund deposit: %w", err)
		}
	}
	if toLiquidity.IsPositive() {
		if err := t.payLiquidity(toLiquidity); err != nil {
			return err
		}
	}
	if toBoardroom.IsPositive() {
		if err := t.cash.Approve(t.cfg.Account, t.cfg.BoardroomAccount, toBoardroom); err != nil {
			return fmt.Errorf("treasury: approve boardroom: %w", err)
		}
		if err := t.brd.AllocateSeigniorage(t.cfg.Account, toBoardroom); err != nil {
			return fmt.Errorf("treasury: fund boardroom: %w", err)
		}
	}
	t.reserve = t.reserve.Add(toReserve)

	alloc.Expanded = expanded
	alloc.ToFund = toFund
	alloc.ToLiquidity = toLiquidity
	alloc.ToReserve = toReserve
	alloc.ToBoardroom = toBoardroom
	return nil
}

// payLiquidity splits the incentive evenly across the recipient list; the
// last recipient absorbs the rounding remainder.
func (t *Treasury) payLiquidity(total decimal.Decimal) error {
	n := int64(len(t.params.LiquidityRecipients))
	each := fixed.MulDiv(total, fixed.One, decimal.NewFromInt(n))
	paid := decimal.Zero
	for i, recipient := range t.params.LiquidityRecipients {
		amount := each
		if int64(i) == n-1 {
			amount = total.Sub(paid)
		}
		if err := t.cash.Transfer(t.cfg.Account, recipient, amount); err != nil {
			return fmt.Errorf("treasury: liquidity transfer: %w", err)
		}
		paid = paid.Add(amount)
	}
	return nil
}

// Migrate hands the engine's minting authority and raw balances to a
// successor and permanently disables every mutating entry point.
func (t *Treasury) Migrate(caller, successor string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.cfg.Operator {
		return ErrNotOperator
	}
	if err := t.requireActive(); err != nil {
		return err
	}
	if successor == "" {
		return errors.New("treasury: empty successor")
	}
	for _, l := range []*token.Ledger{t.cash, t.bond, t.share} {
		if err := l.TransferOperator(t.cfg.Account, successor); err != nil {
			return fmt.Errorf("treasury: migrate %s authority: %w", l.Symbol(), err)
		}
		if bal := l.BalanceOf(t.cfg.Account); bal.IsPositive() {
			if err := l.Transfer(t.cfg.Account, successor, bal); err != nil {
				return fmt.Errorf("treasury: migrate %s balance: %w", l.Symbol(), err)
			}
		}
	}
	t.status = StatusMigrated
	return nil
}

func (t *Treasury) requireActive() error {
	switch t.status {
	case StatusUninitialized:
		return ErrNotInitialized
	case StatusMigrated:
		return ErrMigrated
	}
	return nil
}

func (t *Treasury) nextEpochPoint() time.Time {
	return t.startTime.Add(time.Duration(t.epoch) * t.cfg.Period)
}

// --- Read side ---

// Epoch returns the current epoch counter.
func (t *Treasury) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// NextEpochPoint returns when the next allocation window opens.
func (t *Treasury) NextEpochPoint() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextEpochPoint()
}

// Reserve returns the accumulated seigniorage earmarked for redemptions.
func (t *Treasury) Reserve() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserve
}

// ContractionLeft returns the epoch's remaining bond purchase budget.
func (t *Treasury) ContractionLeft() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contractionLeft
}

// CirculatingSupply returns total pegged supply minus the reserve.
func (t *Treasury) CirculatingSupply() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cash.TotalSupply().Sub(t.reserve)
}

// Status returns the lifecycle state.
func (t *Treasury) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Params returns a copy of the current policy parameters.
func (t *Treasury) Params() Params {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.params
	p.LiquidityRecipients = append([]string(nil), t.params.LiquidityRecipients...)
	return p
}
