// Package oracle defines the price source consumed by the treasury.
//
// Consult failures are fatal to the calling operation — the treasury must
// never proceed on stale or default pricing. Update failures are advisory
// and swallowed by callers.
package oracle

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
)

var (
	// ErrStalePrice is returned by Consult when the oracle's window has
	// no usable observation.
	ErrStalePrice = errors.New("oracle: price is stale")

	// ErrUpdateTooSoon is returned by Update when the time-weighted window
	// has not elapsed since the last refresh.
	ErrUpdateTooSoon = errors.New("oracle: period not elapsed since last update")
)

// Oracle is the treasury's view of the price source.
type Oracle interface {
	// Consult returns the time-weighted value of amount units of asset.
	Consult(asset string, amount decimal.Decimal) (decimal.Decimal, error)

	// Update advances the oracle's internal time-weighted window.
	Update() error
}

// Sim is a settable oracle for the service's simulation mode and for tests.
// It enforces the once-per-period update cadence of a real TWAP source but
// takes its price from SetPrice instead of pair reserves.
type Sim struct {
	mu         sync.Mutex
	asset      string
	price      decimal.Decimal
	period     time.Duration
	lastUpdate time.Time
	stale      bool
	now        func() time.Time
}

// NewSim creates a sim oracle quoting asset at price, refreshable once per
// period.
func NewSim(asset string, price decimal.Decimal, period time.Duration) *Sim {
	return &Sim{
		asset:  asset,
		price:  price,
		period: period,
		now:    time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (s *Sim) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetPrice sets the quoted price.
func (s *Sim) SetPrice(p decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.price = p
}

// SetStale makes subsequent Consult calls fail until cleared.
func (s *Sim) SetStale(stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = stale
}

// Consult returns amount × price for the configured asset.
func (s *Sim) Consult(asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		return decimal.Zero, ErrStalePrice
	}
	if asset != s.asset {
		return decimal.Zero, errors.New("oracle: unknown asset " + asset)
	}
	return fixed.Round(amount.Mul(s.price)), nil
}

// Update advances the window. Fails with ErrUpdateTooSoon inside the period.
func (s *Sim) Update() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if !s.lastUpdate.IsZero() && now.Sub(s.lastUpdate) < s.period {
		return ErrUpdateTooSoon
	}
	s.lastUpdate = now
	return nil
}
