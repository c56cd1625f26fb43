// Package boardroom implements the reward ledger: staked principal per
// account plus a monotonically non-decreasing reward-per-share accumulator
// advanced by discrete funding snapshots.
//
// Every state-changing entry point settles the caller's seat against the
// latest snapshot before mutating anything, so accrual for one account is
// exact at the moment of settlement and independent of other accounts'
// stake/withdraw traffic. Funding events update one global counter instead
// of iterating every staker.
//
// All monetary values use shopspring/decimal — never float64 for money.
package boardroom

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/fixed"
	"github.com/pegdao/policy-engine/internal/guard"
	"github.com/pegdao/policy-engine/internal/token"
)

var (
	// ErrInvalidAmount is returned for zero or negative stake/withdraw/
	// funding amounts.
	ErrInvalidAmount = errors.New("boardroom: amount must be positive")

	// ErrInsufficientStake is returned when a withdrawal exceeds the
	// caller's staked balance.
	ErrInsufficientStake = errors.New("boardroom: withdraw exceeds staked balance")

	// ErrNotOperator is returned when allocateSeigniorage comes from
	// anyone but the operator.
	ErrNotOperator = errors.New("boardroom: caller is not the operator")

	// ErrNoStakers is returned when a funding event arrives while nothing
	// is staked — the funds would be unrecoverable.
	ErrNoStakers = errors.New("boardroom: cannot allocate with zero staked")

	// ErrWithdrawLocked is returned while the withdraw lockup window has
	// not elapsed since the seat's timer was last reset.
	ErrWithdrawLocked = errors.New("boardroom: withdraw lockup has not elapsed")

	// ErrRewardLocked is returned while the reward lockup window has not
	// elapsed since the seat's timer was last reset.
	ErrRewardLocked = errors.New("boardroom: reward lockup has not elapsed")
)

// Snapshot records one funding event. Snapshots are append-only and the
// sequence is seeded with a genesis entry at reward-per-share zero.
type Snapshot struct {
	Time           time.Time       `json:"time"`
	RewardReceived decimal.Decimal `json:"reward_received"`
	RewardPerShare decimal.Decimal `json:"reward_per_share"` // cumulative
}

// Seat is the per-account accrual state.
type Seat struct {
	LastSnapshot    int             `json:"last_snapshot"`
	RewardEarned    decimal.Decimal `json:"reward_earned"` // settled, unclaimed
	EpochTimerStart uint64          `json:"epoch_timer_start"`
}

// Config holds the boardroom's identity and lockup policy. Zero lockups give
// the simple variant; non-zero lockups gate withdraw and claim by epochs
// elapsed since the seat's timer was last reset.
type Config struct {
	// Account is the boardroom's own identity in the token ledgers.
	Account string

	// Operator is the only identity allowed to push funding snapshots —
	// the treasury.
	Operator string

	// WithdrawLockupEpochs gates withdrawals; must be at least
	// RewardLockupEpochs so an unlocked withdrawal can settle its reward.
	WithdrawLockupEpochs uint64

	// RewardLockupEpochs gates claims.
	RewardLockupEpochs uint64
}

// Validate rejects misconfigured lockups. Range checks happen here, never
// at use time.
func (c Config) Validate() error {
	if c.Account == "" || c.Operator == "" {
		return errors.New("boardroom: account and operator are required")
	}
	if c.WithdrawLockupEpochs > 56 {
		return fmt.Errorf("boardroom: withdraw lockup %d out of range [0, 56]", c.WithdrawLockupEpochs)
	}
	if c.RewardLockupEpochs > c.WithdrawLockupEpochs {
		return fmt.Errorf("boardroom: reward lockup %d exceeds withdraw lockup %d",
			c.RewardLockupEpochs, c.WithdrawLockupEpochs)
	}
	return nil
}

// Boardroom tracks stakes and distributes funding events proportionally.
type Boardroom struct {
	mu    sync.Mutex
	cfg   Config
	share *token.Ledger // staked asset
	cash  *token.Ledger // reward asset
	adm   *guard.Guard
	block func() uint64

	// epoch supplies the lockup epoch counter. The source can take another
	// component's lock, so it is always read before b.mu.
	epoch func() uint64

	now func() time.Time

	totalStaked decimal.Decimal
	stakes      map[string]decimal.Decimal
	seats       map[string]*Seat
	snapshots   []Snapshot
}

// New creates a boardroom over the given share and cash ledgers. block
// supplies the admission-control time unit; the epoch source defaults to a
// constant zero until bound via SetEpochSource.
func New(cfg Config, share, cash *token.Ledger, adm *guard.Guard, block func() uint64) (*Boardroom, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Boardroom{
		cfg:    cfg,
		share:  share,
		cash:   cash,
		adm:    adm,
		block:  block,
		epoch:  func() uint64 { return 0 },
		now:    time.Now,
		stakes: make(map[string]decimal.Decimal),
		seats:  make(map[string]*Seat),
		// Genesis snapshot at reward-per-share zero.
		snapshots: []Snapshot{{Time: time.Now(), RewardReceived: decimal.Zero, RewardPerShare: decimal.Zero}},
	}
	return b, nil
}

// SetEpochSource binds the epoch counter the lockup windows are measured
// against — normally the treasury's Epoch method. Wiring only: must be
// called before the boardroom serves traffic.
func (b *Boardroom) SetEpochSource(epoch func() uint64) {
	b.epoch = epoch
}

// SetNow overrides the snapshot clock. Tests only.
func (b *Boardroom) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// TransferOperator hands funding authority to next. Current operator only.
func (b *Boardroom) TransferOperator(caller, next string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.cfg.Operator {
		return ErrNotOperator
	}
	if next == "" {
		return errors.New("boardroom: empty operator")
	}
	b.cfg.Operator = next
	return nil
}

// Stake pulls amount of the share asset from account and credits its seat.
// Resets the seat's lockup timer to the current epoch.
func (b *Boardroom) Stake(account string, amount decimal.Decimal) (err error) {
	blk := b.block()
	if err := b.adm.Admit(account, blk); err != nil {
		return err
	}
	// A failed call behaves like a revert: the guard marker is undone too.
	defer func() {
		if err != nil {
			b.adm.Release(account, blk)
		}
	}()
	epoch := b.epoch()
	b.mu.Lock()
	defer b.mu.Unlock()
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	seat := b.settle(account)
	if err := b.share.TransferFrom(b.cfg.Account, account, b.cfg.Account, amount); err != nil {
		return fmt.Errorf("boardroom: pull stake: %w", err)
	}
	b.stakes[account] = b.stakes[account].Add(amount)
	b.totalStaked = b.totalStaked.Add(amount)
	seat.EpochTimerStart = epoch
	return nil
}

// Withdraw returns amount of the share asset to account. With lockups
// enabled it additionally requires the withdraw window to have elapsed and
// implicitly claims the pending reward first.
func (b *Boardroom) Withdraw(account string, amount decimal.Decimal) (err error) {
	blk := b.block()
	if err := b.adm.Admit(account, blk); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			b.adm.Release(account, blk)
		}
	}()
	epoch := b.epoch()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.withdraw(account, amount, epoch)
}

// Exit withdraws the account's entire staked balance.
func (b *Boardroom) Exit(account string) (err error) {
	blk := b.block()
	if err := b.adm.Admit(account, blk); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			b.adm.Release(account, blk)
		}
	}()
	epoch := b.epoch()
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.withdraw(account, b.stakes[account], epoch)
}

func (b *Boardroom) withdraw(account string, amount decimal.Decimal, epoch uint64) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	staked := b.stakes[account]
	if staked.LessThan(amount) {
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, staked, amount)
	}
	seat := b.settle(account)
	if b.cfg.WithdrawLockupEpochs > 0 {
		if epoch < seat.EpochTimerStart+b.cfg.WithdrawLockupEpochs {
			return fmt.Errorf("%w: unlocks at epoch %d", ErrWithdrawLocked,
				seat.EpochTimerStart+b.cfg.WithdrawLockupEpochs)
		}
		// Withdraw implies a claim under lockups; the reward window is a
		// subset of the withdraw window, so this cannot fail the gate.
		if err := b.payReward(account, seat, epoch); err != nil {
			return err
		}
	}
	if err := b.share.Transfer(b.cfg.Account, account, amount); err != nil {
		return fmt.Errorf("boardroom: return stake: %w", err)
	}
	b.stakes[account] = staked.Sub(amount)
	b.totalStaked = b.totalStaked.Sub(amount)
	return nil
}

// ClaimReward pays out the settled reward, if the reward lockup window has
// elapsed, and resets the seat's timer so the claim cannot be immediately
// repeated.
func (b *Boardroom) ClaimReward(account string) (reward decimal.Decimal, err error) {
	blk := b.block()
	if err := b.adm.Admit(account, blk); err != nil {
		return decimal.Zero, err
	}
	defer func() {
		if err != nil {
			b.adm.Release(account, blk)
		}
	}()
	epoch := b.epoch()
	b.mu.Lock()
	defer b.mu.Unlock()
	seat := b.settle(account)
	if b.cfg.RewardLockupEpochs > 0 {
		if epoch < seat.EpochTimerStart+b.cfg.RewardLockupEpochs {
			return decimal.Zero, fmt.Errorf("%w: unlocks at epoch %d", ErrRewardLocked,
				seat.EpochTimerStart+b.cfg.RewardLockupEpochs)
		}
	}
	reward = seat.RewardEarned
	if err := b.payReward(account, seat, epoch); err != nil {
		return decimal.Zero, err
	}
	return reward, nil
}

// payReward moves the settled reward out and resets the lockup timer.
// Callers hold the lock and have settled the seat.
func (b *Boardroom) payReward(account string, seat *Seat, epoch uint64) error {
	if seat.RewardEarned.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	if err := b.cash.Transfer(b.cfg.Account, account, seat.RewardEarned); err != nil {
		return fmt.Errorf("boardroom: pay reward: %w", err)
	}
	seat.RewardEarned = decimal.Zero
	seat.EpochTimerStart = epoch
	return nil
}

// AllocateSeigniorage appends a funding snapshot and pulls amount of the
// cash asset from the caller. Operator only; fails if nothing is staked.
func (b *Boardroom) AllocateSeigniorage(caller string, amount decimal.Decimal) (err error) {
	blk := b.block()
	if err := b.adm.Admit(caller, blk); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			b.adm.Release(caller, blk)
		}
	}()
	b.mu.Lock()
	defer b.mu.Unlock()
	if caller != b.cfg.Operator {
		return ErrNotOperator
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if b.totalStaked.LessThanOrEqual(decimal.Zero) {
		return ErrNoStakers
	}
	if err := b.cash.TransferFrom(b.cfg.Account, caller, b.cfg.Account, amount); err != nil {
		return fmt.Errorf("boardroom: pull funding: %w", err)
	}
	prev := b.snapshots[len(b.snapshots)-1].RewardPerShare
	b.snapshots = append(b.snapshots, Snapshot{
		Time:           b.now(),
		RewardReceived: amount,
		RewardPerShare: prev.Add(fixed.MulDiv(fixed.One, amount, b.totalStaked)),
	})
	return nil
}

// settle folds the accrued reward since the seat's last-seen snapshot into
// RewardEarned and fast-forwards the seat to the latest snapshot. Callers
// hold the lock.
func (b *Boardroom) settle(account string) *Seat {
	seat, ok := b.seats[account]
	if !ok {
		seat = &Seat{LastSnapshot: len(b.snapshots) - 1, RewardEarned: decimal.Zero}
		b.seats[account] = seat
	}
	latest := len(b.snapshots) - 1
	if seat.LastSnapshot != latest {
		seat.RewardEarned = b.accrued(account, seat)
		seat.LastSnapshot = latest
	}
	return seat
}

// accrued computes the seat's total unclaimed reward against the latest
// snapshot without mutating it. Callers hold the lock.
func (b *Boardroom) accrued(account string, seat *Seat) decimal.Decimal {
	latest := b.snapshots[len(b.snapshots)-1].RewardPerShare
	seen := b.snapshots[seat.LastSnapshot].RewardPerShare
	delta := fixed.Round(b.stakes[account].Mul(latest.Sub(seen)))
	return seat.RewardEarned.Add(delta)
}

// --- Read side ---

// TotalStaked returns the sum of all staked balances.
func (b *Boardroom) TotalStaked() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalStaked
}

// StakedBalance returns account's staked principal.
func (b *Boardroom) StakedBalance(account string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stakes[account]
}

// Earned returns account's unclaimed reward as of the latest snapshot.
func (b *Boardroom) Earned(account string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	seat, ok := b.seats[account]
	if !ok {
		return decimal.Zero
	}
	return b.accrued(account, seat)
}

// SeatOf returns a copy of account's seat state.
func (b *Boardroom) SeatOf(account string) Seat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seat, ok := b.seats[account]; ok {
		return *seat
	}
	return Seat{LastSnapshot: len(b.snapshots) - 1, RewardEarned: decimal.Zero}
}

// RewardPerShare returns the cumulative reward-per-share accumulator.
func (b *Boardroom) RewardPerShare() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots[len(b.snapshots)-1].RewardPerShare
}

// Snapshots returns a copy of the funding history, genesis included.
func (b *Boardroom) Snapshots() []Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Snapshot, len(b.snapshots))
	copy(out, b.snapshots)
	return out
}
