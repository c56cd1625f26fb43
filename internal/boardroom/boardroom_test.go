package boardroom_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/boardroom"
	"github.com/pegdao/policy-engine/internal/guard"
	"github.com/pegdao/policy-engine/internal/token"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	share *token.Ledger
	cash  *token.Ledger
	board *boardroom.Boardroom
	epoch uint64
	block uint64
}

// newTestEnv wires a boardroom over fresh ledgers. The treasury identity
// funds rewards; each engine call lands in its own block.
func newTestEnv(t *testing.T, withdrawLockup, rewardLockup uint64) *testEnv {
	t.Helper()
	env := &testEnv{
		share: token.New("SHARE", "treasury"),
		cash:  token.New("CASH", "treasury"),
	}
	b, err := boardroom.New(boardroom.Config{
		Account:              "board",
		Operator:             "treasury",
		WithdrawLockupEpochs: withdrawLockup,
		RewardLockupEpochs:   rewardLockup,
	}, env.share, env.cash, guard.New(), func() uint64 { env.block++; return env.block })
	if err != nil {
		t.Fatalf("boardroom init failed: %v", err)
	}
	b.SetEpochSource(func() uint64 { return env.epoch })
	env.board = b
	return env
}

// seedStaker mints shares to account and approves the boardroom to pull them.
func (e *testEnv) seedStaker(t *testing.T, account string, amount decimal.Decimal) {
	t.Helper()
	if err := e.share.Mint("treasury", account, amount); err != nil {
		t.Fatalf("mint shares for %s: %v", account, err)
	}
	if err := e.share.Approve(account, "board", amount); err != nil {
		t.Fatalf("approve boardroom for %s: %v", account, err)
	}
}

// fund mints reward cash to the treasury and allocates it to the boardroom.
func (e *testEnv) fund(t *testing.T, amount decimal.Decimal) {
	t.Helper()
	if err := e.cash.Mint("treasury", "treasury", amount); err != nil {
		t.Fatalf("mint reward: %v", err)
	}
	if err := e.cash.Approve("treasury", "board", amount); err != nil {
		t.Fatalf("approve funding: %v", err)
	}
	if err := e.board.AllocateSeigniorage("treasury", amount); err != nil {
		t.Fatalf("allocate seigniorage: %v", err)
	}
}

func TestStakeWithdrawRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))

	if err := env.board.Stake("alice", d(100)); err != nil {
		t.Fatalf("stake failed: %v", err)
	}
	if !env.board.StakedBalance("alice").Equal(d(100)) {
		t.Errorf("staked = %s, want 100", env.board.StakedBalance("alice"))
	}
	if !env.share.BalanceOf("alice").IsZero() {
		t.Errorf("alice still holds %s shares", env.share.BalanceOf("alice"))
	}

	if err := env.board.Withdraw("alice", d(100)); err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if !env.share.BalanceOf("alice").Equal(d(100)) {
		t.Errorf("alice got back %s shares, want 100", env.share.BalanceOf("alice"))
	}
	if !env.board.TotalStaked().IsZero() {
		t.Errorf("total staked = %s, want 0", env.board.TotalStaked())
	}
}

func TestRewardsSplitProportionally(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.seedStaker(t, "bob", d(300))
	env.board.Stake("alice", d(100))
	env.board.Stake("bob", d(300))

	env.fund(t, d(400))

	if !env.board.Earned("alice").Equal(d(100)) {
		t.Errorf("alice earned %s, want 100", env.board.Earned("alice"))
	}
	if !env.board.Earned("bob").Equal(d(300)) {
		t.Errorf("bob earned %s, want 300", env.board.Earned("bob"))
	}
}

func TestRepeatedFundingAccumulates(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))

	env.fund(t, d(50))
	env.fund(t, d(50))

	if !env.board.Earned("alice").Equal(d(100)) {
		t.Errorf("alice earned %s, want 100", env.board.Earned("alice"))
	}
	// Reward-per-share is monotone across snapshots.
	snaps := env.board.Snapshots()
	for i := 1; i < len(snaps); i++ {
		if snaps[i].RewardPerShare.LessThan(snaps[i-1].RewardPerShare) {
			t.Fatalf("reward-per-share decreased at snapshot %d", i)
		}
	}
}

func TestAccrualUnaffectedByOtherStakers(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.seedStaker(t, "bob", d(500))
	env.board.Stake("alice", d(100))

	env.fund(t, d(70))
	before := env.board.Earned("alice")

	// Bob joining and leaving after the snapshot changes nothing for alice.
	env.board.Stake("bob", d(500))
	env.board.Withdraw("bob", d(500))

	if !env.board.Earned("alice").Equal(before) {
		t.Errorf("alice's accrual moved from %s to %s with no new funding",
			before, env.board.Earned("alice"))
	}
}

func TestLateStakerEarnsNothingRetroactively(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.seedStaker(t, "bob", d(100))
	env.board.Stake("alice", d(100))

	env.fund(t, d(40))
	env.board.Stake("bob", d(100))

	if !env.board.Earned("bob").IsZero() {
		t.Errorf("bob earned %s from funding before his stake", env.board.Earned("bob"))
	}
	if !env.board.Earned("alice").Equal(d(40)) {
		t.Errorf("alice earned %s, want 40", env.board.Earned("alice"))
	}
}

func TestClaimPaysAndResets(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))
	env.fund(t, d(40))

	reward, err := env.board.ClaimReward("alice")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !reward.Equal(d(40)) {
		t.Errorf("claimed %s, want 40", reward)
	}
	if !env.cash.BalanceOf("alice").Equal(d(40)) {
		t.Errorf("alice cash = %s, want 40", env.cash.BalanceOf("alice"))
	}
	if !env.board.Earned("alice").IsZero() {
		t.Errorf("earned after claim = %s, want 0", env.board.Earned("alice"))
	}
}

func TestStakeSumMatchesTotal(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.seedStaker(t, "bob", d(200))

	env.board.Stake("alice", d(60))
	env.board.Stake("bob", d(200))
	env.board.Stake("alice", d(40))
	env.board.Withdraw("bob", d(50))

	sum := env.board.StakedBalance("alice").Add(env.board.StakedBalance("bob"))
	if !sum.Equal(env.board.TotalStaked()) {
		t.Errorf("sum of stakes %s != total staked %s", sum, env.board.TotalStaked())
	}
	if !env.share.BalanceOf("board").Equal(env.board.TotalStaked()) {
		t.Errorf("board holds %s shares, total staked %s",
			env.share.BalanceOf("board"), env.board.TotalStaked())
	}
}

func TestAllocateWithZeroStakedFails(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.cash.Mint("treasury", "treasury", d(100))
	env.cash.Approve("treasury", "board", d(100))

	if err := env.board.AllocateSeigniorage("treasury", d(100)); !errors.Is(err, boardroom.ErrNoStakers) {
		t.Fatalf("expected ErrNoStakers, got %v", err)
	}
	// Nothing moved.
	if !env.cash.BalanceOf("board").IsZero() {
		t.Errorf("board received %s despite failure", env.cash.BalanceOf("board"))
	}
}

func TestAllocateRequiresOperator(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))

	if err := env.board.AllocateSeigniorage("mallory", d(10)); !errors.Is(err, boardroom.ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
}

func TestWithdrawExceedingStake(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))

	if err := env.board.Withdraw("alice", d(150)); !errors.Is(err, boardroom.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
}

func TestWithdrawLockup(t *testing.T) {
	env := newTestEnv(t, 5, 3)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100)) // timer starts at epoch 0
	env.fund(t, d(40))

	env.epoch = 4
	if err := env.board.Withdraw("alice", d(100)); !errors.Is(err, boardroom.ErrWithdrawLocked) {
		t.Fatalf("expected ErrWithdrawLocked at epoch 4, got %v", err)
	}

	env.epoch = 5
	if err := env.board.Withdraw("alice", d(100)); err != nil {
		t.Fatalf("withdraw at epoch 5 failed: %v", err)
	}
	// Withdraw under lockups implicitly claims the pending reward.
	if !env.cash.BalanceOf("alice").Equal(d(40)) {
		t.Errorf("alice cash = %s, want 40 (implicit claim)", env.cash.BalanceOf("alice"))
	}
}

func TestRewardLockup(t *testing.T) {
	env := newTestEnv(t, 5, 3)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))
	env.fund(t, d(40))

	env.epoch = 2
	if _, err := env.board.ClaimReward("alice"); !errors.Is(err, boardroom.ErrRewardLocked) {
		t.Fatalf("expected ErrRewardLocked at epoch 2, got %v", err)
	}

	env.epoch = 3
	reward, err := env.board.ClaimReward("alice")
	if err != nil {
		t.Fatalf("claim at epoch 3 failed: %v", err)
	}
	if !reward.Equal(d(40)) {
		t.Errorf("claimed %s, want 40", reward)
	}

	// Paying resets the timer: the next claim window starts at epoch 3.
	if env.board.SeatOf("alice").EpochTimerStart != 3 {
		t.Errorf("timer start = %d, want 3", env.board.SeatOf("alice").EpochTimerStart)
	}
}

func TestRestakeResetsLockupTimer(t *testing.T) {
	env := newTestEnv(t, 5, 3)
	env.seedStaker(t, "alice", d(200))
	env.board.Stake("alice", d(100))

	env.epoch = 4
	env.board.Stake("alice", d(100)) // timer restarts at epoch 4

	env.epoch = 8
	if err := env.board.Withdraw("alice", d(200)); !errors.Is(err, boardroom.ErrWithdrawLocked) {
		t.Fatalf("expected ErrWithdrawLocked after restake, got %v", err)
	}
	env.epoch = 9
	if err := env.board.Withdraw("alice", d(200)); err != nil {
		t.Fatalf("withdraw at epoch 9 failed: %v", err)
	}
}

func TestExitReturnsEverything(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))
	env.board.Stake("alice", d(100))
	env.fund(t, d(25))

	if err := env.board.Exit("alice"); err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	if !env.share.BalanceOf("alice").Equal(d(100)) {
		t.Errorf("alice shares = %s, want 100", env.share.BalanceOf("alice"))
	}
	if !env.board.StakedBalance("alice").IsZero() {
		t.Errorf("staked after exit = %s", env.board.StakedBalance("alice"))
	}
}

func TestSameBlockReentryRejected(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(200))

	// Pin the block so both calls land in the same one.
	adm := guard.New()
	b, err := boardroom.New(boardroom.Config{
		Account:  "board",
		Operator: "treasury",
	}, env.share, env.cash, adm, func() uint64 { return 7 })
	if err != nil {
		t.Fatalf("boardroom init failed: %v", err)
	}

	if err := b.Stake("alice", d(100)); err != nil {
		t.Fatalf("first stake failed: %v", err)
	}
	if err := b.Stake("alice", d(100)); !errors.Is(err, guard.ErrReentry) {
		t.Fatalf("expected ErrReentry, got %v", err)
	}
}

func TestFailedCallReleasesGuard(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.seedStaker(t, "alice", d(100))

	adm := guard.New()
	b, err := boardroom.New(boardroom.Config{
		Account:  "board",
		Operator: "treasury",
	}, env.share, env.cash, adm, func() uint64 { return 7 })
	if err != nil {
		t.Fatalf("boardroom init failed: %v", err)
	}

	// Invalid amount fails like a revert: the admission marker is undone.
	if err := b.Stake("alice", decimal.Zero); !errors.Is(err, boardroom.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := b.Stake("alice", d(100)); err != nil {
		t.Fatalf("stake after failed call rejected: %v", err)
	}
}
