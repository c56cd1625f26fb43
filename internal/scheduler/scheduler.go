// Package scheduler drives the epoch cycle on a timer: each tick attempts
// one treasury allocation. Failures inside the epoch window (window not
// open yet, no stakers) are expected and logged, never fatal.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pegdao/policy-engine/internal/treasury"
)

// AllocateFunc runs one epoch allocation end to end, persistence included.
// The service layer supplies it so scheduled epochs are recorded the same
// way operator-triggered ones are.
type AllocateFunc func(ctx context.Context) error

// Scheduler manages the epoch cron task.
type Scheduler struct {
	cron     *cron.Cron
	allocate AllocateFunc
	ctx      context.Context
}

// New creates a scheduler over an allocation callback.
func New(ctx context.Context, allocate AllocateFunc) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		allocate: allocate,
		ctx:      ctx,
	}
}

// Register schedules the allocation attempt. period is the epoch length;
// ticking at a fraction of it keeps the allocation point from drifting a
// full period when one tick lands just before the window opens.
func (s *Scheduler) Register(period time.Duration) error {
	tick := period / 4
	if tick < time.Second {
		tick = time.Second
	}
	spec := fmt.Sprintf("@every %s", tick)
	if _, err := s.cron.AddFunc(spec, s.tryAllocate); err != nil {
		return fmt.Errorf("register epoch task: %w", err)
	}
	return nil
}

func (s *Scheduler) tryAllocate() {
	err := s.allocate(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, treasury.ErrEpochNotReady):
		// The tick fired between epoch points. Normal.
	case errors.Is(err, treasury.ErrNoStakers):
		slog.Warn("epoch allocation skipped", "err", err)
	default:
		slog.Error("epoch allocation failed", "err", err)
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("epoch scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	slog.Info("epoch scheduler stopped")
}
