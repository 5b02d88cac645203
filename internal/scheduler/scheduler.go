// Package scheduler implements the Scheduler (C9): a cooperative,
// single-task loop that runs one cycle immediately and then at a fixed
// interval forever, polling for shutdown once a second between cycles.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/selector"
	"github.com/goingdark-social/boostbot/internal/state"
)

// pollGranularity bounds how long the scheduler can go without checking
// ctx.Done(), per the spec's "wake often enough to honor shutdown signals"
// requirement.
const pollGranularity = 1 * time.Second

// Scheduler runs Selector cycles on a fixed interval. Cycles never
// overlap: a long cycle simply delays the next tick.
type Scheduler struct {
	cfg       *config.Config
	sel       *selector.Selector
	st        *state.State
	statePath string
	onCycle   func(selector.Summary)
}

// New returns a Scheduler bound to sel, operating on the given state and
// persisting it to statePath after every cycle. onCycle, if non-nil, is
// called with each cycle's summary (e.g. to feed the admin server's
// /status endpoint); it may be nil.
func New(cfg *config.Config, sel *selector.Selector, st *state.State, statePath string, onCycle func(selector.Summary)) *Scheduler {
	return &Scheduler{cfg: cfg, sel: sel, st: st, statePath: statePath, onCycle: onCycle}
}

// Start runs one cycle synchronously, then repeats on cfg.Interval until
// ctx is cancelled. It returns when ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.runCycle(ctx)

	nextTick := time.Now().Add(s.cfg.Interval)
	ticker := time.NewTicker(pollGranularity)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case now := <-ticker.C:
			if now.Before(nextTick) {
				continue
			}
			s.runCycle(ctx)
			nextTick = time.Now().Add(s.cfg.Interval)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()
	summary := s.sel.Run(ctx, s.st, cycleID)
	state.Save(s.statePath, s.st)
	if s.onCycle != nil {
		s.onCycle(summary)
	}
	slog.Info("cycle complete",
		"cycle_id", cycleID,
		"admitted", summary.Admitted,
		"considered", summary.Considered,
		"day", summary.DayCount,
		"day_cap", summary.DayCap,
		"hour", summary.HourCount,
		"hour_cap", summary.HourCap,
	)
}
