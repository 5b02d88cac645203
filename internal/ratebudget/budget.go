// Package ratebudget implements the day/hour admission counters (C2): a
// small synchronous state machine layered directly on top of state.State's
// bucket fields, with automatic rollover based on the current UTC clock.
package ratebudget

import (
	"time"

	"github.com/goingdark-social/boostbot/internal/state"
)

// Budget enforces the daily and hourly publish ceilings against a State's
// counters. All operations are synchronous, non-blocking, and safe to call
// only from the single cycle task — there is no internal locking.
type Budget struct {
	DailyCap  int
	HourlyCap int
	now       func() time.Time
}

// New returns a Budget enforcing the given daily and hourly caps. A cap of
// 0 or less is treated as "no admissions permitted" rather than unlimited,
// matching the spec's "available iff below limit" phrasing literally.
func New(dailyCap, hourlyCap int) *Budget {
	return &Budget{DailyCap: dailyCap, HourlyCap: hourlyCap, now: time.Now}
}

// Tick advances the day/hour bucket keys against the current UTC time,
// resetting the corresponding counter (and, on day rollover, clearing
// authors_today) whenever the key has moved forward. A clock that appears
// to move backward (state persisted with a future key, e.g. after manual
// clock adjustment) is a no-op: bucket keys only ever change forward.
func (b *Budget) Tick(s *state.State) {
	now := b.now()
	dk := dayKeyOf(now)
	if s.DayKey != dk {
		if s.DayKey < dk || s.DayKey == "" {
			s.DayKey = dk
			s.DayCount = 0
			s.AuthorsToday = map[string]int{}
		}
	}
	hk := hourKeyOf(now)
	if s.HourKey != hk {
		if s.HourKey < hk || s.HourKey == "" {
			s.HourKey = hk
			s.HourCount = 0
		}
	}
}

// Available reports whether both the daily and hourly caps have headroom.
// It ticks the budget first so callers never need to call Tick separately.
func (b *Budget) Available(s *state.State) bool {
	b.Tick(s)
	return s.DayCount < b.DailyCap && s.HourCount < b.HourlyCap
}

// Consume increments both the day and hour counters. Callers must have
// observed a true result from Available in the same admission decision
// before calling Consume; Consume itself does not re-check the caps.
func (b *Budget) Consume(s *state.State) {
	b.Tick(s)
	s.DayCount++
	s.HourCount++
}

func dayKeyOf(t time.Time) string  { return t.UTC().Format("2006-01-02") }
func hourKeyOf(t time.Time) string { return t.UTC().Format("2006-01-02T15") }
