// Package selector implements the Selector (C7): the per-cycle
// orchestration that pulls candidates from C3, scores and filters them,
// and admits survivors under the rate budget and diversity constraints.
package selector

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/model"
	"github.com/goingdark-social/boostbot/internal/publisher"
	"github.com/goingdark-social/boostbot/internal/scoring"
	"github.com/goingdark-social/boostbot/internal/state"
)

const (
	reasonFilteredHost          = "filtered-host"
	reasonQualityBelowThreshold = "quality-below-threshold"
	reasonHourCap               = "hour-cap"
	reasonDayCap                = "day-cap"
	reasonRunCap                = "run-cap"
)

// CandidateSource is the subset of source.Source the Selector needs.
type CandidateSource interface {
	Fetch(ctx context.Context, lastInstanceIdx int) (candidates []model.Candidate, nextInstanceIdx int)
}

// ContentFilter is the subset of filter.Filter the Selector needs.
type ContentFilter interface {
	Skip(p model.Post) (reason string, skip bool)
}

// Scorer is the subset of scoring.Scorer the Selector needs.
type Scorer interface {
	Score(p model.Post) float64
}

// DiversityTracker is the subset of diversity.Tracker the Selector needs.
type DiversityTracker interface {
	Reset()
	Blocked(c model.Candidate, s *state.State) (reason string, blocked bool)
	Record(c model.Candidate, s *state.State)
}

// RateBudget is the subset of ratebudget.Budget the Selector needs.
type RateBudget interface {
	Available(s *state.State) bool
	Consume(s *state.State)
}

// StatusPublisher is the subset of publisher.Publisher the Selector needs.
type StatusPublisher interface {
	Publish(ctx context.Context, post model.Post) publisher.Outcome
}

// HistorySink receives one record per admission-loop decision. Selector
// treats it as a pure audit sink: nothing it returns ever feeds back into
// the decision engine.
type HistorySink interface {
	Record(cycleID, postID, origin, reason string, score float64)
}

// Selector runs one full cycle: fetch, score, filter, admit, publish. Its
// collaborators are accepted as interfaces so a cycle can be exercised
// end-to-end against fakes without any network or database access.
type Selector struct {
	cfg        *config.Config
	src        CandidateSource
	filt       ContentFilter
	scorer     Scorer
	tracker    DiversityTracker
	budget     RateBudget
	budgetCaps budgetCaps
	pub        StatusPublisher
	history    HistorySink
	persist    func(*state.State)
}

// budgetCaps lets the Summary report configured caps without the Selector
// depending on ratebudget.Budget's concrete type.
type budgetCaps struct {
	daily, hourly int
}

// New wires together one Selector from its collaborators. dailyCap and
// hourlyCap are reported verbatim in each cycle's Summary.
func New(cfg *config.Config, src CandidateSource, filt ContentFilter, scorer Scorer, tracker DiversityTracker, budget RateBudget, dailyCap, hourlyCap int, pub StatusPublisher, history HistorySink) *Selector {
	return &Selector{
		cfg: cfg, src: src, filt: filt, scorer: scorer, tracker: tracker,
		budget: budget, budgetCaps: budgetCaps{daily: dailyCap, hourly: hourlyCap},
		pub: pub, history: history,
	}
}

// SetPersist registers fn to be called with the engine's State immediately
// after every successful publish, per the spec's "persistence precedes next
// admission" ordering guarantee. Without a registered fn, persistence is
// left entirely to the caller (e.g. once at cycle end).
func (sel *Selector) SetPersist(fn func(*state.State)) {
	sel.persist = fn
}

// Summary reports one cycle's outcome for the end-of-cycle log line.
type Summary struct {
	Admitted  int
	Considered int
	DayCount  int
	DayCap    int
	HourCount int
	HourCap   int
}

// Run executes one full cycle against s, mutating it in place and, when a
// hook is registered via SetPersist, persisting it after every successful
// publish. cycleID correlates log
// lines and history rows for this run.
func (sel *Selector) Run(ctx context.Context, s *state.State, cycleID string) Summary {
	sel.tracker.Reset()

	if len(sel.cfg.SubscribedInstances) == 0 && !sel.cfg.LocalTimelineEnabled {
		slog.Info("cycle skipped: no candidate sources configured", "cycle_id", cycleID)
		return Summary{}
	}

	if !sel.budget.Available(s) {
		slog.Info("cycle skipped: rate budget exhausted", "cycle_id", cycleID, "day_count", s.DayCount, "hour_count", s.HourCount)
		return Summary{}
	}

	candidates, nextIdx := sel.src.Fetch(ctx, s.LastInstanceIdx)
	s.LastInstanceIdx = nextIdx

	for i := range candidates {
		candidates[i].RawScore = sel.scorer.Score(candidates[i].Post)
	}

	candidates = sel.applyQualityGate(candidates, cycleID)
	if len(candidates) == 0 {
		slog.Info("cycle ended: no candidates cleared the quality gate", "cycle_id", cycleID)
		return Summary{Considered: 0}
	}

	scoring.Normalize(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].NormalizedScore != candidates[j].NormalizedScore {
			return candidates[i].NormalizedScore > candidates[j].NormalizedScore
		}
		return candidates[i].Post.CreatedAt.After(candidates[j].Post.CreatedAt)
	})

	return sel.admit(ctx, candidates, s, cycleID)
}

// applyQualityGate drops candidates whose raw score falls below
// min_score_threshold (0 disables the gate).
func (sel *Selector) applyQualityGate(candidates []model.Candidate, cycleID string) []model.Candidate {
	if sel.cfg.MinScoreThreshold == 0 {
		return candidates
	}
	out := candidates[:0]
	for _, c := range candidates {
		if c.RawScore < sel.cfg.MinScoreThreshold {
			sel.record(cycleID, c, reasonQualityBelowThreshold)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (sel *Selector) admit(ctx context.Context, candidates []model.Candidate, s *state.State, cycleID string) Summary {
	admitted := 0
	sourceAdmitted := map[string]int{}

	for _, c := range candidates {
		if admitted >= sel.cfg.MaxBoostsPerRun {
			slog.Info("admission stopped", "cycle_id", cycleID, "reason", reasonRunCap, "cap", sel.cfg.MaxBoostsPerRun)
			break
		}
		if !sel.budget.Available(s) {
			if s.HourCount >= sel.budgetCaps.hourly {
				slog.Info("admission stopped", "cycle_id", cycleID, "reason", reasonHourCap, "hour_count", s.HourCount)
			} else {
				slog.Info("admission stopped", "cycle_id", cycleID, "reason", reasonDayCap, "day_count", s.DayCount)
			}
			break
		}

		if limit, ok := sel.perSourceLimit(c.Origin); ok && sourceAdmitted[c.Origin] >= limit {
			continue
		}

		if reason, blocked := sel.tracker.Blocked(c, s); blocked {
			sel.record(cycleID, c, reason)
			continue
		}

		if host := c.AuthorHost(); host != "" && containsFold(sel.cfg.FilteredInstances, host) {
			sel.record(cycleID, c, reasonFilteredHost)
			continue
		}

		if reason, skip := sel.filt.Skip(c.Post); skip {
			sel.record(cycleID, c, reason)
			continue
		}

		outcome := sel.pub.Publish(ctx, c.Post)
		if !outcome.Success {
			sel.record(cycleID, c, outcome.Reason)
			continue
		}

		published := c
		published.Post = outcome.Post
		sel.budget.Consume(s)
		sel.tracker.Record(published, s)
		if sel.persist != nil {
			sel.persist(s)
		}
		sel.record(cycleID, published, "admitted")
		admitted++
		sourceAdmitted[c.Origin]++
	}

	return Summary{
		Admitted:   admitted,
		Considered: len(candidates),
		DayCount:   s.DayCount,
		DayCap:     sel.budgetCaps.daily,
		HourCount:  s.HourCount,
		HourCap:    sel.budgetCaps.hourly,
	}
}

func (sel *Selector) perSourceLimit(origin string) (int, bool) {
	if origin == model.LocalOrigin {
		return sel.cfg.LocalTimelineBoostLimit, true
	}
	for _, sub := range sel.cfg.SubscribedInstances {
		if sub.Host == origin {
			return sub.BoostLimit, true
		}
	}
	return 0, false
}

func (sel *Selector) record(cycleID string, c model.Candidate, reason string) {
	if sel.history != nil {
		sel.history.Record(cycleID, c.Post.ID, c.Origin, reason, c.RawScore)
	}
	slog.Debug("candidate decision", "cycle_id", cycleID, "post_id", c.Post.ID, "origin", c.Origin, "reason", reason)
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
