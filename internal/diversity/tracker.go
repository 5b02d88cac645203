// Package diversity implements the Diversity Tracker (C6): seen-post,
// per-author, and per-hashtag bookkeeping that keeps a single run from
// over-representing one author or one topic.
package diversity

import (
	"strings"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/model"
	"github.com/goingdark-social/boostbot/internal/state"
)

// Reason codes for the blocked checks, matching the stable vocabulary.
const (
	ReasonAlreadySeen  = "already-seen"
	ReasonAuthorLimit  = "author-limit"
	ReasonHashtagLimit = "hashtag-limit"
)

// Tracker evaluates C6's three diversity checks against a cycle's
// accumulated State and run-local hashtag tally.
type Tracker struct {
	cfg *config.Config

	// HashtagsBoostedThisRun is the cycle-local multiset of lowercased
	// hashtag names boosted so far in the current run. It is owned by the
	// engine, reset at the top of each cycle, and never persisted.
	HashtagsBoostedThisRun map[string]int
}

// New returns a Tracker bound to cfg with a freshly-reset run-local tally.
func New(cfg *config.Config) *Tracker {
	return &Tracker{cfg: cfg, HashtagsBoostedThisRun: map[string]int{}}
}

// Reset clears the run-local hashtag tally; called at the top of a cycle.
func (t *Tracker) Reset() {
	t.HashtagsBoostedThisRun = map[string]int{}
}

// Blocked returns the first diversity reason the candidate trips, in the
// order seen/reblogged, author limit, hashtag limit, or ("", false) if the
// candidate clears all three.
func (t *Tracker) Blocked(c model.Candidate, s *state.State) (reason string, blocked bool) {
	if s.Seen.Contains(c.Post.ID) || s.Seen.Contains(c.Post.URI) {
		return ReasonAlreadySeen, true
	}
	if c.Post.Reblogged {
		return ReasonAlreadySeen, true
	}

	if t.cfg.AuthorDiversityEnforced {
		if s.AuthorsToday[c.Post.Acct] >= t.cfg.MaxBoostsPerAuthorPerDay {
			return ReasonAuthorLimit, true
		}
	}

	if t.cfg.HashtagDiversityEnforced {
		for _, tag := range c.Post.Tags {
			if t.HashtagsBoostedThisRun[strings.ToLower(tag)] >= t.cfg.MaxBoostsPerHashtagPerRun {
				return ReasonHashtagLimit, true
			}
		}
	}

	return "", false
}

// Record updates seen, author, and hashtag bookkeeping after a successful
// publish. id and uri are both inserted into the seen cache so a later
// lookup can match on either key.
func (t *Tracker) Record(c model.Candidate, s *state.State) {
	s.Seen.Add(c.Post.ID)
	s.Seen.Add(c.Post.URI)
	s.AuthorsToday[c.Post.Acct]++
	for _, tag := range c.Post.Tags {
		t.HashtagsBoostedThisRun[strings.ToLower(tag)]++
	}
}
