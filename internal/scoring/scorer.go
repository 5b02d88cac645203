// Package scoring implements the Scorer (C5): a deterministic, side-effect
// free real-valued score combining hashtag weights, engagement, a related-
// term bonus, a spam penalty, and multiplicative age decay.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/model"
	"github.com/goingdark-social/boostbot/internal/textextract"
)

// Scorer computes Post scores against a fixed configuration.
type Scorer struct {
	cfg *config.Config
	now func() time.Time
}

// New returns a Scorer bound to cfg, evaluating age decay against the
// current wall-clock time.
func New(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score computes the post's raw score. It is pure: identical (post, cfg)
// pairs always yield identical output, modulo the current-time input to
// age decay.
func (s *Scorer) Score(p model.Post) float64 {
	cfg := s.cfg

	base := s.hashtagTerm(p) +
		s.relatedHashtagBonus(p) +
		engagementTerm(p) +
		mediaBonus(p, cfg.PreferMedia) -
		s.spamPenalty(p)

	if !cfg.AgeDecayEnabled {
		return base
	}
	return base * s.ageDecayFactor(p)
}

func (s *Scorer) hashtagTerm(p model.Post) float64 {
	total := 0.0
	for _, tag := range p.Tags {
		total += s.cfg.HashtagScores[strings.ToLower(tag)]
	}
	return total
}

// relatedHashtagBonus implements: for each configured main hashtag with a
// positive weight that the post does NOT itself carry, scan the post's
// content and tags for any of that main hashtag's configured related
// terms; the first hit contributes weight*multiplier, at most once per
// main hashtag.
func (s *Scorer) relatedHashtagBonus(p model.Post) float64 {
	if len(s.cfg.RelatedHashtags) == 0 {
		return 0
	}

	postTags := make(map[string]struct{}, len(p.Tags))
	for _, t := range p.Tags {
		postTags[strings.ToLower(t)] = struct{}{}
	}
	haystack := strings.ToLower(textextract.PlainText(p.Content))

	total := 0.0
	for main, terms := range s.cfg.RelatedHashtags {
		weight, ok := s.cfg.HashtagScores[main]
		if !ok || weight <= 0 {
			continue
		}
		if _, has := postTags[main]; has {
			continue
		}
		for term, multiplier := range terms {
			if _, tagHit := postTags[strings.ToLower(term)]; tagHit {
				total += weight * multiplier
				break
			}
			if strings.Contains(haystack, strings.ToLower(term)) {
				total += weight * multiplier
				break
			}
		}
	}
	return total
}

func engagementTerm(p model.Post) float64 {
	return 2*math.Log1p(float64(p.ReblogsCount)) +
		1*math.Log1p(float64(p.FavouritesCount)) +
		1.5*math.Log1p(float64(p.RepliesCount))
}

func mediaBonus(p model.Post, preferMedia float64) float64 {
	if p.MediaCount > 0 {
		return preferMedia
	}
	return 0
}

func (s *Scorer) spamPenalty(p model.Post) float64 {
	penalty := 0.0
	emoji := textextract.CountEmoji(p.Content)
	if over := emoji - s.cfg.SpamEmojiThreshold; over > 0 {
		penalty += float64(over) * s.cfg.SpamEmojiPenalty
	}
	if textextract.ContainsLink(p.Content) {
		penalty += s.cfg.SpamLinkPenalty
	}
	return penalty
}

// ageDecayFactor computes 0.5^(age_hours/half_life) for age_hours > 0, and
// 1.0 otherwise. A missing created_at (zero time) is treated as epoch,
// i.e. maximal age and therefore maximal decay.
func (s *Scorer) ageDecayFactor(p model.Post) float64 {
	var ageHours float64
	if !p.HasCreatedAt() {
		ageHours = s.now().UTC().Sub(time.Unix(0, 0).UTC()).Hours()
	} else {
		ageHours = s.now().UTC().Sub(p.CreatedAt.UTC()).Hours()
	}
	if ageHours <= 0 {
		return 1.0
	}
	halfLife := s.cfg.AgeDecayHalfLifeHours
	if halfLife <= 0 {
		return 1.0
	}
	return math.Pow(0.5, ageHours/halfLife)
}

// Normalize linearly maps raw scores into [0,100]. When every score is
// equal, every candidate is assigned 100 rather than dividing by zero.
func Normalize(candidates []model.Candidate) {
	if len(candidates) == 0 {
		return
	}
	min, max := candidates[0].RawScore, candidates[0].RawScore
	for _, c := range candidates {
		if c.RawScore < min {
			min = c.RawScore
		}
		if c.RawScore > max {
			max = c.RawScore
		}
	}
	for i := range candidates {
		if max == min {
			candidates[i].NormalizedScore = 100
			continue
		}
		candidates[i].NormalizedScore = (candidates[i].RawScore - min) / (max - min) * 100
	}
}
