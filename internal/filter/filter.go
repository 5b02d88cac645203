// Package filter implements the Content Filter (C4): policy-driven skip
// decisions based on media, sensitivity, language, and engagement floors.
package filter

import (
	"strings"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/model"
	"github.com/goingdark-social/boostbot/internal/textextract"
)

// Reason codes, matching the stable operational-triage vocabulary.
const (
	ReasonRequireMedia    = "require-media"
	ReasonSensitive       = "sensitive"
	ReasonLanguage        = "language"
	ReasonEngagementFloor = "engagement-floor"
)

// Filter evaluates C4's policy against a Post. It owns the (expensive to
// construct) language detector, built once and reused across the process.
type Filter struct {
	cfg      *config.Config
	detector lingua.LanguageDetector
}

// New builds a Filter from cfg. When cfg.UseLanguageDetection is set, the
// statistical language detector is built eagerly over every language
// lingua-go ships so any allowlisted code can be recognized; construction
// is a one-time process-startup cost. Otherwise no detector is built.
func New(cfg *config.Config) *Filter {
	f := &Filter{cfg: cfg}
	if cfg.UseLanguageDetection {
		f.detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()
	}
	return f
}

// Skip returns ("", false) when the post passes every configured filter,
// or (reasonCode, true) for the first filter it fails, in the order
// required media, sensitivity, language, then the engagement floors.
func (f *Filter) Skip(p model.Post) (reason string, skip bool) {
	cfg := f.cfg

	if cfg.RequireMedia && p.MediaCount == 0 {
		return ReasonRequireMedia, true
	}

	if cfg.SkipSensitiveWithoutCW && p.Sensitive && strings.TrimSpace(p.SpoilerText) == "" {
		return ReasonSensitive, true
	}

	if len(cfg.LanguagesAllowlist) > 0 && !f.languageAllowed(p) {
		return ReasonLanguage, true
	}

	if p.ReblogsCount < cfg.MinReblogs {
		return ReasonEngagementFloor, true
	}
	if p.FavouritesCount < cfg.MinFavourites {
		return ReasonEngagementFloor, true
	}
	if p.RepliesCount < cfg.MinReplies {
		return ReasonEngagementFloor, true
	}

	return "", false
}

// languageAllowed resolves the open question on language detection: a
// supplied language field is trusted as-is; otherwise, when detection is
// enabled, the plain-text content is statistically classified and
// considered unreliable (and therefore not allowed) below a minimum
// content length.
func (f *Filter) languageAllowed(p model.Post) bool {
	lang := strings.ToLower(strings.TrimSpace(p.Language))
	if lang != "" {
		return containsFold(f.cfg.LanguagesAllowlist, lang)
	}

	if f.detector == nil {
		return false
	}

	text := textextract.PlainText(p.Content)
	if utf8.RuneCountInString(text) < f.cfg.MinDetectableContentChars {
		return false
	}

	detected, ok := f.detector.DetectLanguageOf(text)
	if !ok {
		return false
	}
	code := strings.ToLower(detected.IsoCode639_1().String())
	return containsFold(f.cfg.LanguagesAllowlist, code)
}

func containsFold(list []string, target string) bool {
	for _, v := range list {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
