// Package config loads the curation agent's configuration from two YAML
// documents (an auth document and a settings document) with environment
// variable overrides, matching the precedence rule: environment variable >
// settings document > built-in default.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goingdark-social/boostbot/internal/model"
)

// envPrefix is prepended to the uppercased settings key to form the
// environment-variable override name, e.g. interval -> HYPE_INTERVAL.
const envPrefix = "HYPE_"

// Config is the flat runtime configuration consumed by every component.
type Config struct {
	// Auth document (required).
	BotServer      string
	BotAccessToken string

	// Scheduling.
	Interval time.Duration
	LogLevel string

	// Candidate sources.
	SubscribedInstances []model.HostSubscription
	FilteredInstances   []string

	// Rate ceilings.
	DailyPublicCap   int
	PerHourPublicCap int
	MaxBoostsPerRun  int

	// Diversity.
	MaxBoostsPerAuthorPerDay  int
	AuthorDiversityEnforced   bool
	MaxBoostsPerHashtagPerRun int
	HashtagDiversityEnforced  bool

	// Filters.
	RequireMedia           bool
	SkipSensitiveWithoutCW bool
	LanguagesAllowlist     []string
	MinReblogs             int
	MinFavourites          int
	MinReplies             int

	// Scoring.
	PreferMedia       float64
	HashtagScores     map[string]float64
	RelatedHashtags   map[string]map[string]float64
	SpamEmojiThreshold int
	SpamEmojiPenalty   float64
	SpamLinkPenalty    float64
	MinScoreThreshold  float64

	// Age decay.
	AgeDecayEnabled       bool
	AgeDecayHalfLifeHours float64

	// Federation.
	FederateMissingStatuses bool

	// Local timeline ingestion.
	LocalTimelineEnabled       bool
	LocalTimelineFetchLimit    int
	LocalTimelineBoostLimit    int
	LocalTimelineMinEngagement int

	// Persistence.
	StatePath     string
	SeenCacheSize int

	// Language detection (resolves spec open question #1).
	UseLanguageDetection       bool
	MinDetectableContentChars int

	// Instance rotation (supplemented feature, default off).
	RotateInstances bool

	// Ambient: history audit log and admin HTTP surface.
	HistoryDatabaseURL string
	AdminListenAddr    string
}

// authDocument is the shape of the auth YAML document.
type authDocument struct {
	BotAccount struct {
		Server      string `yaml:"server"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"bot_account"`
}

// settingsDocument is the shape of the settings YAML document. Every field
// is a pointer or nil-able collection so presence can be distinguished from
// zero-value, which matters for the env>document>default precedence chain.
type settingsDocument struct {
	Interval                   *int                          `yaml:"interval"`
	LogLevel                   *string                       `yaml:"log_level"`
	SubscribedInstances        map[string]interface{}        `yaml:"subscribed_instances"`
	FilteredInstances          []string                      `yaml:"filtered_instances"`
	DailyPublicCap             *int                          `yaml:"daily_public_cap"`
	PerHourPublicCap           *int                          `yaml:"per_hour_public_cap"`
	MaxBoostsPerRun            *int                          `yaml:"max_boosts_per_run"`
	MaxBoostsPerAuthorPerDay   *int                          `yaml:"max_boosts_per_author_per_day"`
	AuthorDiversityEnforced    *bool                         `yaml:"author_diversity_enforced"`
	MaxBoostsPerHashtagPerRun  *int                          `yaml:"max_boosts_per_hashtag_per_run"`
	HashtagDiversityEnforced   *bool                         `yaml:"hashtag_diversity_enforced"`
	RequireMedia               *bool                        `yaml:"require_media"`
	SkipSensitiveWithoutCW      *bool                        `yaml:"skip_sensitive_without_cw"`
	LanguagesAllowlist          []string                     `yaml:"languages_allowlist"`
	MinReblogs                  *int                         `yaml:"min_reblogs"`
	MinFavourites                *int                        `yaml:"min_favourites"`
	MinReplies                   *int                        `yaml:"min_replies"`
	PreferMedia                   interface{}                `yaml:"prefer_media"` // float or bool
	HashtagScores                  map[string]float64        `yaml:"hashtag_scores"`
	RelatedHashtags                 map[string]map[string]float64 `yaml:"related_hashtags"`
	SpamEmojiThreshold                *int                     `yaml:"spam_emoji_threshold"`
	SpamEmojiPenalty                   *float64                `yaml:"spam_emoji_penalty"`
	SpamLinkPenalty                     *float64               `yaml:"spam_link_penalty"`
	MinScoreThreshold                    *float64              `yaml:"min_score_threshold"`
	AgeDecayEnabled                       *bool                `yaml:"age_decay_enabled"`
	AgeDecayHalfLifeHours                  *float64            `yaml:"age_decay_half_life_hours"`
	FederateMissingStatuses                 *bool              `yaml:"federate_missing_statuses"`
	LocalTimelineEnabled                      *bool            `yaml:"local_timeline_enabled"`
	LocalTimelineFetchLimit                    *int           `yaml:"local_timeline_fetch_limit"`
	LocalTimelineBoostLimit                     *int          `yaml:"local_timeline_boost_limit"`
	LocalTimelineMinEngagement                   *int         `yaml:"local_timeline_min_engagement"`
	StatePath                                      *string    `yaml:"state_path"`
	SeenCacheSize                                    *int     `yaml:"seen_cache_size"`
	UseLanguageDetection                              *bool  `yaml:"use_language_detection"`
	RotateInstances                                    *bool `yaml:"rotate_instances"`
}

// Load reads the auth and settings YAML documents, applies environment
// overrides, and returns a fully-populated Config. A missing or invalid
// auth document (or missing required fields within it) is fatal, per
// spec: config errors at startup are unrecoverable.
func Load(authPath, settingsPath string) (*Config, error) {
	auth, err := loadAuth(authPath)
	if err != nil {
		return nil, fmt.Errorf("load auth document: %w", err)
	}

	settings, err := loadSettings(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("load settings document: %w", err)
	}

	cfg := &Config{
		BotServer:      auth.BotAccount.Server,
		BotAccessToken: auth.BotAccount.AccessToken,
	}
	if cfg.BotServer == "" || cfg.BotAccessToken == "" {
		return nil, fmt.Errorf("auth document missing bot_account.server or bot_account.access_token")
	}

	cfg.Interval = resolveDuration("INTERVAL", intPtrMinutes(settings.Interval), 15*time.Minute)
	cfg.LogLevel = resolveString("LOG_LEVEL", settings.LogLevel, "info")

	cfg.SubscribedInstances = resolveSubscriptions(settings.SubscribedInstances)
	cfg.FilteredInstances = resolveStringList("FILTERED_INSTANCES", settings.FilteredInstances, nil)

	cfg.DailyPublicCap = resolveInt("DAILY_PUBLIC_CAP", settings.DailyPublicCap, 48)
	cfg.PerHourPublicCap = resolveInt("PER_HOUR_PUBLIC_CAP", settings.PerHourPublicCap, 4)
	cfg.MaxBoostsPerRun = resolveInt("MAX_BOOSTS_PER_RUN", settings.MaxBoostsPerRun, 4)

	cfg.MaxBoostsPerAuthorPerDay = resolveInt("MAX_BOOSTS_PER_AUTHOR_PER_DAY", settings.MaxBoostsPerAuthorPerDay, 2)
	cfg.AuthorDiversityEnforced = resolveBool("AUTHOR_DIVERSITY_ENFORCED", settings.AuthorDiversityEnforced, true)
	cfg.MaxBoostsPerHashtagPerRun = resolveInt("MAX_BOOSTS_PER_HASHTAG_PER_RUN", settings.MaxBoostsPerHashtagPerRun, 2)
	cfg.HashtagDiversityEnforced = resolveBool("HASHTAG_DIVERSITY_ENFORCED", settings.HashtagDiversityEnforced, true)

	cfg.RequireMedia = resolveBool("REQUIRE_MEDIA", settings.RequireMedia, false)
	cfg.SkipSensitiveWithoutCW = resolveBool("SKIP_SENSITIVE_WITHOUT_CW", settings.SkipSensitiveWithoutCW, true)
	cfg.LanguagesAllowlist = resolveStringList("LANGUAGES_ALLOWLIST", settings.LanguagesAllowlist, nil)
	cfg.MinReblogs = resolveInt("MIN_REBLOGS", settings.MinReblogs, 0)
	cfg.MinFavourites = resolveInt("MIN_FAVOURITES", settings.MinFavourites, 0)
	cfg.MinReplies = resolveInt("MIN_REPLIES", settings.MinReplies, 0)

	cfg.PreferMedia = resolvePreferMedia(settings.PreferMedia)
	cfg.HashtagScores = lowercaseKeys(settings.HashtagScores)
	cfg.RelatedHashtags = lowercaseNestedKeys(settings.RelatedHashtags)
	cfg.SpamEmojiThreshold = resolveInt("SPAM_EMOJI_THRESHOLD", settings.SpamEmojiThreshold, 5)
	cfg.SpamEmojiPenalty = resolveFloat("SPAM_EMOJI_PENALTY", settings.SpamEmojiPenalty, 0.5)
	cfg.SpamLinkPenalty = resolveFloat("SPAM_LINK_PENALTY", settings.SpamLinkPenalty, 0)
	cfg.MinScoreThreshold = resolveFloat("MIN_SCORE_THRESHOLD", settings.MinScoreThreshold, 0)

	cfg.AgeDecayEnabled = resolveBool("AGE_DECAY_ENABLED", settings.AgeDecayEnabled, true)
	cfg.AgeDecayHalfLifeHours = resolveFloat("AGE_DECAY_HALF_LIFE_HOURS", settings.AgeDecayHalfLifeHours, 24)

	cfg.FederateMissingStatuses = resolveBool("FEDERATE_MISSING_STATUSES", settings.FederateMissingStatuses, true)

	cfg.LocalTimelineEnabled = resolveBool("LOCAL_TIMELINE_ENABLED", settings.LocalTimelineEnabled, false)
	cfg.LocalTimelineFetchLimit = resolveInt("LOCAL_TIMELINE_FETCH_LIMIT", settings.LocalTimelineFetchLimit, 20)
	cfg.LocalTimelineBoostLimit = resolveInt("LOCAL_TIMELINE_BOOST_LIMIT", settings.LocalTimelineBoostLimit, 2)
	cfg.LocalTimelineMinEngagement = resolveInt("LOCAL_TIMELINE_MIN_ENGAGEMENT", settings.LocalTimelineMinEngagement, 3)

	cfg.StatePath = resolveString("STATE_PATH", settings.StatePath, "state.json")
	cfg.SeenCacheSize = resolveInt("SEEN_CACHE_SIZE", settings.SeenCacheSize, 6000)

	cfg.UseLanguageDetection = resolveBool("USE_LANGUAGE_DETECTION", settings.UseLanguageDetection, true)
	cfg.MinDetectableContentChars = resolveInt("MIN_DETECTABLE_CONTENT_CHARS", nil, 20)

	cfg.RotateInstances = resolveBool("ROTATE_INSTANCES", settings.RotateInstances, false)

	cfg.HistoryDatabaseURL = resolveString("HISTORY_DATABASE_URL", nil, "boostbot_history.db")
	cfg.AdminListenAddr = resolveString("ADMIN_LISTEN_ADDR", nil, ":8090")

	return cfg, nil
}

func loadAuth(path string) (*authDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc authDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &doc, nil
}

func loadSettings(path string) (*settingsDocument, error) {
	doc := &settingsDocument{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// The settings document is entirely optional; every key defaults.
			return doc, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return doc, nil
}

// resolveSubscriptions converts the settings document's subscribed_instances
// map into HostSubscription values, accepting both the legacy "host: limit"
// form and the composite "host: {fetch_limit, boost_limit}" form.
func resolveSubscriptions(raw map[string]interface{}) []model.HostSubscription {
	if env := os.Getenv(envPrefix + "SUBSCRIBED_INSTANCES"); env != "" {
		raw = parseSubscriptionsEnv(env)
	}
	subs := make([]model.HostSubscription, 0, len(raw))
	for host, v := range raw {
		sub := model.HostSubscription{Host: host, FetchLimit: 20, BoostLimit: 1}
		switch val := v.(type) {
		case int:
			sub.FetchLimit, sub.BoostLimit = val, val
		case float64:
			n := int(val)
			sub.FetchLimit, sub.BoostLimit = n, n
		case map[string]interface{}:
			if fl, ok := val["fetch_limit"]; ok {
				sub.FetchLimit = toInt(fl, sub.FetchLimit)
			}
			if bl, ok := val["boost_limit"]; ok {
				sub.BoostLimit = toInt(bl, sub.BoostLimit)
			}
		}
		sub.FetchLimit = sub.ClampFetchLimit()
		if sub.BoostLimit < 1 {
			sub.BoostLimit = 1
		}
		subs = append(subs, sub)
	}
	return subs
}

func toInt(v interface{}, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// parseSubscriptionsEnv parses a comma-separated "host[:fetch[:boost]]" list
// for the HYPE_SUBSCRIBED_INSTANCES env override.
func parseSubscriptionsEnv(s string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		host := fields[0]
		entry := map[string]interface{}{}
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil {
				entry["fetch_limit"] = n
			}
		}
		if len(fields) > 2 {
			if n, err := strconv.Atoi(fields[2]); err == nil {
				entry["boost_limit"] = n
			}
		} else if fl, ok := entry["fetch_limit"]; ok {
			entry["boost_limit"] = fl
		}
		out[host] = entry
	}
	return out
}

func resolvePreferMedia(v interface{}) float64 {
	env := os.Getenv(envPrefix + "PREFER_MEDIA")
	if env != "" {
		if f, err := strconv.ParseFloat(env, 64); err == nil {
			return f
		}
		if b, ok := parseBool(env); ok {
			if b {
				return 1
			}
			return 0
		}
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func lowercaseKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

func lowercaseNestedKeys(m map[string]map[string]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(m))
	for k, inner := range m {
		lowered := make(map[string]float64, len(inner))
		for ik, iv := range inner {
			lowered[strings.ToLower(ik)] = iv
		}
		out[strings.ToLower(k)] = lowered
	}
	return out
}

func intPtrMinutes(p *int) *int { return p }

// ─── env/document/default resolution helpers ──────────────────────────────

func resolveString(key string, doc *string, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	if doc != nil {
		return *doc
	}
	return fallback
}

func resolveBool(key string, doc *bool, fallback bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, ok := parseBool(v); ok {
			return b
		}
		warnInvalidEnvOverride(key, v)
	}
	if doc != nil {
		return *doc
	}
	return fallback
}

func resolveInt(key string, doc *int, fallback int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		warnInvalidEnvOverride(key, v)
	}
	if doc != nil {
		return *doc
	}
	return fallback
}

func resolveFloat(key string, doc *float64, fallback float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		warnInvalidEnvOverride(key, v)
	}
	if doc != nil {
		return *doc
	}
	return fallback
}

func resolveDuration(key string, docMinutes *int, fallback time.Duration) time.Duration {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Minute
		}
		warnInvalidEnvOverride(key, v)
	}
	if docMinutes != nil {
		return time.Duration(*docMinutes) * time.Minute
	}
	return fallback
}

// warnInvalidEnvOverride logs the documented warning for an env override
// that fails to parse (spec §6: "Invalid env overrides fall back to the
// next source and emit a warning").
func warnInvalidEnvOverride(key, value string) {
	slog.Warn("invalid env override, falling back to next source", "key", envPrefix+key, "value", value)
}

func resolveStringList(key string, doc []string, fallback []string) []string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return parseStringList(v)
	}
	if doc != nil {
		return doc
	}
	return fallback
}

func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBool accepts the boolean vocabulary documented for env overrides:
// true/1/yes/on and false/0/no/off (case-insensitive). ok is false when the
// string matches neither set, signalling the caller to fall back.
func parseBool(s string) (value bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}
