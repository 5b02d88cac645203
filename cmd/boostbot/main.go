// boostbot periodically selects posts from subscribed Mastodon-compatible
// hosts and a local timeline and republishes the highest-scoring ones
// through a controlled account, under rate and diversity limits.
//
// Usage:
//
//	export HYPE_AUTH_PATH=auth.yaml
//	export HYPE_SETTINGS_PATH=settings.yaml
//	./boostbot
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/goingdark-social/boostbot/internal/adminserver"
	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/diversity"
	"github.com/goingdark-social/boostbot/internal/filter"
	"github.com/goingdark-social/boostbot/internal/history"
	"github.com/goingdark-social/boostbot/internal/publisher"
	"github.com/goingdark-social/boostbot/internal/ratebudget"
	"github.com/goingdark-social/boostbot/internal/registry"
	"github.com/goingdark-social/boostbot/internal/scheduler"
	"github.com/goingdark-social/boostbot/internal/scoring"
	"github.com/goingdark-social/boostbot/internal/selector"
	"github.com/goingdark-social/boostbot/internal/source"
	"github.com/goingdark-social/boostbot/internal/state"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("starting boostbot")

	// ─── Configuration ────────────────────────────────────────────────────
	authPath := getenv("HYPE_AUTH_PATH", "auth.yaml")
	settingsPath := getenv("HYPE_SETTINGS_PATH", "settings.yaml")
	cfg, err := config.Load(authPath, settingsPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if lvl, ok := parseLevel(cfg.LogLevel); ok {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
	}
	slog.Info("config loaded",
		"server", cfg.BotServer,
		"interval", cfg.Interval,
		"subscribed_instances", len(cfg.SubscribedInstances),
		"local_timeline_enabled", cfg.LocalTimelineEnabled,
	)

	// ─── History store (audit log) ───────────────────────────────────────
	hist, err := history.Open(cfg.HistoryDatabaseURL)
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		os.Exit(1)
	}
	defer hist.Close()
	if err := hist.Migrate(); err != nil {
		slog.Error("history migration failed", "err", err)
		os.Exit(1)
	}

	// ─── Durable state (C1) ──────────────────────────────────────────────
	st := state.Load(cfg.StatePath, cfg.SeenCacheSize)

	// ─── Host client registry (C10) ──────────────────────────────────────
	reg := registry.New(cfg.BotServer, cfg.BotAccessToken)

	// ─── Component wiring ─────────────────────────────────────────────────
	src := source.New(cfg, reg)
	filt := filter.New(cfg)
	scorer := scoring.New(cfg)
	tracker := diversity.New(cfg)
	budget := ratebudget.New(cfg.DailyPublicCap, cfg.PerHourPublicCap)
	pub := publisher.New(reg.Publishing(), cfg.FederateMissingStatuses)
	sel := selector.New(cfg, src, filt, scorer, tracker, budget, cfg.DailyPublicCap, cfg.PerHourPublicCap, pub, hist)
	sel.SetPersist(func(s *state.State) { state.Save(cfg.StatePath, s) })

	admin := adminserver.New(cfg.AdminListenAddr, hist)
	sched := scheduler.New(cfg, sel, st, cfg.StatePath, admin.SetLastSummary)

	// ─── Graceful shutdown ────────────────────────────────────────────────
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go admin.Start(ctx)

	sched.Start(ctx) // blocks until ctx is cancelled

	slog.Info("boostbot stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(s string) (slog.Level, bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, false
	}
	return lvl, true
}
