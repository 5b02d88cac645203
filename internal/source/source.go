// Package source implements the Candidate Source (C3): fetching trending
// posts from each subscribed host plus, optionally, the publishing host's
// own local timeline.
package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goingdark-social/boostbot/internal/config"
	"github.com/goingdark-social/boostbot/internal/mastodon"
	"github.com/goingdark-social/boostbot/internal/model"
	"github.com/goingdark-social/boostbot/internal/registry"
)

// ClientFactory resolves an unauthenticated client for a given host; the
// registry satisfies this.
type ClientFactory interface {
	ClientFor(ctx context.Context, host string) *mastodon.Client
}

// Source fetches candidates from every configured origin. Per-host fetches
// run concurrently and are joined before returning, per the spec's
// explicit allowance for parallel candidate fetching.
type Source struct {
	cfg        *config.Config
	registry   ClientFactory
	publishing *mastodon.Client
}

// New returns a Source bound to cfg, resolving per-host clients through
// reg and fetching the local timeline through the publishing client.
func New(cfg *config.Config, reg *registry.Registry) *Source {
	return &Source{cfg: cfg, registry: reg, publishing: reg.Publishing()}
}

// Fetch returns every candidate this cycle should consider: one slice per
// subscribed host (or, if rotate_instances is enabled, just the next host
// in rotation) plus the local timeline when enabled. A single host's
// fetch error is logged and contributes zero candidates; other hosts
// still contribute.
func (s *Source) Fetch(ctx context.Context, lastInstanceIdx int) (candidates []model.Candidate, nextInstanceIdx int) {
	hosts := s.cfg.SubscribedInstances
	nextInstanceIdx = lastInstanceIdx

	if s.cfg.RotateInstances && len(hosts) > 0 {
		idx := lastInstanceIdx % len(hosts)
		hosts = hosts[idx : idx+1]
		nextInstanceIdx = (idx + 1) % len(s.cfg.SubscribedInstances)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var out []model.Candidate

	for _, sub := range hosts {
		wg.Add(1)
		go func(sub model.HostSubscription) {
			defer wg.Done()
			fetched := s.fetchHost(ctx, sub)
			mu.Lock()
			out = append(out, fetched...)
			mu.Unlock()
		}(sub)
	}

	if s.cfg.LocalTimelineEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fetched := s.fetchLocal(ctx)
			mu.Lock()
			out = append(out, fetched...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return out, nextInstanceIdx
}

func (s *Source) fetchHost(ctx context.Context, sub model.HostSubscription) []model.Candidate {
	client := s.registry.ClientFor(ctx, sub.Host)
	statuses, err := client.TrendingStatuses(ctx, sub.ClampFetchLimit())
	if err != nil {
		slog.Error("candidate fetch failed", "host", sub.Host, "err", err)
		return nil
	}
	out := make([]model.Candidate, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, model.Candidate{Post: toModelPost(st), Origin: sub.Host})
	}
	return out
}

func (s *Source) fetchLocal(ctx context.Context) []model.Candidate {
	statuses, err := s.publishing.TimelineLocal(ctx, s.cfg.LocalTimelineFetchLimit)
	if err != nil {
		slog.Error("local timeline fetch failed", "err", err)
		return nil
	}

	today := time.Now().UTC().Format("2006-01-02")
	out := make([]model.Candidate, 0, len(statuses))
	for _, st := range statuses {
		p := toModelPost(st)
		if p.CreatedAt.UTC().Format("2006-01-02") != today {
			continue
		}
		if p.ReblogsCount+p.FavouritesCount+p.RepliesCount < s.cfg.LocalTimelineMinEngagement {
			continue
		}
		out = append(out, model.Candidate{Post: p, Origin: model.LocalOrigin})
	}
	return out
}

func toModelPost(s mastodon.Status) model.Post {
	tags := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		tags = append(tags, t.Name)
	}
	return model.Post{
		ID:              s.ID,
		URI:             s.URI,
		URL:             s.URL,
		Acct:            s.Account.Acct,
		CreatedAt:       s.ParsedCreatedAt(),
		ReblogsCount:    int(s.ReblogsCount),
		FavouritesCount: int(s.FavouritesCount),
		RepliesCount:    int(s.RepliesCount),
		MediaCount:      len(s.MediaAttachments),
		Sensitive:       s.Sensitive,
		SpoilerText:     s.SpoilerText,
		Language:        s.Language,
		Tags:            tags,
		Content:         s.Content,
		Reblogged:       s.Reblogged,
	}
}
