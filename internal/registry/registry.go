// Package registry implements the Host Client Registry (C10): per-host
// unauthenticated clients with persisted app credentials, plus the
// process-wide authenticated client for the publishing host.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/time/rate"

	"github.com/goingdark-social/boostbot/internal/mastodon"
)

// credentialDir is where per-host app credentials are persisted, one JSON
// file per host, mirroring the original bot's secrets/{host}_clientcred
// convention.
const credentialDir = "secrets"

// defaultRatePerSecond paces outbound requests to any single host to at
// most this many requests per second, with a burst allowance of
// defaultBurst, independent of
// the host's own 429 responses.
const defaultRatePerSecond = 2.0
const defaultBurst = 4

// Registry lazily constructs and caches one Client per host.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*mastodon.Client

	publishing     *mastodon.Client
	publishingHost string
}

// New returns a Registry whose authenticated, process-wide client targets
// the publishing host with the given access token.
func New(publishingHost, accessToken string) *Registry {
	return &Registry{
		clients:        make(map[string]*mastodon.Client),
		publishing:     mastodon.New(publishingHost, accessToken, rate.NewLimiter(defaultRatePerSecond, defaultBurst)),
		publishingHost: publishingHost,
	}
}

// Publishing returns the singleton authenticated client for the publishing
// host, used by the Publisher (C8) and by local-timeline ingestion.
func (r *Registry) Publishing() *mastodon.Client {
	return r.publishing
}

// ClientFor returns a minimally-configured, unauthenticated client for the
// given remote host, constructing and caching it on first use. If a
// persisted app credential exists, it is loaded; otherwise a new
// application is registered with the host and the credential persisted so
// subsequent runs reuse it.
func (r *Registry) ClientFor(ctx context.Context, host string) *mastodon.Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[host]; ok {
		return c
	}

	if _, err := r.loadOrRegisterCredential(ctx, host); err != nil {
		// Trending fetches work fine unauthenticated on most hosts; a failed
		// registration just means we proceed without app credentials.
		slog.Warn("app registration failed, continuing unauthenticated", "host", host, "err", err)
	}

	c := mastodon.New(host, "", rate.NewLimiter(defaultRatePerSecond, defaultBurst))
	r.clients[host] = c
	return c
}

func (r *Registry) loadOrRegisterCredential(ctx context.Context, host string) (mastodon.App, error) {
	path := credentialPath(host)

	if data, err := os.ReadFile(path); err == nil {
		var app mastodon.App
		if err := json.Unmarshal(data, &app); err == nil {
			return app, nil
		}
		slog.Warn("app credential file malformed, re-registering", "host", host, "path", path)
	}

	anon := mastodon.New(host, "", rate.NewLimiter(defaultRatePerSecond, defaultBurst))
	app, err := anon.RegisterApp(ctx, "boostbot", "urn:ietf:wg:oauth:2.0:oob", "read")
	if err != nil {
		return mastodon.App{}, err
	}

	if err := persistCredential(path, app); err != nil {
		slog.Warn("failed to persist app credential", "host", host, "path", path, "err", err)
	}
	return app, nil
}

func persistCredential(path string, app mastodon.App) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	data, err := json.MarshalIndent(app, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

func credentialPath(host string) string {
	return filepath.Join(credentialDir, host+"_clientcred.json")
}
