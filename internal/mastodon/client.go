// Package mastodon is a thin HTTP client for the Mastodon-compatible REST
// API surface the curation engine needs: trending statuses, the local
// timeline, reblogging, search, and app registration.
package mastodon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the publishing host does not know a status
// (HTTP 404 on reblog), triggering the publisher's federation fallback.
var ErrNotFound = errors.New("status not found on host")

// ErrUnauthorized is returned when a call requires a token scope the
// configured access token lacks (HTTP 401/403).
var ErrUnauthorized = errors.New("unauthorized: missing token scope")

// errRateLimited signals an HTTP 429; callers back off and retry once.
type errRateLimited struct {
	RetryAfter time.Duration
}

func (e *errRateLimited) Error() string {
	return fmt.Sprintf("rate limited by host; retry after %s", e.RetryAfter.Round(time.Second))
}

// rateLimitRetryMax caps how long a single call will sleep after a 429
// before its one retry; a longer Retry-After is clamped to this value.
const rateLimitRetryMax = 5 * time.Minute

// Client is a per-host REST client. AccessToken is empty for the
// unauthenticated clients C3 uses against subscribed hosts; it is set for
// the singleton client authenticated against the publishing host.
type Client struct {
	Host        string
	AccessToken string

	http    *http.Client
	limiter *rate.Limiter
}

// New returns a client for host. limiter paces outbound requests to this
// host; pass nil for no local pacing beyond the host's own 429 responses.
func New(host, accessToken string, limiter *rate.Limiter) *Client {
	return &Client{
		Host:        host,
		AccessToken: accessToken,
		http:        &http.Client{Timeout: 15 * time.Second},
		limiter:     limiter,
	}
}

// TrendingStatuses fetches GET /api/v1/trends/statuses?limit=N.
func (c *Client) TrendingStatuses(ctx context.Context, limit int) ([]Status, error) {
	params := url.Values{"limit": {strconv.Itoa(limit)}}
	var statuses []Status
	if err := c.doGet(ctx, "/api/v1/trends/statuses", params, &statuses); err != nil {
		return nil, fmt.Errorf("trending statuses: %w", err)
	}
	return statuses, nil
}

// TimelineLocal fetches GET /api/v1/timelines/public?local=true&limit=N.
func (c *Client) TimelineLocal(ctx context.Context, limit int) ([]Status, error) {
	params := url.Values{"local": {"true"}, "limit": {strconv.Itoa(limit)}}
	var statuses []Status
	if err := c.doGet(ctx, "/api/v1/timelines/public", params, &statuses); err != nil {
		return nil, fmt.Errorf("local timeline: %w", err)
	}
	return statuses, nil
}

// StatusReblog reblogs the status identified by id via
// POST /api/v1/statuses/{id}/reblog. Returns ErrNotFound when the host
// responds 404 (status unknown locally) so the publisher can decide
// whether to attempt federation.
func (c *Client) StatusReblog(ctx context.Context, id string) (Status, error) {
	var reblogged Status
	err := c.doPost(ctx, fmt.Sprintf("/api/v1/statuses/%s/reblog", url.PathEscape(id)), nil, &reblogged)
	if err != nil {
		return Status{}, err
	}
	if reblogged.Reblog != nil {
		return *reblogged.Reblog, nil
	}
	return reblogged, nil
}

// SearchStatuses calls GET /api/v2/search?q=...&type=statuses&resolve=...
// Returns ErrUnauthorized when the token lacks the scope search requires.
func (c *Client) SearchStatuses(ctx context.Context, query string, resolve bool) ([]Status, error) {
	params := url.Values{
		"q":       {query},
		"type":    {"statuses"},
		"resolve": {strconv.FormatBool(resolve)},
	}
	var result SearchResult
	if err := c.doGet(ctx, "/api/v2/search", params, &result); err != nil {
		return nil, err
	}
	return result.Statuses, nil
}

// RegisterApp registers a new OAuth application via POST /api/v1/apps,
// used by the host client registry the first time a host is seen.
func (c *Client) RegisterApp(ctx context.Context, clientName, redirectURI, scopes string) (App, error) {
	body := url.Values{
		"client_name":   {clientName},
		"redirect_uris": {redirectURI},
		"scopes":        {scopes},
	}
	var app App
	if err := c.doFormPost(ctx, "/api/v1/apps", body, &app); err != nil {
		return App{}, fmt.Errorf("register app: %w", err)
	}
	return app, nil
}

// ─── transport internals ───────────────────────────────────────────────────

func (c *Client) doGet(ctx context.Context, path string, params url.Values, out interface{}) error {
	rawURL := "https://" + c.Host + path
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create GET request: %w", err)
	}
	return c.send(ctx, req, out)
}

func (c *Client) doPost(ctx context.Context, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = strings.NewReader(string(encoded))
		contentType = "application/json"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+c.Host+path, reader)
	if err != nil {
		return fmt.Errorf("create POST request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.send(ctx, req, out)
}

func (c *Client) doFormPost(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+c.Host+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create POST request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, req, out)
}

func (c *Client) send(ctx context.Context, req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "boostbot/1.0 (+https://github.com/goingdark-social/boostbot)")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	err := c.doRequest(req, out)
	var rl *errRateLimited
	if errors.As(err, &rl) {
		wait := rl.RetryAfter
		if wait > rateLimitRetryMax {
			wait = rateLimitRetryMax
		}
		slog.Warn("host rate limited, backing off", "host", c.Host, "path", req.URL.Path, "retry_after", wait.Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		err = c.doRequest(req, out)
	}
	return err
}

func (c *Client) doRequest(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &errRateLimited{RetryAfter: parseRetryAfter(resp)}
	}
	if resp.StatusCode >= 400 {
		var eb ErrorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Error != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, eb.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// parseRetryAfter derives the 429 backoff duration from response headers,
// checking Retry-After (seconds) first, then X-RateLimit-Reset (RFC-3339).
func parseRetryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			if d := time.Until(ts); d > 0 {
				return d
			}
		}
	}
	return 30 * time.Second
}
