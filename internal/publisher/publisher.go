// Package publisher implements the Publisher (C8): attempts to reblog a
// candidate on the publishing host, falling back to federation-by-search
// when the host does not yet know the post.
package publisher

import (
	"context"
	"errors"

	"github.com/goingdark-social/boostbot/internal/mastodon"
	"github.com/goingdark-social/boostbot/internal/model"
)

// Reason codes for SKIPPED outcomes, matching the stable vocabulary.
const (
	ReasonFederationDisabled  = "federation-disabled"
	ReasonResolveEmpty        = "resolve-empty"
	ReasonReblogAfterResolve  = "reblog-after-resolve"
	ReasonTokenScopeMissing   = "token-scope-missing"
	ReasonResolveRejected     = "resolve-rejected"
	ReasonReblogError         = "reblog-error"
)

// Outcome is the publish protocol's result sum type: either a successful
// publish of a (possibly federated) post, or a skip with a stable reason
// code. The underlying HTTP client's errors are translated into this
// shape at the C8 boundary; callers never see raw transport errors for
// expected outcomes.
type Outcome struct {
	Success bool
	Post    model.Post   // the post actually boosted (may be the federated copy)
	Reason  string       // set when Success is false
}

// Client is the subset of mastodon.Client the Publisher needs, accepted as
// an interface so the reblog/federation protocol can be exercised against
// a fake in tests without any real HTTP traffic.
type Client interface {
	StatusReblog(ctx context.Context, id string) (mastodon.Status, error)
	SearchStatuses(ctx context.Context, query string, resolve bool) ([]mastodon.Status, error)
}

// Publisher attempts to boost candidates on the publishing host.
type Publisher struct {
	client                  Client
	federateMissingStatuses bool
}

// New returns a Publisher that reblogs through client, the publishing
// host's authenticated client.
func New(client Client, federateMissingStatuses bool) *Publisher {
	return &Publisher{client: client, federateMissingStatuses: federateMissingStatuses}
}

// Publish implements the protocol in full: attempt reblog; on not-found,
// optionally search-and-resolve then reblog again.
func (p *Publisher) Publish(ctx context.Context, post model.Post) Outcome {
	reblogged, err := p.client.StatusReblog(ctx, post.ID)
	if err == nil {
		return Outcome{Success: true, Post: toModelPost(reblogged, post)}
	}

	if !errors.Is(err, mastodon.ErrNotFound) {
		return Outcome{Success: false, Reason: ReasonReblogError}
	}

	if !p.federateMissingStatuses {
		return Outcome{Success: false, Reason: ReasonFederationDisabled}
	}

	results, searchErr := p.client.SearchStatuses(ctx, post.URI, true)
	if searchErr != nil {
		if errors.Is(searchErr, mastodon.ErrUnauthorized) {
			return Outcome{Success: false, Reason: ReasonTokenScopeMissing}
		}
		return Outcome{Success: false, Reason: ReasonResolveRejected}
	}
	if len(results) == 0 {
		return Outcome{Success: false, Reason: ReasonResolveEmpty}
	}

	federated := results[0]
	reblogged, err = p.client.StatusReblog(ctx, federated.ID)
	if err != nil {
		return Outcome{Success: false, Reason: ReasonReblogAfterResolve}
	}
	return Outcome{Success: true, Post: toModelPost(reblogged, toModelPost(federated, post))}
}

// toModelPost fills in id/uri/url fields on top of the original candidate
// post, since a reblog response typically carries only the reblogged
// status's own wrapper fields.
func toModelPost(s mastodon.Status, original model.Post) model.Post {
	out := original
	if s.ID != "" {
		out.ID = s.ID
	}
	if s.URI != "" {
		out.URI = s.URI
	}
	if s.URL != "" {
		out.URL = s.URL
	}
	return out
}
