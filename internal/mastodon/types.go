package mastodon

import (
	"encoding/json"
	"strconv"
	"time"
)

// Status mirrors the subset of a Mastodon-compatible API's status object
// that the curation engine consumes.
type Status struct {
	ID              string        `json:"id"`
	URI             string        `json:"uri"`
	URL             string        `json:"url"`
	Account         Account       `json:"account"`
	CreatedAt       string        `json:"created_at"`
	ReblogsCount    flexInt       `json:"reblogs_count"`
	FavouritesCount flexInt       `json:"favourites_count"`
	RepliesCount    flexInt       `json:"replies_count"`
	MediaAttachments []interface{} `json:"media_attachments"`
	Sensitive       bool          `json:"sensitive"`
	SpoilerText     string        `json:"spoiler_text"`
	Language        string        `json:"language"`
	Tags            []Tag         `json:"tags"`
	Content         string        `json:"content"`
	Reblog          *Status       `json:"reblog"`
	Reblogged       bool          `json:"reblogged"`
}

// flexInt decodes a JSON number, a numeric string, or null/absent into an
// int, defaulting to 0 for anything that doesn't parse — some
// Mastodon-compatible APIs serialize counts as strings. Matches the spec's
// documented boundary behavior: missing numeric fields default to 0;
// non-integer strings that parse yield their integer value, otherwise 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == "" {
		*n = 0
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(str)
		if err != nil {
			*n = 0
			return nil
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(v)
	return nil
}

// createdAtLayouts are tried in order against CreatedAt: RFC-3339 (the
// Mastodon API's native format) first, then a couple of bare-datetime
// variants some federated implementations emit without a timezone offset.
var createdAtLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParsedCreatedAt parses CreatedAt, returning the zero Time (treated as
// epoch by the scorer) when the field is absent or unparsable by any known
// layout.
func (s Status) ParsedCreatedAt() time.Time {
	if s.CreatedAt == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Account mirrors the subset of a Mastodon account object consumed here.
type Account struct {
	Acct string `json:"acct"`
}

// Tag is a hashtag attached to a status.
type Tag struct {
	Name string `json:"name"`
}

// App is the result of registering an application with a host, persisted
// so subsequent runs reuse the same client id/secret instead of
// re-registering.
type App struct {
	ID           string `json:"id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// SearchResult is the subset of the search_v2 response used by the
// federation fallback in the publisher.
type SearchResult struct {
	Statuses []Status `json:"statuses"`
}

// ErrorBody is the JSON error envelope a Mastodon-compatible API returns
// on 4xx/5xx responses.
type ErrorBody struct {
	Error string `json:"error"`
}
