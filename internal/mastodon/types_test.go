package mastodon

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexIntDecodesNumberStringAndNull(t *testing.T) {
	cases := []struct {
		name string
		json string
		want int
	}{
		{"number", `{"reblogs_count": 5}`, 5},
		{"numeric string", `{"reblogs_count": "7"}`, 7},
		{"null", `{"reblogs_count": null}`, 0},
		{"absent", `{}`, 0},
		{"non-numeric string", `{"reblogs_count": "not-a-number"}`, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var s Status
			require.NoError(t, json.Unmarshal([]byte(c.json), &s))
			assert.Equal(t, c.want, int(s.ReblogsCount))
		})
	}
}

func TestParsedCreatedAtAcceptsRFC3339AndBareDatetime(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339", "2024-01-02T15:04:05Z", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"bare T separator", "2024-01-02T15:04:05", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"bare space separator", "2024-01-02 15:04:05", time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)},
		{"absent", "", time.Time{}},
		{"unparsable", "not-a-date", time.Time{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := Status{CreatedAt: c.in}
			assert.True(t, s.ParsedCreatedAt().Equal(c.want))
		})
	}
}
