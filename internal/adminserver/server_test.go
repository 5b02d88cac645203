package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goingdark-social/boostbot/internal/history"
	"github.com/goingdark-social/boostbot/internal/selector"
)

type fakeHistoryReader struct {
	entries []history.Entry
	err     error
}

func (f *fakeHistoryReader) Recent(limit int) ([]history.Entry, error) {
	return f.entries, f.err
}

func TestHealthzReturnsOK(t *testing.T) {
	s := New(":0", &fakeHistoryReader{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReturnsLatestSummary(t *testing.T) {
	s := New(":0", &fakeHistoryReader{})
	s.SetLastSummary(selector.Summary{Admitted: 3, Considered: 10})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var sum selector.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Admitted)
	assert.Equal(t, 10, sum.Considered)
}

func TestHistoryReturnsEntries(t *testing.T) {
	s := New(":0", &fakeHistoryReader{entries: []history.Entry{{PostID: "p1", Reason: "admitted"}}})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var entries []history.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "p1", entries[0].PostID)
}

func TestHistoryErrorReturns500(t *testing.T) {
	s := New(":0", &fakeHistoryReader{err: assert.AnError})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
