package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/api"
	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/lock"
	"github.com/eshaffer321/reconcile/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// These tests run the full stack against a real SQLite file:
// HTTP request → Router → Handlers → Service → Storage → SQLite

func createTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "api_integration.db"))
	require.NoError(t, err)

	svc := service.NewReconcileService(store, lock.NewLocalLocker(), service.Options{
		Matcher:        matcher.DefaultConfig(),
		StorageTimeout: 5 * time.Second,
	}, logging.Discard())

	ts := httptest.NewServer(api.NewServer(api.DefaultConfig(), svc, logging.Discard()).Router())
	t.Cleanup(func() {
		ts.Close()
		_ = store.Close()
	})
	return ts
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestAPI_Integration_HealthCheck(t *testing.T) {
	ts := createTestServer(t)

	var health dto.HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "ok", health.Status)
}

func TestAPI_Integration_ReconcileLifecycle(t *testing.T) {
	ts := createTestServer(t)

	status := postJSON(t, ts.URL+"/api/entries", dto.LoadEntriesRequest{Entries: []dto.EntryInput{
		{ID: "BT-1", Kind: "bank", Date: "2024-02-20", Amount: "-50.00", Description: "Invoice #INV-001 payment"},
		{ID: "INV-001", Kind: "purchase_invoice", Date: "2024-02-20", Amount: "50.00", Description: "Invoice #INV-001"},
		{ID: "BT-2", Kind: "bank", Date: "2024-02-25", Amount: "12.34", Description: "interest"},
	}}, nil)
	require.Equal(t, http.StatusOK, status)

	// Auto pass confirms the obvious pair
	var summary dto.SummaryResponse
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/reconcile", nil, &summary))
	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 1, summary.StillUnmatched)
	require.Len(t, summary.Matches, 1)
	matchID := summary.Matches[0].ID

	// Re-running finds nothing new
	var again dto.SummaryResponse
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/reconcile", nil, &again))
	assert.Equal(t, 0, again.Confirmed)

	var free dto.EntryListResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/entries/unreconciled", &free))
	require.Equal(t, 1, free.Count)
	assert.Equal(t, "BT-2", free.Entries[0].ID)
	assert.Equal(t, "12.34", free.Entries[0].Amount)

	// A manual match over a held entry conflicts
	var apiErr dto.APIError
	status = postJSON(t, ts.URL+"/api/matches", dto.ManualMatchRequest{EntryIDs: []string{"BT-2", "INV-001"}}, &apiErr)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, []string{"INV-001"}, apiErr.EntryIDs)

	// Reverse, then the entry is free again
	var reversed dto.MatchResponse
	require.Equal(t, http.StatusOK, postJSON(t, ts.URL+"/api/matches/"+matchID+"/reverse", nil, &reversed))
	assert.False(t, reversed.Active)

	var holder dto.EntryMatchResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/entries/INV-001/match", &holder))
	assert.Nil(t, holder.Match)

	status = postJSON(t, ts.URL+"/api/matches/"+matchID+"/reverse", nil, &apiErr)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, dto.ErrCodeAlreadyReversed, apiErr.Code)

	// History keeps both passes
	var runs dto.RunListResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/runs", &runs))
	assert.Equal(t, 2, runs.Count)
	for _, run := range runs.Runs {
		assert.Equal(t, "completed", run.Status)
	}

	var matches dto.MatchListResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/matches?active=true", &matches))
	assert.Equal(t, 0, matches.Count)
}
