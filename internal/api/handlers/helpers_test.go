package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/lock"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

func newService(t *testing.T, repo *storage.MockRepository) *service.ReconcileService {
	t.Helper()
	return service.NewReconcileService(repo, lock.NewLocalLocker(), service.Options{
		Matcher:        matcher.DefaultConfig(),
		StorageTimeout: 2 * time.Second,
	}, nil)
}

func seed(t *testing.T, repo *storage.MockRepository) {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, repo.UpsertEntries(context.Background(), []ledger.Entry{
		{ID: "BT-1", Kind: ledger.KindBankTransaction, Date: day(10), Amount: 10000, Description: "acme corp"},
		{ID: "INV-001", Kind: ledger.KindSalesInvoice, Date: day(9), Amount: 10000, Description: "acme corp"},
		{ID: "BT-2", Kind: ledger.KindBankTransaction, Date: day(12), Amount: 5000, Description: "misc"},
	}))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

// setChiURLParam is a helper to set chi URL parameters in tests.
func setChiURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

func withID(req *http.Request, id string) *http.Request {
	return req.WithContext(setChiURLParam(req.Context(), "id", id))
}
