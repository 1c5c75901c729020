package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/api/handlers"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

func TestRunsHandler_List(t *testing.T) {
	t.Run("returns empty list when no runs", func(t *testing.T) {
		handler := handlers.NewRunsHandler(newService(t, storage.NewMockRepository()), nil)

		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunListResponse
		decode(t, rec, &response)
		assert.Empty(t, response.Runs)
		assert.Equal(t, 0, response.Count)
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		repo := storage.NewMockRepository()
		svc := newService(t, repo)
		for i := 0; i < 5; i++ {
			_, err := svc.RunAutoReconcile(t.Context(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)
			require.NoError(t, err)
		}
		handler := handlers.NewRunsHandler(svc, nil)

		rec := httptest.NewRecorder()
		handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=3", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunListResponse
		decode(t, rec, &response)
		assert.Len(t, response.Runs, 3)
	})
}

func TestRunsHandler_Get(t *testing.T) {
	t.Run("returns run by ID", func(t *testing.T) {
		repo := storage.NewMockRepository()
		seed(t, repo)
		svc := newService(t, repo)
		summary, err := svc.RunAutoReconcile(t.Context(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)
		require.NoError(t, err)
		handler := handlers.NewRunsHandler(svc, nil)

		id := strconv.FormatInt(summary.RunID, 10)
		req := withID(httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil), id)
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunResponse
		decode(t, rec, &response)
		assert.Equal(t, summary.RunID, response.ID)
		assert.Equal(t, "completed", response.Status)
		assert.Equal(t, 1, response.Confirmed)
		assert.Equal(t, 5, response.MaxDateDeltaDays)
		assert.NotEmpty(t, response.CompletedAt)
	})

	t.Run("returns 404 for non-existent run", func(t *testing.T) {
		handler := handlers.NewRunsHandler(newService(t, storage.NewMockRepository()), nil)

		req := withID(httptest.NewRequest(http.MethodGet, "/api/runs/999", nil), "999")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		var response dto.APIError
		decode(t, rec, &response)
		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})

	t.Run("returns 400 for invalid ID", func(t *testing.T) {
		handler := handlers.NewRunsHandler(newService(t, storage.NewMockRepository()), nil)

		req := withID(httptest.NewRequest(http.MethodGet, "/api/runs/invalid", nil), "invalid")
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
