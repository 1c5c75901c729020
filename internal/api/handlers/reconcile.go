package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/application/service"
)

// ReconcileHandler runs auto-reconcile passes, inline or as background jobs.
type ReconcileHandler struct {
	*Base
}

// NewReconcileHandler creates a new reconcile handler.
func NewReconcileHandler(svc *service.ReconcileService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{Base: NewBase(svc, logger)}
}

// Run handles POST /api/reconcile. With "async": true it returns 202 and a
// job id; otherwise it blocks and returns the pass summary.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if !h.DecodeOptionalJSON(w, r, &req) {
		return
	}

	window, threshold := req.Resolve(h.svc.DefaultWindow(), h.svc.DefaultThreshold())

	if req.Async {
		jobID, err := h.svc.StartAutoReconcile(r.Context(), service.PassRequest{Window: window, Threshold: threshold})
		if err != nil {
			h.WriteServiceError(w, r, err)
			return
		}
		job, err := h.svc.GetJob(jobID)
		if err != nil {
			h.WriteServiceError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusAccepted, dto.NewJobResponse(job))
		return
	}

	summary, err := h.svc.RunAutoReconcile(r.Context(), window, threshold)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewSummaryResponse(summary))
}

// ListJobs handles GET /api/reconcile/jobs
func (h *ReconcileHandler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	h.WriteJSON(w, http.StatusOK, dto.NewJobListResponse(h.svc.ListJobs()))
}

// GetJob handles GET /api/reconcile/jobs/{id}
func (h *ReconcileHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewJobResponse(job))
}

// CancelJob handles DELETE /api/reconcile/jobs/{id}
func (h *ReconcileHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.CancelJob(id); err != nil {
		if _, getErr := h.svc.GetJob(id); getErr == nil {
			h.WriteError(w, http.StatusConflict, dto.NewAPIError(dto.ErrCodeConflict, err.Error()))
			return
		}
		h.WriteServiceError(w, r, err)
		return
	}

	job, err := h.svc.GetJob(id)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewJobResponse(job))
}
