package handlers

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/report"
)

// ReportHandler serves the XLSX reconciliation report.
type ReportHandler struct {
	*Base
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReconcileService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{Base: NewBase(svc, logger)}
}

// Export handles GET /api/report.xlsx
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	data, err := report.Collect(r.Context(), h.svc, now)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	// Render fully before writing so a failure can still become a JSON error
	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, data); err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="reconcile-`+now.Format("20060102")+`.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
