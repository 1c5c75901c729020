package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/reconcile/internal/api/dto"
)

// HealthHandler answers liveness probes. It never touches the ledger store.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(dto.NewHealthResponse())
}
