package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// MatchesHandler handles match listing, manual confirmation and reversal.
type MatchesHandler struct {
	*Base
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(svc *service.ReconcileService, logger *slog.Logger) *MatchesHandler {
	return &MatchesHandler{Base: NewBase(svc, logger)}
}

// List handles GET /api/matches?active=&origin=&limit=&offset=
func (h *MatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.MatchFilters{
		ActiveOnly: ParseBoolParam(r, "active", false),
		Origin:     ledger.Origin(r.URL.Query().Get("origin")),
		Limit:      ParseIntParam(r, "limit", 50),
		Offset:     ParseIntParam(r, "offset", 0),
	}

	switch filters.Origin {
	case "", ledger.OriginAutomatic, ledger.OriginManual:
	default:
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("origin must be automatic or manual"))
		return
	}

	matches, err := h.svc.ListMatches(r.Context(), filters)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewMatchListResponse(matches, filters.Limit, filters.Offset))
}

// Create handles POST /api/matches - confirms a manual match.
func (h *MatchesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.ManualMatchRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}

	match, err := h.svc.ConfirmManualMatch(r.Context(), req.EntryIDs)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, dto.NewMatchResponse(match))
}

// Get handles GET /api/matches/{id}
func (h *MatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	match, err := h.svc.GetMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewMatchResponse(match))
}

// Reverse handles POST /api/matches/{id}/reverse
func (h *MatchesHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	match, err := h.svc.ReverseMatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewMatchResponse(match))
}
