package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// EntriesHandler handles ledger entry requests.
type EntriesHandler struct {
	*Base
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(svc *service.ReconcileService, logger *slog.Logger) *EntriesHandler {
	return &EntriesHandler{Base: NewBase(svc, logger)}
}

// Load handles POST /api/entries - stores a batch of entries.
func (h *EntriesHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req dto.LoadEntriesRequest
	if !h.DecodeAndValidate(w, r, &req) {
		return
	}

	entries, err := req.ToEntries()
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	if err := h.svc.LoadEntries(r.Context(), entries); err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.LoadEntriesResponse{Loaded: len(entries)})
}

// Unreconciled handles GET /api/entries/unreconciled?kind=&as_of=
func (h *EntriesHandler) Unreconciled(w http.ResponseWriter, r *http.Request) {
	kind, err := ledger.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
		return
	}

	asOf, err := ParseDateParam(r, "as_of")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("as_of must be YYYY-MM-DD"))
		return
	}

	entries, err := h.svc.UnreconciledEntries(r.Context(), kind, asOf)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.NewEntryListResponse(entries))
}

// ActiveMatch handles GET /api/entries/{id}/match - the match holding the
// entry, or null when it is free.
func (h *EntriesHandler) ActiveMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("entry ID is required"))
		return
	}

	match, err := h.svc.ActiveMatch(r.Context(), id)
	if err != nil {
		h.WriteServiceError(w, r, err)
		return
	}

	resp := dto.EntryMatchResponse{EntryID: id}
	if match != nil {
		m := dto.NewMatchResponse(match)
		resp.Match = &m
	}
	h.WriteJSON(w, http.StatusOK, resp)
}
