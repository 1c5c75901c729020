package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eshaffer321/reconcile/internal/api/dto"
	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/infrastructure/logging"
)

// maxBodyBytes caps request bodies; entry batches are the largest payload.
const maxBodyBytes = 8 << 20

// Base provides shared functionality for all handlers.
type Base struct {
	svc    *service.ReconcileService
	logger *slog.Logger
}

// NewBase creates a new base handler around the reconcile service.
func NewBase(svc *service.ReconcileService, logger *slog.Logger) *Base {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Base{svc: svc, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service error to its HTTP form.
func (b *Base) WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := dto.FromError(err)
	if status >= http.StatusInternalServerError {
		b.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	b.WriteError(w, status, apiErr)
}

// DecodeJSON reads the request body into v. It writes a 400 and returns
// false when the body is malformed.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return b.decode(w, r, v, false)
}

// DecodeOptionalJSON is DecodeJSON but accepts an empty body.
func (b *Base) DecodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	return b.decode(w, r, v, true)
}

func (b *Base) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return true
		}
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("request body is required"))
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return true
	}
	if err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body: "+err.Error()))
		return false
	}
	return true
}

// DecodeAndValidate decodes the body and checks its validate tags.
func (b *Base) DecodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if !b.DecodeJSON(w, r, v) {
		return false
	}
	if err := dto.Validate(v); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.InvalidRequestError(err))
		return false
	}
	return true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}

// ParseBoolParam parses a boolean query parameter with a default value.
func ParseBoolParam(r *http.Request, name string, defaultVal bool) bool {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	return val == "true" || val == "1"
}

// ParseDateParam parses a YYYY-MM-DD query parameter. Missing values yield
// the zero time.
func ParseDateParam(r *http.Request, name string) (time.Time, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", val)
}
