package dto

import (
	"time"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

const dateLayout = "2006-01-02"

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// EntryResponse represents a ledger entry in API responses.
type EntryResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	AccountID   string `json:"account_id,omitempty"`
	Currency    string `json:"currency,omitempty"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Reconciled  bool   `json:"reconciled"`
}

// EntryListResponse is returned when listing entries.
type EntryListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Count   int             `json:"count"`
}

// MatchResponse represents a match in API responses.
type MatchResponse struct {
	ID         string   `json:"id"`
	EntryIDs   []string `json:"entry_ids"`
	Confidence float64  `json:"confidence"`
	Origin     string   `json:"origin"`
	Active     bool     `json:"active"`
	CreatedAt  string   `json:"created_at"`
	ReversedAt string   `json:"reversed_at,omitempty"`
}

// MatchListResponse is returned when listing matches.
type MatchListResponse struct {
	Matches []MatchResponse `json:"matches"`
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// SuggestionResponse is a pairing left for manual review.
type SuggestionResponse struct {
	EntryIDs []string `json:"entry_ids"`
	Score    float64  `json:"score"`
	Split    bool     `json:"split,omitempty"`
}

// SummaryResponse is returned after an auto-reconcile pass.
type SummaryResponse struct {
	RunID            int64                `json:"run_id"`
	Confirmed        int                  `json:"confirmed"`
	Suggested        int                  `json:"suggested"`
	StillUnmatched   int                  `json:"still_unmatched"`
	Conflicts        int                  `json:"conflicts"`
	ConflictEntryIDs []string             `json:"conflict_entry_ids,omitempty"`
	Matches          []MatchResponse      `json:"matches"`
	Suggestions      []SuggestionResponse `json:"suggestions"`
}

// RunResponse represents a reconcile run in API responses.
type RunResponse struct {
	ID                   int64   `json:"id"`
	StartedAt            string  `json:"started_at"`
	CompletedAt          string  `json:"completed_at,omitempty"`
	MaxDateDeltaDays     int     `json:"max_date_delta_days"`
	MaxAmountDeltaRatio  float64 `json:"max_amount_delta_ratio"`
	AutoConfirmThreshold float64 `json:"auto_confirm_threshold"`
	Confirmed            int     `json:"confirmed"`
	Suggested            int     `json:"suggested"`
	StillUnmatched       int     `json:"still_unmatched"`
	Conflicts            int     `json:"conflicts"`
	Status               string  `json:"status"`
	ErrorMessage         string  `json:"error_message,omitempty"`
}

// RunListResponse is returned when listing reconcile runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// JobResponse describes an async reconcile pass.
type JobResponse struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	StartedAt   string           `json:"started_at"`
	CompletedAt string           `json:"completed_at,omitempty"`
	Summary     *SummaryResponse `json:"summary,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// JobListResponse is returned when listing async passes.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NewEntryResponse converts a ledger entry to its API form.
func NewEntryResponse(e ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		Kind:        string(e.Kind),
		AccountID:   e.AccountID,
		Currency:    e.Currency,
		Date:        e.Date.Format(dateLayout),
		Amount:      ledger.FormatAmount(e.Amount),
		AmountCents: e.Amount,
		Description: e.Description,
		Reconciled:  e.Reconciled,
	}
}

// NewEntryListResponse converts a slice of entries.
func NewEntryListResponse(entries []ledger.Entry) EntryListResponse {
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = NewEntryResponse(e)
	}
	return EntryListResponse{Entries: out, Count: len(out)}
}

// NewMatchResponse converts a match to its API form.
func NewMatchResponse(m *ledger.Match) MatchResponse {
	resp := MatchResponse{
		ID:         m.ID,
		EntryIDs:   m.EntryIDs,
		Confidence: m.Confidence,
		Origin:     string(m.Origin),
		Active:     m.Active(),
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	}
	if m.ReversedAt != nil {
		resp.ReversedAt = m.ReversedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func newMatchResponses(matches []*ledger.Match) []MatchResponse {
	out := make([]MatchResponse, len(matches))
	for i, m := range matches {
		out[i] = NewMatchResponse(m)
	}
	return out
}

// NewMatchListResponse converts a page of matches.
func NewMatchListResponse(matches []*ledger.Match, limit, offset int) MatchListResponse {
	out := newMatchResponses(matches)
	return MatchListResponse{Matches: out, Count: len(out), Limit: limit, Offset: offset}
}

func newSuggestionResponses(suggestions []matcher.Suggestion) []SuggestionResponse {
	out := make([]SuggestionResponse, len(suggestions))
	for i, s := range suggestions {
		out[i] = SuggestionResponse{EntryIDs: s.EntryIDs, Score: s.Score, Split: s.Split}
	}
	return out
}

// NewSummaryResponse converts a pass summary. A nil summary yields nil.
func NewSummaryResponse(s *service.Summary) *SummaryResponse {
	if s == nil {
		return nil
	}
	return &SummaryResponse{
		RunID:            s.RunID,
		Confirmed:        s.Confirmed,
		Suggested:        s.Suggested,
		StillUnmatched:   s.StillUnmatched,
		Conflicts:        s.Conflicts,
		ConflictEntryIDs: s.ConflictEntryIDs,
		Matches:          newMatchResponses(s.Matches),
		Suggestions:      newSuggestionResponses(s.Suggestions),
	}
}

// NewRunResponse converts a storage run record.
func NewRunResponse(r storage.Run) RunResponse {
	resp := RunResponse{
		ID:                   r.ID,
		StartedAt:            r.StartedAt.UTC().Format(time.RFC3339),
		MaxDateDeltaDays:     r.MaxDateDeltaDays,
		MaxAmountDeltaRatio:  r.MaxAmountDeltaRatio,
		AutoConfirmThreshold: r.AutoConfirmThreshold,
		Confirmed:            r.Confirmed,
		Suggested:            r.Suggested,
		StillUnmatched:       r.StillUnmatched,
		Conflicts:            r.Conflicts,
		Status:               string(r.Status),
		ErrorMessage:         r.ErrorMessage,
	}
	if r.CompletedAt != nil {
		resp.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// NewRunListResponse converts a slice of runs.
func NewRunListResponse(runs []storage.Run) RunListResponse {
	out := make([]RunResponse, len(runs))
	for i, r := range runs {
		out[i] = NewRunResponse(r)
	}
	return RunListResponse{Runs: out, Count: len(out)}
}

// NewJobResponse converts an async pass job.
func NewJobResponse(job *service.PassJob) JobResponse {
	resp := JobResponse{
		JobID:     job.ID,
		Status:    string(job.Status),
		StartedAt: job.StartedAt.UTC().Format(time.RFC3339),
		Summary:   NewSummaryResponse(job.Summary),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	if job.Error != nil {
		resp.Error = job.Error.Error()
	}
	return resp
}

// NewJobListResponse converts a slice of jobs.
func NewJobListResponse(jobs []*service.PassJob) JobListResponse {
	out := make([]JobResponse, len(jobs))
	for i, job := range jobs {
		out[i] = NewJobResponse(job)
	}
	return JobListResponse{Jobs: out, Count: len(out)}
}

// LoadEntriesResponse is returned after a batch of entries is stored.
type LoadEntriesResponse struct {
	Loaded int `json:"loaded"`
}

// EntryMatchResponse reports the active match holding an entry, if any.
type EntryMatchResponse struct {
	EntryID string         `json:"entry_id"`
	Match   *MatchResponse `json:"match"`
}
