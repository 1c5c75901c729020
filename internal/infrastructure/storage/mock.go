package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It enforces the same ledger rules as the SQLite store, making tests fast
// and isolated.
type MockRepository struct {
	mu        sync.Mutex
	entries   map[string]ledger.Entry
	matches   map[string]*ledger.Match
	holders   map[string]string // entry id -> active match id
	runs      map[int64]*Run
	nextRunID int64
	now       func() time.Time

	// Hooks for test assertions
	ConfirmCalled   int
	LastConfirmed   *ledger.Match
	ReverseCalled   int
	StartRunCalled  bool
	CompletedRuns   []RunOutcome
	BeforeConfirm   func(m *ledger.Match) // runs before the conflict check, without the lock held
	UpsertedEntries int

	// Error injection for testing error paths
	UpsertErr       error
	GetEntriesErr   error
	UnreconciledErr error
	ConfirmErr      error
	ReverseErr      error
	StartRunErr     error
	CompleteRunErr  error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		entries:   make(map[string]ledger.Entry),
		matches:   make(map[string]*ledger.Match),
		holders:   make(map[string]string),
		runs:      make(map[int64]*Run),
		nextRunID: 1,
		now:       time.Now,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// UpsertEntries stores entries in the in-memory map
func (m *MockRepository) UpsertEntries(ctx context.Context, entries []ledger.Entry) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry without id")
		}
		e.Date = ledger.Day(e.Date)
		e.Reconciled = false
		m.entries[e.ID] = e
		m.UpsertedEntries++
	}
	return nil
}

// GetEntries returns copies of the stored entries in the order of ids
func (m *MockRepository) GetEntries(ctx context.Context, ids []string) ([]ledger.Entry, error) {
	if m.GetEntriesErr != nil {
		return nil, m.GetEntriesErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := m.entries[id]
		if !ok {
			return nil, &ledger.NotFoundError{Resource: "entry", ID: id}
		}
		_, e.Reconciled = m.holders[id]
		out = append(out, e)
	}
	return out, nil
}

// UnreconciledEntries filters the in-memory entries, oldest first
func (m *MockRepository) UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error) {
	if m.UnreconciledErr != nil {
		return nil, m.UnreconciledErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &ledger.StorageTimeoutError{Op: "unreconciled entries", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []ledger.Entry
	for id, e := range m.entries {
		if _, held := m.holders[id]; held {
			continue
		}
		if kind != "" && e.Kind != kind {
			continue
		}
		if !asOf.IsZero() && e.Date.After(ledger.Day(asOf)) {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Confirm records a match unless one of its entries is already held
func (m *MockRepository) Confirm(ctx context.Context, match *ledger.Match) (string, error) {
	if match == nil || len(match.EntryIDs) < 2 {
		return "", ledger.ErrInvalidMatch
	}
	if m.BeforeConfirm != nil {
		m.BeforeConfirm(match)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConfirmCalled++
	m.LastConfirmed = match
	if m.ConfirmErr != nil {
		return "", m.ConfirmErr
	}

	for _, id := range match.EntryIDs {
		if _, ok := m.entries[id]; !ok {
			return "", &ledger.NotFoundError{Resource: "entry", ID: id}
		}
	}

	var held []string
	for _, id := range match.EntryIDs {
		if _, ok := m.holders[id]; ok {
			held = append(held, id)
		}
	}
	if len(held) > 0 {
		sort.Strings(held)
		return "", &ledger.ConflictError{EntryIDs: held}
	}

	if match.ID == "" {
		match.ID = ledger.NewMatchID()
	}
	if match.CreatedAt.IsZero() {
		match.CreatedAt = m.now().UTC()
	}

	copied := *match
	copied.EntryIDs = append([]string(nil), match.EntryIDs...)
	m.matches[copied.ID] = &copied
	for _, id := range copied.EntryIDs {
		m.holders[id] = copied.ID
	}
	return copied.ID, nil
}

// Reverse marks a stored match reversed and frees its entries
func (m *MockRepository) Reverse(ctx context.Context, matchID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReverseCalled++
	if m.ReverseErr != nil {
		return m.ReverseErr
	}

	match, ok := m.matches[matchID]
	if !ok {
		return &ledger.NotFoundError{Resource: "match", ID: matchID}
	}
	if !match.Active() {
		return &ledger.AlreadyReversedError{MatchID: matchID}
	}

	reversedAt := at.UTC()
	match.ReversedAt = &reversedAt
	for _, id := range match.EntryIDs {
		if m.holders[id] == matchID {
			delete(m.holders, id)
		}
	}
	return nil
}

// GetMatch returns a copy of a stored match
func (m *MockRepository) GetMatch(ctx context.Context, matchID string) (*ledger.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[matchID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "match", ID: matchID}
	}
	return copyMatch(match), nil
}

// ActiveMatch returns the match holding entryID, or nil
func (m *MockRepository) ActiveMatch(ctx context.Context, entryID string) (*ledger.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[entryID]; !ok {
		return nil, &ledger.NotFoundError{Resource: "entry", ID: entryID}
	}
	matchID, ok := m.holders[entryID]
	if !ok {
		return nil, nil
	}
	return copyMatch(m.matches[matchID]), nil
}

// ListMatches returns stored matches newest first
func (m *MockRepository) ListMatches(ctx context.Context, filters MatchFilters) ([]*ledger.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*ledger.Match
	for _, match := range m.matches {
		if filters.ActiveOnly && !match.Active() {
			continue
		}
		if filters.Origin != "" && match.Origin != filters.Origin {
			continue
		}
		all = append(all, copyMatch(match))
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filters.Offset >= len(all) {
		return []*ledger.Match{}, nil
	}
	all = all[filters.Offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// StartRun creates a new run record in memory
func (m *MockRepository) StartRun(ctx context.Context, params RunParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartRunCalled = true
	if m.StartRunErr != nil {
		return 0, m.StartRunErr
	}

	id := m.nextRunID
	m.nextRunID++
	m.runs[id] = &Run{
		ID:                   id,
		StartedAt:            m.now().UTC(),
		MaxDateDeltaDays:     params.Window.MaxDateDeltaDays,
		MaxAmountDeltaRatio:  params.Window.MaxAmountDeltaRatio,
		AutoConfirmThreshold: params.AutoConfirmThreshold,
		Status:               RunStatusRunning,
	}
	return id, nil
}

// CompleteRun records a run outcome
func (m *MockRepository) CompleteRun(ctx context.Context, runID int64, outcome RunOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletedRuns = append(m.CompletedRuns, outcome)
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}

	run, ok := m.runs[runID]
	if !ok {
		return &ledger.NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
	}
	completed := m.now().UTC()
	run.CompletedAt = &completed
	run.Confirmed = outcome.Confirmed
	run.Suggested = outcome.Suggested
	run.StillUnmatched = outcome.StillUnmatched
	run.Conflicts = outcome.Conflicts
	run.Status = outcome.Status
	if run.Status == "" {
		run.Status = RunStatusCompleted
	}
	run.ErrorMessage = outcome.ErrorMessage
	return nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = defaultListLimit
	}
	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun retrieves a run by ID
func (m *MockRepository) GetRun(ctx context.Context, runID int64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, &ledger.NotFoundError{Resource: "run", ID: fmt.Sprint(runID)}
	}
	copied := *run
	return &copied, nil
}

// ================================================================
// Test helpers (not part of Repository)
// ================================================================

// SetNow overrides the clock used for timestamps
func (m *MockRepository) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// ActiveHolders returns the entry id -> match id map of active memberships
func (m *MockRepository) ActiveHolders() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.holders))
	for k, v := range m.holders {
		out[k] = v
	}
	return out
}

// Reset clears all data and hooks
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]ledger.Entry)
	m.matches = make(map[string]*ledger.Match)
	m.holders = make(map[string]string)
	m.runs = make(map[int64]*Run)
	m.nextRunID = 1

	m.ConfirmCalled = 0
	m.LastConfirmed = nil
	m.ReverseCalled = 0
	m.StartRunCalled = false
	m.CompletedRuns = nil
	m.BeforeConfirm = nil
	m.UpsertedEntries = 0

	m.UpsertErr = nil
	m.GetEntriesErr = nil
	m.UnreconciledErr = nil
	m.ConfirmErr = nil
	m.ReverseErr = nil
	m.StartRunErr = nil
	m.CompleteRunErr = nil
}

func copyMatch(match *ledger.Match) *ledger.Match {
	copied := *match
	copied.EntryIDs = append([]string(nil), match.EntryIDs...)
	if match.ReversedAt != nil {
		t := *match.ReversedAt
		copied.ReversedAt = &t
	}
	return &copied
}
