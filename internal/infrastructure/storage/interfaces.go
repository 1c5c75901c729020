package storage

import (
	"context"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Repository defines the complete storage interface.
// The reconciliation service depends only on this interface, so the SQLite
// store can be swapped for another backend or for MockRepository in tests.
type Repository interface {
	EntryRepository
	MatchRepository
	RunRepository
	Close() error
}

// EntryRepository holds the caller-supplied ledger entry snapshots
type EntryRepository interface {
	// UpsertEntries stores or refreshes entries. Reconciliation state is
	// never changed by an upsert.
	UpsertEntries(ctx context.Context, entries []ledger.Entry) error

	// GetEntries returns the entries for ids in the given order.
	// Unknown ids fail with a NotFoundError.
	GetEntries(ctx context.Context, ids []string) ([]ledger.Entry, error)

	// UnreconciledEntries returns entries not bound to an active match.
	// An empty kind means every kind; a zero asOf means no date bound.
	UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error)
}

// MatchRepository is the reconciliation ledger proper
type MatchRepository interface {
	// Confirm persists a match atomically. It fails with a ConflictError if
	// any entry is already held by an active match; nothing is written then.
	Confirm(ctx context.Context, m *ledger.Match) (string, error)

	// Reverse stamps reversedAt and frees the member entries.
	Reverse(ctx context.Context, matchID string, at time.Time) error

	// GetMatch retrieves a match by id, active or not
	GetMatch(ctx context.Context, matchID string) (*ledger.Match, error)

	// ActiveMatch returns the active match holding entryID, or nil.
	ActiveMatch(ctx context.Context, entryID string) (*ledger.Match, error)

	// ListMatches returns matches newest first
	ListMatches(ctx context.Context, filters MatchFilters) ([]*ledger.Match, error)
}

// RunRepository tracks auto-reconcile passes
type RunRepository interface {
	// StartRun records the start of a pass and returns the run ID
	StartRun(ctx context.Context, params RunParams) (int64, error)

	// CompleteRun records the outcome of a pass
	CompleteRun(ctx context.Context, runID int64, outcome RunOutcome) error

	// ListRuns returns recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID int64) (*Run, error)
}

// MatchFilters defines filters for listing matches
type MatchFilters struct {
	ActiveOnly bool          // Skip reversed matches
	Origin     ledger.Origin // Filter by origin (empty = all)
	Limit      int           // Max results (0 = default 50)
	Offset     int           // Pagination offset
}
