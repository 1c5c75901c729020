package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/lock"
	"github.com/eshaffer321/reconcile/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// DefaultStorageTimeout bounds every ledger read or write
const DefaultStorageTimeout = 10 * time.Second

// Options configures a ReconcileService
type Options struct {
	Matcher        matcher.Config
	StorageTimeout time.Duration
}

// Summary is the outcome of one auto-reconcile pass
type Summary struct {
	RunID            int64                `json:"run_id"`
	Confirmed        int                  `json:"confirmed"`
	Suggested        int                  `json:"suggested"`
	StillUnmatched   int                  `json:"still_unmatched"`
	Conflicts        int                  `json:"conflicts"`
	ConflictEntryIDs []string             `json:"conflict_entry_ids,omitempty"`
	Matches          []*ledger.Match      `json:"matches"`
	Suggestions      []matcher.Suggestion `json:"suggestions"`
}

// ReconcileService owns every mutation of the reconciliation ledger.
// Passes, manual confirmations, reversals and snapshot loads all hold the
// ledger lock, so a pass never observes a half-applied change.
type ReconcileService struct {
	store          storage.Repository
	locker         lock.Locker
	config         matcher.Config
	storageTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time

	// Async pass jobs
	jobs      map[string]*PassJob
	jobsMutex sync.RWMutex
	passMutex sync.Mutex

	// Background cleanup
	cleanupStop chan struct{}
	cleanupDone chan struct{}
}

// NewReconcileService creates a new reconcile service.
func NewReconcileService(store storage.Repository, locker lock.Locker, opts Options, logger *slog.Logger) *ReconcileService {
	if logger == nil {
		logger = logging.Discard()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = DefaultStorageTimeout
	}
	return &ReconcileService{
		store:          store,
		locker:         locker,
		config:         opts.Matcher,
		storageTimeout: opts.StorageTimeout,
		logger:         logger,
		now:            time.Now,
		jobs:           make(map[string]*PassJob),
	}
}

// DefaultWindow returns the configured candidate window
func (s *ReconcileService) DefaultWindow() ledger.Window {
	return s.config.Window
}

// DefaultThreshold returns the configured auto-confirm threshold
func (s *ReconcileService) DefaultThreshold() float64 {
	return s.config.AutoConfirmThreshold
}

// opContext bounds a single ledger operation
func (s *ReconcileService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storageTimeout)
}

// withLedgerLock runs fn while holding the exclusive ledger lock
func (s *ReconcileService) withLedgerLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := s.opContext(ctx)
	lease, err := s.locker.Obtain(lockCtx, lock.LedgerKey)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			s.logger.Warn("failed to release ledger lock", "error", err)
		}
	}()
	return fn()
}

// RunAutoReconcile runs one global greedy matching pass over every
// unreconciled entry.
//
// Conflicts are counted and the pass continues. A storage timeout aborts
// the pass; cancellation is honoured between confirmations. In both cases
// the partial summary is returned with the error and matches already
// confirmed stay committed.
func (s *ReconcileService) RunAutoReconcile(ctx context.Context, window ledger.Window, threshold float64) (summary *Summary, err error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if err := ledger.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "reconcile.pass", trace.WithAttributes(
		attribute.Int("reconcile.max_date_delta_days", window.MaxDateDeltaDays),
		attribute.Float64("reconcile.max_amount_delta_ratio", window.MaxAmountDeltaRatio),
		attribute.Float64("reconcile.threshold", threshold),
	))
	defer func() {
		if summary != nil {
			span.SetAttributes(
				attribute.Int64("reconcile.run_id", summary.RunID),
				attribute.Int("reconcile.confirmed", summary.Confirmed),
				attribute.Int("reconcile.suggested", summary.Suggested),
				attribute.Int("reconcile.conflicts", summary.Conflicts),
			)
		}
		endSpan(span, err)
	}()

	cfg := s.config
	cfg.Window = window
	cfg.AutoConfirmThreshold = threshold
	m := matcher.NewMatcher(cfg)

	err = s.withLedgerLock(ctx, func() error {
		var err error
		summary, err = s.runPass(ctx, m)
		return err
	})
	return summary, err
}

func (s *ReconcileService) runPass(ctx context.Context, m *matcher.Matcher) (*Summary, error) {
	cfg := m.Config()
	summary := &Summary{
		Matches:     []*ledger.Match{},
		Suggestions: []matcher.Suggestion{},
	}

	opCtx, cancel := s.opContext(ctx)
	runID, err := s.store.StartRun(opCtx, storage.RunParams{
		Window:               cfg.Window,
		AutoConfirmThreshold: cfg.AutoConfirmThreshold,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	summary.RunID = runID

	s.logger.InfoContext(ctx, "reconcile pass started",
		"run_id", runID,
		"max_date_delta_days", cfg.Window.MaxDateDeltaDays,
		"max_amount_delta_ratio", cfg.Window.MaxAmountDeltaRatio,
		"threshold", cfg.AutoConfirmThreshold,
	)

	opCtx, cancel = s.opContext(ctx)
	snapshot, err := s.store.UnreconciledEntries(opCtx, "", time.Time{})
	cancel()
	if err != nil {
		s.finishRun(runID, summary, err)
		return summary, err
	}

	ranked, err := m.Candidates(ctx, snapshot)
	if err != nil {
		s.finishRun(runID, summary, err)
		return summary, err
	}

	assignment, err := m.Assign(ctx, ranked, func(c matcher.Candidate) error {
		match := ledger.NewMatch(c.EntryIDs(), c.Score, ledger.OriginAutomatic, s.now())

		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		if _, err := s.store.Confirm(opCtx, match); err != nil {
			return err
		}

		summary.Matches = append(summary.Matches, match)
		s.logger.DebugContext(ctx, "match confirmed",
			"match_id", match.ID,
			"source_id", c.SourceID,
			"target_id", c.TargetID,
			"score", c.Score,
		)
		return nil
	})

	if assignment != nil {
		summary.Confirmed = len(assignment.Confirmed)
		summary.Conflicts = len(assignment.Conflicts)
		for _, c := range assignment.Conflicts {
			s.logger.WarnContext(ctx, "confirmation conflicted", "source_id", c.SourceID, "target_id", c.TargetID, "score", c.Score)
			summary.ConflictEntryIDs = append(summary.ConflictEntryIDs, c.EntryIDs()...)
		}
		summary.Suggestions = append(summary.Suggestions, assignment.Suggestions...)

		var free []ledger.Entry
		for _, e := range snapshot {
			if !assignment.Taken[e.ID] {
				free = append(free, e)
			}
		}
		summary.StillUnmatched = len(free)

		if err == nil && cfg.SplitSuggestions {
			summary.Suggestions = append(summary.Suggestions, m.FindSplitSuggestions(free)...)
		}
		summary.Suggested = len(summary.Suggestions)
	}

	s.finishRun(runID, summary, err)
	if err != nil {
		return summary, err
	}

	s.logger.InfoContext(ctx, "reconcile pass finished",
		"run_id", runID,
		"confirmed", summary.Confirmed,
		"suggested", summary.Suggested,
		"still_unmatched", summary.StillUnmatched,
		"conflicts", summary.Conflicts,
	)
	return summary, nil
}

// finishRun records the pass outcome. It runs detached from the pass
// context so a cancelled pass is still recorded.
func (s *ReconcileService) finishRun(runID int64, summary *Summary, passErr error) {
	outcome := storage.RunOutcome{
		Confirmed:      summary.Confirmed,
		Suggested:      summary.Suggested,
		StillUnmatched: summary.StillUnmatched,
		Conflicts:      summary.Conflicts,
		Status:         storage.RunStatusCompleted,
	}

	switch {
	case passErr == nil:
	case errors.Is(passErr, context.Canceled):
		outcome.Status = storage.RunStatusCancelled
		outcome.ErrorMessage = passErr.Error()
		s.logger.Info("reconcile pass cancelled", "run_id", runID, "confirmed", summary.Confirmed)
	default:
		outcome.Status = storage.RunStatusFailed
		outcome.ErrorMessage = passErr.Error()
		if errors.Is(passErr, ledger.ErrStorageTimeout) || errors.Is(passErr, context.DeadlineExceeded) {
			s.logger.Error("reconcile pass aborted on storage timeout", "run_id", runID, "confirmed", summary.Confirmed, "error", passErr)
		} else {
			s.logger.Error("reconcile pass failed", "run_id", runID, "error", passErr)
		}
	}

	ctx, cancel := s.opContext(context.Background())
	defer cancel()
	if err := s.store.CompleteRun(ctx, runID, outcome); err != nil {
		s.logger.Warn("failed to record run outcome", "run_id", runID, "error", err)
	}
}

// ConfirmManualMatch binds the given entries into one match with confidence
// 1.0, bypassing scoring. Any entry already reconciled fails the whole call
// with a ConflictError and nothing is written.
func (s *ReconcileService) ConfirmManualMatch(ctx context.Context, entryIDs []string) (_ *ledger.Match, err error) {
	match := ledger.NewMatch(entryIDs, 1.0, ledger.OriginManual, s.now())
	if len(match.EntryIDs) < 2 {
		return nil, ledger.ErrInvalidMatch
	}

	ctx, span := tracer.Start(ctx, "reconcile.manual_match",
		trace.WithAttributes(attribute.StringSlice("reconcile.entry_ids", match.EntryIDs)))
	defer func() { endSpan(span, err) }()

	err = s.withLedgerLock(ctx, func() error {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		_, err := s.store.Confirm(opCtx, match)
		return err
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			s.logger.WarnContext(ctx, "manual match conflicted", "entry_ids", match.EntryIDs, "error", err)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "manual match confirmed", "match_id", match.ID, "entries", len(match.EntryIDs))
	return match, nil
}

// ReverseMatch deactivates a match and frees its entries. The match record
// is kept with its reversal timestamp.
func (s *ReconcileService) ReverseMatch(ctx context.Context, matchID string) (_ *ledger.Match, err error) {
	ctx, span := tracer.Start(ctx, "reconcile.reverse",
		trace.WithAttributes(attribute.String("reconcile.match_id", matchID)))
	defer func() { endSpan(span, err) }()

	var reversed *ledger.Match
	err = s.withLedgerLock(ctx, func() error {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()

		if err := s.store.Reverse(opCtx, matchID, s.now()); err != nil {
			return err
		}
		var err error
		reversed, err = s.store.GetMatch(opCtx, matchID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "match reversed", "match_id", matchID)
	return reversed, nil
}

// LoadEntries stores a refreshed snapshot of ledger entries
func (s *ReconcileService) LoadEntries(ctx context.Context, entries []ledger.Entry) error {
	return s.withLedgerLock(ctx, func() error {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		if err := s.store.UpsertEntries(opCtx, entries); err != nil {
			return err
		}
		s.logger.Info("entries loaded", "count", len(entries))
		return nil
	})
}

// UnreconciledEntries lists entries with no active match
func (s *ReconcileService) UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.UnreconciledEntries(opCtx, kind, asOf)
}

// ActiveMatch returns the match currently holding entryID, or nil
func (s *ReconcileService) ActiveMatch(ctx context.Context, entryID string) (*ledger.Match, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.ActiveMatch(opCtx, entryID)
}

// GetMatch retrieves a match by id
func (s *ReconcileService) GetMatch(ctx context.Context, matchID string) (*ledger.Match, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.GetMatch(opCtx, matchID)
}

// ListMatches lists matches newest first
func (s *ReconcileService) ListMatches(ctx context.Context, filters storage.MatchFilters) ([]*ledger.Match, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.ListMatches(opCtx, filters)
}

// ListRuns lists recorded passes newest first
func (s *ReconcileService) ListRuns(ctx context.Context, limit int) ([]storage.Run, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.ListRuns(opCtx, limit)
}

// GetRun retrieves a recorded pass
func (s *ReconcileService) GetRun(ctx context.Context, runID int64) (*storage.Run, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.GetRun(opCtx, runID)
}
