package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/domain/matcher"
	"github.com/eshaffer321/reconcile/internal/infrastructure/lock"
	mock_lock "github.com/eshaffer321/reconcile/internal/infrastructure/lock/mocks"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bank(id string, amount int64, date time.Time, desc string) ledger.Entry {
	return ledger.Entry{ID: id, Kind: ledger.KindBankTransaction, AccountID: "checking", Amount: amount, Date: date, Description: desc}
}

func invoice(id string, amount int64, date time.Time, desc string) ledger.Entry {
	return ledger.Entry{ID: id, Kind: ledger.KindSalesInvoice, Amount: amount, Date: date, Description: desc}
}

func newTestService(t *testing.T, repo storage.Repository) *ReconcileService {
	t.Helper()
	return NewReconcileService(repo, lock.NewLocalLocker(), Options{
		Matcher:        matcher.DefaultConfig(),
		StorageTimeout: 2 * time.Second,
	}, nil)
}

func load(t *testing.T, svc *ReconcileService, entries ...ledger.Entry) {
	t.Helper()
	require.NoError(t, svc.LoadEntries(context.Background(), entries))
}

func runDefault(t *testing.T, svc *ReconcileService) *Summary {
	t.Helper()
	summary, err := svc.RunAutoReconcile(context.Background(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)
	require.NoError(t, err)
	return summary
}

func TestRunAutoReconcile_InvoicePaymentScenario(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", -5000, day(2024, 2, 20), "Invoice #INV-001 payment"),
		invoice("INV-001", 5000, day(2024, 2, 20), "Invoice #INV-001"),
	)

	summary := runDefault(t, svc)

	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 0, summary.Suggested)
	assert.Equal(t, 0, summary.StillUnmatched)
	require.Len(t, summary.Matches, 1)
	assert.GreaterOrEqual(t, summary.Matches[0].Confidence, 0.85)
	assert.Equal(t, ledger.OriginAutomatic, summary.Matches[0].Origin)
	assert.ElementsMatch(t, []string{"BT-1", "INV-001"}, summary.Matches[0].EntryIDs)

	run, err := svc.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Confirmed)
}

func TestRunAutoReconcile_Idempotent(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 100000, day(2024, 3, 10), "ACME CORP"),
		invoice("INV-1", 100000, day(2024, 3, 10), "ACME CORP"),
		bank("BT-2", 2500, day(2024, 3, 12), "unknown deposit"),
	)

	first := runDefault(t, svc)
	assert.Equal(t, 1, first.Confirmed)
	holders := repo.ActiveHolders()

	second := runDefault(t, svc)
	assert.Equal(t, 0, second.Confirmed)
	assert.Empty(t, second.Matches)
	assert.Equal(t, holders, repo.ActiveHolders())
	assert.Equal(t, 1, second.StillUnmatched)
}

func TestRunAutoReconcile_ReverseThenRerun(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", -5000, day(2024, 2, 20), "Invoice #INV-001 payment"),
		invoice("INV-001", 5000, day(2024, 2, 21), "Invoice #INV-001"),
	)

	first := runDefault(t, svc)
	require.Len(t, first.Matches, 1)
	original := first.Matches[0]

	reversed, err := svc.ReverseMatch(context.Background(), original.ID)
	require.NoError(t, err)
	assert.False(t, reversed.Active())

	free, err := svc.UnreconciledEntries(context.Background(), "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, free, 2, "reversal frees both entries immediately")

	second := runDefault(t, svc)
	require.Len(t, second.Matches, 1)
	again := second.Matches[0]
	assert.NotEqual(t, original.ID, again.ID)
	assert.ElementsMatch(t, original.EntryIDs, again.EntryIDs)
	assert.GreaterOrEqual(t, again.Confidence, original.Confidence)

	// The reversed match is kept for audit
	kept, err := svc.GetMatch(context.Background(), original.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept.ReversedAt)
}

func TestRunAutoReconcile_CompetingCandidates(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-2", 1000, day(2024, 3, 11), "acme"),
	)

	summary := runDefault(t, svc)

	require.Equal(t, 1, summary.Confirmed)
	assert.ElementsMatch(t, []string{"BT-1", "INV-1"}, summary.Matches[0].EntryIDs)
	assert.Equal(t, 1, summary.StillUnmatched, "the losing invoice stays unmatched")

	active, err := svc.ActiveMatch(context.Background(), "INV-2")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRunAutoReconcile_BelowThresholdIsOnlySuggested(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	// Exact amount, 5 day gap, identical description: 0.5 + 0 + 0.2
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 1), "rent march"),
		invoice("INV-1", 1000, day(2024, 3, 6), "rent march"),
	)

	for i := 0; i < 2; i++ {
		summary := runDefault(t, svc)
		assert.Equal(t, 0, summary.Confirmed)
		require.Equal(t, 1, summary.Suggested)
		assert.InDelta(t, 0.70, summary.Suggestions[0].Score, 1e-9)
		assert.Equal(t, []string{"BT-1", "INV-1"}, summary.Suggestions[0].EntryIDs)
		assert.Equal(t, 2, summary.StillUnmatched)
	}
	assert.Equal(t, 0, repo.ConfirmCalled)
}

func TestRunAutoReconcile_SplitSuggestion(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		invoice("INV-1", 3000, day(2024, 3, 10), "consulting"),
		bank("BT-1", 1000, day(2024, 3, 10), "consulting part 1"),
		bank("BT-2", 2000, day(2024, 3, 11), "consulting part 2"),
	)

	summary := runDefault(t, svc)

	assert.Equal(t, 0, summary.Confirmed)
	require.Equal(t, 1, summary.Suggested)
	assert.True(t, summary.Suggestions[0].Split)
	assert.Equal(t, []string{"INV-1", "BT-1", "BT-2"}, summary.Suggestions[0].EntryIDs)

	// Split groups are confirmed manually
	match, err := svc.ConfirmManualMatch(context.Background(), summary.Suggestions[0].EntryIDs)
	require.NoError(t, err)
	assert.Len(t, match.EntryIDs, 3)
}

func TestRunAutoReconcile_InvalidWindow(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)

	tests := []struct {
		name      string
		window    ledger.Window
		threshold float64
	}{
		{"zero days", ledger.Window{MaxDateDeltaDays: 0, MaxAmountDeltaRatio: 0.01}, 0.85},
		{"negative ratio", ledger.Window{MaxDateDeltaDays: 5, MaxAmountDeltaRatio: -1}, 0.85},
		{"zero threshold", ledger.DefaultWindow(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RunAutoReconcile(context.Background(), tt.window, tt.threshold)
			var invalid *ledger.InvalidWindowError
			assert.ErrorAs(t, err, &invalid)
		})
	}
	assert.False(t, repo.StartRunCalled)
}

func TestRunAutoReconcile_ConflictDoesNotStopPass(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 1000, day(2024, 3, 10), "acme"),
		bank("BT-2", 700, day(2024, 3, 10), "globex"),
		invoice("INV-2", 700, day(2024, 3, 11), "globex"),
		ledger.Entry{ID: "PI-9", Kind: ledger.KindPurchaseInvoice, Amount: -50, Date: day(2024, 1, 1)},
	)

	// An out-of-band writer grabs BT-1 just before the pass confirms it
	repo.BeforeConfirm = func(m *ledger.Match) {
		repo.BeforeConfirm = nil
		_, err := repo.Confirm(context.Background(), ledger.NewMatch([]string{"BT-1", "PI-9"}, 1, ledger.OriginManual, time.Now()))
		require.NoError(t, err)
	}

	summary := runDefault(t, svc)

	assert.Equal(t, 1, summary.Conflicts)
	assert.Contains(t, summary.ConflictEntryIDs, "BT-1")
	require.Equal(t, 1, summary.Confirmed)
	assert.ElementsMatch(t, []string{"BT-2", "INV-2"}, summary.Matches[0].EntryIDs)

	runs, err := svc.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].Conflicts)
}

func TestRunAutoReconcile_StorageTimeoutAbortsPass(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 1000, day(2024, 3, 10), "acme"),
		bank("BT-2", 700, day(2024, 3, 10), "globex"),
		invoice("INV-2", 700, day(2024, 3, 11), "globex"),
	)

	calls := 0
	repo.BeforeConfirm = func(m *ledger.Match) {
		calls++
		if calls == 2 {
			repo.ConfirmErr = &ledger.StorageTimeoutError{Op: "confirm", Err: context.DeadlineExceeded}
		}
	}

	summary, err := svc.RunAutoReconcile(context.Background(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)

	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStorageTimeout)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Confirmed, "earlier confirmations stay committed")
	assert.Len(t, repo.ActiveHolders(), 2)

	require.Len(t, repo.CompletedRuns, 1)
	assert.Equal(t, storage.RunStatusFailed, repo.CompletedRuns[0].Status)
}

func TestRunAutoReconcile_CancelledBetweenConfirmations(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 1000, day(2024, 3, 10), "acme"),
		bank("BT-2", 700, day(2024, 3, 10), "globex"),
		invoice("INV-2", 700, day(2024, 3, 11), "globex"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.BeforeConfirm = func(m *ledger.Match) { cancel() }

	summary, err := svc.RunAutoReconcile(ctx, ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Confirmed)
	assert.Equal(t, 1, repo.ConfirmCalled)
	require.Len(t, repo.CompletedRuns, 1)
	assert.Equal(t, storage.RunStatusCancelled, repo.CompletedRuns[0].Status)
}

func TestRunAutoReconcile_SnapshotFailure(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	repo.UnreconciledErr = &ledger.StorageTimeoutError{Op: "unreconciled entries"}

	_, err := svc.RunAutoReconcile(context.Background(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)

	assert.ErrorIs(t, err, ledger.ErrStorageTimeout)
	require.Len(t, repo.CompletedRuns, 1)
	assert.Equal(t, storage.RunStatusFailed, repo.CompletedRuns[0].Status)
}

func TestRunAutoReconcile_LockTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	locker := mock_lock.NewMockLocker(ctrl)
	locker.EXPECT().
		Obtain(gomock.Any(), lock.LedgerKey).
		Return(nil, &ledger.StorageTimeoutError{Op: "obtain lock"})

	repo := storage.NewMockRepository()
	svc := NewReconcileService(repo, locker, Options{Matcher: matcher.DefaultConfig()}, nil)

	_, err := svc.RunAutoReconcile(context.Background(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)

	assert.ErrorIs(t, err, ledger.ErrStorageTimeout)
	assert.False(t, repo.StartRunCalled)
}

func TestRunAutoReconcile_ReleasesLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lease := mock_lock.NewMockLease(ctrl)
	lease.EXPECT().Release(gomock.Any()).Return(nil).Times(1)

	locker := mock_lock.NewMockLocker(ctrl)
	locker.EXPECT().Obtain(gomock.Any(), lock.LedgerKey).Return(lease, nil).Times(1)

	svc := NewReconcileService(storage.NewMockRepository(), locker, Options{Matcher: matcher.DefaultConfig()}, nil)

	_, err := svc.RunAutoReconcile(context.Background(), ledger.DefaultWindow(), ledger.DefaultAutoConfirmThreshold)
	assert.NoError(t, err)
}

func TestConfirmManualMatch(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 999999, day(2023, 1, 1), "unrelated"),
		invoice("INV-2", 1000, day(2024, 3, 10), "acme"),
	)

	t.Run("succeeds with confidence one", func(t *testing.T) {
		match, err := svc.ConfirmManualMatch(context.Background(), []string{"BT-1", "INV-1"})
		require.NoError(t, err)
		assert.Equal(t, 1.0, match.Confidence)
		assert.Equal(t, ledger.OriginManual, match.Origin)
	})

	t.Run("already reconciled entry conflicts and commits nothing", func(t *testing.T) {
		before := repo.ActiveHolders()

		_, err := svc.ConfirmManualMatch(context.Background(), []string{"INV-2", "BT-1"})

		var conflict *ledger.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, []string{"BT-1"}, conflict.EntryIDs)
		assert.Equal(t, before, repo.ActiveHolders())
	})

	t.Run("needs two distinct entries", func(t *testing.T) {
		_, err := svc.ConfirmManualMatch(context.Background(), []string{"INV-2", "INV-2"})
		assert.ErrorIs(t, err, ledger.ErrInvalidMatch)
	})

	t.Run("unknown entry", func(t *testing.T) {
		_, err := svc.ConfirmManualMatch(context.Background(), []string{"INV-2", "NOPE"})
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func TestReverseMatch_Errors(t *testing.T) {
	repo := storage.NewMockRepository()
	svc := newTestService(t, repo)
	load(t, svc,
		bank("BT-1", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-1", 1000, day(2024, 3, 10), "acme"),
	)

	_, err := svc.ReverseMatch(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	match, err := svc.ConfirmManualMatch(context.Background(), []string{"BT-1", "INV-1"})
	require.NoError(t, err)

	_, err = svc.ReverseMatch(context.Background(), match.ID)
	require.NoError(t, err)

	_, err = svc.ReverseMatch(context.Background(), match.ID)
	assert.ErrorIs(t, err, ledger.ErrAlreadyReversed)
}

func TestLoadEntries_Error(t *testing.T) {
	repo := storage.NewMockRepository()
	repo.UpsertErr = errors.New("disk full")
	svc := newTestService(t, repo)

	err := svc.LoadEntries(context.Background(), []ledger.Entry{bank("BT-1", 1, day(2024, 1, 1), "")})
	assert.EqualError(t, err, "disk full")
}

// assertOneActiveMatch checks that no entry is held by two active matches
func assertOneActiveMatch(t *testing.T, svc *ReconcileService, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := svc.ActiveMatch(context.Background(), id)
		require.NoError(t, err, "entry %s", id)
	}
}

func TestReconcileService_SQLiteFlow(t *testing.T) {
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()

	svc := newTestService(t, store)
	ids := []string{"BT-1", "INV-001", "BT-2", "INV-002", "INV-003"}
	load(t, svc,
		bank("BT-1", -5000, day(2024, 2, 20), "Invoice #INV-001 payment"),
		invoice("INV-001", 5000, day(2024, 2, 20), "Invoice #INV-001"),
		bank("BT-2", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-002", 1000, day(2024, 3, 10), "acme"),
		invoice("INV-003", 1000, day(2024, 3, 11), "acme"),
	)

	first := runDefault(t, svc)
	assert.Equal(t, 2, first.Confirmed)
	assert.Equal(t, 1, first.StillUnmatched)
	assertOneActiveMatch(t, svc, ids...)

	second := runDefault(t, svc)
	assert.Equal(t, 0, second.Confirmed)
	assertOneActiveMatch(t, svc, ids...)

	held, err := svc.ActiveMatch(context.Background(), "BT-2")
	require.NoError(t, err)
	require.NotNil(t, held)

	_, err = svc.ConfirmManualMatch(context.Background(), []string{"BT-2", "INV-003"})
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assertOneActiveMatch(t, svc, ids...)

	_, err = svc.ReverseMatch(context.Background(), held.ID)
	require.NoError(t, err)
	assertOneActiveMatch(t, svc, ids...)

	third := runDefault(t, svc)
	require.Equal(t, 1, third.Confirmed)
	assert.ElementsMatch(t, held.EntryIDs, third.Matches[0].EntryIDs)
	assertOneActiveMatch(t, svc, ids...)

	matches, err := svc.ListMatches(context.Background(), storage.MatchFilters{})
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	runs, err := svc.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
