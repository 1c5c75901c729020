package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Storage provides SQLite database access for the reconciliation ledger.
// It implements the Repository interface.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	dsn := dbPath + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// One connection keeps transactions serialized and lets ":memory:" work
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db, now: time.Now}

	// Run all pending migrations
	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// classify maps driver and context errors onto the ledger error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ledger.StorageTimeoutError{Op: op, Err: err}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &ledger.StorageTimeoutError{Op: op, Err: err}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// ================================================================
// ENTRIES
// ================================================================

// UpsertEntries stores or refreshes a snapshot of entries
func (s *Storage) UpsertEntries(ctx context.Context, entries []ledger.Entry) error {
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry without id")
		}
		if _, err := ledger.ParseKind(string(e.Kind)); err != nil || e.Kind == "" {
			return fmt.Errorf("entry %s: invalid kind %q", e.ID, e.Kind)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("upsert entries", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, kind, account_id, currency, entry_date, amount, description, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			account_id = excluded.account_id,
			currency = excluded.currency,
			entry_date = excluded.entry_date,
			amount = excluded.amount,
			description = excluded.description,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return classify("upsert entries", err)
	}
	defer func() { _ = stmt.Close() }()

	updatedAt := s.now().UTC().Format(timestampLayout)
	for _, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.ID,
			string(e.Kind),
			e.AccountID,
			e.Currency,
			ledger.Day(e.Date).Format(dateLayout),
			e.Amount,
			e.Description,
			updatedAt,
		)
		if err != nil {
			return classify("upsert entries", err)
		}
	}

	return classify("upsert entries", tx.Commit())
}

const entryColumns = `
	e.id, e.kind, e.account_id, e.currency, e.entry_date, e.amount, e.description,
	EXISTS (SELECT 1 FROM match_entries me WHERE me.entry_id = e.id AND me.active = 1)
`

// GetEntries returns entries in the order of ids
func (s *Storage) GetEntries(ctx context.Context, ids []string) ([]ledger.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + entryColumns + ` FROM entries e WHERE e.id IN (` + placeholders(len(ids)) + `)`
	found, err := s.queryEntries(ctx, "get entries", query, stringArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]ledger.Entry, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	out := make([]ledger.Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, &ledger.NotFoundError{Resource: "entry", ID: id}
		}
		out = append(out, e)
	}
	return out, nil
}

// UnreconciledEntries returns entries with no active match, oldest first
func (s *Storage) UnreconciledEntries(ctx context.Context, kind ledger.Kind, asOf time.Time) ([]ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries e
		WHERE NOT EXISTS (SELECT 1 FROM match_entries me WHERE me.entry_id = e.id AND me.active = 1)`
	var args []any

	if kind != "" {
		query += ` AND e.kind = ?`
		args = append(args, string(kind))
	}
	if !asOf.IsZero() {
		query += ` AND e.entry_date <= ?`
		args = append(args, ledger.Day(asOf).Format(dateLayout))
	}
	query += ` ORDER BY e.entry_date ASC, e.id ASC`

	return s.queryEntries(ctx, "unreconciled entries", query, args...)
}

// queryRower is satisfied by both *sql.DB and *sql.Tx
type queryRower interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Storage) queryEntries(ctx context.Context, op, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var kind, date string
		if err := rows.Scan(&e.ID, &kind, &e.AccountID, &e.Currency, &date, &e.Amount, &e.Description, &e.Reconciled); err != nil {
			return nil, classify(op, err)
		}
		e.Kind = ledger.Kind(kind)
		e.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %s has malformed date %q: %w", op, e.ID, date, err)
		}
		entries = append(entries, e)
	}

	return entries, classify(op, rows.Err())
}
