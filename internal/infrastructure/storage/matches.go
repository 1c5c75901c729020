package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Confirm persists a match and its memberships in one transaction.
//
// The partial unique index on active memberships backs the application-level
// check, so a concurrent writer that slips past the check still conflicts.
func (s *Storage) Confirm(ctx context.Context, m *ledger.Match) (string, error) {
	if m == nil || len(m.EntryIDs) < 2 {
		return "", ledger.ErrInvalidMatch
	}
	if m.ID == "" {
		m.ID = ledger.NewMatchID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify("confirm", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Every member must be a known entry
	var known int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE id IN (`+placeholders(len(m.EntryIDs))+`)`,
		stringArgs(m.EntryIDs)...,
	).Scan(&known)
	if err != nil {
		return "", classify("confirm", err)
	}
	if known != len(m.EntryIDs) {
		missing, err := missingEntry(ctx, tx, m.EntryIDs)
		if err != nil {
			return "", classify("confirm", err)
		}
		return "", &ledger.NotFoundError{Resource: "entry", ID: missing}
	}

	// None may be held by an active match
	rows, err := tx.QueryContext(ctx,
		`SELECT entry_id FROM match_entries WHERE active = 1 AND entry_id IN (`+placeholders(len(m.EntryIDs))+`) ORDER BY entry_id`,
		stringArgs(m.EntryIDs)...,
	)
	if err != nil {
		return "", classify("confirm", err)
	}
	var held []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return "", classify("confirm", err)
		}
		held = append(held, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return "", classify("confirm", err)
	}
	if len(held) > 0 {
		return "", &ledger.ConflictError{EntryIDs: held}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, confidence, origin, created_at, reversed_at)
		VALUES (?, ?, ?, ?, NULL)
	`, m.ID, m.Confidence, string(m.Origin), m.CreatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return "", classify("confirm", err)
	}

	for i, entryID := range m.EntryIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO match_entries (match_id, entry_id, position, active)
			VALUES (?, ?, ?, 1)
		`, m.ID, entryID, i)
		if err != nil {
			if isUniqueViolation(err) {
				return "", &ledger.ConflictError{EntryIDs: []string{entryID}}
			}
			return "", classify("confirm", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", classify("confirm", err)
	}
	return m.ID, nil
}

func missingEntry(ctx context.Context, q queryRower, ids []string) (string, error) {
	for _, id := range ids {
		var one int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no missing entry among %v", ids)
}

// Reverse marks a match reversed and releases its entries
func (s *Storage) Reverse(ctx context.Context, matchID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("reverse", err)
	}
	defer func() { _ = tx.Rollback() }()

	var reversedAt sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT reversed_at FROM matches WHERE id = ?`, matchID).Scan(&reversedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &ledger.NotFoundError{Resource: "match", ID: matchID}
	}
	if err != nil {
		return classify("reverse", err)
	}
	if reversedAt.Valid {
		return &ledger.AlreadyReversedError{MatchID: matchID}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE matches SET reversed_at = ? WHERE id = ? AND reversed_at IS NULL`,
		at.UTC().Format(timestampLayout), matchID,
	); err != nil {
		return classify("reverse", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE match_entries SET active = 0 WHERE match_id = ?`, matchID,
	); err != nil {
		return classify("reverse", err)
	}

	return classify("reverse", tx.Commit())
}

// GetMatch retrieves a match by id
func (s *Storage) GetMatch(ctx context.Context, matchID string) (*ledger.Match, error) {
	m, err := s.loadMatch(ctx, s.db, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Resource: "match", ID: matchID}
	}
	if err != nil {
		return nil, classify("get match", err)
	}
	return m, nil
}

// ActiveMatch returns the active match holding entryID, or nil if the entry
// is unreconciled. Finding more than one is reported as an invariant violation.
func (s *Storage) ActiveMatch(ctx context.Context, entryID string) (*ledger.Match, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE id = ?`, entryID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ledger.NotFoundError{Resource: "entry", ID: entryID}
	}
	if err != nil {
		return nil, classify("active match", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT me.match_id FROM match_entries me
		JOIN matches m ON m.id = me.match_id
		WHERE me.entry_id = ? AND me.active = 1 AND m.reversed_at IS NULL
	`, entryID)
	if err != nil {
		return nil, classify("active match", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, classify("active match", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify("active match", err)
	}

	switch len(ids) {
	case 0:
		return nil, nil
	case 1:
		return s.GetMatch(ctx, ids[0])
	default:
		return nil, fmt.Errorf("entry %s held by %v: %w", entryID, ids, ledger.ErrInvariantViolation)
	}
}

// ListMatches returns matches newest first
func (s *Storage) ListMatches(ctx context.Context, filters MatchFilters) ([]*ledger.Match, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT id FROM matches WHERE 1 = 1`
	var args []any
	if filters.ActiveOnly {
		query += ` AND reversed_at IS NULL`
	}
	if filters.Origin != "" {
		query += ` AND origin = ?`
		args = append(args, string(filters.Origin))
	}
	query += ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, filters.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list matches", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, classify("list matches", err)
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify("list matches", err)
	}

	matches := make([]*ledger.Match, 0, len(ids))
	for _, id := range ids {
		m, err := s.loadMatch(ctx, s.db, id)
		if err != nil {
			return nil, classify("list matches", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// loadMatch reads a match row and its members ordered by position
func (s *Storage) loadMatch(ctx context.Context, q queryRower, matchID string) (*ledger.Match, error) {
	m := &ledger.Match{ID: matchID}
	var origin, createdAt string
	var reversedAt sql.NullString

	err := q.QueryRowContext(ctx,
		`SELECT confidence, origin, created_at, reversed_at FROM matches WHERE id = ?`, matchID,
	).Scan(&m.Confidence, &origin, &createdAt, &reversedAt)
	if err != nil {
		return nil, err
	}
	m.Origin = ledger.Origin(origin)

	if m.CreatedAt, err = time.Parse(timestampLayout, createdAt); err != nil {
		return nil, fmt.Errorf("match %s: malformed created_at: %w", matchID, err)
	}
	if reversedAt.Valid {
		t, err := time.Parse(timestampLayout, reversedAt.String)
		if err != nil {
			return nil, fmt.Errorf("match %s: malformed reversed_at: %w", matchID, err)
		}
		m.ReversedAt = &t
	}

	rows, err := q.QueryContext(ctx,
		`SELECT entry_id FROM match_entries WHERE match_id = ? ORDER BY position ASC`, matchID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		m.EntryIDs = append(m.EntryIDs, id)
	}
	return m, rows.Err()
}
