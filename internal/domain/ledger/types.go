// Package ledger defines the records the reconciliation engine works on:
// ledger entries supplied by the bookkeeping layer and the matches that
// explain them.
//
// Entries are immutable snapshots. The only mutable part of an entry,
// its Reconciled flag, is derived by the reconciliation store from the
// set of active matches and is never written by callers.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which pool an entry belongs to
type Kind string

const (
	KindBankTransaction Kind = "bank_transaction"
	KindSalesInvoice    Kind = "sales_invoice"
	KindPurchaseInvoice Kind = "purchase_invoice"
)

// ParseKind converts a user-supplied string into a Kind.
// An empty string is returned as the empty Kind, meaning "any kind".
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindBankTransaction, KindSalesInvoice, KindPurchaseInvoice:
		return Kind(s), nil
	case "bank":
		return KindBankTransaction, nil
	case "sales":
		return KindSalesInvoice, nil
	case "purchase":
		return KindPurchaseInvoice, nil
	}
	return "", fmt.Errorf("unknown entry kind: %q", s)
}

// IsInvoice reports whether the kind is one of the invoice pools
func (k Kind) IsInvoice() bool {
	return k == KindSalesInvoice || k == KindPurchaseInvoice
}

// Entry unifies bank transactions and invoices for matching purposes.
type Entry struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	AccountID   string    `json:"account_id,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Date        time.Time `json:"date"`
	Amount      int64     `json:"amount_cents"` // minor units, positive = inflow
	Description string    `json:"description"`
	Reconciled  bool      `json:"reconciled"`
}

// Day truncates t to a UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := Day(a).Sub(Day(b)).Hours() / 24
	if diff < 0 {
		diff = -diff
	}
	return int(diff + 0.5)
}

// Origin records how a match came to exist
type Origin string

const (
	OriginAutomatic Origin = "automatic"
	OriginManual    Origin = "manual"
)

// Match is a confirmed reconciliation of two or more entries.
// A match is never edited after creation; reversal only stamps ReversedAt.
type Match struct {
	ID         string     `json:"id"`
	EntryIDs   []string   `json:"entry_ids"`
	Confidence float64    `json:"confidence"`
	Origin     Origin     `json:"origin"`
	CreatedAt  time.Time  `json:"created_at"`
	ReversedAt *time.Time `json:"reversed_at,omitempty"`
}

// Active reports whether the match still binds its entries
func (m *Match) Active() bool {
	return m.ReversedAt == nil
}

// NewMatchID generates a fresh match identifier
func NewMatchID() string {
	return uuid.NewString()
}

// NewMatch builds an unsaved match for the given entries.
// Duplicate ids are dropped while preserving the first-seen order.
func NewMatch(entryIDs []string, confidence float64, origin Origin, now time.Time) *Match {
	seen := make(map[string]bool, len(entryIDs))
	ids := make([]string, 0, len(entryIDs))
	for _, id := range entryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	return &Match{
		ID:         NewMatchID(),
		EntryIDs:   ids,
		Confidence: confidence,
		Origin:     origin,
		CreatedAt:  now.UTC(),
	}
}
