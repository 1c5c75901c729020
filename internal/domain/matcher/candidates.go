package matcher

import (
	"iter"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Generate enumerates the plausible counterparts of entry in pool.
//
// The sequence is lazy and single pass; call Generate again to re-derive it.
// Candidates are returned unscored. Entries with a zero amount never
// produce or receive candidates.
func Generate(entry ledger.Entry, pool []ledger.Entry, window ledger.Window) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if entry.Amount == 0 || entry.Reconciled {
			return
		}

		for _, other := range pool {
			if other.Reconciled || other.Amount == 0 {
				continue
			}
			if !Compatible(entry, other) {
				continue
			}

			delta := ledger.DaysBetween(entry.Date, other.Date)
			if delta > window.MaxDateDeltaDays {
				continue
			}

			if !withinAmount(entry.Amount, other.Amount, window.MaxAmountDeltaRatio) {
				continue
			}

			if !yield(Candidate{SourceID: entry.ID, TargetID: other.ID, DateDelta: delta}) {
				return
			}
		}
	}
}

// Compatible reports whether a and b may describe the same cash movement.
//
// Bank transactions pair with invoices of either kind. Two bank transactions
// pair only as an inter-account transfer: opposite signs, same currency and,
// when both account ids are known, different accounts. Invoices never pair
// with invoices.
func Compatible(a, b ledger.Entry) bool {
	if a.ID == b.ID {
		return false
	}
	if a.Currency != "" && b.Currency != "" && a.Currency != b.Currency {
		return false
	}

	aBank := a.Kind == ledger.KindBankTransaction
	bBank := b.Kind == ledger.KindBankTransaction

	switch {
	case aBank && bBank:
		if (a.Amount > 0) == (b.Amount > 0) {
			return false
		}
		if a.AccountID != "" && b.AccountID != "" && a.AccountID == b.AccountID {
			return false
		}
		return true
	case aBank && b.Kind.IsInvoice(), bBank && a.Kind.IsInvoice():
		return true
	}
	return false
}

// withinAmount applies the amount tolerance relative to the counterpart amount.
// Opposite-sign amounts that cancel out within tolerance also qualify, which
// covers an invoice paid by a matching outflow.
func withinAmount(entryAmount, otherAmount int64, ratio float64) bool {
	denom := float64(max(abs64(otherAmount), 1))

	same := float64(abs64(otherAmount-entryAmount)) / denom
	if same <= ratio {
		return true
	}

	if (entryAmount > 0) != (otherAmount > 0) {
		summed := float64(abs64(otherAmount+entryAmount)) / denom
		return summed <= ratio
	}
	return false
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
