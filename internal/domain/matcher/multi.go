package matcher

import (
	"cmp"
	"slices"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// maxSplitCandidates bounds the payments considered per invoice
const maxSplitCandidates = 16

// FindSplitSuggestions looks for invoices settled by several bank
// transactions. For each free invoice it searches combinations of
// 2..MaxSplitParts free bank transactions inside the date window whose
// amounts sum exactly to the invoice amount, ignoring sign.
//
// Results are suggestions only. A bank transaction appears in at most one
// split suggestion. Invoices are visited in id order.
func (m *Matcher) FindSplitSuggestions(free []ledger.Entry) []Suggestion {
	if m.config.MaxSplitParts < 2 {
		return nil
	}

	var invoices, banks []ledger.Entry
	for _, e := range free {
		if e.Reconciled || e.Amount == 0 {
			continue
		}
		switch {
		case e.Kind.IsInvoice():
			invoices = append(invoices, e)
		case e.Kind == ledger.KindBankTransaction:
			banks = append(banks, e)
		}
	}
	slices.SortFunc(invoices, func(a, b ledger.Entry) int { return cmp.Compare(a.ID, b.ID) })

	used := make(map[string]bool)
	var out []Suggestion

	for _, inv := range invoices {
		parts := m.splitParts(inv, banks, used)
		if len(parts) == 0 {
			continue
		}

		ids := []string{inv.ID}
		for _, p := range parts {
			ids = append(ids, p.ID)
			used[p.ID] = true
		}
		out = append(out, Suggestion{
			EntryIDs: ids,
			Score:    m.splitScore(inv, parts),
			Split:    true,
		})
	}

	slices.SortStableFunc(out, func(a, b Suggestion) int { return cmp.Compare(b.Score, a.Score) })
	return out
}

// splitParts returns the first combination of payments, in closeness order,
// that adds up to the invoice total. All parts share one sign.
func (m *Matcher) splitParts(inv ledger.Entry, banks []ledger.Entry, used map[string]bool) []ledger.Entry {
	target := abs64(inv.Amount)

	var pool []ledger.Entry
	for _, b := range banks {
		if used[b.ID] || !Compatible(inv, b) {
			continue
		}
		if abs64(b.Amount) >= target {
			continue
		}
		if ledger.DaysBetween(inv.Date, b.Date) > m.config.Window.MaxDateDeltaDays {
			continue
		}
		pool = append(pool, b)
	}

	slices.SortFunc(pool, func(a, b ledger.Entry) int {
		da, db := ledger.DaysBetween(inv.Date, a.Date), ledger.DaysBetween(inv.Date, b.Date)
		if c := cmp.Compare(da, db); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(pool) > maxSplitCandidates {
		pool = pool[:maxSplitCandidates]
	}

	for _, positive := range []bool{false, true} {
		var signed []ledger.Entry
		for _, b := range pool {
			if (b.Amount > 0) == positive {
				signed = append(signed, b)
			}
		}
		for size := 2; size <= m.config.MaxSplitParts; size++ {
			if found := combination(signed, size, target); found != nil {
				return found
			}
		}
	}
	return nil
}

// combination finds size entries from pool whose absolute amounts sum to target.
func combination(pool []ledger.Entry, size int, target int64) []ledger.Entry {
	picked := make([]ledger.Entry, 0, size)

	var walk func(start int, remaining int64) bool
	walk = func(start int, remaining int64) bool {
		if len(picked) == size {
			return remaining == 0
		}
		for i := start; i < len(pool); i++ {
			amt := abs64(pool[i].Amount)
			if amt > remaining {
				continue
			}
			picked = append(picked, pool[i])
			if walk(i+1, remaining-amt) {
				return true
			}
			picked = picked[:len(picked)-1]
		}
		return false
	}

	if walk(0, target) {
		return picked
	}
	return nil
}

// splitScore uses the pair weights: exact total, widest date delta, mean
// description overlap.
func (m *Matcher) splitScore(inv ledger.Entry, parts []ledger.Entry) float64 {
	widest := 0
	desc := 0.0
	for _, p := range parts {
		widest = max(widest, ledger.DaysBetween(inv.Date, p.Date))
		desc += DescriptionTerm(inv.Description, p.Description)
	}
	desc /= float64(len(parts))

	return combine(1, DateTerm(widest, m.config.Window.MaxDateDeltaDays), desc)
}
