package matcher

import (
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Score weights. Changing them changes every stored confidence, so they are
// constants rather than configuration.
const (
	AmountWeight      = 0.5
	DateWeight        = 0.3
	DescriptionWeight = 0.2
)

// Scorer assigns a confidence in [0,1] to a pair of entries
type Scorer struct {
	window ledger.Window
}

// NewScorer creates a scorer for the given window
func NewScorer(window ledger.Window) *Scorer {
	return &Scorer{window: window}
}

// Score returns the weighted sum of the amount, date and description terms.
func (s *Scorer) Score(a, b ledger.Entry) float64 {
	amount := AmountTerm(a.Amount, b.Amount)
	date := DateTerm(ledger.DaysBetween(a.Date, b.Date), s.window.MaxDateDeltaDays)
	desc := DescriptionTerm(a.Description, b.Description)
	return combine(amount, date, desc)
}

// combine rounds every product explicitly so the compiler cannot fuse the
// multiply-adds; results are then identical on every architecture.
func combine(amount, date, desc float64) float64 {
	total := float64(AmountWeight*amount) + float64(DateWeight*date)
	total = float64(total) + float64(DescriptionWeight*desc)
	return clamp01(total)
}

// AmountTerm is 1 for equal amounts (sign-insensitive) and decays linearly
// with the difference relative to the larger amount.
func AmountTerm(a, b int64) float64 {
	diff := min(abs64(a-b), abs64(a+b))
	denom := max(abs64(a), abs64(b), 1)
	return 1 - min(1, float64(diff)/float64(denom))
}

// DateTerm is 1 for same-day entries and 0 at or beyond the window edge.
func DateTerm(deltaDays, maxDays int) float64 {
	if maxDays <= 0 {
		if deltaDays == 0 {
			return 1
		}
		return 0
	}
	return 1 - min(1, float64(deltaDays)/float64(maxDays))
}

// DescriptionTerm is the token-set overlap (intersection over union) of the
// normalized descriptions; 0 when either is empty.
func DescriptionTerm(a, b string) float64 {
	ta := tokenSet(Tokenize(a))
	tb := tokenSet(Tokenize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	shared := 0
	for tok := range ta {
		if tb[tok] {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
