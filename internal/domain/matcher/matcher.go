// Package matcher pairs bank transactions with the invoices or transfers
// that explain them.
//
// Matching is a global greedy assignment:
//   - every unreconciled bank transaction generates candidates within the window
//   - candidates are scored and ranked best first
//   - the ranked list is walked once; a candidate is confirmed only if both
//     entries are still free and the score reaches the auto-confirm threshold
//   - lower scoring candidates are surfaced as suggestions, never confirmed
//
// Example usage:
//
//	m := matcher.NewMatcher(matcher.DefaultConfig())
//	ranked, err := m.Candidates(ctx, snapshot)
//	result, err := m.Assign(ctx, ranked, func(c matcher.Candidate) error {
//		return store.Confirm(ctx, ...)
//	})
package matcher

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// ConfirmFunc commits a single candidate as a match.
// Returning an error matching ledger.ErrConflict marks the conflicting
// entries as taken and lets the walk continue; any other error stops it.
type ConfirmFunc func(c Candidate) error

// Matcher turns a snapshot of unreconciled entries into matches
type Matcher struct {
	config Config
	scorer *Scorer
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(config Config) *Matcher {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &Matcher{
		config: config,
		scorer: NewScorer(config.Window),
	}
}

// Config returns the matcher configuration
func (m *Matcher) Config() Config {
	return m.config
}

// Candidates generates and scores candidates for every unreconciled bank
// transaction in the snapshot, then ranks them best first.
//
// Generation runs in parallel across source entries; the snapshot is only read.
func (m *Matcher) Candidates(ctx context.Context, snapshot []ledger.Entry) ([]Candidate, error) {
	var sources []ledger.Entry
	for _, e := range snapshot {
		if e.Kind == ledger.KindBankTransaction && !e.Reconciled && e.Amount != 0 {
			sources = append(sources, e)
		}
	}

	byID := make(map[string]ledger.Entry, len(snapshot))
	for _, e := range snapshot {
		byID[e.ID] = e
	}

	perSource := make([][]Candidate, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.config.Workers)

	for i, src := range sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var out []Candidate
			for c := range Generate(src, snapshot, m.config.Window) {
				target := byID[c.TargetID]
				c.Score = m.scorer.Score(src, target)
				// Transfers are found from both ends; orient them by id
				if target.Kind == ledger.KindBankTransaction && c.TargetID < c.SourceID {
					c.SourceID, c.TargetID = c.TargetID, c.SourceID
				}
				out = append(out, c)
			}
			perSource[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[[2]string]bool)
	var all []Candidate
	for _, cs := range perSource {
		for _, c := range cs {
			key := [2]string{c.SourceID, c.TargetID}
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, c)
		}
	}
	Rank(all)
	return all, nil
}

// Rank sorts candidates by descending score, then smaller date delta, then
// source id and target id, giving a total order.
func Rank(candidates []Candidate) {
	slices.SortFunc(candidates, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DateDelta, b.DateDelta); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SourceID, b.SourceID); c != 0 {
			return c
		}
		return cmp.Compare(a.TargetID, b.TargetID)
	})
}

// Assign walks ranked candidates once and confirms each one whose entries
// are both still free and whose score reaches the threshold.
//
// The walk never backtracks. Context cancellation is checked before every
// confirmation; confirmations already made stay in the result. When the walk
// stops early the partial assignment is returned together with the error.
func (m *Matcher) Assign(ctx context.Context, ranked []Candidate, confirm ConfirmFunc) (*Assignment, error) {
	result := &Assignment{
		Taken: make(map[string]bool),
	}

	var below []Candidate

	for _, c := range ranked {
		if c.Score < m.config.AutoConfirmThreshold {
			below = append(below, c)
			continue
		}
		if result.Taken[c.SourceID] || result.Taken[c.TargetID] {
			continue
		}

		if err := ctx.Err(); err != nil {
			result.Suggestions = m.suggestions(below, result.Taken)
			return result, err
		}

		if err := confirm(c); err != nil {
			var conflict *ledger.ConflictError
			if errors.As(err, &conflict) {
				result.Conflicts = append(result.Conflicts, c)
				ids := conflict.EntryIDs
				if len(ids) == 0 {
					ids = c.EntryIDs()
				}
				for _, id := range ids {
					result.Taken[id] = true
				}
				continue
			}
			result.Suggestions = m.suggestions(below, result.Taken)
			return result, err
		}

		result.Confirmed = append(result.Confirmed, c)
		result.Taken[c.SourceID] = true
		result.Taken[c.TargetID] = true
	}

	result.Suggestions = m.suggestions(below, result.Taken)
	return result, nil
}

// suggestions keeps the below-threshold candidates whose entries are both
// still free, in ranked order.
func (m *Matcher) suggestions(below []Candidate, taken map[string]bool) []Suggestion {
	out := make([]Suggestion, 0, len(below))
	for _, c := range below {
		if taken[c.SourceID] || taken[c.TargetID] {
			continue
		}
		out = append(out, Suggestion{EntryIDs: c.EntryIDs(), Score: c.Score})
	}
	return out
}
