package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eshaffer321/reconcile/internal/application/service"
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
)

// PrintJSON writes v as indented JSON
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// PrintSummary prints the pass result summary
func PrintSummary(w io.Writer, summary *service.Summary) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Run %d: Confirmed=%d Suggested=%d Unmatched=%d Conflicts=%d\n",
		summary.RunID,
		summary.Confirmed,
		summary.Suggested,
		summary.StillUnmatched,
		summary.Conflicts)

	if len(summary.Matches) > 0 {
		fmt.Fprintln(w, "\nConfirmed:")
		tw := newTable(w)
		for _, m := range summary.Matches {
			fmt.Fprintf(tw, "  %s\t%s\t%.2f\n", m.ID, strings.Join(m.EntryIDs, " + "), m.Confidence)
		}
		_ = tw.Flush()
	}

	if len(summary.Suggestions) > 0 {
		fmt.Fprintln(w, "\nFor review:")
		tw := newTable(w)
		for _, s := range summary.Suggestions {
			kind := "pair"
			if s.Split {
				kind = "split"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%.2f\n", kind, strings.Join(s.EntryIDs, " + "), s.Score)
		}
		_ = tw.Flush()
	}

	if len(summary.ConflictEntryIDs) > 0 {
		fmt.Fprintf(w, "\nConflicts on: %s\n", strings.Join(summary.ConflictEntryIDs, ", "))
	}
}

// PrintEntries prints entries as a table with decimal amounts
func PrintEntries(w io.Writer, entries []ledger.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No entries.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tKIND\tDATE\tAMOUNT\tDESCRIPTION")
	var total int64
	for _, e := range entries {
		total += e.Amount
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Kind, e.Date.Format("2006-01-02"), ledger.FormatAmount(e.Amount), e.Description)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d entries, net %s\n", len(entries), ledger.FormatAmount(total))
}

// PrintMatch prints one match
func PrintMatch(w io.Writer, m *ledger.Match) {
	state := "active"
	if !m.Active() {
		state = "reversed " + m.ReversedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "Match %s (%s, %.2f, %s)\n  entries: %s\n",
		m.ID, m.Origin, m.Confidence, state, strings.Join(m.EntryIDs, ", "))
}

// PrintMatches prints matches as a table
func PrintMatches(w io.Writer, matches []*ledger.Match) {
	if len(matches) == 0 {
		fmt.Fprintln(w, "No matches.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tORIGIN\tCONFIDENCE\tCREATED\tSTATE\tENTRIES")
	for _, m := range matches {
		state := "active"
		if !m.Active() {
			state = "reversed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\n",
			m.ID, m.Origin, m.Confidence, m.CreatedAt.Format("2006-01-02 15:04"), state, strings.Join(m.EntryIDs, ", "))
	}
	_ = tw.Flush()
}

// PrintRuns prints run history as a table
func PrintRuns(w io.Writer, runs []storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tCONFIRMED\tSUGGESTED\tUNMATCHED\tCONFLICTS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
			r.Confirmed, r.Suggested, r.StillUnmatched, r.Conflicts)
	}
	_ = tw.Flush()
}
