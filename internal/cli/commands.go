package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
	"github.com/eshaffer321/reconcile/internal/infrastructure/storage"
	"github.com/eshaffer321/reconcile/internal/report"
)

// ErrUsage marks a command invoked with bad arguments
var ErrUsage = errors.New("usage error")

// Command runs one subcommand against a wired App
type Command func(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error

// Commands maps subcommand names to their implementation. serve lives in
// serve.go because it blocks until a signal arrives.
var Commands = map[string]Command{
	"load":      RunLoad,
	"run":       RunPass,
	"match":     RunMatch,
	"reverse":   RunReverse,
	"unmatched": RunUnmatched,
	"matches":   RunMatches,
	"runs":      RunRuns,
	"report":    RunReport,
	"serve":     RunServe,
}

// RunLoad handles: load <file.json|file.csv>...
func RunLoad(ctx context.Context, app *App, args []string, stdout, _ io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: load needs at least one entries file", ErrUsage)
	}

	total := 0
	for _, path := range args {
		entries, err := ReadEntriesFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := app.Service.LoadEntries(ctx, entries); err != nil {
			return err
		}
		total += len(entries)
		fmt.Fprintf(stdout, "Loaded %d entries from %s\n", len(entries), path)
	}
	if len(args) > 1 {
		fmt.Fprintf(stdout, "Loaded %d entries in total\n", total)
	}
	return nil
}

// RunPass handles: run [-days N] [-ratio R] [-threshold T] [-json]
func RunPass(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	flags, err := ParsePassFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	window, threshold := flags.Resolve(app.Service.DefaultWindow(), app.Service.DefaultThreshold())
	summary, err := app.Service.RunAutoReconcile(ctx, window, threshold)
	if summary != nil {
		if flags.JSON {
			_ = PrintJSON(stdout, summary)
		} else {
			PrintSummary(stdout, summary)
		}
	}
	return err
}

// RunMatch handles: match <entry-id> <entry-id>...
func RunMatch(ctx context.Context, app *App, args []string, stdout, _ io.Writer) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: match needs at least two entry ids", ErrUsage)
	}

	match, err := app.Service.ConfirmManualMatch(ctx, args)
	if err != nil {
		return err
	}
	PrintMatch(stdout, match)
	return nil
}

// RunReverse handles: reverse <match-id>
func RunReverse(ctx context.Context, app *App, args []string, stdout, _ io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: reverse needs exactly one match id", ErrUsage)
	}

	match, err := app.Service.ReverseMatch(ctx, args[0])
	if err != nil {
		return err
	}
	PrintMatch(stdout, match)
	return nil
}

// RunUnmatched handles: unmatched [-kind K] [-as-of DATE] [-json]
func RunUnmatched(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	flags, err := ParseUnmatchedFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	kind, err := ledger.ParseKind(flags.Kind)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	entries, err := app.Service.UnreconciledEntries(ctx, kind, flags.AsOf)
	if err != nil {
		return err
	}
	if flags.JSON {
		return PrintJSON(stdout, entries)
	}
	PrintEntries(stdout, entries)
	return nil
}

// RunMatches handles: matches [-active] [-origin O] [-limit N] [-offset N] [-json]
func RunMatches(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	flags, err := ParseMatchesFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	matches, err := app.Service.ListMatches(ctx, storage.MatchFilters{
		ActiveOnly: flags.Active,
		Origin:     ledger.Origin(flags.Origin),
		Limit:      flags.Limit,
		Offset:     flags.Offset,
	})
	if err != nil {
		return err
	}
	if flags.JSON {
		return PrintJSON(stdout, matches)
	}
	PrintMatches(stdout, matches)
	return nil
}

// RunRuns handles: runs [-limit N] [-json]
func RunRuns(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	flags, err := ParseRunsFlags(args, stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	runs, err := app.Service.ListRuns(ctx, flags.Limit)
	if err != nil {
		return err
	}
	if flags.JSON {
		return PrintJSON(stdout, runs)
	}
	PrintRuns(stdout, runs)
	return nil
}

// RunReport handles: report [-out file.xlsx]
func RunReport(ctx context.Context, app *App, args []string, stdout, stderr io.Writer) error {
	out, err := ParseOutputFlag("report", args, "reconcile-report.xlsx", stderr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	data, err := report.Collect(ctx, app.Service, time.Now())
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := report.WriteWorkbook(f, data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %s (%d unreconciled, %d matches)\n", out, len(data.Unreconciled), len(data.Matches))
	return nil
}
