package cli

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// PassFlags override the configured window and threshold for one pass.
// Zero values keep the configured defaults.
type PassFlags struct {
	Days      int
	Ratio     float64
	Threshold float64
	JSON      bool
}

// Resolve applies the overrides to the configured window and threshold.
func (f PassFlags) Resolve(window ledger.Window, threshold float64) (ledger.Window, float64) {
	if f.Days != 0 {
		window.MaxDateDeltaDays = f.Days
	}
	if f.Ratio != 0 {
		window.MaxAmountDeltaRatio = f.Ratio
	}
	if f.Threshold != 0 {
		threshold = f.Threshold
	}
	return window, threshold
}

// ParsePassFlags parses flags for the run command
func ParsePassFlags(args []string, stderr io.Writer) (PassFlags, error) {
	var flags PassFlags
	fs := newFlagSet("run", stderr)
	fs.IntVar(&flags.Days, "days", 0, "Max date distance in days (0 = configured)")
	fs.Float64Var(&flags.Ratio, "ratio", 0, "Max relative amount difference (0 = configured)")
	fs.Float64Var(&flags.Threshold, "threshold", 0, "Auto-confirm threshold in (0,1] (0 = configured)")
	fs.BoolVar(&flags.JSON, "json", false, "Print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, noExtraArgs(fs)
}

// ListFlags are shared by the listing commands
type ListFlags struct {
	Kind   string
	AsOf   time.Time
	Active bool
	Origin string
	Limit  int
	Offset int
	JSON   bool
}

// ParseUnmatchedFlags parses flags for the unmatched command
func ParseUnmatchedFlags(args []string, stderr io.Writer) (ListFlags, error) {
	var flags ListFlags
	var asOf string
	fs := newFlagSet("unmatched", stderr)
	fs.StringVar(&flags.Kind, "kind", "", "Entry kind: bank, sales, purchase (empty = all)")
	fs.StringVar(&asOf, "as-of", "", "Only entries dated on or before YYYY-MM-DD")
	fs.BoolVar(&flags.JSON, "json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if asOf != "" {
		t, err := time.Parse("2006-01-02", asOf)
		if err != nil {
			return flags, fmt.Errorf("-as-of must be YYYY-MM-DD: %w", err)
		}
		flags.AsOf = t
	}
	return flags, noExtraArgs(fs)
}

// ParseMatchesFlags parses flags for the matches command
func ParseMatchesFlags(args []string, stderr io.Writer) (ListFlags, error) {
	var flags ListFlags
	fs := newFlagSet("matches", stderr)
	fs.BoolVar(&flags.Active, "active", false, "Only active matches")
	fs.StringVar(&flags.Origin, "origin", "", "automatic or manual (empty = all)")
	fs.IntVar(&flags.Limit, "limit", 50, "Maximum matches to list")
	fs.IntVar(&flags.Offset, "offset", 0, "Pagination offset")
	fs.BoolVar(&flags.JSON, "json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, noExtraArgs(fs)
}

// ParseRunsFlags parses flags for the runs command
func ParseRunsFlags(args []string, stderr io.Writer) (ListFlags, error) {
	var flags ListFlags
	fs := newFlagSet("runs", stderr)
	fs.IntVar(&flags.Limit, "limit", 20, "Maximum runs to list")
	fs.BoolVar(&flags.JSON, "json", false, "Print as JSON")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, noExtraArgs(fs)
}

// ServeFlags holds the CLI flags for the serve command.
type ServeFlags struct {
	Port int
}

// ParseServeFlags parses command line flags for the serve command.
func ParseServeFlags(args []string, defaultPort int, stderr io.Writer) (ServeFlags, error) {
	var flags ServeFlags
	fs := newFlagSet("serve", stderr)
	fs.IntVar(&flags.Port, "port", defaultPort, "Port to listen on")
	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	return flags, noExtraArgs(fs)
}

// ParseOutputFlag parses a single -out flag, used by report
func ParseOutputFlag(name string, args []string, defaultPath string, stderr io.Writer) (string, error) {
	var out string
	fs := newFlagSet(name, stderr)
	fs.StringVar(&out, "out", defaultPath, "Output file path")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return out, noExtraArgs(fs)
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func noExtraArgs(fs *flag.FlagSet) error {
	if fs.NArg() > 0 {
		return fmt.Errorf("%s: unexpected arguments: %v", fs.Name(), fs.Args())
	}
	return nil
}
