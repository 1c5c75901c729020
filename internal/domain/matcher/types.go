package matcher

import (
	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// Config holds matcher configuration
type Config struct {
	Window               ledger.Window
	AutoConfirmThreshold float64 // Default: 0.85
	Workers              int     // Parallel candidate generation (default: 4)
	SplitSuggestions     bool    // Look for invoices settled by several payments
	MaxSplitParts        int     // Upper bound on payments per split suggestion (default: 3)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Window:               ledger.DefaultWindow(),
		AutoConfirmThreshold: ledger.DefaultAutoConfirmThreshold,
		Workers:              4,
		SplitSuggestions:     true,
		MaxSplitParts:        3,
	}
}

// Validate checks the window and threshold
func (c Config) Validate() error {
	if err := c.Window.Validate(); err != nil {
		return err
	}
	return ledger.ValidateThreshold(c.AutoConfirmThreshold)
}

// Candidate is a proposed pairing of two distinct entries.
type Candidate struct {
	SourceID  string  `json:"source_id"`
	TargetID  string  `json:"target_id"`
	Score     float64 `json:"score"`
	DateDelta int     `json:"date_delta_days"`
}

// EntryIDs returns the pair as a slice, source first
func (c Candidate) EntryIDs() []string {
	return []string{c.SourceID, c.TargetID}
}

// Suggestion is a pairing surfaced for manual review, never auto-confirmed.
type Suggestion struct {
	EntryIDs []string `json:"entry_ids"`
	Score    float64  `json:"score"`
	Split    bool     `json:"split,omitempty"` // many-to-one group
}

// Assignment is the outcome of walking a ranked candidate list
type Assignment struct {
	Confirmed   []Candidate
	Conflicts   []Candidate
	Suggestions []Suggestion
	Taken       map[string]bool // entry ids consumed during the walk
}
