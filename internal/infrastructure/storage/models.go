package storage

import (
	"time"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// RunStatus is the lifecycle state of an auto-reconcile pass
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunParams are the inputs recorded when a pass starts
type RunParams struct {
	Window               ledger.Window
	AutoConfirmThreshold float64
}

// RunOutcome is recorded when a pass ends
type RunOutcome struct {
	Confirmed      int
	Suggested      int
	StillUnmatched int
	Conflicts      int
	Status         RunStatus
	ErrorMessage   string
}

// Run represents a reconcile run record
type Run struct {
	ID                   int64      `json:"id"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	MaxDateDeltaDays     int        `json:"max_date_delta_days"`
	MaxAmountDeltaRatio  float64    `json:"max_amount_delta_ratio"`
	AutoConfirmThreshold float64    `json:"auto_confirm_threshold"`
	Confirmed            int        `json:"confirmed"`
	Suggested            int        `json:"suggested"`
	StillUnmatched       int        `json:"still_unmatched"`
	Conflicts            int        `json:"conflicts"`
	Status               RunStatus  `json:"status"`
	ErrorMessage         string     `json:"error_message,omitempty"`
}

// Text layouts used for SQLite columns. Timestamps are fixed width so they
// sort lexically.
const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const defaultListLimit = 50
