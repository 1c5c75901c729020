package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. The typed errors below match these through errors.Is.
var (
	ErrConflict           = errors.New("entry already reconciled")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyReversed    = errors.New("match already reversed")
	ErrInvalidWindow      = errors.New("invalid matching window")
	ErrStorageTimeout     = errors.New("storage timeout")
	ErrInvalidMatch       = errors.New("a match needs at least two distinct entries")
	ErrInvariantViolation = errors.New("entry bound to more than one active match")
)

// ConflictError is returned when an entry is already held by an active match.
type ConflictError struct {
	EntryIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("entry already reconciled: %s", strings.Join(e.EntryIDs, ", "))
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError is returned for unknown entry or match ids.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyReversedError is returned when reversing an inactive match.
type AlreadyReversedError struct {
	MatchID string
}

func (e *AlreadyReversedError) Error() string {
	return fmt.Sprintf("match %q already reversed", e.MatchID)
}

func (e *AlreadyReversedError) Is(target error) bool { return target == ErrAlreadyReversed }

// InvalidWindowError reports a non-positive or out-of-range tolerance.
type InvalidWindowError struct {
	Field string
	Value float64
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid matching window: %s = %v", e.Field, e.Value)
}

func (e *InvalidWindowError) Is(target error) bool { return target == ErrInvalidWindow }

// StorageTimeoutError reports that the ledger store did not answer in time.
type StorageTimeoutError struct {
	Op  string
	Err error
}

func (e *StorageTimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage timeout during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage timeout during %s", e.Op)
}

func (e *StorageTimeoutError) Is(target error) bool { return target == ErrStorageTimeout }

func (e *StorageTimeoutError) Unwrap() error { return e.Err }
