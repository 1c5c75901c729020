// Package lock serializes reconciliation passes and manual confirmations.
//
// A single key guards the whole ledger. LocalLocker covers one process;
// RedisLocker extends the same exclusion across processes sharing a
// Redis instance.
package lock

import (
	"context"
	"errors"

	"github.com/eshaffer321/reconcile/internal/domain/ledger"
)

// LedgerKey is the lock key every ledger mutation takes
const LedgerKey = "reconcile:ledger"

// Lease is a held lock
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases on a key.
// Obtain blocks until the lease is granted or ctx is done.
//
//go:generate mockgen -destination=mocks/mock_lock.go -source=lock.go Locker,Lease
type Locker interface {
	Obtain(ctx context.Context, key string) (Lease, error)
}

// waitError converts a context failure while waiting for a lease
func waitError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ledger.StorageTimeoutError{Op: "obtain lock", Err: err}
	}
	return err
}
