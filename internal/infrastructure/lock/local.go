package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld is returned when releasing a lease twice
var ErrNotHeld = errors.New("lock not held")

// LocalLocker is an in-process Locker
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

var _ Locker = (*LocalLocker)(nil)

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Obtain waits for the key to be free
func (l *LocalLocker) Obtain(ctx context.Context, key string) (Lease, error) {
	ch := l.slot(key)

	// Fail fast on a dead context even when the slot is free
	if err := ctx.Err(); err != nil {
		return nil, waitError(err)
	}

	select {
	case ch <- struct{}{}:
		return &localLease{ch: ch}, nil
	case <-ctx.Done():
		return nil, waitError(ctx.Err())
	}
}

type localLease struct {
	once sync.Once
	ch   chan struct{}
}

func (l *localLease) Release(ctx context.Context) error {
	released := false
	l.once.Do(func() {
		<-l.ch
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
