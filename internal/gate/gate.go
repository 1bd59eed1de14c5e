// Package gate provides the process-wide exclusive section that serializes
// ledger mutation (sequence scan, catalog lookup, append).
package gate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"moledger/internal/models"
)

// Gate is a single-holder lock acquired with a bounded wait.
type Gate struct {
	sem *semaphore.Weighted
}

// New returns an unlocked gate.
func New() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is held or wait elapses. On timeout it returns
// an error wrapping models.ErrLockTimeout. The returned release func must be
// called exactly once; it is safe to defer.
func (g *Gate) Acquire(ctx context.Context, wait time.Duration) (release func(), err error) {
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.ErrLockTimeout
		}
		return nil, err
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.sem.Release(1)
	}, nil
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, wait time.Duration, fn func() error) error {
	release, err := g.Acquire(ctx, wait)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
