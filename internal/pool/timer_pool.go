// Package pool holds reusable timers for the hot polling and exchange paths.
package pool

import (
	"context"
	"sync"
	"time"
)

var timerPool sync.Pool

// AcquireTimer returns a timer armed for d, taken from the pool when one is available.
//
// Hand the timer back with ReleaseTimer once it is no longer selected on.
func AcquireTimer(d time.Duration) *time.Timer {
	if v := timerPool.Get(); v != nil {
		t, _ := v.(*time.Timer)
		if t.Reset(d) {
			// still active when pooled; drop a stale tick
			select {
			case <-t.C:
			default:
			}
		}

		return t
	}

	return time.NewTimer(d)
}

// ReleaseTimer stops t and returns it to the pool. t must not be used afterwards.
func ReleaseTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep pauses for d or until ctx is done, whichever happens first.
// It returns ctx.Err() when the context ended the wait.
func Sleep(ctx context.Context, d time.Duration) error {
	t := AcquireTimer(d)
	defer ReleaseTimer(t)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
