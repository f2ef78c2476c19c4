// Package wait decides when a page has finished loading: document ready,
// a marker element present, and no outstanding ajax requests.
package wait

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a bounded poll runs out of time.
var ErrTimeout = errors.New("timed out")

// Clock is the time source for polling.
type Clock interface {
	Now() time.Time
	// Sleep pauses for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Condition reports whether the awaited state holds. A non-nil error stops polling.
type Condition func(ctx context.Context) (bool, error)

// Poll evaluates cond every interval until it holds, it fails, ctx ends, or
// timeout elapses (ErrTimeout). cond is always tried at least once.
func Poll(ctx context.Context, clock Clock, interval, timeout time.Duration, cond Condition) error {
	start := clock.Now()
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if clock.Now().Sub(start) >= timeout {
			return ErrTimeout
		}
		if err := clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}
