package utils

import (
	"context"
	"time"
)

type (
	// Timer wraps the time.Timer
	Timer struct {
		C  <-chan time.Time
		tm *time.Timer
	}
)

// NewTimer create a timer
func NewTimer() *Timer {
	return new(Timer)
}

func (t *Timer) stop() {
	if !t.tm.Stop() {
		select {
		case <-t.tm.C:
		default:
		}
	}
}

// Stop prevents the Timer from firing.
func (t *Timer) Stop() {
	if t.tm == nil {
		return
	}
	t.stop()
	t.C = nil
}

// Reset reset the timer to next duration
func (t *Timer) Reset(d time.Duration) {
	if t.tm == nil {
		t.tm = time.NewTimer(d)
	} else {
		t.stop()
		t.tm.Reset(d)
	}
	t.C = t.tm.C
}

// Sleep waits for d on the timer, or until ctx is done.
// A non-positive d returns immediately.
func (t *Timer) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t.Reset(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
