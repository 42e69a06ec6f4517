package export

import (
	"context"
	"time"
)

// DefaultFrameRate is the display refresh rate assumed by Ticker.
const DefaultFrameRate = 60

// Ticker is a FrameClock that waits for the next multiple of a fixed frame
// interval, like a vsync callback on a 60 Hz display.
type Ticker struct {
	Interval time.Duration
}

// NewTicker returns a clock ticking rate times per second.
func NewTicker(rate int) *Ticker {
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return &Ticker{Interval: time.Second / time.Duration(rate)}
}

// WaitFrame implements FrameClock.
func (t *Ticker) WaitFrame(ctx context.Context) error {
	now := time.Now()
	next := now.Truncate(t.Interval).Add(t.Interval)
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Immediate is a FrameClock whose frames are always already due. It is used
// for headless rendering where the frame source draws synchronously.
type Immediate struct{}

// WaitFrame implements FrameClock.
func (Immediate) WaitFrame(ctx context.Context) error {
	return ctx.Err()
}
