package dispatch

import (
	"context"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer computes the delay after each call to hold the rate limit.
type Pacer struct {
	mode     core.DeliveryMode
	interval time.Duration
}

// NewPacer creates a pacer for the given mode and rate.
func NewPacer(mode core.DeliveryMode, requestsPerMinute int) Pacer {
	return Pacer{
		mode:     mode,
		interval: core.RunConfiguration{RequestsPerMinute: requestsPerMinute}.Interval(),
	}
}

// Interval returns the target spacing between calls.
func (p Pacer) Interval() time.Duration {
	return p.interval
}

// After returns the delay to wait after a call that took callDuration.
// Single mode always waits the full interval. Batched mode subtracts the
// call duration and returns 0 when the call already used the interval up.
func (p Pacer) After(callDuration time.Duration) time.Duration {
	if p.mode == core.ModeSingle {
		return p.interval
	}
	if d := p.interval - callDuration; d > 0 {
		return d
	}
	return 0
}
