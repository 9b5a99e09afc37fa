package retry

import (
	"context"
	"time"
)

// Clock abstracts time and sleeping so the policy is deterministic in tests.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
