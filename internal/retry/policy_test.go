package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fitsched/internal/heitz"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingAlerter struct {
	failures    int
	siteChanged int
	recovered   int
}

func (a *recordingAlerter) AlertFailure(context.Context, error, int, time.Duration) { a.failures++ }
func (a *recordingAlerter) AlertSiteChanged(context.Context, error)                 { a.siteChanged++ }
func (a *recordingAlerter) AlertRecovered(context.Context)                          { a.recovered++ }

func newPolicy(clock Clock, alerter Alerter) *Policy {
	return &Policy{
		Name:           "fetch",
		MaxAttempts:    3,
		Delay:          5 * time.Second,
		OutageInterval: 5 * time.Minute,
		Clock:          clock,
		Alerter:        alerter,
	}
}

func timeoutErr() error {
	return &heitz.FetchError{Kind: heitz.FetchTimeout, URL: "/planning", Err: errors.New("deadline")}
}

func TestDoSucceedsFirstTry(t *testing.T) {
	clock := newFakeClock()
	p := newPolicy(clock, &recordingAlerter{})

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, StateNormal, p.State())
}

func TestDoExhaustsAttemptsThenEntersOutage(t *testing.T) {
	clock := newFakeClock()
	p := newPolicy(clock, &recordingAlerter{})

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return timeoutErr()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.sleeps)
	assert.Equal(t, StateOutage, p.State())

	// before the outage interval elapses, no attempt happens at all
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return timeoutErr()
	})
	assert.ErrorIs(t, err, ErrBackingOff)
	assert.Equal(t, 3, calls)

	clock.advance(4 * time.Minute)
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return timeoutErr()
	})
	assert.ErrorIs(t, err, ErrBackingOff)
	assert.Equal(t, 3, calls)

	// once due, exactly one follow-up evaluation runs
	clock.advance(2 * time.Minute)
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return timeoutErr()
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBackingOff)
	assert.Equal(t, 6, calls)
	assert.Equal(t, StateOutage, p.State())
}

func TestDoAuthErrorNotRetried(t *testing.T) {
	clock := newFakeClock()
	alerter := &recordingAlerter{}
	p := newPolicy(clock, alerter)

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return &heitz.AuthError{Login: "m@example.com", Reason: "status 401"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, StateOutage, p.State())
	assert.Equal(t, 1, alerter.failures)
}

func TestDoParseErrorRaisesSiteChangedAlert(t *testing.T) {
	clock := newFakeClock()
	alerter := &recordingAlerter{}
	p := newPolicy(clock, alerter)

	err := p.Do(context.Background(), func(context.Context) error {
		return &heitz.ParseError{URL: "/planning", Missing: "ion-list.htz_booking_list"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, alerter.siteChanged)
	assert.Equal(t, StateOutage, p.State())
}

func TestDoRecoveryClearsOutageAndNotifies(t *testing.T) {
	clock := newFakeClock()
	alerter := &recordingAlerter{}
	p := newPolicy(clock, alerter)

	_ = p.Do(context.Background(), func(context.Context) error { return timeoutErr() })
	require.Equal(t, StateOutage, p.State())

	clock.advance(6 * time.Minute)
	err := p.Do(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateNormal, p.State())
	assert.Equal(t, 1, alerter.recovered)
}

func TestDoAlertsDeduplicatedForSameError(t *testing.T) {
	clock := newFakeClock()
	alerter := &recordingAlerter{}
	p := newPolicy(clock, alerter)

	_ = p.Do(context.Background(), func(context.Context) error { return timeoutErr() })
	// first failure + outage escalation
	assert.Equal(t, 2, alerter.failures)

	clock.advance(6 * time.Minute)
	_ = p.Do(context.Background(), func(context.Context) error { return timeoutErr() })
	// same error again: no new alert
	assert.Equal(t, 2, alerter.failures)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	clock := newFakeClock()
	p := newPolicy(clock, &recordingAlerter{})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateNormal, p.State())
}

func TestDoIsolatedErrorDoesNotEnterOutage(t *testing.T) {
	clock := newFakeClock()
	alerter := &recordingAlerter{}
	p := newPolicy(clock, alerter)
	p.Isolate = func(err error) bool {
		var ae *heitz.AuthError
		return errors.As(err, &ae)
	}

	authErr := &heitz.AuthError{Login: "member@example.com", Reason: "invalid credentials"}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return authErr
	})
	require.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, calls, "auth errors are not retried")
	assert.Equal(t, StateNormal, p.State())
	assert.Zero(t, alerter.failures, "a caller-only failure is not escalated")

	// the call site stays available: the very next Do runs the op
	err = p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Zero(t, alerter.recovered, "nothing to recover from")
}

func TestDoAttemptFailureHook(t *testing.T) {
	clock := newFakeClock()
	p := newPolicy(clock, &recordingAlerter{})

	hooked := 0
	p.OnAttemptFailure = func(error) { hooked++ }

	_ = p.Do(context.Background(), func(context.Context) error { return timeoutErr() })
	assert.Equal(t, 3, hooked)
}
