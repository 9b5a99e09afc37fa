// Package retry wraps the adapter's fallible calls with bounded retries and
// an escalated "outage" cadence after exhaustion. One policy instance per
// call site; the state machine is normal -> retrying -> outage, cleared by
// the next success.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fitsched/internal/heitz"
)

type State string

const (
	StateNormal   State = "normal"
	StateRetrying State = "retrying"
	StateOutage   State = "outage"
)

// ErrBackingOff is returned without attempting the operation while the call
// site is in outage and its follow-up evaluation is not due yet.
var ErrBackingOff = errors.New("retry: in outage backoff")

// Alerter receives escalations. Delivery is fire-and-forget; the policy
// never fails because an alert could not be sent.
type Alerter interface {
	AlertFailure(ctx context.Context, err error, errorCount int, nextRetry time.Duration)
	AlertSiteChanged(ctx context.Context, err error)
	AlertRecovered(ctx context.Context)
}

// NopAlerter discards alerts. Use in tests and one-shot commands.
type NopAlerter struct{}

func (NopAlerter) AlertFailure(context.Context, error, int, time.Duration) {}
func (NopAlerter) AlertSiteChanged(context.Context, error)                 {}
func (NopAlerter) AlertRecovered(context.Context)                          {}

type Policy struct {
	// Name identifies the call site in logs ("fetch", "book").
	Name           string
	MaxAttempts    int
	Delay          time.Duration
	OutageInterval time.Duration

	Clock   Clock
	Log     *slog.Logger
	Alerter Alerter

	// OnAttemptFailure observes every failed attempt (metrics hook).
	OnAttemptFailure func(err error)
	// OnOutage observes each transition into the outage cadence.
	OnOutage func()
	// Isolate marks errors that are terminal for the caller but say nothing
	// about the site's health (a member's own bad credentials, say). They are
	// returned as-is: no outage cadence, no alert, and the call site stays
	// available for the next caller.
	Isolate func(err error) bool

	state        State
	errorCount   int
	lastAlertKey string
	alerted      bool
	nextEligible time.Time
}

// State exposes the current escalation state.
func (p *Policy) State() State {
	if p.state == "" {
		return StateNormal
	}
	return p.state
}

// Do runs op under the policy. While in outage, at most one evaluation is
// attempted per OutageInterval; earlier calls return ErrBackingOff without
// touching the site.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	if p.state == StateOutage && p.Clock.Now().Before(p.nextEligible) {
		return ErrBackingOff
	}

	preCount := p.errorCount
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			p.recover(ctx)
			return nil
		}
		lastErr = err
		p.errorCount++
		p.log().Error("attempt failed",
			"op", p.Name, "attempt", attempt, "max_attempts", p.MaxAttempts, "err", err)
		if p.OnAttemptFailure != nil {
			p.OnAttemptFailure(err)
		}

		if !Retryable(err) {
			break
		}
		p.state = StateRetrying
		p.alertFailure(ctx, err, p.Delay)

		if attempt < p.MaxAttempts {
			if serr := p.Clock.Sleep(ctx, p.Delay); serr != nil {
				return serr
			}
		}
	}

	if errors.Is(lastErr, context.Canceled) {
		// shutting down, not an outage
		return lastErr
	}
	if p.Isolate != nil && p.Isolate(lastErr) {
		p.errorCount = preCount
		return lastErr
	}
	p.enterOutage(ctx, lastErr)
	return lastErr
}

func (p *Policy) enterOutage(ctx context.Context, err error) {
	if p.state != StateOutage && p.OnOutage != nil {
		p.OnOutage()
	}
	p.state = StateOutage
	p.nextEligible = p.Clock.Now().Add(p.OutageInterval)
	p.log().Warn("entering outage cadence",
		"op", p.Name, "error_count", p.errorCount, "next_evaluation_in", p.OutageInterval)

	p.alertFailure(ctx, err, p.OutageInterval)

	var perr *heitz.ParseError
	if errors.As(err, &perr) {
		// the site contract may have changed; an operator needs to look
		p.alerter().AlertSiteChanged(ctx, err)
	}
}

func (p *Policy) recover(ctx context.Context) {
	if p.state == StateOutage || p.alerted {
		p.log().Info("recovered", "op", p.Name, "error_count", p.errorCount)
		p.alerter().AlertRecovered(ctx)
	}
	p.state = StateNormal
	p.errorCount = 0
	p.alerted = false
	p.lastAlertKey = ""
}

// alertFailure notifies once per distinct error identity: the first failure
// and the escalation to outage get through, repeats of the same error do not.
func (p *Policy) alertFailure(ctx context.Context, err error, nextRetry time.Duration) {
	key := fmt.Sprintf("%T:%v", err, err)
	if p.alerted && key == p.lastAlertKey && p.state != StateOutage {
		return
	}
	if key == p.lastAlertKey && p.state == StateOutage && p.errorCount > p.MaxAttempts {
		return
	}
	p.alerter().AlertFailure(ctx, err, p.errorCount, nextRetry)
	p.alerted = true
	p.lastAlertKey = key
}

func (p *Policy) alerter() Alerter {
	if p.Alerter == nil {
		return NopAlerter{}
	}
	return p.Alerter
}

func (p *Policy) log() *slog.Logger {
	if p.Log == nil {
		return slog.Default()
	}
	return p.Log
}

// Retryable classifies errors: auth rejections need a credential fix and are
// never retried; transport and parse failures are transient until exhausted.
func Retryable(err error) bool {
	var aerr *heitz.AuthError
	if errors.As(err, &aerr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
