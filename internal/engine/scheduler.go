package engine

import (
	"context"
	"errors"
	"time"

	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/retry"
)

// Run polls until ctx is cancelled. Cycles never overlap: each one finishes
// (or is abandoned after the shutdown grace) before the next wait starts.
// Outside the daily active window the loop sleeps until the window reopens.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("monitoring started",
		"window", e.opts.CheckStart.String()+"-"+e.opts.CheckEnd.String(),
		"interval", e.opts.CheckInterval,
		"target_day_offset", e.opts.TargetDayOffset)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait := waitForWindow(e.clock.Now(), e.opts.CheckStart, e.opts.CheckEnd); wait > 0 {
			e.log.Info("outside active window, suspending", "wait", wait.Round(time.Second))
			if err := e.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		cycleCtx, done := graceContext(ctx, e.opts.ShutdownGrace)
		err := e.RunCycleOnce(cycleCtx)
		done()
		switch {
		case err == nil:
		case errors.Is(err, retry.ErrBackingOff):
			e.log.Debug("cycle skipped, outage backoff active")
		case errors.Is(err, context.Canceled):
			return err
		default:
			// no error crashes the loop; log and wait for the next cycle
			e.log.Error("cycle failed", "err", err)
		}

		if err := e.clock.Sleep(ctx, e.opts.CheckInterval); err != nil {
			return err
		}
	}
}

// waitForWindow returns how long to sleep before the next [start, end) window
// opens, or 0 when now is inside the window.
func waitForWindow(now time.Time, start, end config.DayTime) time.Duration {
	opens := time.Date(now.Year(), now.Month(), now.Day(), start.Hour, start.Minute, 0, 0, now.Location())
	closes := time.Date(now.Year(), now.Month(), now.Day(), end.Hour, end.Minute, 0, 0, now.Location())

	switch {
	case now.Before(opens):
		return opens.Sub(now)
	case now.Before(closes):
		return 0
	default:
		return opens.AddDate(0, 0, 1).Sub(now)
	}
}

// graceContext keeps the in-flight cycle alive for grace after the parent is
// cancelled, so a near-finished cycle can complete during shutdown. The
// returned done func must be called when the cycle ends.
func graceContext(parent context.Context, grace time.Duration) (context.Context, func()) {
	if grace <= 0 {
		return parent, func() {}
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	finished := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			t := time.NewTimer(grace)
			defer t.Stop()
			select {
			case <-t.C:
			case <-finished:
			}
		case <-finished:
		}
		cancel()
	}()
	return ctx, func() { close(finished) }
}
