// Package engine drives the monitoring loop: one cycle is a fetch of the
// target date's schedule, a diff against the stored snapshot, a notification
// for newly opened slots, and booking attempts for matching preferences.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fitsched/internal/bookings"
	"github.com/example/fitsched/internal/config"
	"github.com/example/fitsched/internal/heitz"
	"github.com/example/fitsched/internal/metrics"
	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/retry"
	"github.com/example/fitsched/internal/users"
)

// Site is the browser-session adapter boundary: the only two capabilities
// the engine needs from the target site.
type Site interface {
	FetchSchedule(ctx context.Context, date time.Time) ([]planning.Entry, error)
	Book(ctx context.Context, creds heitz.Credentials, entry planning.Entry) (heitz.BookingOutcome, error)
}

// SnapshotStore persists the last-known schedule per target date.
type SnapshotStore interface {
	Load(ctx context.Context, targetDate time.Time) (*planning.Snapshot, error)
	Replace(ctx context.Context, snap planning.Snapshot) error
	MarkPlanningSeen(ctx context.Context, targetDate, seenAt time.Time) error
}

// Directory provides the read-only user data booking needs.
type Directory interface {
	ActivePreferences(ctx context.Context) ([]users.Preference, error)
	SiteCredentials(ctx context.Context, userID int64) (users.Credentials, error)
}

// AttemptLog records booking attempts and answers idempotency lookups.
type AttemptLog interface {
	Record(ctx context.Context, a bookings.Attempt) (int64, error)
	HasSettled(ctx context.Context, userID int64, signature string) (bool, error)
}

// Notifier announces newly opened slots. Fire-and-forget.
type Notifier interface {
	NotifyPlanning(ctx context.Context, targetDate time.Time, appeared []planning.Entry)
}

type Options struct {
	TargetDayOffset int
	CheckInterval   time.Duration
	CheckStart      config.DayTime
	CheckEnd        config.DayTime
	ShutdownGrace   time.Duration
}

type Engine struct {
	opts Options

	site      Site
	snapshots SnapshotStore
	directory Directory
	attempts  AttemptLog
	notifier  Notifier

	fetchPolicy *retry.Policy
	bookPolicy  *retry.Policy

	clock   retry.Clock
	log     *slog.Logger
	metrics *metrics.Collector
}

func New(
	opts Options,
	site Site,
	snapshots SnapshotStore,
	directory Directory,
	attempts AttemptLog,
	notifier Notifier,
	fetchPolicy, bookPolicy *retry.Policy,
	clock retry.Clock,
	log *slog.Logger,
	collector *metrics.Collector,
) *Engine {
	if clock == nil {
		clock = retry.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		opts:        opts,
		site:        site,
		snapshots:   snapshots,
		directory:   directory,
		attempts:    attempts,
		notifier:    notifier,
		fetchPolicy: fetchPolicy,
		bookPolicy:  bookPolicy,
		clock:       clock,
		log:         log,
		metrics:     collector,
	}
}

// RunCycleOnce performs one fetch-diff-notify-book sequence for the
// configured target date. A nil error includes the "nothing changed" case;
// retry.ErrBackingOff means the fetch site is in outage and nothing was done.
func (e *Engine) RunCycleOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()

	now := e.clock.Now()
	targetDate := now.AddDate(0, 0, e.opts.TargetDayOffset)
	if e.metrics != nil {
		e.metrics.CycleStarted()
	}

	var current []planning.Entry
	err = e.fetchPolicy.Do(ctx, func(ctx context.Context) error {
		var ferr error
		current, ferr = e.site.FetchSchedule(ctx, targetDate)
		return ferr
	})
	if errors.Is(err, retry.ErrBackingOff) {
		return err
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.CycleFailed()
		}
		return fmt.Errorf("fetch schedule for %s: %w", targetDate.Format("2006-01-02"), err)
	}

	previous, err := e.snapshots.Load(ctx, targetDate)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CycleFailed()
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	diff := planning.Compare(previous, current)
	baseline := previous == nil

	// the swap happens only after the diff; a failed fetch never got here
	if err := e.snapshots.Replace(ctx, planning.Snapshot{
		TargetDate: targetDate,
		CapturedAt: now,
		Entries:    current,
	}); err != nil {
		if e.metrics != nil {
			e.metrics.CycleFailed()
		}
		return fmt.Errorf("replace snapshot: %w", err)
	}

	if len(current) > 0 {
		if err := e.snapshots.MarkPlanningSeen(ctx, targetDate, now); err != nil {
			e.log.Warn("mark planning seen", "err", err)
		}
	}

	if baseline {
		e.log.Info("baseline snapshot recorded",
			"target_date", targetDate.Format("2006-01-02"), "entries", len(current))
		return nil
	}
	if diff.Empty() {
		e.log.Debug("no schedule changes", "target_date", targetDate.Format("2006-01-02"))
		return nil
	}

	e.log.Info("schedule changed",
		"target_date", targetDate.Format("2006-01-02"),
		"appeared", len(diff.Appeared), "disappeared", len(diff.Disappeared))

	if len(diff.Appeared) == 0 {
		return nil
	}
	if e.metrics != nil {
		e.metrics.EntriesAppeared(len(diff.Appeared))
	}

	e.notifier.NotifyPlanning(ctx, targetDate, diff.Appeared)
	e.bookMatches(ctx, diff.Appeared)
	return nil
}

// bookMatches books every unsettled candidate pair. One user's failure never
// aborts the others.
func (e *Engine) bookMatches(ctx context.Context, appeared []planning.Entry) {
	prefs, err := e.directory.ActivePreferences(ctx)
	if err != nil {
		e.log.Error("load preferences", "err", err)
		return
	}

	matcher := bookings.Matcher{Guard: e.attempts}
	candidates, err := matcher.Select(ctx, appeared, prefs)
	if err != nil {
		e.log.Error("select booking candidates", "err", err)
		return
	}

	for i, c := range candidates {
		if ctx.Err() != nil {
			return
		}
		if err := e.bookCandidate(ctx, c); errors.Is(err, retry.ErrBackingOff) {
			// booking call site is in outage; stop for this cycle
			e.log.Warn("booking in outage backoff, deferring remaining candidates",
				"remaining", len(candidates)-i)
			return
		}
	}
}

func (e *Engine) bookCandidate(ctx context.Context, c bookings.Candidate) error {
	creds, err := e.directory.SiteCredentials(ctx, c.UserID)
	if err != nil {
		e.log.Error("site credentials", "user_id", c.UserID, "err", err)
		e.recordAttempt(ctx, c, bookings.StatusFailed, 0, err)
		return nil
	}

	var (
		outcome  heitz.BookingOutcome
		attempts int
	)
	err = e.bookPolicy.Do(ctx, func(ctx context.Context) error {
		attempts++
		var berr error
		outcome, berr = e.site.Book(ctx, heitz.Credentials(creds), c.Entry)
		return berr
	})
	if errors.Is(err, retry.ErrBackingOff) {
		return err
	}
	if err != nil {
		e.recordAttempt(ctx, c, bookings.StatusFailed, attempts, err)
		return nil
	}

	switch outcome {
	case heitz.OutcomeBooked:
		e.log.Info("booked", "user_id", c.UserID,
			"activity", c.Entry.ActivityName, "start", c.Entry.StartTime)
		e.recordAttempt(ctx, c, bookings.StatusSucceeded, attempts, nil)
	case heitz.OutcomeAlreadyBooked:
		e.recordAttempt(ctx, c, bookings.StatusSkippedAlreadyBooked, attempts, nil)
	case heitz.OutcomeAlreadyFull:
		// lost the race; reconsidered only if the slot disappears and reopens
		e.recordAttempt(ctx, c, bookings.StatusFailed, attempts, errors.New("slot already full"))
	}
	return nil
}

func (e *Engine) recordAttempt(ctx context.Context, c bookings.Candidate, status bookings.Status, attempts int, cause error) {
	a := bookings.Attempt{
		UserID:         c.UserID,
		EntrySignature: c.Entry.Signature,
		Status:         status,
		AttemptCount:   attempts,
	}
	if cause != nil {
		msg := cause.Error()
		a.LastError = &msg
	}
	if _, err := e.attempts.Record(ctx, a); err != nil {
		e.log.Error("record booking attempt", "user_id", c.UserID, "err", err)
	}
	if e.metrics != nil {
		e.metrics.BookingRecorded(string(status))
	}
}
