// Package bookings records booking attempts and selects candidate
// (user, slot) pairs from newly appeared schedule entries.
package bookings

import (
	"context"
	"time"

	"github.com/example/fitsched/internal/db"
)

type Status string

const (
	StatusSucceeded            Status = "succeeded"
	StatusFailed               Status = "failed"
	StatusSkippedAlreadyBooked Status = "skipped_already_booked"
)

// Attempt is one booking try for a (user, slot signature) pair. Attempts are
// append-only; a retry in a later cycle supersedes the prior record.
type Attempt struct {
	ID             int64
	UserID         int64
	EntrySignature string
	Status         Status
	AttemptCount   int
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// Record appends an attempt outcome.
func (r *Repo) Record(ctx context.Context, a Attempt) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
INSERT INTO booking_attempts(user_id, entry_signature, status, attempt_count, last_error)
VALUES ($1,$2,$3,$4,$5)
RETURNING id`,
		a.UserID, a.EntrySignature, string(a.Status), a.AttemptCount, a.LastError).Scan(&id)
	return id, db.WrapNotFound(err)
}

// HasSettled reports whether the pair already has a succeeded or
// skipped_already_booked attempt. Settled pairs are never booked again.
func (r *Repo) HasSettled(ctx context.Context, userID int64, signature string) (bool, error) {
	var settled bool
	err := r.db.QueryRow(ctx, `
SELECT EXISTS(
  SELECT 1 FROM booking_attempts
  WHERE user_id=$1 AND entry_signature=$2 AND status IN ($3,$4)
)`, userID, signature, string(StatusSucceeded), string(StatusSkippedAlreadyBooked)).Scan(&settled)
	return settled, err
}

func (r *Repo) List(ctx context.Context, limit int) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, user_id, entry_signature, status, attempt_count, last_error, created_at, updated_at
FROM booking_attempts
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(&a.ID, &a.UserID, &a.EntrySignature, &status, &a.AttemptCount, &a.LastError, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Status = Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}
