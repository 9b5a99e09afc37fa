package planning

import (
	"context"
	"time"

	"github.com/example/fitsched/internal/db"
)

// Store persists the current snapshot per target date.
type Store struct{ db *db.DB }

func NewStore(d *db.DB) *Store { return &Store{db: d} }

// Load returns the current snapshot for a date, or (nil, nil) when the date
// has never been observed.
func (s *Store) Load(ctx context.Context, targetDate time.Time) (*Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRow(ctx,
		`SELECT target_date, captured_at FROM snapshots WHERE target_date=$1`,
		dateOnly(targetDate)).Scan(&snap.TargetDate, &snap.CapturedAt)
	if db.IsNotFound(db.WrapNotFound(err)) {
		return nil, nil
	}
	if err != nil {
		return nil, db.WrapNotFound(err)
	}

	rows, err := s.db.Query(ctx, `
SELECT signature, weekday, start_time, activity_name, room, capacity, is_full, is_booked
FROM snapshot_entries
WHERE target_date=$1
ORDER BY start_time, activity_name`, dateOnly(targetDate))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e := Entry{Date: snap.TargetDate}
		if err := rows.Scan(&e.Signature, &e.Weekday, &e.StartTime, &e.ActivityName, &e.Room, &e.Capacity, &e.IsFull, &e.IsBooked); err != nil {
			return nil, err
		}
		snap.Entries = append(snap.Entries, e)
	}
	return &snap, rows.Err()
}

// Replace swaps the stored snapshot for a date in one transaction. Callers
// diff against the prior snapshot before replacing it; a failed fetch never
// reaches this point, so the swap is all-or-nothing.
func (s *Store) Replace(ctx context.Context, snap Snapshot) error {
	date := dateOnly(snap.TargetDate)
	return s.db.WithTx(ctx, func(tx db.Tx) error {
		if err := tx.Exec(ctx, `
INSERT INTO snapshots(target_date, captured_at) VALUES ($1,$2)
ON CONFLICT (target_date) DO UPDATE SET captured_at=EXCLUDED.captured_at`,
			date, snap.CapturedAt); err != nil {
			return err
		}
		if err := tx.Exec(ctx, `DELETE FROM snapshot_entries WHERE target_date=$1`, date); err != nil {
			return err
		}
		for _, e := range snap.Entries {
			if err := tx.Exec(ctx, `
INSERT INTO snapshot_entries(target_date, signature, weekday, start_time, activity_name, room, capacity, is_full, is_booked)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (target_date, signature) DO NOTHING`,
				date, e.Signature, e.Weekday, e.StartTime, e.ActivityName, e.Room, e.Capacity, e.IsFull, e.IsBooked); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkPlanningSeen records the first time planning for a date was observed
// open. Informational only; repolling continues after it.
func (s *Store) MarkPlanningSeen(ctx context.Context, targetDate, seenAt time.Time) error {
	return s.db.Exec(ctx, `
INSERT INTO check_days(target_date, first_seen_at) VALUES ($1,$2)
ON CONFLICT (target_date) DO NOTHING`, dateOnly(targetDate), seenAt)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
