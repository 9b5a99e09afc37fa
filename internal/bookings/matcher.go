package bookings

import (
	"context"
	"strings"

	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/users"
)

// Candidate is a (user, newly-appeared slot) pair eligible for an automatic
// booking attempt.
type Candidate struct {
	UserID int64
	Entry  planning.Entry
}

// Guard answers whether a pair already has a settled attempt.
type Guard interface {
	HasSettled(ctx context.Context, userID int64, signature string) (bool, error)
}

// Matcher turns a cycle's appeared entries into booking candidates.
type Matcher struct {
	Guard Guard
}

// Match pairs appeared entries with standing preferences. Weekday matching is
// case-insensitive over the recognized day names; activity matching is exact.
// Several users may match the same entry; the site arbitrates contention.
// Pure: no I/O, no idempotency filtering.
func Match(appeared []planning.Entry, prefs []users.Preference) []Candidate {
	var out []Candidate
	for _, e := range appeared {
		entryDay, ok := planning.NormalizeWeekday(e.Weekday)
		if !ok {
			continue
		}
		for _, p := range prefs {
			prefDay, ok := planning.NormalizeWeekday(p.Weekday)
			if !ok || prefDay != entryDay {
				continue
			}
			if strings.TrimSpace(p.ActivityName) != strings.TrimSpace(e.ActivityName) {
				continue
			}
			out = append(out, Candidate{UserID: p.UserID, Entry: e})
		}
	}
	return out
}

// Select matches and then drops every pair that already settled in an earlier
// cycle (succeeded or skipped_already_booked).
func (m Matcher) Select(ctx context.Context, appeared []planning.Entry, prefs []users.Preference) ([]Candidate, error) {
	candidates := Match(appeared, prefs)
	out := candidates[:0]
	for _, c := range candidates {
		settled, err := m.Guard.HasSettled(ctx, c.UserID, c.Entry.Signature)
		if err != nil {
			return nil, err
		}
		if settled {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
