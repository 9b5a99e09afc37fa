// Package planning holds the schedule domain: entries scraped from the site,
// their stable fingerprints, stored snapshots and the diff between cycles.
package planning

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Entry is one class slot on the planning page for a given date.
type Entry struct {
	Weekday      string
	Date         time.Time
	StartTime    string
	ActivityName string
	Room         string
	Capacity     string
	IsFull       bool
	IsBooked     bool

	// Signature identifies the physical slot across cycles even when the
	// site reshuffles its internal ids. See Fingerprint.
	Signature string
}

// Fingerprint derives a stable identity for a slot from the fields that
// survive a page re-render: weekday, start time, activity and room.
func Fingerprint(weekday, startTime, activity, room string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(weekday))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(startTime)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(activity)))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.TrimSpace(room)))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// weekdays maps time.Weekday to the French day names used by the site.
var weekdays = map[time.Weekday]string{
	time.Monday:    "lundi",
	time.Tuesday:   "mardi",
	time.Wednesday: "mercredi",
	time.Thursday:  "jeudi",
	time.Friday:    "vendredi",
	time.Saturday:  "samedi",
	time.Sunday:    "dimanche",
}

var weekdaySet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(weekdays))
	for _, d := range weekdays {
		m[d] = struct{}{}
	}
	return m
}()

// WeekdayName returns the French day name for a date.
func WeekdayName(t time.Time) string {
	return weekdays[t.Weekday()]
}

// NormalizeWeekday lowercases and trims a day name, reporting whether it is
// one of the seven recognized names.
func NormalizeWeekday(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	_, ok := weekdaySet[s]
	return s, ok
}
