package bookings

import (
	"context"
	"testing"

	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appearedEntry(weekday, start, activity string) planning.Entry {
	return planning.Entry{
		Weekday:      weekday,
		StartTime:    start,
		ActivityName: activity,
		Room:         "Salle 1",
		Signature:    planning.Fingerprint(weekday, start, activity, "Salle 1"),
	}
}

func TestMatchExactPair(t *testing.T) {
	e := appearedEntry("lundi", "18:00", "BOXING")
	prefs := []users.Preference{{UserID: 1, Weekday: "lundi", ActivityName: "BOXING"}}

	got := Match([]planning.Entry{e}, prefs)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].UserID)
	assert.Equal(t, e.Signature, got[0].Entry.Signature)
}

func TestMatchWeekdayCaseInsensitive(t *testing.T) {
	e := appearedEntry("Lundi", "18:00", "BOXING")
	prefs := []users.Preference{{UserID: 1, Weekday: "LUNDI", ActivityName: "BOXING"}}
	assert.Len(t, Match([]planning.Entry{e}, prefs), 1)
}

func TestMatchActivityIsExact(t *testing.T) {
	e := appearedEntry("lundi", "18:00", "BOXING")
	prefs := []users.Preference{
		{UserID: 1, Weekday: "lundi", ActivityName: "boxing"},
		{UserID: 2, Weekday: "lundi", ActivityName: "BOXING "},
	}
	got := Match([]planning.Entry{e}, prefs)
	// lowercase does not match; trailing-space preference matches after trim
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].UserID)
}

func TestMatchMultipleUsersSameEntry(t *testing.T) {
	e := appearedEntry("jeudi", "19:00", "RPM")
	prefs := []users.Preference{
		{UserID: 1, Weekday: "jeudi", ActivityName: "RPM"},
		{UserID: 2, Weekday: "jeudi", ActivityName: "RPM"},
		{UserID: 3, Weekday: "vendredi", ActivityName: "RPM"},
	}
	got := Match([]planning.Entry{e}, prefs)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].UserID)
	assert.Equal(t, int64(2), got[1].UserID)
}

func TestMatchNoAppearedEntries(t *testing.T) {
	prefs := []users.Preference{{UserID: 1, Weekday: "lundi", ActivityName: "BOXING"}}
	assert.Empty(t, Match(nil, prefs))
}

type fakeGuard struct {
	settled map[string]bool
}

func (g fakeGuard) HasSettled(_ context.Context, userID int64, signature string) (bool, error) {
	return g.settled[signature], nil
}

func TestSelectSkipsSettledPairs(t *testing.T) {
	e := appearedEntry("lundi", "18:00", "BOXING")
	prefs := []users.Preference{{UserID: 1, Weekday: "lundi", ActivityName: "BOXING"}}

	m := Matcher{Guard: fakeGuard{settled: map[string]bool{}}}
	got, err := m.Select(context.Background(), []planning.Entry{e}, prefs)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// later cycle: the pair succeeded in the meantime
	m = Matcher{Guard: fakeGuard{settled: map[string]bool{e.Signature: true}}}
	got, err = m.Select(context.Background(), []planning.Entry{e}, prefs)
	require.NoError(t, err)
	assert.Empty(t, got)
}
