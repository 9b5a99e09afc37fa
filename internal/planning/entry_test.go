package planning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("lundi", "18:00", "BOXING", "Salle 2")
	b := Fingerprint("lundi", "18:00", "BOXING", "Salle 2")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFingerprintNormalizesWeekdayAndWhitespace(t *testing.T) {
	a := Fingerprint("Lundi", " 18:00 ", " BOXING", "Salle 2 ")
	b := Fingerprint("lundi", "18:00", "BOXING", "Salle 2")
	assert.Equal(t, a, b)
}

func TestFingerprintDistinguishesSlots(t *testing.T) {
	base := Fingerprint("lundi", "18:00", "BOXING", "Salle 2")
	assert.NotEqual(t, base, Fingerprint("mardi", "18:00", "BOXING", "Salle 2"))
	assert.NotEqual(t, base, Fingerprint("lundi", "19:00", "BOXING", "Salle 2"))
	assert.NotEqual(t, base, Fingerprint("lundi", "18:00", "YOGA", "Salle 2"))
	assert.NotEqual(t, base, Fingerprint("lundi", "18:00", "BOXING", "Salle 1"))
}

func TestWeekdayName(t *testing.T) {
	// 2025-03-10 is a Monday
	assert.Equal(t, "lundi", WeekdayName(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "dimanche", WeekdayName(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)))
}

func TestNormalizeWeekday(t *testing.T) {
	got, ok := NormalizeWeekday(" Lundi ")
	assert.True(t, ok)
	assert.Equal(t, "lundi", got)

	_, ok = NormalizeWeekday("monday")
	assert.False(t, ok)
}
