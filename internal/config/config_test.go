package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayTime(t *testing.T) {
	tests := []struct {
		in      string
		want    DayTime
		wantErr bool
	}{
		{in: "07:00", want: DayTime{Hour: 7, Minute: 0}},
		{in: "21:30", want: DayTime{Hour: 21, Minute: 30}},
		{in: " 09:05 ", want: DayTime{Hour: 9, Minute: 5}},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDayTime(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("COOKIE_HASH_KEY", key)
	t.Setenv("COOKIE_BLOCK_KEY", key)
	t.Setenv("CREDENTIAL_KEY", key)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.TargetDayOffset)
	assert.Equal(t, "20s", cfg.CheckInterval.String())
	assert.Equal(t, "07:00", cfg.CheckStartTime.String())
	assert.Equal(t, "21:00", cfg.CheckEndTime.String())
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "5m0s", cfg.OutageRetryInterval.String())
	assert.True(t, cfg.DiscordEnabled)
	assert.Equal(t, "https://app.heitzfit.com/?center=4831", cfg.LoginURL())
}

func TestFromEnvRejectsInvertedWindow(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("COOKIE_HASH_KEY", key)
	t.Setenv("COOKIE_BLOCK_KEY", key)
	t.Setenv("CREDENTIAL_KEY", key)
	t.Setenv("CHECK_START_TIME", "21:00")
	t.Setenv("CHECK_END_TIME", "07:00")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvRequiresKeys(t *testing.T) {
	t.Setenv("COOKIE_HASH_KEY", "")
	t.Setenv("COOKIE_BLOCK_KEY", "")
	t.Setenv("CREDENTIAL_KEY", "")
	_, err := FromEnv()
	assert.Error(t, err)
}
