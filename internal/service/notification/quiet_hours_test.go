package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concretesync/internal/model"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Date(2026, 3, 1, t.Hour(), t.Minute(), 0, 0, time.UTC)
}

func TestInQuietHours_WrapsMidnight(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "07:00"}

	for _, s := range []string{"23:30", "03:00", "06:59", "22:00", "00:00"} {
		assert.True(t, InQuietHours(qh, at(s)), "%s should be quiet", s)
	}
	for _, s := range []string{"07:00", "12:00", "21:59"} {
		assert.False(t, InQuietHours(qh, at(s)), "%s should not be quiet", s)
	}
}

func TestInQuietHours_SameDayWindow(t *testing.T) {
	qh := model.QuietHours{Enabled: true, Start: "12:00", End: "13:00"}

	assert.True(t, InQuietHours(qh, at("12:30")))
	assert.False(t, InQuietHours(qh, at("11:59")))
	assert.False(t, InQuietHours(qh, at("13:00")))
}

func TestInQuietHours_DisabledOrInvalid(t *testing.T) {
	assert.False(t, InQuietHours(model.QuietHours{Enabled: false, Start: "00:00", End: "23:59"}, at("12:00")))
	assert.False(t, InQuietHours(model.QuietHours{Enabled: true, Start: "25:00", End: "07:00"}, at("23:00")))
	assert.False(t, InQuietHours(model.QuietHours{Enabled: true, Start: "09:00", End: "09:00"}, at("09:00")))
}

func TestInQuietHours_UsesLocationOfTime(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	qh := model.QuietHours{Enabled: true, Start: "22:00", End: "07:00"}

	// 21:30 UTC is 23:30 at UTC+2
	utc := time.Date(2026, 3, 1, 21, 30, 0, 0, time.UTC)
	assert.False(t, InQuietHours(qh, utc))
	assert.True(t, InQuietHours(qh, utc.In(loc)))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(7*60+5), tod)
	assert.Equal(t, "07:05", tod.String())

	for _, bad := range []string{"", "7:05", "24:00", "12:60", "ab:cd", "12-30"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}
