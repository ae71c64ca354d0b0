package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reviewbot/schedule"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.March, 10, hour, minute, 0, 0, time.UTC)
}

func TestQuietWindowAcrossMidnight(t *testing.T) {
	t.Parallel()

	cases := []struct {
		clock time.Time
		quiet bool
	}{
		{at(7, 59), true},
		{at(8, 0), false},
		{at(21, 59), false},
		{at(22, 0), true},
		{at(23, 30), true},
		{at(0, 0), true},
		{at(12, 0), false},
	}

	for _, tc := range cases {
		got := schedule.InQuietWindow(tc.clock, "22:00", "08:00")
		assert.Equal(t, tc.quiet, got, "at %s", tc.clock.Format("15:04"))
	}
}

func TestQuietWindowSameDay(t *testing.T) {
	t.Parallel()

	assert.True(t, schedule.InQuietWindow(at(12, 0), "09:00", "18:00"))
	assert.True(t, schedule.InQuietWindow(at(9, 0), "09:00", "18:00"))
	assert.False(t, schedule.InQuietWindow(at(18, 0), "09:00", "18:00"))
	assert.False(t, schedule.InQuietWindow(at(8, 59), "09:00", "18:00"))
}

func TestQuietWindowFailsOpen(t *testing.T) {
	t.Parallel()

	// unset or malformed bounds must never suppress notifications
	assert.False(t, schedule.InQuietWindow(at(23, 0), "", ""))
	assert.False(t, schedule.InQuietWindow(at(23, 0), "22:00", ""))
	assert.False(t, schedule.InQuietWindow(at(23, 0), "ten pm", "08:00"))
	assert.False(t, schedule.InQuietWindow(at(23, 0), "25:00", "08:00"))
	assert.False(t, schedule.InQuietWindow(at(23, 0), "22:00", "08:61"))
}
