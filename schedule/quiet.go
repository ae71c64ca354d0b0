package schedule

import (
	"strconv"
	"strings"
	"time"
)

// parseClock parses "HH:MM". ok is false for anything else.
func parseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}

	return hour, minute, true
}

// InQuietWindow reports whether now falls inside the do-not-disturb window
// given as "HH:MM" start/end in the same zone as now. A window with
// start > end spans midnight (22:00-08:00 covers 23:30 and 07:59). Unset or
// malformed bounds disable the window entirely, so a config typo can never
// silence notifications for good.
func InQuietWindow(now time.Time, start, end string) bool {
	if start == "" || end == "" {
		return false
	}

	sh, sm, ok := parseClock(start)
	if !ok {
		return false
	}
	eh, em, ok := parseClock(end)
	if !ok {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	s := sh*60 + sm
	e := eh*60 + em

	if s <= e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}
