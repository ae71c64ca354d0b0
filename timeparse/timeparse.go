// Package timeparse turns user-supplied time specifications into absolute
// future timestamps in the bot's fixed time zone.
package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Interval presets offered by the reminder keyboards, in minutes.
const (
	HourMin      = 60
	FourHoursMin = 240
	DailyMin     = 1440
	ThreeDaysMin = 4320
	WeeklyMin    = 10080
)

// Day tokens accepted by AtDayTime.
const (
	Today      = "today"
	Tomorrow   = "tomorrow"
	DayAfter   = "day_after"
	NextMonday = "next_monday"
)

// Relative returns now shifted forward by the given number of minutes.
func Relative(now time.Time, minutes int) time.Time {
	return now.Add(time.Duration(minutes) * time.Minute)
}

// AtDayTime combines a calendar day token with a clock time. When the result
// is not strictly in the future (possible only for day-ambiguous tokens like
// "today"), it rolls forward one day so the returned instant is always ahead
// of now.
func AtDayTime(now time.Time, token string, hour, minute int) time.Time {
	day := now
	switch token {
	case Tomorrow:
		day = day.AddDate(0, 0, 1)
	case DayAfter:
		day = day.AddDate(0, 0, 2)
	case NextMonday:
		days := (int(time.Monday) - int(day.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		day = day.AddDate(0, 0, days)
	}

	at := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// Trailing date/time patterns, most specific first. Each one anchors at the
// end of the line and requires some leading content.
var (
	fullPattern  = regexp.MustCompile(`^(.*\S)\s+(\d{4})-(\d{1,2})-(\d{1,2})\s+(\d{1,2}):(\d{2})$`)
	datePattern  = regexp.MustCompile(`^(.*\S)\s+(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})$`)
	clockPattern = regexp.MustCompile(`^(.*\S)\s+(\d{1,2}):(\d{2})$`)
)

// Extract scans text for a trailing date/time specification and splits it
// from the remaining content. Patterns are tried from most to least specific;
// the first one that matches and leaves non-empty content wins. A bare clock
// time already past rolls to tomorrow; a bare month/day already past rolls to
// next year. ok is false when no pattern matches, in which case the caller
// falls back to an interactive picker.
func Extract(text string, now time.Time) (content string, at time.Time, ok bool) {
	text = strings.TrimSpace(text)
	loc := now.Location()

	if m := fullPattern.FindStringSubmatch(text); m != nil {
		year, month, day := atoi(m[2]), atoi(m[3]), atoi(m[4])
		hour, minute := atoi(m[5]), atoi(m[6])
		if validClock(hour, minute) && validMonthDay(month, day) {
			return m[1], time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), true
		}
	}

	if m := datePattern.FindStringSubmatch(text); m != nil {
		month, day := atoi(m[2]), atoi(m[3])
		hour, minute := atoi(m[4]), atoi(m[5])
		if validClock(hour, minute) && validMonthDay(month, day) {
			at = time.Date(now.Year(), time.Month(month), day, hour, minute, 0, 0, loc)
			if !at.After(now) {
				at = at.AddDate(1, 0, 0)
			}
			return m[1], at, true
		}
	}

	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, minute := atoi(m[2]), atoi(m[3])
		if validClock(hour, minute) {
			at = time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
			if !at.After(now) {
				at = at.AddDate(0, 0, 1)
			}
			return m[1], at, true
		}
	}

	return text, time.Time{}, false
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func validClock(hour, minute int) bool {
	return hour >= 0 && hour < 24 && minute >= 0 && minute < 60
}

func validMonthDay(month, day int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
