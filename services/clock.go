package services

import "time"

// Clock is the injected time source. Deadline comparisons go through it so
// they stay deterministic in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = realClock{}

// FixedClock always returns the same instant.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time { return c.Time }

// workdaysBetween counts the weekdays strictly between from and until. Used by
// the reminder sweep so weekend days do not count against referees.
func workdaysBetween(from, until time.Time) int {
	if until.Before(from) {
		return 0
	}
	days := 0
	day := from
	for day.Before(until) {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
