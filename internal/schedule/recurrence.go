package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/xbora/mio/internal/types"
)

// lookahead covers today plus one full week, so every listed weekday has at
// least one candidate after now.
const lookahead = 7

// MinInterval is the shortest interval schedule accepted. Shorter values
// would round to nothing once converted to a time.Duration.
const MinInterval = time.Minute

// maxIntervalHours keeps interval durations well inside time.Duration.
const maxIntervalHours = 24 * 365 * 100

// intervalDuration converts interval_hours, reporting false when the value
// is not a usable interval.
func intervalDuration(hours float64) (time.Duration, bool) {
	if !(hours > 0) || hours > maxIntervalHours {
		return 0, false
	}
	d := time.Duration(math.Round(hours * float64(time.Hour)))
	return d, d >= MinInterval
}

// NextRun returns the earliest trigger instant of s strictly after now, in
// UTC. It never reads the system clock.
//
// Interval schedules add interval_hours of elapsed time. Daily schedules
// build each candidate from the civil date and wall clock in s.Timezone, so
// the offset in effect on that date is used.
func NextRun(s types.Schedule, now time.Time) (time.Time, error) {
	next, err := nextRun(s, now)
	if err != nil {
		return time.Time{}, err
	}
	if !next.After(now) {
		return time.Time{}, fmt.Errorf("next run %s is not after %s", next.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}
	return next, nil
}

func nextRun(s types.Schedule, now time.Time) (time.Time, error) {
	if s.IsInterval() {
		d, ok := intervalDuration(s.IntervalHours)
		if !ok {
			return time.Time{}, fmt.Errorf("interval_hours %v is outside the accepted range", s.IntervalHours)
		}
		return now.Add(d).UTC(), nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", s.Timezone, err)
	}
	if len(s.Times) == 0 {
		return time.Time{}, fmt.Errorf("daily schedule has no times")
	}
	clocks := make([]clock, 0, len(s.Times))
	for _, t := range s.Times {
		c, err := parseClock(t)
		if err != nil {
			return time.Time{}, err
		}
		clocks = append(clocks, c)
	}
	days := weekdaySet(s.Days)

	y, m, d := now.In(loc).Date()
	var best time.Time
	for offset := 0; offset <= lookahead; offset++ {
		if !days[time.Date(y, m, d+offset, 0, 0, 0, 0, time.UTC).Weekday()] {
			continue
		}
		for _, c := range clocks {
			candidate := time.Date(y, m, d+offset, c.hour, c.minute, 0, 0, loc)
			if !candidate.After(now) {
				continue
			}
			if best.IsZero() || candidate.Before(best) {
				best = candidate
			}
		}
	}
	if best.IsZero() {
		first := clocks[0]
		best = time.Date(y, m, d+lookahead, first.hour, first.minute, 0, 0, loc)
	}
	return best.UTC(), nil
}
