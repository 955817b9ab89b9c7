package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var fold = cases.Lower(language.Und)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// normalizeDay lowercases a weekday name and reports whether it is known.
func normalizeDay(name string) (string, bool) {
	n := fold.String(strings.TrimSpace(name))
	_, ok := weekdays[n]
	return n, ok
}

func weekdaySet(days []string) map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		if n, ok := normalizeDay(d); ok {
			set[weekdays[n]] = true
		}
	}
	return set
}

type clock struct {
	hour, minute int
}

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.hour, c.minute)
}

// parseClock accepts "H:MM" or "HH:MM" on a 24-hour clock.
func parseClock(s string) (clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 {
		return clock{}, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return clock{hour: hour, minute: minute}, nil
}
