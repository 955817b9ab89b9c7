// Package schedule validates schedule configurations and computes the next
// trigger instant for them.
//
// A schedule is either interval based ({interval_hours, timezone}) or daily
// ({times, days, timezone}). Raw configurations arrive as decoded JSON
// objects so that presence and type of each field can be checked the way
// callers send them.
package schedule

import (
	"encoding/json"
	"time"

	"github.com/xbora/mio/internal/types"
)

const field = "schedule_config"

// Validate checks a raw schedule configuration and returns its normalized
// form. A singular "time" is folded into "times".
func Validate(raw map[string]any) (types.Schedule, error) {
	tz, _ := raw["timezone"].(string)
	if tz == "" {
		return types.Schedule{}, types.Invalid(field, "schedule_config must include timezone")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return types.Schedule{}, types.Invalid(field, "timezone must be a valid IANA time zone")
	}

	if v, ok := raw["interval_hours"]; ok {
		hours, isNum := toFloat(v)
		if !isNum || hours <= 0 {
			return types.Schedule{}, types.Invalid(field, "interval_hours must be a positive number")
		}
		if _, ok := intervalDuration(hours); !ok {
			return types.Schedule{}, types.Invalid(field, "interval_hours must be between one minute and %d hours", maxIntervalHours)
		}
		return types.Schedule{IntervalHours: hours, Timezone: tz}, nil
	}

	rawTimes, hasTimes := raw["times"]
	single, hasTime := raw["time"]
	if !hasTimes && !hasTime {
		return types.Schedule{}, types.Invalid(field, "schedule_config must include either times/days or interval_hours")
	}
	if !hasTimes || rawTimes == nil {
		if s, ok := single.(string); ok && s != "" {
			rawTimes = []any{s}
		}
	}

	times, ok := toStrings(rawTimes)
	if !ok || len(times) == 0 {
		return types.Schedule{}, types.Invalid(field, "times must be a non-empty array for daily schedules")
	}
	days, ok := toStrings(raw["days"])
	if !ok || len(days) == 0 {
		return types.Schedule{}, types.Invalid(field, "days must be a non-empty array for daily schedules")
	}

	out := types.Schedule{Timezone: tz}
	for _, t := range times {
		c, err := parseClock(t)
		if err != nil {
			return types.Schedule{}, types.Invalid(field, "times must contain HH:MM values")
		}
		out.Times = append(out.Times, c.String())
	}
	for _, d := range days {
		n, ok := normalizeDay(d)
		if !ok {
			return types.Schedule{}, types.Invalid(field, "days must contain weekday names")
		}
		out.Days = append(out.Days, n)
	}
	return out, nil
}

// ToMap renders a schedule in the raw shape accepted by Validate.
func ToMap(s types.Schedule) map[string]any {
	m := map[string]any{"timezone": s.Timezone}
	if s.IsInterval() {
		m["interval_hours"] = s.IntervalHours
		return m
	}
	times := make([]any, len(s.Times))
	for i, t := range s.Times {
		times[i] = t
	}
	days := make([]any, len(s.Days))
	for i, d := range s.Days {
		days[i] = d
	}
	m["times"] = times
	m["days"] = days
	return m
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
