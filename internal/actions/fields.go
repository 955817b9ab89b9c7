package actions

import (
	"strings"
	"time"

	"github.com/xbora/mio/internal/types"
)

// Field parsers shared by create and update. Each takes the raw decoded JSON
// value and returns a ValidationError naming the field.

func parseSkillNames(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		if s, isStrings := v.([]string); isStrings && len(s) > 0 {
			return s, nil
		}
		return nil, types.Invalid("skill_names", "skill_names must be a non-empty array")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, types.Invalid("skill_names", "skill_names must contain skill name strings")
		}
		out = append(out, s)
	}
	return out, nil
}

func parseActionType(v any) (types.ActionType, error) {
	s, _ := v.(string)
	at := types.ActionType(s)
	if !at.Valid() {
		return "", types.Invalid("action_type", "action_type must be one of: %s", types.JoinValues(types.ActionTypes))
	}
	return at, nil
}

func parseChannel(v any) (types.Channel, error) {
	s, _ := v.(string)
	ch := types.Channel(s)
	if !ch.Valid() {
		return "", types.Invalid("delivery_channel", "delivery_channel must be one of: %s", types.JoinValues(types.Channels))
	}
	return ch, nil
}

func parsePrompt(v any) (string, error) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", types.Invalid("instruction_prompt", "instruction_prompt must be a non-empty string")
	}
	return s, nil
}

func parseActive(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, types.Invalid("is_active", "is_active must be a boolean")
	}
	return b, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseInstant accepts RFC 3339 and the shorter ISO 8601 forms; values
// without an offset are read as UTC.
func parseInstant(v any) (time.Time, error) {
	s, ok := v.(string)
	if ok {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, types.Invalid("next_run_at", "next_run_at must be a valid ISO 8601 date string")
}

// ParseExecutionTime parses the execution instant of a scheduling cycle.
func ParseExecutionTime(s string) (time.Time, error) {
	t, err := parseInstant(s)
	if err != nil {
		return time.Time{}, types.Invalid("execution_time", "execution_time must be a valid ISO 8601 date string")
	}
	return t, nil
}

// scheduleMap returns a copy of the raw schedule object so overrides do not
// leak into the caller's body.
func scheduleMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, types.Invalid("schedule_config", "schedule_config must be an object")
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		out[k] = val
	}
	return out, nil
}

// present reports whether a required body field carries a usable value.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	}
	return true
}

func missingFields(body map[string]any, names ...string) error {
	for _, name := range names {
		if !present(body[name]) {
			return types.Invalid(name, "Missing required fields: %s", strings.Join(names, ", "))
		}
	}
	return nil
}

func firstString(body map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := body[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
