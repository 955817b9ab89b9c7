package vault

import (
	"fmt"
	"slices"
	"time"
)

// Record is one row of a tabular skill as the vault returns it.
type Record map[string]any

var systemFields = []string{"id", "created_at", "updated_at"}

// ID returns the record's id, or nil when it has none.
func (r Record) ID() any {
	return r["id"]
}

// SameID reports whether both records carry the same id. Ids may arrive as
// numbers or strings depending on the table.
func (r Record) SameID(other Record) bool {
	a, b := r.ID(), other.ID()
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Changed returns updated_at, falling back to created_at. Unparseable values
// yield the zero time.
func (r Record) Changed() time.Time {
	if t := parseTimestamp(r["updated_at"]); !t.IsZero() {
		return t
	}
	return parseTimestamp(r["created_at"])
}

// Data returns a copy of r without the vault-managed fields.
func (r Record) Data() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	for _, f := range systemFields {
		delete(out, f)
	}
	return out
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTimestamp(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ColumnType maps a sample value to the vault column type used when a table
// is created from it.
func ColumnType(v any) string {
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return "INTEGER"
		}
		return "DOUBLE"
	case int, int64, int32:
		return "INTEGER"
	case float32:
		return "DOUBLE"
	case bool:
		return "BOOLEAN"
	case time.Time:
		return "TIMESTAMP"
	case string:
		if _, err := time.Parse(time.RFC3339Nano, x); err == nil {
			return "TIMESTAMP"
		}
	}
	return "VARCHAR"
}

// Column describes one column of a table to create.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ColumnsFor infers the columns of a new table from a record's data, in
// key order.
func ColumnsFor(data map[string]any) []Column {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	cols := make([]Column, len(keys))
	for i, k := range keys {
		cols[i] = Column{Name: k, Type: ColumnType(data[k])}
	}
	return cols
}
