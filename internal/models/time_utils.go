package models

import (
	"fmt"
	"strings"
	"time"
)

// RFC3339Milli matches the ISO-8601 strings browsers produce with toISOString.
const RFC3339Milli = "2006-01-02T15:04:05.000Z"

// JSONTime wraps time.Time to provide consistent JSON marshaling.
type JSONTime time.Time

// NewJSONTime truncates t to millisecond precision so values survive a
// marshal round trip unchanged.
func NewJSONTime(t time.Time) JSONTime {
	return JSONTime(t.UTC().Truncate(time.Millisecond))
}

func (jt JSONTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", time.Time(jt).UTC().Format(RFC3339Milli))), nil
}

func (jt *JSONTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		*jt = JSONTime(time.Time{})
		return nil
	}

	formats := []string{
		RFC3339Milli,
		time.RFC3339Nano,
		"2006-01-02T15:04:05Z",
		time.RFC3339,
	}

	var t time.Time
	var err error

	for _, format := range formats {
		t, err = time.Parse(format, s)
		if err == nil {
			*jt = JSONTime(t.UTC())
			return nil
		}
	}
	return fmt.Errorf("JSONTime.UnmarshalJSON: failed to parse time string '%s' with known formats: %w", s, err)
}

func (jt JSONTime) Time() time.Time {
	return time.Time(jt)
}

func (jt JSONTime) IsZero() bool {
	return time.Time(jt).IsZero()
}

func (jt JSONTime) Before(other JSONTime) bool {
	return time.Time(jt).Before(time.Time(other))
}

func (jt JSONTime) Equal(other JSONTime) bool {
	return time.Time(jt).Equal(time.Time(other))
}
