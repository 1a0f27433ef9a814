package jfs

import "time"

// TimeLayout is the backend's timestamp format. Note the literal hyphen
// right before the "T"; this is not RFC 3339 and must not be parsed
// with a generic layout.
const TimeLayout = "2006-01-02-T15:04:05Z07:00"

// ParseTime parses a backend timestamp into UTC.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, &InvalidTimestampError{Value: s, Err: err}
	}
	return t.UTC(), nil
}

// FormatTime renders t in the backend's timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
