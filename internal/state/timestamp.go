package state

import (
	"fmt"
	"time"
)

// TimeLayout is the layout watermarks are written in.
const TimeLayout = "2006-01-02T15:04:05-0700"

// parseLayouts are tried in order when reading a watermark or API timestamp.
var parseLayouts = []string{
	time.RFC3339Nano,
	TimeLayout,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// ParseTime parses a watermark or API timestamp. Values without an offset are UTC.
func ParseTime(value string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
