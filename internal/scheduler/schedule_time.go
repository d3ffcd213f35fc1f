package scheduler

import (
	"strings"
	"time"

	"github.com/ashureev/mailpilot/internal/shared"
)

// naiveLayouts are accepted without a zone and read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduleTime parses a client supplied send time. Values with an offset
// are converted to UTC; values without one are taken to be UTC already.
func ParseScheduleTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, shared.Validation("scheduler.parse_time", "scheduled time is required")
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, shared.Validation("scheduler.parse_time", "invalid scheduled time: "+raw)
}
