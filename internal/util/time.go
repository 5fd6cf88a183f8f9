package util

import (
	"fmt"
	"time"
)

// isoMillis is ISO 8601 with millisecond precision and a literal Z.
const isoMillis = "2006-01-02T15:04:05.000Z"

// RFC3339Now returns the current UTC time formatted as RFC3339.
func RFC3339Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ISOTimestamp formats t in UTC with millisecond precision.
func ISOTimestamp(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// HumanTime returns the current local time in a readable form for emails.
func HumanTime() string {
	return time.Now().Format("2006-01-02 15:04:05 MST")
}

// FormatUptime renders a duration as "1h 2m 3s".
func FormatUptime(d time.Duration) string {
	d = max(d, 0)
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// FormatHumanTime renders an RFC3339 build timestamp in local time.
// Values that do not parse are returned unchanged.
func FormatHumanTime(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Local().Format("2006-01-02 15:04 MST")
}
