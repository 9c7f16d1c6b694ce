package statistic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultWindow is the bucket width used when none is requested.
const DefaultWindow = time.Minute

// ParseWindow parses a bucket width such as "30s", "1m", "5m", "1h" or "1d".
// An empty string yields DefaultWindow.
func ParseWindow(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultWindow, nil
	}
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, value)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, value)
	}
	return d, nil
}

// FormatWindow renders a window in the same notation ParseWindow accepts.
func FormatWindow(d time.Duration) string {
	day := 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		return strconv.Itoa(int(d/day)) + "d"
	case d >= time.Hour && d%time.Hour == 0:
		return strconv.Itoa(int(d/time.Hour)) + "h"
	case d >= time.Minute && d%time.Minute == 0:
		return strconv.Itoa(int(d/time.Minute)) + "m"
	default:
		return d.String()
	}
}

// BucketStart floors t to the window boundary in UTC.
func BucketStart(t time.Time, window time.Duration) time.Time {
	return t.UTC().Truncate(window)
}
