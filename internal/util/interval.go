package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

var intervalPattern = regexp.MustCompile(`^(\d+)\s*(分|時間|日|週間|m|min|h|d|w)$`)

var intervalUnits = map[string]time.Duration{
	"分":   time.Minute,
	"m":   time.Minute,
	"min": time.Minute,
	"時間":  time.Hour,
	"h":   time.Hour,
	"日":   24 * time.Hour,
	"d":   24 * time.Hour,
	"週間":  7 * 24 * time.Hour,
	"w":   7 * 24 * time.Hour,
}

// ParseInterval converts a compact check interval such as "15分", "15m",
// "1時間" or "2h" into a duration. Full-width digits are accepted.
func ParseInterval(s string) (time.Duration, error) {
	normalized := strings.TrimSpace(width.Narrow.String(s))
	match := intervalPattern.FindStringSubmatch(normalized)
	if match == nil {
		return 0, fmt.Errorf("invalid check interval %q", s)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("invalid check interval %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("check interval must be positive, got %q", s)
	}
	unit := intervalUnits[match[2]]
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("check interval %q is too large", s)
	}
	return time.Duration(n) * unit, nil
}

// FormatInterval renders d in the compact form used for stored intervals,
// picking the largest unit that divides it evenly.
func FormatInterval(d time.Duration) string {
	switch {
	case d <= 0:
		return "0分"
	case d%(7*24*time.Hour) == 0:
		return fmt.Sprintf("%d週間", d/(7*24*time.Hour))
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%d日", d/(24*time.Hour))
	case d%time.Hour == 0:
		return fmt.Sprintf("%d時間", d/time.Hour)
	}
	return fmt.Sprintf("%d分", d/time.Minute)
}
