package fetcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// jst is the zone the site renders zoneless timestamps in.
var jst = time.FixedZone("JST", 9*60*60)

var (
	minutesAgoPattern = regexp.MustCompile(`^(\d+)\s*(?:分前|minutes? ago)$`)
	hoursAgoPattern   = regexp.MustCompile(`^(\d+)\s*(?:時間前|hours? ago)$`)
)

var absoluteLayouts = []string{
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
	"2006年01月02日 15:04:05",
	"2006年01月02日 15:04",
	"2006年1月2日 15:04",
}

// ParseTimestamp turns a displayed upload or registration time into an
// absolute instant. Relative forms ("たった今", "5分前", "2 hours ago") are
// resolved against now and reported with relative set.
func ParseTimestamp(text string, now time.Time) (t time.Time, relative bool, err error) {
	s := strings.TrimSpace(width.Narrow.String(text))
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, false, fmt.Errorf("%w: empty timestamp", ErrMalformed)
	}

	switch strings.ToLower(s) {
	case "たった今", "just now":
		return now, true, nil
	}
	if m := minutesAgoPattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Minute), true, nil
	}
	if m := hoursAgoPattern.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Hour), true, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, jst); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%w: unrecognised timestamp %q", ErrMalformed, text)
}
