// Package refresh drives a refresh cycle: choose the lists to check, fetch
// them concurrently, then merge every outcome into storage concurrently.
package refresh

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/vrsandeep/mylist-go/internal/models"
	"github.com/vrsandeep/mylist-go/internal/util"
)

// SelectStrategy picks how to fetch a list. A list without stored videos
// gets the complete page scan; afterwards the cheaper feed is enough.
func SelectStrategy(list *models.TrackedList, hasHistory bool) models.Strategy {
	if hasHistory {
		return models.StrategyFeedScan
	}
	return models.StrategyFullScan
}

// IsDue reports whether a list's check interval has elapsed at now. Lists
// that were never checked are always due. An unparsable interval falls back
// to defaultInterval.
func IsDue(list *models.TrackedList, now time.Time, defaultInterval time.Duration) bool {
	if list.LastCheckedAt == nil {
		return true
	}
	interval, err := util.ParseInterval(list.CheckInterval)
	if err != nil {
		log.Warn("Invalid check interval, using default", "list", list.URL, "interval", list.CheckInterval, "default", defaultInterval)
		interval = defaultInterval
	}
	return !list.LastCheckedAt.Add(interval).After(now)
}
