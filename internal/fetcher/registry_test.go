package fetcher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vrsandeep/mylist-go/internal/models"
)

func TestRegistry(t *testing.T) {
	full := NewFullScan(newFakeSite(), NewRenderer(0), newFakeLookup(), testOptions())
	feed := NewFeedScan(newFakeSite(), newFakeLookup(), testOptions())
	r := NewRegistry(full, feed)

	got, ok := r.Get(models.StrategyFullScan)
	assert.True(t, ok)
	assert.Same(t, full, got)

	got, ok = r.Get(models.StrategyFeedScan)
	assert.True(t, ok)
	assert.Same(t, feed, got)

	_, ok = r.Get(models.Strategy("unknown"))
	assert.False(t, ok)

	assert.Panics(t, func() { NewRegistry(full, full) })
}
