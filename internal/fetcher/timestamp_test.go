package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, jst)

	tests := []struct {
		name     string
		input    string
		want     time.Time
		relative bool
	}{
		{"just now ja", "たった今", now, true},
		{"just now en", "Just now", now, true},
		{"minutes ago ja", "5分前", now.Add(-5 * time.Minute), true},
		{"minutes ago full width", "１５分前", now.Add(-15 * time.Minute), true},
		{"minutes ago en", "1 minute ago", now.Add(-time.Minute), true},
		{"hours ago ja", "3時間前", now.Add(-3 * time.Hour), true},
		{"hours ago en", "23 hours ago", now.Add(-23 * time.Hour), true},
		{"slash minutes", "2024/05/31 08:15", time.Date(2024, 5, 31, 8, 15, 0, 0, jst), false},
		{"slash seconds", "2024/05/31 08:15:30", time.Date(2024, 5, 31, 8, 15, 30, 0, jst), false},
		{"dash seconds", "2024-05-31 08:15:30", time.Date(2024, 5, 31, 8, 15, 30, 0, jst), false},
		{"kanji", "2024年05月31日 08:15", time.Date(2024, 5, 31, 8, 15, 0, 0, jst), false},
		{"kanji full width colon", "2024年05月31日 08：15", time.Date(2024, 5, 31, 8, 15, 0, 0, jst), false},
		{"rfc3339", "2024-05-31T08:15:00+09:00", time.Date(2024, 5, 31, 8, 15, 0, 0, jst), false},
		{"surrounding whitespace", "  2024/05/31   08:15 \n", time.Date(2024, 5, 31, 8, 15, 0, 0, jst), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, relative, err := ParseTimestamp(tt.input, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
			assert.Equal(t, tt.relative, relative)
		})
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	now := time.Now()
	for _, input := range []string{"", "yesterday", "3日前", "2024/13/01 00:00", "abc分前"} {
		_, _, err := ParseTimestamp(input, now)
		assert.ErrorIs(t, err, ErrMalformed, "input %q", input)
	}
}
