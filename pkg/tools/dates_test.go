package tools

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday morning, fixed reference point for every parse case.
var parseNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

func TestParseDeadline(t *testing.T) {
	cases := []struct {
		name string
		expr string
		want time.Time
		ok   bool
	}{
		{"rfc3339", "2026-04-01T15:00:00Z", time.Date(2026, 4, 1, 15, 0, 0, 0, time.UTC), true},
		{"date only resolves to end of day", "2026-04-01", time.Date(2026, 4, 1, 23, 59, 59, 0, time.UTC), true},
		{"today", "today", time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC), true},
		{"eod", "eod", time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC), true},
		{"tomorrow", "tomorrow", time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC), true},
		{"weekday jumps to next occurrence", "friday", time.Date(2026, 3, 13, 23, 59, 59, 0, time.UTC), true},
		{"same weekday means next week", "tuesday", time.Date(2026, 3, 17, 23, 59, 59, 0, time.UTC), true},
		{"weekday embedded in phrase", "by Friday please", time.Date(2026, 3, 13, 23, 59, 59, 0, time.UTC), true},
		{"in N hours keeps clock time", "in 3 hours", parseNow.Add(3 * time.Hour), true},
		{"in N days resolves to end of day", "in 2 days", time.Date(2026, 3, 12, 23, 59, 59, 0, time.UTC), true},
		{"whitespace trimmed", "  tomorrow  ", time.Date(2026, 3, 11, 23, 59, 59, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"gibberish", "whenever", time.Time{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseDeadline(tc.expr, parseNow, time.UTC)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.True(t, got.Equal(tc.want), "got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestReminderTimes(t *testing.T) {
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	deadline := created.Add(4 * 24 * time.Hour)

	halfway, dayBefore := ReminderTimes(created, deadline)

	assert.Equal(t, created.Add(2*24*time.Hour), halfway)
	assert.Equal(t, deadline.Add(-24*time.Hour), dayBefore)
}

func TestTimeUntil(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "2d 3h", TimeUntil(now.Add(51*time.Hour), now))
	assert.Equal(t, "5h", TimeUntil(now.Add(5*time.Hour+30*time.Minute), now))
	assert.Equal(t, "overdue", TimeUntil(now.Add(-time.Minute), now))
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2026, 3, 13, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "Friday, March 13, 2026", FormatDate(d, time.UTC))
}
