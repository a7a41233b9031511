package plans

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddPeriod(t *testing.T) {
	from := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		duration string
		want     time.Time
		wantOK   bool
	}{
		{"days", "30d", from.AddDate(0, 0, 30), true},
		{"single month", "1m", from.AddDate(0, 1, 0), true},
		{"three months", "3m", from.AddDate(0, 3, 0), true},
		{"year", "1y", from.AddDate(1, 0, 0), true},
		{"uppercase suffix", "2D", from.AddDate(0, 0, 2), true},
		{"unknown suffix", "4w", from.AddDate(0, 0, 30), false},
		{"empty", "", from.AddDate(0, 0, 30), false},
		{"no number", "m", from.AddDate(0, 0, 30), false},
		{"negative", "-1m", from.AddDate(0, 0, 30), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := AddPeriod(from, tc.duration)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestNextPeriodEndNeverBeforeStart(t *testing.T) {
	from := time.Now()
	for _, d := range []string{"1d", "1m", "1y", "bogus", ""} {
		p := Plan{Duration: d}
		end, _ := p.NextPeriodEnd(from)
		assert.True(t, end.After(from), "duration %q", d)
	}
}
