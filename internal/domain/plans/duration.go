package plans

import (
	"strconv"
	"strings"
	"time"
)

// fallback when a plan carries a duration we cannot parse
const defaultExtensionDays = 30

// NextPeriodEnd returns from plus one plan period. Durations are parsed by
// trailing unit suffix (d, m, y); ok is false when the suffix is unrecognized,
// in which case the default 30-day extension is applied.
func (p Plan) NextPeriodEnd(from time.Time) (time.Time, bool) {
	return AddPeriod(from, p.Duration)
}

func AddPeriod(from time.Time, duration string) (time.Time, bool) {
	n, unit, ok := ParsePeriod(duration)
	if !ok {
		return from.AddDate(0, 0, defaultExtensionDays), false
	}

	switch unit {
	case 'd':
		return from.AddDate(0, 0, n), true
	case 'm':
		return from.AddDate(0, n, 0), true
	default:
		return from.AddDate(n, 0, 0), true
	}
}

// ParsePeriod splits a duration like "30d", "3m" or "1y" into its count and
// unit suffix. ok is false for anything it cannot parse.
func ParsePeriod(duration string) (int, byte, bool) {
	d := strings.TrimSpace(strings.ToLower(duration))
	if len(d) < 2 {
		return 0, 0, false
	}

	n, err := strconv.Atoi(d[:len(d)-1])
	if err != nil || n <= 0 {
		return 0, 0, false
	}

	switch unit := d[len(d)-1]; unit {
	case 'd', 'm', 'y':
		return n, unit, true
	}
	return 0, 0, false
}
