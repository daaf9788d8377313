package viewport

import (
	"strconv"
	"time"
)

// ParseTimeframe converts a bar size such as "1s", "5m", "4H", "1d", "1w" or
// "1M" into a duration. Lowercase m is minutes, uppercase M is a 30-day month.
func ParseTimeframe(tf string) (time.Duration, bool) {
	if len(tf) < 2 {
		return 0, false
	}
	unit := tf[len(tf)-1]
	n, err := strconv.ParseInt(tf[:len(tf)-1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	d := time.Duration(n)
	switch unit {
	case 's', 'S':
		return d * time.Second, true
	case 'm':
		return d * time.Minute, true
	case 'h', 'H':
		return d * time.Hour, true
	case 'd', 'D':
		return d * 24 * time.Hour, true
	case 'w', 'W':
		return d * 7 * 24 * time.Hour, true
	case 'M':
		return d * 30 * 24 * time.Hour, true
	}
	return 0, false
}

// DefaultVisible is used when the timeframe is unknown.
const DefaultVisible = 60

// VisibleCount is the number of candles shown after a bulk load. Finer
// granularities show more of the recent history.
func VisibleCount(tf string) int {
	d, ok := ParseTimeframe(tf)
	if !ok {
		return DefaultVisible
	}
	switch {
	case d < time.Minute:
		return 120
	case d < 5*time.Minute:
		return 100
	case d < time.Hour:
		return 80
	case d < 4*time.Hour:
		return 60
	case d < 24*time.Hour:
		return 48
	case d < 7*24*time.Hour:
		return 30
	}
	return 20
}
