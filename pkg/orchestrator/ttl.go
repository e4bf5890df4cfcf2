package orchestrator

import (
	"strings"
	"time"
	_ "time/tzdata" // market clock must not depend on the host zoneinfo
)

// Range is a series range token understood by the backend.
type Range string

const (
	Range1D  Range = "1D"
	Range1W  Range = "1W"
	Range1M  Range = "1M"
	Range3M  Range = "3M"
	Range6M  Range = "6M"
	Range1Y  Range = "1Y"
	Range5Y  Range = "5Y"
	RangeMax Range = "MAX"
)

// Ranges lists every accepted range, shortest first.
var Ranges = []Range{Range1D, Range1W, Range1M, Range3M, Range6M, Range1Y, Range5Y, RangeMax}

// ParseRange normalizes a range token. The second result is false for
// unknown tokens.
func ParseRange(s string) (Range, bool) {
	r := Range(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Ranges {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// TTLPolicy is the freshness table applied when writing fetched data.
type TTLPolicy struct {
	// IntradayOpen applies to 1-day series and tickers while the market is open.
	IntradayOpen time.Duration

	// IntradayClosed applies to 1-day series and tickers outside trading hours.
	IntradayClosed time.Duration

	// ShortRange applies to 1-week, 1-month and 3-month series.
	ShortRange time.Duration

	// LongRange applies to every longer series.
	LongRange time.Duration

	// Predictions applies to forecast bundles.
	Predictions time.Duration
}

// DefaultTTLPolicy returns the standard freshness table.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		IntradayOpen:   1 * time.Minute,
		IntradayClosed: 12 * time.Hour,
		ShortRange:     30 * time.Minute,
		LongRange:      12 * time.Hour,
		Predictions:    60 * time.Minute,
	}
}

// Series returns the TTL for a series of range r.
func (p TTLPolicy) Series(r Range, marketOpen bool) time.Duration {
	switch r {
	case Range1D:
		return p.Intraday(marketOpen)
	case Range1W, Range1M, Range3M:
		return p.ShortRange
	default:
		return p.LongRange
	}
}

// Intraday returns the TTL for data that moves with every trade.
func (p TTLPolicy) Intraday(marketOpen bool) time.Duration {
	if marketOpen {
		return p.IntradayOpen
	}
	return p.IntradayClosed
}

// Regular NYSE session, local exchange time.
const (
	sessionOpen  = 9*time.Hour + 30*time.Minute
	sessionClose = 16 * time.Hour
)

var exchangeLocation = loadExchangeLocation()

func loadExchangeLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*60*60)
	}
	return loc
}

// IsMarketOpen reports whether t falls inside the regular NYSE session
// (09:30 to 16:00 New York time, Monday to Friday). Exchange holidays are
// not modelled and count as open.
func IsMarketOpen(t time.Time) bool {
	local := t.In(exchangeLocation)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}

	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, exchangeLocation)
	sinceMidnight := local.Sub(midnight)
	return sinceMidnight >= sessionOpen && sinceMidnight < sessionClose
}
