package testutil

import (
	"fmt"
	"strings"
)

// HistoryJSON renders a daily close history ending on the last date, as a
// JSON array of {date, price}.
func HistoryJSON(dates []string, prices []float64) string {
	parts := make([]string, len(dates))
	for i := range dates {
		parts[i] = fmt.Sprintf(`{"date":%q,"price":%v}`, dates[i], prices[i])
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// DefaultHistory is a short history ending Friday 2026-02-27 at 100.
var DefaultHistory = HistoryJSON(
	[]string{"2026-02-25", "2026-02-26", "2026-02-27"},
	[]float64{97, 98.5, 100},
)

// BundleJSON renders a forecast bundle with the given baseline prices.
func BundleJSON(oneDay, twoDay, oneWeek, accuracy float64) string {
	return fmt.Sprintf(`{"baseline":{"oneDay":{"price":%v,"changePercent":%v},"twoDay":{"price":%v,"changePercent":%v},"oneWeek":{"price":%v,"changePercent":%v}},"historicalData":%s,"accuracy":%v}`,
		oneDay, oneDay-100, twoDay, twoDay-100, oneWeek, oneWeek-100, DefaultHistory, accuracy)
}

// NextDayPredictionJSON renders the single-horizon prediction payload, with
// the change measured against the last close of DefaultHistory.
func NextDayPredictionJSON(price, accuracy float64) string {
	return fmt.Sprintf(`{"prediction":{"date":"2026-02-28","price":%v,"change_percent":%v},"accuracy":%v,"historicalData":%s}`,
		price, price-100, accuracy, DefaultHistory)
}

// QuoteJSON renders a quote payload.
func QuoteJSON(price, previousClose float64) string {
	return fmt.Sprintf(`{"price":%v,"previousClose":%v,"historicalData":%s}`, price, previousClose, DefaultHistory)
}

// SeriesJSON renders a series payload.
func SeriesJSON(symbol, rangeToken string) string {
	return fmt.Sprintf(`{"symbol":%q,"range":%q,"points":%s}`, symbol, rangeToken, DefaultHistory)
}
