package cache

import (
	"strings"
)

// Resource names used as the first key segment.
const (
	ResourceSeries      = "series"
	ResourcePredictions = "predictions"
	ResourceTicker      = "ticker"
)

// Key identifies a cached backend resource.
type Key struct {
	// Resource is the logical resource (series, predictions, ticker)
	Resource string

	// Symbol is the ticker symbol; normalized to upper case
	Symbol string

	// Params are ordered qualifiers such as a range or model version.
	// Order is significant.
	Params []string
}

// String generates a deterministic cache key string.
// Format: resource:SYMBOL:param1:param2
//
// Example:
//
//	series:AAPL:1D
//	predictions:MSFT:v1
func (k Key) String() string {
	parts := make([]string, 0, 2+len(k.Params))
	parts = append(parts, strings.ToLower(strings.TrimSpace(k.Resource)))

	if symbol := NormalizeSymbol(k.Symbol); symbol != "" {
		parts = append(parts, symbol)
	}

	for _, p := range k.Params {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		// ':' separates segments; keep a qualifier from forging extra ones.
		parts = append(parts, strings.ReplaceAll(p, ":", "_"))
	}

	return strings.Join(parts, ":")
}

// SeriesKey returns the key for a price series of symbol over rangeToken.
func SeriesKey(symbol, rangeToken string) Key {
	return Key{Resource: ResourceSeries, Symbol: symbol, Params: []string{rangeToken}}
}

// PredictionsKey returns the key for a prediction bundle computed by
// modelVersion.
func PredictionsKey(symbol, modelVersion string) Key {
	return Key{Resource: ResourcePredictions, Symbol: symbol, Params: []string{modelVersion}}
}

// TickerKey returns the key for a ticker snapshot.
func TickerKey(symbol string) Key {
	return Key{Resource: ResourceTicker, Symbol: symbol}
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
