package orchestrator

import (
	"github.com/Sternrassler/stockhub-client/pkg/forecast"
	"github.com/Sternrassler/stockhub-client/pkg/queue"
)

// Series is a price history returned by FetchSeries.
type Series struct {
	Symbol string                `json:"symbol"`
	Range  Range                 `json:"range"`
	Points []forecast.PricePoint `json:"points"`

	// Cached is true when the value was served without a backend call.
	Cached bool `json:"cached"`
}

// Predictions is the model comparison returned by FetchPredictions.
type Predictions struct {
	Symbol         string                  `json:"symbol"`
	ModelVersion   string                  `json:"modelVersion"`
	Accuracy       float64                 `json:"accuracy"`
	Models         []forecast.ModelVariant `json:"models"`
	HistoricalData []forecast.PricePoint   `json:"historicalData"`
	Cached         bool                    `json:"cached"`
}

// TickerSnapshot is the overview returned by FetchTickerSnapshot. Change and
// ChangePercent are zero when the previous close is unknown.
type TickerSnapshot struct {
	Symbol         string                `json:"symbol"`
	Price          float64               `json:"price"`
	PreviousClose  float64               `json:"previousClose"`
	Change         float64               `json:"change"`
	ChangePercent  float64               `json:"changePercent"`
	HistoricalData []forecast.PricePoint `json:"historicalData"`
	Cached         bool                  `json:"cached"`
}

// Health is a point-in-time view of the layer and its dependencies.
type Health struct {
	Healthy bool        `json:"healthy"`
	Cache   string      `json:"cache"`
	Backend string      `json:"backend"`
	Queue   queue.Stats `json:"queue"`
}
