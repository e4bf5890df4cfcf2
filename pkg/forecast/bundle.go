// Package forecast expands the backend's single baseline forecast into a
// fixed roster of model variants for side-by-side comparison.
//
// Only the primary model (roster index 0) carries real backend output. Every
// other variant is a synthetic approximation derived from the baseline with a
// deterministic, bounded perturbation and is flagged Synthetic.
package forecast

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBundle indicates a backend forecast that cannot be derived from.
var ErrInvalidBundle = errors.New("invalid forecast bundle")

// Horizon identifies one forecast horizon.
type Horizon string

const (
	HorizonOneDay  Horizon = "1d"
	HorizonTwoDay  Horizon = "2d"
	HorizonOneWeek Horizon = "1w"
)

// Horizons lists every horizon in ascending order.
var Horizons = []Horizon{HorizonOneDay, HorizonTwoDay, HorizonOneWeek}

// businessDays is the number of trading days each horizon looks ahead.
var businessDays = map[Horizon]int{
	HorizonOneDay:  1,
	HorizonTwoDay:  2,
	HorizonOneWeek: 5,
}

// HorizonForecast is the backend's forecast for one horizon.
type HorizonForecast struct {
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

// Baseline holds the backend forecast for every horizon.
type Baseline struct {
	OneDay  HorizonForecast `json:"oneDay"`
	TwoDay  HorizonForecast `json:"twoDay"`
	OneWeek HorizonForecast `json:"oneWeek"`
}

// At returns the forecast for h.
func (b Baseline) At(h Horizon) HorizonForecast {
	switch h {
	case HorizonTwoDay:
		return b.TwoDay
	case HorizonOneWeek:
		return b.OneWeek
	default:
		return b.OneDay
	}
}

// PricePoint is one historical close.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// Bundle is one backend-computed forecast.
//
// Two payload shapes decode into a Bundle: the multi-horizon
// {"baseline": {oneDay, twoDay, oneWeek}} form, and the single next-day
// {"prediction": {date, price, change_percent}} form. For the single form the
// next-day forecast becomes the one-day baseline and the two-day and one-week
// prices compound its daily rate over the horizon's business days. A Bundle
// always encodes in the multi-horizon form.
type Bundle struct {
	Baseline       Baseline     `json:"baseline"`
	HistoricalData []PricePoint `json:"historicalData"`
	Accuracy       float64      `json:"accuracy"`
}

// NextDayPrediction is the single-horizon forecast payload.
type NextDayPrediction struct {
	Date          string  `json:"date"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
}

type bundleWire struct {
	Baseline       *Baseline          `json:"baseline"`
	Prediction     *NextDayPrediction `json:"prediction"`
	HistoricalData []PricePoint       `json:"historicalData"`
	Accuracy       float64            `json:"accuracy"`
}

// UnmarshalJSON accepts either payload shape. A payload with neither decodes
// to a zero baseline that Validate rejects.
func (b *Bundle) UnmarshalJSON(data []byte) error {
	var w bundleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*b = Bundle{HistoricalData: w.HistoricalData, Accuracy: w.Accuracy}
	switch {
	case w.Baseline != nil:
		b.Baseline = *w.Baseline
	case w.Prediction != nil:
		last, ok := b.LastPrice()
		if !ok {
			last, ok = impliedClose(*w.Prediction)
		}
		b.Baseline = extendNextDay(*w.Prediction, last, ok)
	}
	return nil
}

// impliedClose recovers the close a next-day change percent was measured
// against.
func impliedClose(p NextDayPrediction) (float64, bool) {
	ratio := 1 + p.ChangePercent/100
	if p.ChangePercent == 0 || ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return 0, false
	}
	return p.Price / ratio, true
}

// extendNextDay builds a full baseline from a next-day forecast. Without a
// reference close the later horizons stay flat at the next-day price.
func extendNextDay(p NextDayPrediction, last float64, hasLast bool) Baseline {
	at := func(h Horizon) HorizonForecast {
		if !hasLast || last <= 0 {
			return HorizonForecast{Price: p.Price, ChangePercent: p.ChangePercent}
		}
		price := last * math.Pow(p.Price/last, float64(businessDays[h]))
		return HorizonForecast{Price: price, ChangePercent: (price - last) / last * 100}
	}
	return Baseline{
		OneDay:  HorizonForecast{Price: p.Price, ChangePercent: p.ChangePercent},
		TwoDay:  at(HorizonTwoDay),
		OneWeek: at(HorizonOneWeek),
	}
}

// Validate checks the bundle carries a usable baseline. Missing history is
// allowed; derivation degrades change percentages instead.
func (b *Bundle) Validate() error {
	for _, h := range Horizons {
		p := b.Baseline.At(h).Price
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: %s baseline price %v", ErrInvalidBundle, h, p)
		}
	}
	if math.IsNaN(b.Accuracy) || math.IsInf(b.Accuracy, 0) {
		return fmt.Errorf("%w: accuracy %v", ErrInvalidBundle, b.Accuracy)
	}
	return nil
}

// LastPrice returns the most recent historical close, or false if there is
// none usable.
func (b *Bundle) LastPrice() (float64, bool) {
	if len(b.HistoricalData) == 0 {
		return 0, false
	}
	p := b.HistoricalData[len(b.HistoricalData)-1].Price
	if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

// LastDate returns the date of the most recent historical close.
func (b *Bundle) LastDate() string {
	if len(b.HistoricalData) == 0 {
		return ""
	}
	return b.HistoricalData[len(b.HistoricalData)-1].Date
}
