package forecast

import (
	"encoding/json"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// HorizonPrediction is one model's forecast for one horizon. ChangePercent is
// NaN when there is no historical price to compare with and is encoded as
// JSON null.
type HorizonPrediction struct {
	Date          string  `json:"date"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"changePercent"`
}

type horizonPredictionJSON struct {
	Date          string   `json:"date"`
	Price         float64  `json:"price"`
	ChangePercent *float64 `json:"changePercent"`
}

func (p HorizonPrediction) MarshalJSON() ([]byte, error) {
	out := horizonPredictionJSON{Date: p.Date, Price: p.Price}
	if !math.IsNaN(p.ChangePercent) && !math.IsInf(p.ChangePercent, 0) {
		cp := p.ChangePercent
		out.ChangePercent = &cp
	}
	return json.Marshal(out)
}

func (p *HorizonPrediction) UnmarshalJSON(data []byte) error {
	var in horizonPredictionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	p.Date = in.Date
	p.Price = in.Price
	p.ChangePercent = math.NaN()
	if in.ChangePercent != nil {
		p.ChangePercent = *in.ChangePercent
	}
	return nil
}

// HasChange reports whether ChangePercent carries a value.
func (p HorizonPrediction) HasChange() bool {
	return !math.IsNaN(p.ChangePercent)
}

// ModelVariant is one roster model's forecast.
type ModelVariant struct {
	ModelID    string  `json:"modelId"`
	Name       string  `json:"name"`
	Prediction float64 `json:"prediction"`
	Accuracy   float64 `json:"accuracy"`
	Confidence float64 `json:"confidence"`

	Predictions1d HorizonPrediction `json:"predictions1d"`
	Predictions2d HorizonPrediction `json:"predictions2d"`
	Predictions1w HorizonPrediction `json:"predictions1w"`

	// Synthetic is false only for the primary model, whose figures are the
	// backend's own output.
	Synthetic bool `json:"synthetic"`
}

// At returns the variant's prediction for h.
func (v ModelVariant) At(h Horizon) HorizonPrediction {
	switch h {
	case HorizonTwoDay:
		return v.Predictions2d
	case HorizonOneWeek:
		return v.Predictions1w
	default:
		return v.Predictions1d
	}
}

// Options parameterize one derivation.
type Options struct {
	// Symbol seeds the perturbation so different tickers diverge.
	Symbol string

	// AsOf anchors horizon dates when the bundle has no parseable history.
	AsOf time.Time
}

// Derive expands bundle into one variant per roster entry, in roster order.
//
// Perturbations are drawn from a PRNG seeded by (symbol, model, anchor date,
// horizon), so deriving the same bundle twice yields identical variants.
// When the bundle has no usable last historical price, every ChangePercent
// is NaN.
func Derive(bundle *Bundle, roster []ModelSpec, opts Options) []ModelVariant {
	last, hasLast := bundle.LastPrice()
	anchor := anchorDate(bundle, opts.AsOf)
	anchorKey := anchor.Format(dateLayout)
	symbol := strings.ToUpper(strings.TrimSpace(opts.Symbol))

	variants := make([]ModelVariant, 0, len(roster))
	for i, spec := range roster {
		primary := i == 0
		variance := spec.VariancePct
		if primary || variance < 0 {
			variance = 0
		}

		accuracy := clamp(bundle.Accuracy+spec.AccuracyDelta, 0, 100)
		v := ModelVariant{
			ModelID:    spec.ID,
			Name:       spec.Name,
			Accuracy:   accuracy,
			Confidence: clamp(accuracy*(1-variance), 0, 100),
			Synthetic:  !primary,
		}

		for _, h := range Horizons {
			base := bundle.Baseline.At(h).Price
			price := base
			if variance > 0 {
				price = base * (1 + noise(symbol, spec.ID, anchorKey, h, variance))
			}

			hp := HorizonPrediction{
				Date:          horizonDate(anchor, h),
				Price:         price,
				ChangePercent: math.NaN(),
			}
			if hasLast {
				hp.ChangePercent = (price - last) / last * 100
			}

			switch h {
			case HorizonOneDay:
				v.Predictions1d = hp
			case HorizonTwoDay:
				v.Predictions2d = hp
			case HorizonOneWeek:
				v.Predictions1w = hp
			}
		}
		v.Prediction = v.Predictions1w.Price

		variants = append(variants, v)
	}
	return variants
}

// noise returns a deterministic draw in [-variance/2, +variance/2).
func noise(symbol, modelID, date string, h Horizon, variance float64) float64 {
	seed := xxhash.Sum64String(symbol + "|" + modelID + "|" + date + "|" + string(h))
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return (r.Float64() - 0.5) * variance
}

func anchorDate(bundle *Bundle, asOf time.Time) time.Time {
	if d, err := time.Parse(dateLayout, bundle.LastDate()); err == nil {
		return d
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	y, m, d := asOf.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
