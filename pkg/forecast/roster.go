package forecast

// ModelSpec describes one entry of the comparison roster.
type ModelSpec struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// VariancePct is the full width of the perturbation band as a fraction
	// of price: a draw lies in [-VariancePct/2, +VariancePct/2].
	VariancePct float64 `json:"variancePct"`

	// AccuracyDelta is added to the backend accuracy.
	AccuracyDelta float64 `json:"accuracyDelta"`
}

// DefaultRoster is the model line-up served by the prediction backend. The
// first entry is the primary model.
var DefaultRoster = []ModelSpec{
	{ID: "lstm", Name: "LSTM", VariancePct: 0, AccuracyDelta: 0},
	{ID: "random_forest", Name: "Random Forest", VariancePct: 0.04, AccuracyDelta: -2},
	{ID: "prophet", Name: "Prophet", VariancePct: 0.06, AccuracyDelta: -4},
	{ID: "xgboost", Name: "XGBoost", VariancePct: 0.035, AccuracyDelta: -1},
	{ID: "arima", Name: "ARIMA", VariancePct: 0.05, AccuracyDelta: -5},
	{ID: "var", Name: "VAR", VariancePct: 0.055, AccuracyDelta: -6},
	{ID: "gru", Name: "GRU", VariancePct: 0.03, AccuracyDelta: -1.5},
	{ID: "lightgbm", Name: "LightGBM", VariancePct: 0.04, AccuracyDelta: -2.5},
	{ID: "catboost", Name: "CatBoost", VariancePct: 0.045, AccuracyDelta: -3},
	{ID: "wavelet", Name: "Wavelet", VariancePct: 0.07, AccuracyDelta: -7},
}
