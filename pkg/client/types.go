package client

import (
	"encoding/json"
	"strings"

	"github.com/Sternrassler/stockhub-client/pkg/forecast"
)

// Series is a price history for one range.
type Series struct {
	Symbol string                `json:"symbol"`
	Range  string                `json:"range"`
	Points []forecast.PricePoint `json:"points"`
}

// Quote is the backend's current price view of a symbol.
type Quote struct {
	Price          float64               `json:"price"`
	PreviousClose  float64               `json:"previousClose"`
	HistoricalData []forecast.PricePoint `json:"historicalData"`
}

// BackendStatus is the health report of the backend.
type BackendStatus struct {
	Time  string `json:"time"`
	Redis string `json:"redis"`
	Queue string `json:"queue"`
}

// Healthy reports whether every backend dependency is ok.
func (s BackendStatus) Healthy() bool {
	return s.Redis == "ok" && s.Queue == "ok"
}

// accepted is the 202 body. Both spellings of the id are seen in the wild.
type accepted struct {
	JobID  string `json:"job_id"`
	JobIDC string `json:"jobId"`
}

func (a accepted) id() string {
	if a.JobID != "" {
		return a.JobID
	}
	return a.JobIDC
}

// errorBody matches the backend's error payloads.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// errorMessage extracts a message from an error body, falling back to the
// HTTP status text.
func errorMessage(status string, body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Detail != "" {
			return eb.Detail
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return status
}

// embeddedError returns the message of a 2xx body that is actually an error
// payload ({"error": "..."}).
func embeddedError(body []byte) (string, bool) {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || len(probe) != 1 {
		return "", false
	}
	raw, ok := probe["error"]
	if !ok {
		return "", false
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", false
	}
	return msg, true
}
