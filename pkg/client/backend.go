package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/stockhub-client/pkg/jobs"
)

// Route templates, used as metric and error labels.
const (
	EndpointSeries      = "/api/series/{symbol}"
	EndpointStock       = "/api/stock/{symbol}"
	EndpointPredictions = "/api/predictions/{symbol}"
	EndpointJobs        = "/api/jobs/{id}"
	EndpointStatus      = "/api/status"
)

// GetSeries fetches the price history of symbol over rangeToken.
func (c *Client) GetSeries(ctx context.Context, symbol, rangeToken string) (*Series, error) {
	resp, err := c.get(ctx, EndpointSeries, "/api/series/"+url.PathEscape(symbol), url.Values{"range": {rangeToken}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.invalid(EndpointSeries, resp.StatusCode, "unexpected status", nil)
	}

	var series Series
	if err := decodeStrict(resp.Body, &series); err != nil {
		return nil, c.invalid(EndpointSeries, resp.StatusCode, "decode series", err)
	}
	if series.Points == nil {
		return nil, c.invalid(EndpointSeries, resp.StatusCode, "series without points", nil)
	}
	return &series, nil
}

// GetQuote fetches the current price, previous close and history of symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	resp, err := c.get(ctx, EndpointStock, "/api/stock/"+url.PathEscape(symbol), nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.invalid(EndpointStock, resp.StatusCode, "unexpected status", nil)
	}

	var quote Quote
	if err := decodeStrict(resp.Body, &quote); err != nil {
		return nil, c.invalid(EndpointStock, resp.StatusCode, "decode quote", err)
	}
	if quote.Price <= 0 {
		return nil, c.invalid(EndpointStock, resp.StatusCode, "quote without price", nil)
	}
	return &quote, nil
}

// SubmitPrediction requests a forecast for symbol. The backend answers with
// the forecast (200) or accepts a job to poll (202).
func (c *Client) SubmitPrediction(ctx context.Context, symbol string) (jobs.Submission, error) {
	resp, err := c.get(ctx, EndpointPredictions, "/api/predictions/"+url.PathEscape(symbol), nil)
	if err != nil {
		return jobs.Submission{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if msg, ok := embeddedError(resp.Body); ok {
			return jobs.Submission{}, c.invalid(EndpointPredictions, resp.StatusCode, msg, nil)
		}
		if !json.Valid(resp.Body) {
			return jobs.Submission{}, c.invalid(EndpointPredictions, resp.StatusCode, "body is not JSON", nil)
		}
		return jobs.Immediate(resp.Body), nil

	case http.StatusAccepted:
		var a accepted
		if err := json.Unmarshal(resp.Body, &a); err != nil {
			return jobs.Submission{}, c.invalid(EndpointPredictions, resp.StatusCode, "decode accepted job", err)
		}
		if a.id() == "" {
			return jobs.Submission{}, c.invalid(EndpointPredictions, resp.StatusCode, "accepted without job id", nil)
		}
		c.logger.Debug().Str("symbol", symbol).Str("job_id", a.id()).Msg("Prediction job accepted")
		return jobs.Accepted(a.id()), nil

	default:
		return jobs.Submission{}, c.invalid(EndpointPredictions, resp.StatusCode, "unexpected status", nil)
	}
}

// GetJob polls a job once.
func (c *Client) GetJob(ctx context.Context, jobID string) (jobs.Job, error) {
	resp, err := c.get(ctx, EndpointJobs, "/api/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return jobs.Job{}, err
	}

	var job jobs.Job
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		return jobs.Job{}, c.invalid(EndpointJobs, resp.StatusCode, "decode job", err)
	}
	job.ID = jobID
	if err := job.Validate(); err != nil {
		return jobs.Job{}, c.invalid(EndpointJobs, resp.StatusCode, "invalid job", err)
	}
	return job, nil
}

// Status fetches the backend health report.
func (c *Client) Status(ctx context.Context) (*BackendStatus, error) {
	resp, err := c.get(ctx, EndpointStatus, "/api/status", nil)
	if err != nil {
		return nil, err
	}

	var status BackendStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return nil, c.invalid(EndpointStatus, resp.StatusCode, "decode status", err)
	}
	return &status, nil
}

// decodeStrict unmarshals a JSON object body, rejecting non-objects.
func decodeStrict(body []byte, dest any) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("expected JSON object")
	}
	return json.Unmarshal(trimmed, dest)
}
