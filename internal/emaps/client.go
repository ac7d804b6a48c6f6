// Package emaps is a client for the Electricity Maps carbon-aware
// optimizer. One synchronous call per query, no retries, no caching:
// forecasts are time-sensitive and must never be served stale.
package emaps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// DefaultOptimizerURL is the production optimizer endpoint.
const DefaultOptimizerURL = "https://api.electricitymaps.com/v3/carbon-aware-optimizer"

// OptimizerClient abstracts the single optimizer call for testability.
type OptimizerClient interface {
	Query(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error)
}

// ClientConfig holds optimizer service configuration. The token is opaque
// credential material: injected once at construction, never logged.
type ClientConfig struct {
	OptimizerURL string
	Token        string
}

// DefaultClientConfig returns configuration pointing to the production endpoint.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		OptimizerURL: DefaultOptimizerURL,
	}
}

// optimizerRequest is the provider's request envelope. Coordinates are
// ordered [longitude, latitude] — reversed from the policy's
// latitude-first convention. Exactly one pair: single-location requests
// only.
type optimizerRequest struct {
	Duration           int          `json:"duration"`
	StartWindow        string       `json:"startWindow"`
	EndWindow          string       `json:"endWindow"`
	Locations          [][2]float64 `json:"locations"`
	OptimizationMetric string       `json:"optimizationMetric"`
}

// optimizerResponse is the provider's response envelope.
type optimizerResponse struct {
	OptimalStartTime   time.Time        `json:"optimalStartTime"`
	OptimalLocation    [2]float64       `json:"optimalLocation"`
	OptimizationOutput *optimizerOutput `json:"optimizationOutput"`
}

type optimizerOutput struct {
	MetricValueImmediateExecution   float64 `json:"metricValueImmediateExecution"`
	MetricValueOptimalExecution     float64 `json:"metricValueOptimalExecution"`
	MetricValueStartWindowExecution float64 `json:"metricValueStartWindowExecution"`
	MetricUnit                      string  `json:"metricUnit"`
	OptimizationMetric              string  `json:"optimizationMetric"`
	ZoneKey                         string  `json:"zoneKey"`
}

// errorResponse is the provider's error body shape.
type errorResponse struct {
	Message string `json:"message"`
}

// HTTPOptimizerClient implements OptimizerClient using net/http.
type HTTPOptimizerClient struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPOptimizerClient creates a client targeting the configured endpoint.
func NewHTTPOptimizerClient(cfg ClientConfig, logger *slog.Logger) *HTTPOptimizerClient {
	return &HTTPOptimizerClient{
		url:    cfg.OptimizerURL,
		token:  cfg.Token,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger.With("component", "emaps"),
	}
}

// Query sends one optimization request and parses the recommended start.
// Failures come back as classified model.SchedulerError values:
// AUTHENTICATION, FORECAST_UNAVAILABLE, MALFORMED_RESPONSE, or TRANSPORT
// (with status preserved for unclassified non-2xx).
func (c *HTTPOptimizerClient) Query(ctx context.Context, req model.OptimizationRequest) (*model.OptimizationResult, error) {
	wire := optimizerRequest{
		Duration:    req.DurationHours,
		StartWindow: req.StartWindow.UTC().Format(time.RFC3339),
		EndWindow:   req.EndWindow.UTC().Format(time.RFC3339),
		// The ordering flip: policy is latitude-first, the wire wants
		// longitude-first.
		Locations:          [][2]float64{{req.Location.Longitude, req.Location.Latitude}},
		OptimizationMetric: req.Metric,
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, model.NewTransportError(0, fmt.Errorf("marshal optimizer request: %w", err))
	}

	c.logger.Debug("optimizer query",
		"start_window", wire.StartWindow,
		"end_window", wire.EndWindow,
		"duration_hours", wire.Duration,
		"metric", wire.OptimizationMetric,
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewTransportError(0, fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, model.NewTransportError(0, fmt.Errorf("optimizer call: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewTransportError(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, classifyStatus(resp.StatusCode, respBody)
	}

	var parsed optimizerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, model.NewMalformedResponseError("optimizer response is not valid JSON", err)
	}
	if parsed.OptimalStartTime.IsZero() {
		return nil, model.NewMalformedResponseError("optimizer response carries no recommended start for the requested location", nil)
	}

	result := &model.OptimizationResult{
		RecommendedStart: parsed.OptimalStartTime,
		Location:         parsed.OptimalLocation,
	}
	if parsed.OptimizationOutput != nil {
		result.Output = &model.OptimizationOutput{
			MetricValueImmediateExecution:   parsed.OptimizationOutput.MetricValueImmediateExecution,
			MetricValueOptimalExecution:     parsed.OptimizationOutput.MetricValueOptimalExecution,
			MetricValueStartWindowExecution: parsed.OptimizationOutput.MetricValueStartWindowExecution,
			MetricUnit:                      parsed.OptimizationOutput.MetricUnit,
			OptimizationMetric:              parsed.OptimizationOutput.OptimizationMetric,
			ZoneKey:                         parsed.OptimizationOutput.ZoneKey,
		}
	}
	return result, nil
}

// classifyStatus maps a non-2xx status and body to the error taxonomy.
// 401 is always a credential problem. 403 is a credential problem unless
// the provider message says the subscription lacks forecast access. 404
// means the coordinate pair resolves to no supported zone. Everything
// else folds into TRANSPORT with the status preserved.
func classifyStatus(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	detail := strings.TrimSpace(er.Message)

	switch status {
	case http.StatusUnauthorized:
		return model.NewAuthenticationError(status)
	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(detail), "forecast") {
			return model.NewForecastUnavailableError(status, detail)
		}
		return model.NewAuthenticationError(status)
	case http.StatusNotFound:
		return model.NewForecastUnavailableError(status, detail)
	}

	if detail != "" {
		return model.NewTransportError(status, fmt.Errorf("optimizer returned %d: %s", status, detail))
	}
	return model.NewTransportError(status, fmt.Errorf("optimizer returned %d", status))
}
