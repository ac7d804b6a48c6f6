package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

// Client talks to the carbonshift steps API. Methods return decoded
// domain types; the envelope never leaves this file.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a carbonshift API client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

// CreateStepRequest is the submission payload. Policy marshals with
// string durations, matching what the server decodes.
type CreateStepRequest struct {
	Name   string            `json:"name"`
	Policy model.WaitPolicy  `json:"policy"`
	Labels map[string]string `json:"labels,omitempty"`
}

// CreateStep submits a step and returns the server's record of it.
func (c *Client) CreateStep(req CreateStepRequest) (*model.Step, error) {
	env, err := c.do("POST", "/api/v1/steps/", req)
	if err != nil {
		return nil, err
	}
	return decodeStep(env.Data)
}

// GetStep fetches one step by id.
func (c *Client) GetStep(id string) (*model.Step, error) {
	env, err := c.do("GET", "/api/v1/steps/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return decodeStep(env.Data)
}

// ListSteps fetches steps, optionally filtered by state.
func (c *Client) ListSteps(state string) ([]model.Step, *model.Pagination, error) {
	path := "/api/v1/steps/"
	if state != "" {
		path += "?state=" + url.QueryEscape(state)
	}
	env, err := c.do("GET", path, nil)
	if err != nil {
		return nil, nil, err
	}
	var steps []model.Step
	if err := json.Unmarshal(env.Data, &steps); err != nil {
		return nil, nil, fmt.Errorf("decode steps: %w", err)
	}
	return steps, env.Pagination, nil
}

// CancelStep cancels a step and returns its resulting state.
func (c *Client) CancelStep(id string) (model.StepState, error) {
	env, err := c.do("PUT", "/api/v1/steps/"+url.PathEscape(id)+"/cancel", nil)
	if err != nil {
		return "", err
	}
	var data struct {
		State model.StepState `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode cancel response: %w", err)
	}
	return data.State, nil
}

func decodeStep(raw json.RawMessage) (*model.Step, error) {
	var step model.Step
	if err := json.Unmarshal(raw, &step); err != nil {
		return nil, fmt.Errorf("decode step: %w", err)
	}
	return &step, nil
}

// envelope mirrors the server's response wrapper.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

// do performs a request and unwraps the envelope. An error envelope
// surfaces as the server's APIError, so callers see the API's own
// message and code rather than a transport wrapper.
func (c *Client) do(method, path string, body any) (*envelope, error) {
	reqURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.Logger.Debug("api request", "method", method, "url", reqURL)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.Logger.Debug("api response", "status", resp.StatusCode, "request_id", resp.Header.Get("X-Request-ID"))

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if env.Error != nil {
		return nil, env.Error
	}
	return &env, nil
}
