package emaps

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/electricitymaps/carbonshift/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() model.OptimizationRequest {
	return model.OptimizationRequest{
		StartWindow:   time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
		EndWindow:     time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC),
		DurationHours: 2,
		Location:      model.Location{Latitude: 50.85, Longitude: 4.33},
		Metric:        model.DefaultOptimizationMetric,
	}
}

func okBody(start time.Time) map[string]any {
	return map[string]any{
		"optimalStartTime": start.Format(time.RFC3339),
		"optimalLocation":  []float64{4.33, 50.85},
		"optimizationOutput": map[string]any{
			"metricValueImmediateExecution":   100.0,
			"metricValueOptimalExecution":     80.0,
			"metricValueStartWindowExecution": 90.0,
			"metricUnit":                      "gCO2eq/kWh",
			"optimizationMetric":              model.DefaultOptimizationMetric,
			"zoneKey":                         "BE",
		},
	}
}

func newTestClient(url, token string) *HTTPOptimizerClient {
	return NewHTTPOptimizerClient(ClientConfig{OptimizerURL: url, Token: token}, testLogger())
}

func TestQuerySuccess(t *testing.T) {
	optimal := time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okBody(optimal))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.RecommendedStart.Equal(optimal) {
		t.Errorf("RecommendedStart = %v, want %v", res.RecommendedStart, optimal)
	}
	if res.Output == nil || res.Output.ZoneKey != "BE" {
		t.Errorf("Output = %+v, want zone BE", res.Output)
	}
}

func TestQuerySerializesCoordinatesLongitudeFirst(t *testing.T) {
	var got optimizerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okBody(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Locations) != 1 {
		t.Fatalf("locations = %v, want exactly one pair", got.Locations)
	}
	// Policy is (latitude 50.85, longitude 4.33); the wire wants [4.33, 50.85].
	if got.Locations[0] != [2]float64{4.33, 50.85} {
		t.Errorf("location pair = %v, want [4.33 50.85] (longitude first)", got.Locations[0])
	}
	if got.Duration != 2 {
		t.Errorf("duration = %d, want 2", got.Duration)
	}
	if got.StartWindow != "2024-01-01T11:00:00Z" || got.EndWindow != "2024-01-01T15:00:00Z" {
		t.Errorf("window = %s..%s, want ISO-8601 UTC bounds", got.StartWindow, got.EndWindow)
	}
	if got.OptimizationMetric != model.DefaultOptimizationMetric {
		t.Errorf("metric = %q", got.OptimizationMetric)
	}
}

func TestQuerySendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(okBody(time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC)))
	}))
	defer srv.Close()

	_, _ = newTestClient(srv.URL, "my-secret-token").Query(context.Background(), testRequest())
	if gotAuth != "Bearer my-secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestQueryClassifiesUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token abc123"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "bad-token").Query(context.Background(), testRequest())
	if model.CodeOf(err) != model.ErrAuthentication {
		t.Fatalf("CodeOf = %s, want AUTHENTICATION (err: %v)", model.CodeOf(err), err)
	}
	// The classified message must not echo anything from the provider
	// body or the credential.
	if strings.Contains(err.Error(), "abc123") || strings.Contains(err.Error(), "bad-token") {
		t.Errorf("authentication error leaks credential material: %q", err.Error())
	}
}

func TestQueryClassifiesForbidden(t *testing.T) {
	tests := []struct {
		name string
		body string
		want model.ErrorCode
	}{
		{"no forecast entitlement", `{"message":"subscription has no forecast access"}`, model.ErrForecastUnavailable},
		{"plain forbidden", `{"message":"forbidden"}`, model.ErrAuthentication},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tt.body, http.StatusForbidden)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
			if model.CodeOf(err) != tt.want {
				t.Errorf("CodeOf = %s, want %s", model.CodeOf(err), tt.want)
			}
		})
	}
}

func TestQueryClassifiesZoneNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"no zone for coordinates"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
	if model.CodeOf(err) != model.ErrForecastUnavailable {
		t.Fatalf("CodeOf = %s, want FORECAST_UNAVAILABLE", model.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "real-time-only") {
		t.Errorf("message should point at forecast entitlement: %q", err.Error())
	}
}

func TestQueryClassifiesMalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway</html>"},
		{"missing recommended start", `{"optimalLocation":[4.33,50.85]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
			if model.CodeOf(err) != model.ErrMalformedResponse {
				t.Errorf("CodeOf = %s, want MALFORMED_RESPONSE (err: %v)", model.CodeOf(err), err)
			}
		})
	}
}

func TestQueryClassifiesGenericStatusAsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"overloaded"}`, http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
	if model.CodeOf(err) != model.ErrTransport {
		t.Fatalf("CodeOf = %s, want TRANSPORT", model.CodeOf(err))
	}
	var se *model.SchedulerError
	if !errors.As(err, &se) || se.Status != http.StatusBadGateway {
		t.Errorf("status not preserved: %v", err)
	}
}

func TestQueryTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := newTestClient(srv.URL, "t").Query(context.Background(), testRequest())
	if model.CodeOf(err) != model.ErrTransport {
		t.Errorf("CodeOf = %s, want TRANSPORT", model.CodeOf(err))
	}
}

func TestQueryContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv.URL, "t").Query(ctx, testRequest())
	if err == nil {
		t.Fatal("expected error from cancelled context, got nil")
	}
}
