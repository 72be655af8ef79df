package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/streamsource/internal/session"
	"github.com/jmylchreest/streamsource/pkg/httpclient"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	session   *session.Session
	client    *httpclient.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, s *session.Session) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
		session:   s,
	}
}

// WithClient reports the transport's circuit breakers in health output.
func (h *HealthHandler) WithClient(client *httpclient.Client) *HealthHandler {
	h.client = client
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status          string                     `json:"status"`
	Timestamp       string                     `json:"timestamp"`
	Version         string                     `json:"version"`
	Uptime          string                     `json:"uptime"`
	UptimeSeconds   float64                    `json:"uptime_seconds"`
	LoaderState     string                     `json:"loader_state"`
	ManifestLoaded  bool                       `json:"manifest_loaded"`
	LastError       *ManifestErrorResponse     `json:"last_error,omitempty"`
	Blacklisted     int                        `json:"blacklisted"`
	CircuitBreakers []httpclient.BreakerStatus `json:"circuit_breakers,omitempty"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Returns service status, loader state and origin circuit breakers",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	m, lastErr := h.session.Manifest()
	body := HealthResponse{
		Status:         "ok",
		Timestamp:      now.UTC().Format(time.RFC3339),
		Version:        h.version,
		Uptime:         uptime.Round(time.Second).String(),
		UptimeSeconds:  uptime.Seconds(),
		LoaderState:    h.session.LoaderState().String(),
		ManifestLoaded: m != nil,
		LastError:      manifestErrorFromModel(lastErr),
		Blacklisted:    len(h.session.Blacklist().Entries()),
	}
	if h.client != nil {
		body.CircuitBreakers = h.client.Breakers()
	}
	if lastErr != nil && m == nil {
		body.Status = "degraded"
	}

	return &HealthOutput{Body: body}, nil
}
