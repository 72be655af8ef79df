package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/session"
)

// DefaultLoadTimeout bounds a synchronous load request.
const DefaultLoadTimeout = 30 * time.Second

// ManifestHandler exposes the session's manifest and base URL resolution.
type ManifestHandler struct {
	session     *session.Session
	loadTimeout time.Duration
}

// NewManifestHandler creates a new manifest handler.
func NewManifestHandler(s *session.Session) *ManifestHandler {
	return &ManifestHandler{session: s, loadTimeout: DefaultLoadTimeout}
}

// WithLoadTimeout overrides how long a synchronous load may wait.
func (h *ManifestHandler) WithLoadTimeout(d time.Duration) *ManifestHandler {
	if d > 0 {
		h.loadTimeout = d
	}
	return h
}

// Register registers the manifest routes with the API.
func (h *ManifestHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getManifest",
		Method:      "GET",
		Path:        "/api/v1/manifest",
		Summary:     "Get current manifest",
		Description: "Returns the latest published manifest with the base URL each representation resolves to",
		Tags:        []string{"Manifest"},
	}, h.GetManifest)

	huma.Register(api, huma.Operation{
		OperationID:   "loadManifest",
		Method:        "POST",
		Path:          "/api/v1/manifest/load",
		Summary:       "Load a manifest",
		Description:   "Fetches, parses and publishes a manifest. With async set the request returns once loading has started.",
		Tags:          []string{"Manifest"},
		DefaultStatus: http.StatusOK,
	}, h.LoadManifest)

	huma.Register(api, huma.Operation{
		OperationID: "resolveBaseURL",
		Method:      "GET",
		Path:        "/api/v1/resolve",
		Summary:     "Resolve a base URL",
		Description: "Selects a base URL at every level of the manifest down to the given representation. Without a representation only the manifest level is resolved.",
		Tags:        []string{"Manifest"},
	}, h.Resolve)
}

// GetManifestInput is the input for the get manifest endpoint.
type GetManifestInput struct{}

// ManifestResponse is the current manifest with its last load error.
type ManifestResponse struct {
	Manifest  *session.Summary       `json:"manifest"`
	LastError *ManifestErrorResponse `json:"last_error,omitempty"`
}

// GetManifestOutput is the output for the get manifest endpoint.
type GetManifestOutput struct {
	Body ManifestResponse
}

// GetManifest returns the current manifest.
func (h *ManifestHandler) GetManifest(ctx context.Context, input *GetManifestInput) (*GetManifestOutput, error) {
	_, lastErr := h.session.Manifest()
	sum := h.session.Summary()
	if sum == nil && lastErr == nil {
		return nil, huma.Error404NotFound("no manifest loaded")
	}
	return &GetManifestOutput{Body: ManifestResponse{
		Manifest:  sum,
		LastError: manifestErrorFromModel(lastErr),
	}}, nil
}

// LoadManifestRequest is the request body for loading a manifest.
type LoadManifestRequest struct {
	URL             string            `json:"url" doc:"Manifest URL, absolute or relative to the document location" minLength:"1" maxLength:"4096"`
	ServiceLocation string            `json:"service_location,omitempty" doc:"Service location the request is attributed to"`
	QueryParams     map[string]string `json:"query_params,omitempty" doc:"Query parameters appended to the request URL"`
	Async           bool              `json:"async,omitempty" doc:"Return as soon as loading has started"`
}

// LoadManifestInput is the input for the load manifest endpoint.
type LoadManifestInput struct {
	Body LoadManifestRequest
}

// LoadManifestOutput is the output for the load manifest endpoint.
type LoadManifestOutput struct {
	Status int
	Body   ManifestResponse
}

// LoadManifest loads a manifest into the session.
func (h *ManifestHandler) LoadManifest(ctx context.Context, input *LoadManifestInput) (*LoadManifestOutput, error) {
	var opts []manifest.RequestOption
	if input.Body.ServiceLocation != "" {
		opts = append(opts, manifest.WithServiceLocation(input.Body.ServiceLocation))
	}
	if len(input.Body.QueryParams) > 0 {
		opts = append(opts, manifest.WithQueryParams(input.Body.QueryParams))
	}

	if input.Body.Async {
		if err := h.session.Load(input.Body.URL, opts...); err != nil {
			return nil, huma.Error503ServiceUnavailable(err.Error())
		}
		return &LoadManifestOutput{Status: http.StatusAccepted}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, h.loadTimeout)
	defer cancel()

	m, err := h.session.LoadAndWait(ctx, input.Body.URL, opts...)
	switch {
	case errors.Is(err, session.ErrClosed):
		return nil, huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return nil, huma.Error504GatewayTimeout("manifest load timed out")
	case err != nil:
		return nil, toHumaError(err)
	}

	out := &LoadManifestOutput{Status: http.StatusOK}
	if m != nil {
		out.Body.Manifest = h.session.Summary()
	}
	return out, nil
}

// ResolveInput is the input for the resolve endpoint.
type ResolveInput struct {
	Period         string `query:"period" doc:"Period id; empty matches the first period"`
	Representation string `query:"representation" doc:"Representation id"`
}

// ResolveOutput is the output for the resolve endpoint.
type ResolveOutput struct {
	Body ResolutionResponse
}

// Resolve selects base URLs for a representation.
func (h *ManifestHandler) Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error) {
	if input.Representation == "" {
		res, err := h.session.ResolveManifest()
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ResolveOutput{Body: resolutionFromModel(res)}, nil
	}

	res, err := h.session.Resolve(input.Period, input.Representation)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &ResolveOutput{Body: resolutionFromModel(res)}, nil
}
