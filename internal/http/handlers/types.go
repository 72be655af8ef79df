// Package handlers provides HTTP API handlers for streamsource.
package handlers

import (
	"errors"
	"math"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/streamsource/internal/baseurl"
	"github.com/jmylchreest/streamsource/internal/manifest"
)

// ManifestErrorResponse describes the most recent failed load.
type ManifestErrorResponse struct {
	Code    int    `json:"code" doc:"10 parsing failure, 11 loading failure, 19 resolution failure"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

func manifestErrorFromModel(e *manifest.Error) *ManifestErrorResponse {
	if e == nil {
		return nil
	}
	return &ManifestErrorResponse{Code: e.Code, Message: e.Error(), URL: e.URL}
}

// ResolutionResponse is the outcome of resolving a base URL.
type ResolutionResponse struct {
	URL                    string            `json:"url"`
	ServiceLocation        string            `json:"service_location,omitempty"`
	AvailabilityTimeOffset *float64          `json:"availability_time_offset,omitempty"`
	Selected               []BaseURLResponse `json:"selected"`
}

// BaseURLResponse is one selected candidate.
type BaseURLResponse struct {
	URL             string `json:"url"`
	ServiceLocation string `json:"service_location,omitempty"`
	Priority        int    `json:"priority"`
	Weight          int    `json:"weight"`
}

func resolutionFromModel(r *baseurl.Resolution) ResolutionResponse {
	out := ResolutionResponse{
		URL:             r.URL,
		ServiceLocation: r.ServiceLocation,
		Selected:        make([]BaseURLResponse, 0, len(r.Selected)),
	}
	if v := r.AvailabilityTimeOffset; !math.IsNaN(v) && !math.IsInf(v, 0) {
		out.AvailabilityTimeOffset = &v
	}
	for _, b := range r.Selected {
		out.Selected = append(out.Selected, BaseURLResponse{
			URL:             b.URL,
			ServiceLocation: b.ServiceLocation,
			Priority:        b.Priority,
			Weight:          b.Weight,
		})
	}
	return out
}

// toHumaError maps domain errors onto API errors.
func toHumaError(err error) error {
	var merr *manifest.Error
	switch {
	case errors.Is(err, baseurl.ErrNoManifest):
		return huma.Error404NotFound("no manifest loaded")
	case errors.Is(err, baseurl.ErrUnknownRepresentation):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &merr):
		if merr.Code == manifest.CodeResolutionFailure {
			return huma.Error503ServiceUnavailable(merr.Error())
		}
		return huma.Error502BadGateway(merr.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
