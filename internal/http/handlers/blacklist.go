package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/session"
)

// BlacklistHandler manages the session's failed-origin blacklist.
type BlacklistHandler struct {
	session *session.Session
}

// NewBlacklistHandler creates a new blacklist handler.
func NewBlacklistHandler(s *session.Session) *BlacklistHandler {
	return &BlacklistHandler{session: s}
}

// Register registers the blacklist routes with the API.
func (h *BlacklistHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listBlacklist",
		Method:      "GET",
		Path:        "/api/v1/blacklist",
		Summary:     "List blacklisted origins",
		Tags:        []string{"Blacklist"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "addBlacklist",
		Method:      "POST",
		Path:        "/api/v1/blacklist",
		Summary:     "Report a failed origin",
		Description: "Blacklists the origin of a base URL. The entry is its service location when given, otherwise its URL.",
		Tags:        []string{"Blacklist"},
	}, h.Add)

	huma.Register(api, huma.Operation{
		OperationID: "resetBlacklist",
		Method:      "DELETE",
		Path:        "/api/v1/blacklist",
		Summary:     "Clear the blacklist",
		Tags:        []string{"Blacklist"},
	}, h.Reset)
}

// BlacklistResponse lists the current entries.
type BlacklistResponse struct {
	Entries []string `json:"entries"`
}

// BlacklistOutput is the output for the blacklist endpoints.
type BlacklistOutput struct {
	Body BlacklistResponse
}

func (h *BlacklistHandler) output() *BlacklistOutput {
	entries := h.session.Blacklist().Entries()
	if entries == nil {
		entries = []string{}
	}
	return &BlacklistOutput{Body: BlacklistResponse{Entries: entries}}
}

// ListBlacklistInput is the input for the list endpoint.
type ListBlacklistInput struct{}

// List returns the current entries.
func (h *BlacklistHandler) List(ctx context.Context, input *ListBlacklistInput) (*BlacklistOutput, error) {
	return h.output(), nil
}

// AddBlacklistRequest identifies a failed base URL.
type AddBlacklistRequest struct {
	URL             string `json:"url,omitempty" doc:"Base URL that failed"`
	ServiceLocation string `json:"service_location,omitempty" doc:"Service location of the failed base URL"`
}

// AddBlacklistInput is the input for the add endpoint.
type AddBlacklistInput struct {
	Body AddBlacklistRequest
}

// Add reports a failed base URL.
func (h *BlacklistHandler) Add(ctx context.Context, input *AddBlacklistInput) (*BlacklistOutput, error) {
	if input.Body.URL == "" && input.Body.ServiceLocation == "" {
		return nil, huma.Error400BadRequest("url or service_location is required")
	}
	h.session.ReportFailure(&manifest.BaseURL{
		URL:             input.Body.URL,
		ServiceLocation: input.Body.ServiceLocation,
	})
	return h.output(), nil
}

// ResetBlacklistInput is the input for the reset endpoint.
type ResetBlacklistInput struct{}

// Reset clears every entry.
func (h *BlacklistHandler) Reset(ctx context.Context, input *ResetBlacklistInput) (*BlacklistOutput, error) {
	h.session.Blacklist().Reset()
	return h.output(), nil
}
