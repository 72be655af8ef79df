package events

import (
	"github.com/jmylchreest/streamsource/internal/manifest"
)

// Event identifiers.
const (
	ManifestLoadingStarted          Event = "manifestLoadingStarted"
	InternalManifestLoaded          Event = "internalManifestLoaded"
	OriginalManifestLoaded          Event = "originalManifestLoaded"
	XlinkReady                      Event = "xlinkReady"
	URLResolutionFailed             Event = "urlResolutionFailed"
	ServiceLocationBlacklistAdd     Event = "serviceLocationBaseUrlBlacklistAdd"
	ServiceLocationBlacklistChanged Event = "serviceLocationBaseUrlBlacklistChanged"
	ContentSteeringRequestCompleted Event = "contentSteeringRequestCompleted"
)

// ManifestLoadingStartedPayload carries the request that was issued.
type ManifestLoadingStartedPayload struct {
	Request manifest.Request
}

// ManifestLoadedPayload is published once per load attempt. Manifest is nil on
// failure and on a "no content" response; Err is nil on success and on a
// "no content" response.
type ManifestLoadedPayload struct {
	// RequestID is the ID of the manifest.Request that produced this
	// outcome.
	RequestID string
	Manifest  *manifest.Manifest
	Err       *manifest.Error
}

// OriginalManifestLoadedPayload carries the decoded document text.
type OriginalManifestLoadedPayload struct {
	OriginalManifest string
}

// XlinkReadyPayload carries the manifest after remote inclusions were merged.
type XlinkReadyPayload struct {
	Manifest *manifest.Manifest
}

// URLResolutionFailedPayload reports that no candidate could be selected.
type URLResolutionFailedPayload struct {
	Err *manifest.Error
}

// BlacklistAddPayload asks the blacklist to exclude an entry.
type BlacklistAddPayload struct {
	Entry string
}

// BlacklistChangedPayload reports the entry that was added, or an empty entry
// after a reset.
type BlacklistChangedPayload struct {
	Entry string
}

// ContentSteeringRequestCompletedPayload reports a steering manifest fetch.
type ContentSteeringRequestCompletedPayload struct {
	ServerURL       string
	PathwayPriority []string
	Err             error
}
