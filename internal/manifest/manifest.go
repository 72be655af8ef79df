// Package manifest defines the presentation model produced by the dialect
// parsers and consumed by the loader, the remote-inclusion resolver and the
// base URL selection engine.
//
// Durations are expressed in seconds. A Period duration of NaN means the
// manifest did not declare one and it could not be derived.
package manifest

import (
	"math"
	"strings"
	"time"
)

// PresentationType distinguishes on-demand from live presentations.
type PresentationType string

const (
	PresentationStatic  PresentationType = "static"
	PresentationDynamic PresentationType = "dynamic"
)

// Profile markers checked by the session when choosing a selection strategy.
const (
	ProfileDVB2014 = "urn:dvb:dash:profile:dvb-dash:2014"
	ProfileDVBBase = "urn:dvb:dash:profile:dvb-dash"
)

// Manifest is a parsed presentation description.
//
// The loader sets URL, OriginalURL, BaseURI and LoadedTime before handing the
// manifest to the remote-inclusion resolver. OriginalURL is written once on the
// first load and never overwritten by later reloads.
type Manifest struct {
	Dialect string           `json:"dialect" yaml:"dialect"`
	Type    PresentationType `json:"type" yaml:"type"`

	Profiles []string `json:"profiles,omitempty" yaml:"profiles,omitempty"`

	URL         string    `json:"url" yaml:"url"`
	OriginalURL string    `json:"original_url" yaml:"original_url"`
	BaseURI     string    `json:"base_uri" yaml:"base_uri"`
	LoadedTime  time.Time `json:"loaded_time" yaml:"loaded_time"`

	// MediaPresentationDuration is zero when the manifest declares none.
	MediaPresentationDuration float64 `json:"media_presentation_duration" yaml:"media_presentation_duration"`
	// MinimumUpdatePeriod is zero for static presentations.
	MinimumUpdatePeriod   float64   `json:"minimum_update_period,omitempty" yaml:"minimum_update_period,omitempty"`
	AvailabilityStartTime time.Time `json:"availability_start_time,omitzero" yaml:"availability_start_time,omitempty"`
	PublishTime           time.Time `json:"publish_time,omitzero" yaml:"publish_time,omitempty"`

	Candidates      *CandidateSet    `json:"base_urls,omitempty" yaml:"base_urls,omitempty"`
	ContentSteering *ContentSteering `json:"content_steering,omitempty" yaml:"content_steering,omitempty"`

	Periods []*Period `json:"periods" yaml:"periods"`
}

// ContentSteering is the manifest-level steering declaration.
type ContentSteering struct {
	ServerURL              string `json:"server_url" yaml:"server_url"`
	DefaultServiceLocation string `json:"default_service_location,omitempty" yaml:"default_service_location,omitempty"`
	QueryBeforeStart       bool   `json:"query_before_start" yaml:"query_before_start"`
	ProxyServerURL         string `json:"proxy_server_url,omitempty" yaml:"proxy_server_url,omitempty"`
}

// DefaultServiceLocations splits the whitespace separated default list.
func (c *ContentSteering) DefaultServiceLocations() []string {
	if c == nil {
		return nil
	}
	return strings.Fields(c.DefaultServiceLocation)
}

// Xlink holds a remote-inclusion reference.
type Xlink struct {
	Href    string `json:"href" yaml:"href"`
	Actuate string `json:"actuate" yaml:"actuate"`
}

// Xlink actuate values and the special resolve-to-zero reference.
const (
	XlinkActuateOnLoad    = "onLoad"
	XlinkActuateOnRequest = "onRequest"
	XlinkResolveToZero    = "urn:mpeg:dash:resolve-to-zero:2013"
)

// OnLoad reports whether the reference must be resolved when the manifest loads.
func (x *Xlink) OnLoad() bool {
	return x != nil && x.Href != "" && x.Actuate == XlinkActuateOnLoad
}

// Period is one contiguous part of the presentation.
type Period struct {
	ID       string  `json:"id,omitempty" yaml:"id,omitempty"`
	Start    float64 `json:"start" yaml:"start"`
	Duration float64 `json:"duration" yaml:"duration"`

	Xlink *Xlink `json:"xlink,omitempty" yaml:"xlink,omitempty"`

	Candidates     *CandidateSet    `json:"base_urls,omitempty" yaml:"base_urls,omitempty"`
	AdaptationSets []*AdaptationSet `json:"adaptation_sets" yaml:"adaptation_sets"`
}

// HasDuration reports whether the period duration is known.
func (p *Period) HasDuration() bool {
	return !math.IsNaN(p.Duration) && !math.IsInf(p.Duration, 0)
}

// AdaptationSet groups interchangeable encodings of one component.
type AdaptationSet struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	MimeType    string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Lang        string `json:"lang,omitempty" yaml:"lang,omitempty"`

	Xlink *Xlink `json:"xlink,omitempty" yaml:"xlink,omitempty"`

	Candidates      *CandidateSet     `json:"base_urls,omitempty" yaml:"base_urls,omitempty"`
	Representations []*Representation `json:"representations" yaml:"representations"`
}

// Representation is a single encoding.
type Representation struct {
	ID        string `json:"id" yaml:"id"`
	Bandwidth int    `json:"bandwidth" yaml:"bandwidth"`
	Codecs    string `json:"codecs,omitempty" yaml:"codecs,omitempty"`
	MimeType  string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Width     int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height    int    `json:"height,omitempty" yaml:"height,omitempty"`

	Candidates *CandidateSet `json:"base_urls,omitempty" yaml:"base_urls,omitempty"`
}

// IsDynamic reports whether the presentation is live.
func (m *Manifest) IsDynamic() bool {
	return m.Type == PresentationDynamic
}

// HasDeclaredDuration reports whether the manifest carries a usable overall
// duration.
func (m *Manifest) HasDeclaredDuration() bool {
	d := m.MediaPresentationDuration
	return d > 0 && !math.IsInf(d, 0)
}

// HasProfile reports whether any declared profile starts with prefix.
func (m *Manifest) HasProfile(prefix string) bool {
	for _, p := range m.Profiles {
		if strings.HasPrefix(strings.TrimSpace(p), prefix) {
			return true
		}
	}
	return false
}

// IsDVB reports whether the manifest declares a DVB-DASH profile.
func (m *Manifest) IsDVB() bool {
	return m.HasProfile(ProfileDVBBase)
}

// PeriodDurationSum returns the sum of all period durations. The result is NaN
// when any period duration is unknown.
func (m *Manifest) PeriodDurationSum() float64 {
	var sum float64
	for _, p := range m.Periods {
		sum += p.Duration
	}
	return sum
}

// ForEachCandidateSet calls fn for every non-nil candidate set in the
// manifest tree, parents before children.
func (m *Manifest) ForEachCandidateSet(fn func(*CandidateSet)) {
	visit := func(c *CandidateSet) {
		if c != nil {
			fn(c)
		}
	}
	visit(m.Candidates)
	for _, p := range m.Periods {
		visit(p.Candidates)
		for _, as := range p.AdaptationSets {
			visit(as.Candidates)
			for _, r := range as.Representations {
				visit(r.Candidates)
			}
		}
	}
}

// FindRepresentation locates a representation by period and representation
// id. An empty period id matches the first period.
func (m *Manifest) FindRepresentation(periodID, representationID string) (*Period, *AdaptationSet, *Representation, bool) {
	for i, p := range m.Periods {
		if periodID != "" && p.ID != periodID {
			continue
		}
		if periodID == "" && i > 0 {
			break
		}
		for _, as := range p.AdaptationSets {
			for _, r := range as.Representations {
				if r.ID == representationID {
					return p, as, r, true
				}
			}
		}
	}
	return nil, nil, nil, false
}
