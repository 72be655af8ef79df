package session

import (
	"math"
	"time"

	"github.com/jmylchreest/streamsource/internal/manifest"
)

// Summary is a serialisable view of the current manifest. Unknown durations
// (NaN) and unbounded offsets (+Inf) are rendered as null.
type Summary struct {
	Dialect                   string                    `json:"dialect" yaml:"dialect"`
	Type                      manifest.PresentationType `json:"type" yaml:"type"`
	URL                       string                    `json:"url" yaml:"url"`
	OriginalURL               string                    `json:"original_url" yaml:"original_url"`
	Profiles                  []string                  `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	LoadedTime                time.Time                 `json:"loaded_time" yaml:"loaded_time"`
	MediaPresentationDuration *float64                  `json:"media_presentation_duration" yaml:"media_presentation_duration"`
	MinimumUpdatePeriod       *float64                  `json:"minimum_update_period,omitempty" yaml:"minimum_update_period,omitempty"`
	ContentSteering           *manifest.ContentSteering `json:"content_steering,omitempty" yaml:"content_steering,omitempty"`
	BaseURL                   string                    `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Periods                   []PeriodSummary           `json:"periods" yaml:"periods"`
}

// PeriodSummary describes one period.
type PeriodSummary struct {
	ID             string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Start          *float64               `json:"start" yaml:"start"`
	Duration       *float64               `json:"duration" yaml:"duration"`
	AdaptationSets []AdaptationSetSummary `json:"adaptation_sets" yaml:"adaptation_sets"`
}

// AdaptationSetSummary describes one adaptation set.
type AdaptationSetSummary struct {
	ID              string                  `json:"id,omitempty" yaml:"id,omitempty"`
	ContentType     string                  `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	MimeType        string                  `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Representations []RepresentationSummary `json:"representations" yaml:"representations"`
}

// RepresentationSummary describes one representation and where its media
// would currently be requested from.
type RepresentationSummary struct {
	ID                     string   `json:"id" yaml:"id"`
	Bandwidth              int      `json:"bandwidth" yaml:"bandwidth"`
	Codecs                 string   `json:"codecs,omitempty" yaml:"codecs,omitempty"`
	Width                  int      `json:"width,omitempty" yaml:"width,omitempty"`
	Height                 int      `json:"height,omitempty" yaml:"height,omitempty"`
	BaseURL                string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	ServiceLocation        string   `json:"service_location,omitempty" yaml:"service_location,omitempty"`
	AvailabilityTimeOffset *float64 `json:"availability_time_offset,omitempty" yaml:"availability_time_offset,omitempty"`
	Error                  string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Summary renders the current manifest with the base URL each representation
// resolves to. Resolving records selections exactly as a media request would.
// It returns nil when no manifest has been published.
func (s *Session) Summary() *Summary {
	m, _ := s.Manifest()
	if m == nil {
		return nil
	}

	out := &Summary{
		Dialect:                   m.Dialect,
		Type:                      m.Type,
		URL:                       m.URL,
		OriginalURL:               m.OriginalURL,
		Profiles:                  m.Profiles,
		LoadedTime:                m.LoadedTime,
		MediaPresentationDuration: finite(m.MediaPresentationDuration),
		ContentSteering:           m.ContentSteering,
		Periods:                   make([]PeriodSummary, 0, len(m.Periods)),
	}
	if m.IsDynamic() {
		out.MinimumUpdatePeriod = finite(m.MinimumUpdatePeriod)
	}
	if res, err := s.ResolveManifest(); err == nil {
		out.BaseURL = res.URL
	}

	for _, p := range m.Periods {
		ps := PeriodSummary{
			ID:             p.ID,
			Start:          finite(p.Start),
			Duration:       finite(p.Duration),
			AdaptationSets: make([]AdaptationSetSummary, 0, len(p.AdaptationSets)),
		}
		for _, as := range p.AdaptationSets {
			ass := AdaptationSetSummary{
				ID:              as.ID,
				ContentType:     as.ContentType,
				MimeType:        as.MimeType,
				Representations: make([]RepresentationSummary, 0, len(as.Representations)),
			}
			for _, r := range as.Representations {
				rs := RepresentationSummary{
					ID:        r.ID,
					Bandwidth: r.Bandwidth,
					Codecs:    r.Codecs,
					Width:     r.Width,
					Height:    r.Height,
				}
				res, err := s.Resolve(p.ID, r.ID)
				if err != nil {
					rs.Error = err.Error()
				} else {
					rs.BaseURL = res.URL
					rs.ServiceLocation = res.ServiceLocation
					rs.AvailabilityTimeOffset = finite(res.AvailabilityTimeOffset)
				}
				ass.Representations = append(ass.Representations, rs)
			}
			ps.AdaptationSets = append(ps.AdaptationSets, ass)
		}
		out.Periods = append(out.Periods, ps)
	}
	return out
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
