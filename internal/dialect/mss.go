package dialect

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jmylchreest/streamsource/internal/manifest"
)

// defaultMSSTimeScale is the Smooth Streaming tick rate when none is declared.
const defaultMSSTimeScale = 10_000_000

// MSSParser transforms Smooth Streaming client manifests into the
// presentation model.
type MSSParser struct{}

// NewMSSVariant returns the Smooth Streaming variant. Loaders built without
// it report Smooth Streaming content as unparseable.
func NewMSSVariant() Variant {
	return variantFunc{dialect: MSS, newFn: func() Parser { return &MSSParser{} }}
}

type smoothXML struct {
	XMLName   xml.Name         `xml:"SmoothStreamingMedia"`
	Duration  string           `xml:"Duration,attr"`
	TimeScale string           `xml:"TimeScale,attr"`
	IsLive    string           `xml:"IsLive,attr"`
	Streams   []streamIndexXML `xml:"StreamIndex"`
}

type streamIndexXML struct {
	Type      string            `xml:"Type,attr"`
	Name      string            `xml:"Name,attr"`
	Language  string            `xml:"Language,attr"`
	URL       string            `xml:"Url,attr"`
	Qualities []qualityLevelXML `xml:"QualityLevel"`
}

type qualityLevelXML struct {
	Index     string `xml:"Index,attr"`
	Bitrate   int    `xml:"Bitrate,attr"`
	FourCC    string `xml:"FourCC,attr"`
	MaxWidth  int    `xml:"MaxWidth,attr"`
	MaxHeight int    `xml:"MaxHeight,attr"`
}

// Parse parses a SmoothStreamingMedia document.
func (p *MSSParser) Parse(data string) (*manifest.Manifest, error) {
	var doc smoothXML
	if err := newDecoder(data).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding smooth streaming manifest: %w", err)
	}

	timeScale := float64(defaultMSSTimeScale)
	if doc.TimeScale != "" {
		ts, err := strconv.ParseFloat(doc.TimeScale, 64)
		if err != nil || ts <= 0 {
			return nil, fmt.Errorf("invalid TimeScale %q", doc.TimeScale)
		}
		timeScale = ts
	}

	var ticks float64
	if doc.Duration != "" {
		d, err := strconv.ParseFloat(doc.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid Duration %q: %w", doc.Duration, err)
		}
		ticks = d
	}

	m := &manifest.Manifest{
		Dialect:  MSS.String(),
		Type:     manifest.PresentationStatic,
		Profiles: []string{"urn:mpeg:dash:profile:isoff-live:2011"},
	}
	if strings.EqualFold(doc.IsLive, "true") {
		m.Type = manifest.PresentationDynamic
	} else {
		m.MediaPresentationDuration = ticks / timeScale
	}

	period := &manifest.Period{ID: "0", Start: 0, Duration: math.NaN()}
	if m.HasDeclaredDuration() {
		period.Duration = m.MediaPresentationDuration
	}

	for i, s := range doc.Streams {
		as := &manifest.AdaptationSet{
			ID:          strconv.Itoa(i),
			ContentType: s.Type,
			MimeType:    mssMimeType(s.Type),
			Lang:        s.Language,
		}
		for j, q := range s.Qualities {
			id := q.Index
			if id == "" {
				id = strconv.Itoa(j)
			}
			as.Representations = append(as.Representations, &manifest.Representation{
				ID:        s.Name + "_" + id,
				Bandwidth: q.Bitrate,
				Codecs:    mssCodec(q.FourCC),
				MimeType:  as.MimeType,
				Width:     q.MaxWidth,
				Height:    q.MaxHeight,
			})
		}
		period.AdaptationSets = append(period.AdaptationSets, as)
	}
	m.Periods = []*manifest.Period{period}

	return m, nil
}

func mssMimeType(streamType string) string {
	switch strings.ToLower(streamType) {
	case "video":
		return "video/mp4"
	case "audio":
		return "audio/mp4"
	case "text":
		return "application/mp4"
	default:
		return ""
	}
}

func mssCodec(fourCC string) string {
	switch strings.ToUpper(fourCC) {
	case "H264", "AVC1", "DAVC":
		return "avc1"
	case "AACL", "AACH":
		return "mp4a.40.2"
	case "EC-3":
		return "ec-3"
	case "TTML":
		return "stpp"
	default:
		return strings.ToLower(fourCC)
	}
}
