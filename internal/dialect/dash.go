package dialect

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/pkg/duration"
)

// ErrPatchUnsupported is returned for MPD Patch documents.
var ErrPatchUnsupported = errors.New("MPD patch documents are not supported")

// DASHParser parses MPEG-DASH MPD documents.
type DASHParser struct{}

// NewDASHVariant returns the DASH variant.
func NewDASHVariant() Variant {
	return variantFunc{dialect: DASH, newFn: func() Parser { return &DASHParser{} }}
}

type mpdXML struct {
	XMLName                   xml.Name
	Type                      string              `xml:"type,attr"`
	Profiles                  string              `xml:"profiles,attr"`
	MediaPresentationDuration string              `xml:"mediaPresentationDuration,attr"`
	MinimumUpdatePeriod       string              `xml:"minimumUpdatePeriod,attr"`
	AvailabilityStartTime     string              `xml:"availabilityStartTime,attr"`
	PublishTime               string              `xml:"publishTime,attr"`
	BaseURLs                  []baseURLXML        `xml:"BaseURL"`
	ContentSteering           *contentSteeringXML `xml:"ContentSteering"`
	Periods                   []periodXML         `xml:"Period"`
}

type baseURLXML struct {
	Value                  string     `xml:",chardata"`
	ServiceLocation        string     `xml:"serviceLocation,attr"`
	AvailabilityTimeOffset string     `xml:"availabilityTimeOffset,attr"`
	Attrs                  []xml.Attr `xml:",any,attr"`
}

type contentSteeringXML struct {
	Value                  string `xml:",chardata"`
	DefaultServiceLocation string `xml:"defaultServiceLocation,attr"`
	QueryBeforeStart       string `xml:"queryBeforeStart,attr"`
	ProxyServerURL         string `xml:"proxyServerURL,attr"`
}

type periodXML struct {
	ID             string             `xml:"id,attr"`
	Start          string             `xml:"start,attr"`
	Duration       string             `xml:"duration,attr"`
	Attrs          []xml.Attr         `xml:",any,attr"`
	BaseURLs       []baseURLXML       `xml:"BaseURL"`
	AdaptationSets []adaptationSetXML `xml:"AdaptationSet"`
}

type adaptationSetXML struct {
	ID              string              `xml:"id,attr"`
	ContentType     string              `xml:"contentType,attr"`
	MimeType        string              `xml:"mimeType,attr"`
	Lang            string              `xml:"lang,attr"`
	Attrs           []xml.Attr          `xml:",any,attr"`
	BaseURLs        []baseURLXML        `xml:"BaseURL"`
	Representations []representationXML `xml:"Representation"`
}

type representationXML struct {
	ID        string       `xml:"id,attr"`
	Bandwidth int          `xml:"bandwidth,attr"`
	Codecs    string       `xml:"codecs,attr"`
	MimeType  string       `xml:"mimeType,attr"`
	Width     int          `xml:"width,attr"`
	Height    int          `xml:"height,attr"`
	BaseURLs  []baseURLXML `xml:"BaseURL"`
}

type fragmentXML struct {
	Periods        []periodXML        `xml:"Period"`
	AdaptationSets []adaptationSetXML `xml:"AdaptationSet"`
}

func newDecoder(data string) *xml.Decoder {
	dec := xml.NewDecoder(strings.NewReader(data))
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		// Decode has already transcoded UTF-16 input.
		if strings.HasPrefix(strings.ToLower(label), "utf-16") {
			return input, nil
		}
		return charset.NewReaderLabel(label, input)
	}
	return dec
}

// Parse parses a complete MPD.
func (p *DASHParser) Parse(data string) (*manifest.Manifest, error) {
	var doc mpdXML
	if err := newDecoder(data).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding MPD: %w", err)
	}

	switch doc.XMLName.Local {
	case "MPD":
	case "Patch":
		return nil, ErrPatchUnsupported
	default:
		return nil, fmt.Errorf("unexpected root element %q", doc.XMLName.Local)
	}

	m := &manifest.Manifest{
		Dialect:  DASH.String(),
		Type:     manifest.PresentationStatic,
		Profiles: splitList(doc.Profiles),
	}
	if doc.Type == string(manifest.PresentationDynamic) {
		m.Type = manifest.PresentationDynamic
	}

	var err error
	if m.MediaPresentationDuration, err = optionalSeconds(doc.MediaPresentationDuration, 0); err != nil {
		return nil, fmt.Errorf("mediaPresentationDuration: %w", err)
	}
	if m.MinimumUpdatePeriod, err = optionalSeconds(doc.MinimumUpdatePeriod, 0); err != nil {
		return nil, fmt.Errorf("minimumUpdatePeriod: %w", err)
	}
	if m.AvailabilityStartTime, err = parseDateTime(doc.AvailabilityStartTime); err != nil {
		return nil, fmt.Errorf("availabilityStartTime: %w", err)
	}
	if m.PublishTime, err = parseDateTime(doc.PublishTime); err != nil {
		return nil, fmt.Errorf("publishTime: %w", err)
	}

	if m.Candidates, err = buildCandidates(doc.BaseURLs); err != nil {
		return nil, err
	}
	if cs := doc.ContentSteering; cs != nil {
		m.ContentSteering = &manifest.ContentSteering{
			ServerURL:              strings.TrimSpace(cs.Value),
			DefaultServiceLocation: cs.DefaultServiceLocation,
			QueryBeforeStart:       cs.QueryBeforeStart == "true",
			ProxyServerURL:         cs.ProxyServerURL,
		}
	}

	if m.Periods, err = buildPeriods(doc.Periods); err != nil {
		return nil, err
	}
	m.FillPeriodTimings()

	return m, nil
}

// ParsePeriods parses a remote Period fragment.
func (p *DASHParser) ParsePeriods(data string) ([]*manifest.Period, error) {
	frag, err := decodeFragment(data)
	if err != nil {
		return nil, err
	}
	return buildPeriods(frag.Periods)
}

// ParseAdaptationSets parses a remote AdaptationSet fragment.
func (p *DASHParser) ParseAdaptationSets(data string) ([]*manifest.AdaptationSet, error) {
	frag, err := decodeFragment(data)
	if err != nil {
		return nil, err
	}
	return buildAdaptationSets(frag.AdaptationSets)
}

// decodeFragment wraps a fragment, which may hold several sibling elements,
// in a synthetic root.
func decodeFragment(data string) (*fragmentXML, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "<?xml") {
		if end := strings.Index(data, "?>"); end >= 0 {
			data = data[end+2:]
		}
	}

	var frag fragmentXML
	dec := newDecoder("<Fragment>" + data + "</Fragment>")
	if err := dec.Decode(&frag); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding fragment: %w", err)
	}
	return &frag, nil
}

func buildPeriods(in []periodXML) ([]*manifest.Period, error) {
	out := make([]*manifest.Period, 0, len(in))
	for i, px := range in {
		start, err := optionalSeconds(px.Start, math.NaN())
		if err != nil {
			return nil, fmt.Errorf("period %d start: %w", i, err)
		}
		dur, err := optionalSeconds(px.Duration, math.NaN())
		if err != nil {
			return nil, fmt.Errorf("period %d duration: %w", i, err)
		}

		period := &manifest.Period{
			ID:       px.ID,
			Start:    start,
			Duration: dur,
			Xlink:    xlinkFrom(px.Attrs),
		}
		if period.Candidates, err = buildCandidates(px.BaseURLs); err != nil {
			return nil, err
		}
		if period.AdaptationSets, err = buildAdaptationSets(px.AdaptationSets); err != nil {
			return nil, err
		}
		out = append(out, period)
	}
	return out, nil
}

func buildAdaptationSets(in []adaptationSetXML) ([]*manifest.AdaptationSet, error) {
	out := make([]*manifest.AdaptationSet, 0, len(in))
	for _, ax := range in {
		as := &manifest.AdaptationSet{
			ID:          ax.ID,
			ContentType: ax.ContentType,
			MimeType:    ax.MimeType,
			Lang:        ax.Lang,
			Xlink:       xlinkFrom(ax.Attrs),
		}
		var err error
		if as.Candidates, err = buildCandidates(ax.BaseURLs); err != nil {
			return nil, err
		}
		for _, rx := range ax.Representations {
			rep := &manifest.Representation{
				ID:        rx.ID,
				Bandwidth: rx.Bandwidth,
				Codecs:    rx.Codecs,
				MimeType:  rx.MimeType,
				Width:     rx.Width,
				Height:    rx.Height,
			}
			if rep.MimeType == "" {
				rep.MimeType = as.MimeType
			}
			if rep.Candidates, err = buildCandidates(rx.BaseURLs); err != nil {
				return nil, err
			}
			as.Representations = append(as.Representations, rep)
		}
		out = append(out, as)
	}
	return out, nil
}

// buildCandidates returns nil when the element declares no BaseURL.
func buildCandidates(in []baseURLXML) (*manifest.CandidateSet, error) {
	if len(in) == 0 {
		return nil, nil
	}
	urls := make([]*manifest.BaseURL, 0, len(in))
	for _, bx := range in {
		b := manifest.NewBaseURL(strings.TrimSpace(bx.Value))
		b.ServiceLocation = bx.ServiceLocation
		for _, a := range bx.Attrs {
			switch a.Name.Local {
			case "priority":
				v, err := strconv.Atoi(a.Value)
				if err != nil {
					return nil, fmt.Errorf("BaseURL priority %q: %w", a.Value, err)
				}
				b.Priority = v
			case "weight":
				v, err := strconv.Atoi(a.Value)
				if err != nil {
					return nil, fmt.Errorf("BaseURL weight %q: %w", a.Value, err)
				}
				b.Weight = v
			}
		}
		if bx.AvailabilityTimeOffset != "" {
			if bx.AvailabilityTimeOffset == "INF" {
				b.AvailabilityTimeOffset = math.Inf(1)
			} else if v, err := strconv.ParseFloat(bx.AvailabilityTimeOffset, 64); err == nil {
				b.AvailabilityTimeOffset = v
			}
		}
		urls = append(urls, b)
	}
	return manifest.NewCandidateSet(urls), nil
}

func xlinkFrom(attrs []xml.Attr) *manifest.Xlink {
	var x manifest.Xlink
	for _, a := range attrs {
		switch a.Name.Local {
		case "href":
			x.Href = a.Value
		case "actuate":
			x.Actuate = a.Value
		}
	}
	if x.Href == "" {
		return nil
	}
	if x.Actuate == "" {
		x.Actuate = manifest.XlinkActuateOnRequest
	}
	return &x
}

func optionalSeconds(s string, absent float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return absent, nil
	}
	return duration.Seconds(s)
}

// parseDateTime accepts xs:dateTime with or without a zone; values without
// a zone are UTC.
func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var _ FragmentParser = (*DASHParser)(nil)
