package dialect

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/jmylchreest/streamsource/internal/manifest"
)

// HLSParser maps HLS playlists onto the presentation model. A multivariant
// playlist becomes one period with one adaptation set whose representations
// are the variants; a media playlist becomes one period spanning its
// segments.
type HLSParser struct{}

// NewHLSVariant returns the HLS variant.
func NewHLSVariant() Variant {
	return variantFunc{dialect: HLS, newFn: func() Parser { return &HLSParser{} }}
}

// Parse parses a multivariant or media playlist.
func (p *HLSParser) Parse(data string) (*manifest.Manifest, error) {
	pl, err := playlist.Unmarshal([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshaling playlist: %w", err)
	}

	switch pl := pl.(type) {
	case *playlist.Multivariant:
		return fromMultivariant(pl), nil
	case *playlist.Media:
		return fromMedia(pl), nil
	default:
		return nil, fmt.Errorf("unsupported playlist type %T", pl)
	}
}

func fromMultivariant(mv *playlist.Multivariant) *manifest.Manifest {
	as := &manifest.AdaptationSet{
		ID:          "0",
		ContentType: "video",
	}
	for i, v := range mv.Variants {
		if v == nil {
			continue
		}
		rep := &manifest.Representation{
			ID:         strconv.Itoa(i),
			Bandwidth:  v.Bandwidth,
			Codecs:     strings.Join(v.Codecs, ","),
			Candidates: manifest.NewCandidateSet([]*manifest.BaseURL{manifest.NewBaseURL(v.URI)}),
		}
		rep.Width, rep.Height = parseResolution(v.Resolution)
		as.Representations = append(as.Representations, rep)
	}

	return &manifest.Manifest{
		Dialect: HLS.String(),
		Type:    manifest.PresentationStatic,
		Periods: []*manifest.Period{{
			ID:             "0",
			Start:          0,
			Duration:       math.NaN(),
			AdaptationSets: []*manifest.AdaptationSet{as},
		}},
	}
}

func fromMedia(media *playlist.Media) *manifest.Manifest {
	var total float64
	for _, seg := range media.Segments {
		if seg != nil {
			total += seg.Duration.Seconds()
		}
	}

	m := &manifest.Manifest{
		Dialect: HLS.String(),
		Type:    manifest.PresentationStatic,
		Periods: []*manifest.Period{{
			ID:       "0",
			Start:    0,
			Duration: total,
			AdaptationSets: []*manifest.AdaptationSet{{
				ID:              "0",
				Representations: []*manifest.Representation{{ID: "0"}},
			}},
		}},
	}

	if media.Endlist {
		m.MediaPresentationDuration = total
	} else {
		m.Type = manifest.PresentationDynamic
		m.MinimumUpdatePeriod = float64(media.TargetDuration)
	}
	return m
}

// parseResolution splits a WIDTHxHEIGHT attribute.
func parseResolution(s string) (int, int) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return width, height
}
