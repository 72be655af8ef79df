// Package dialect detects the grammar of a manifest document and provides
// the parser for it.
package dialect

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jmylchreest/streamsource/internal/manifest"
)

// Dialect enumerates the supported manifest grammars.
type Dialect int

const (
	Unknown Dialect = iota
	DASH
	MSS
	HLS
)

func (d Dialect) String() string {
	switch d {
	case DASH:
		return "dash"
	case MSS:
		return "mss"
	case HLS:
		return "hls"
	default:
		return "unknown"
	}
}

// Markers used for content sniffing.
const (
	markerMSS       = "SmoothStreamingMedia"
	markerMPD       = "MPD"
	markerPatch     = "Patch"
	markerPlaylist  = "#EXTM3U"
	sniffWindowSize = 4096
)

// Detect identifies the dialect of data by substring search. Smooth
// Streaming is checked first because its documents may mention MPD in
// comments or attribute values.
func Detect(data string) Dialect {
	switch {
	case strings.Contains(data, markerMSS):
		return MSS
	case strings.Contains(data, markerMPD), strings.Contains(data, markerPatch):
		return DASH
	case strings.HasPrefix(strings.TrimSpace(head(data)), markerPlaylist):
		return HLS
	default:
		return Unknown
	}
}

func head(s string) string {
	if len(s) > sniffWindowSize {
		return s[:sniffWindowSize]
	}
	return s
}

// Parser turns a decoded document into a manifest.
type Parser interface {
	Parse(data string) (*manifest.Manifest, error)
}

// FragmentParser parses remote-inclusion fragments. Only grammars that
// support remote inclusion implement it.
type FragmentParser interface {
	Parser
	ParsePeriods(data string) ([]*manifest.Period, error)
	ParseAdaptationSets(data string) ([]*manifest.AdaptationSet, error)
}

// Variant constructs parsers for one dialect. Variants that keep state
// between loads, such as a transform handler, release it in Reset.
type Variant interface {
	Dialect() Dialect
	NewParser() (Parser, error)
	Reset()
}

// Registry maps dialects to the variants able to parse them.
type Registry struct {
	mu       sync.RWMutex
	variants map[Dialect]Variant
}

// NewRegistry creates a registry holding variants.
func NewRegistry(variants ...Variant) *Registry {
	r := &Registry{variants: make(map[Dialect]Variant, len(variants))}
	for _, v := range variants {
		r.Register(v)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in variant.
func DefaultRegistry() *Registry {
	return NewRegistry(NewDASHVariant(), NewHLSVariant(), NewMSSVariant())
}

// Register adds or replaces the variant for its dialect.
func (r *Registry) Register(v Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variants[v.Dialect()] = v
}

// Lookup returns the variant registered for d.
func (r *Registry) Lookup(d Dialect) (Variant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.variants[d]
	return v, ok
}

// ParserFor detects the dialect of data and builds its parser. It returns
// nil with no error when the dialect is unknown or not registered.
func (r *Registry) ParserFor(data string) (Parser, Dialect, error) {
	d := Detect(data)
	if d == Unknown {
		return nil, d, nil
	}
	v, ok := r.Lookup(d)
	if !ok {
		return nil, d, nil
	}
	p, err := v.NewParser()
	if err != nil {
		return nil, d, fmt.Errorf("creating %s parser: %w", d, err)
	}
	return p, d, nil
}

// Reset resets every registered variant.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.variants {
		v.Reset()
	}
}

// variantFunc adapts a stateless constructor into a Variant.
type variantFunc struct {
	dialect Dialect
	newFn   func() Parser
}

func (v variantFunc) Dialect() Dialect           { return v.dialect }
func (v variantFunc) NewParser() (Parser, error) { return v.newFn(), nil }
func (v variantFunc) Reset()                     {}
