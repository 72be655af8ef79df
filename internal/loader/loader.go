// Package loader acquires manifests: it fetches the document, detects its
// dialect, parses it, reconciles its duration, hands it to the
// remote-inclusion resolver and publishes the result on the bus.
//
// Load never returns an error. Every attempt ends with exactly one
// events.InternalManifestLoaded publication carrying either a manifest, a
// nil manifest with no error ("no content"), or a nil manifest with a
// *manifest.Error.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/jmylchreest/streamsource/internal/dialect"
	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/urlutil"
)

// DefaultRequestTimeout bounds a single manifest fetch.
const DefaultRequestTimeout = 30 * time.Second

// Fetcher retrieves the manifest document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*urlutil.Resource, error)
}

// Resolver resolves remote inclusions and publishes events.XlinkReady.
type Resolver interface {
	SetParser(p dialect.Parser)
	ResolveManifestOnLoad(m *manifest.Manifest)
	Reset()
}

// Config configures a Loader.
type Config struct {
	Bus     *events.Bus
	Fetcher Fetcher

	// NewResolver builds the resolver for each setup cycle.
	NewResolver func() Resolver

	// Registry supplies dialect parsers. Defaults to dialect.DefaultRegistry.
	Registry *dialect.Registry

	Logger *slog.Logger

	RequestTimeout            time.Duration
	EnableDurationMismatchFix bool

	// DocumentLocation is the base for relative manifest URLs. Defaults to
	// the working directory.
	DocumentLocation string

	Now func() time.Time
}

// Loader is the manifest acquisition state machine.
type Loader struct {
	bus         *events.Bus
	fetcher     Fetcher
	newResolver func() Resolver
	registry    *dialect.Registry
	logger      *slog.Logger
	timeout     time.Duration
	fixDuration bool
	docLocation string
	now         func() time.Time

	mu          sync.Mutex
	active      bool
	generation  uint64
	state       State
	resolver    Resolver
	parser      dialect.Parser
	originalURL string
	cancel      context.CancelFunc

	// request IDs of manifests handed to the resolver, keyed by manifest
	requests map[*manifest.Manifest]string
}

// New creates a Loader and performs its initial setup.
func New(cfg Config) (*Loader, error) {
	if cfg.Bus == nil {
		return nil, errors.New("loader: bus is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("loader: fetcher is required")
	}
	if cfg.NewResolver == nil {
		return nil, errors.New("loader: resolver factory is required")
	}
	if cfg.Registry == nil {
		cfg.Registry = dialect.DefaultRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DocumentLocation == "" {
		cfg.DocumentLocation = urlutil.WorkingDirectoryURL()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	l := &Loader{
		bus:         cfg.Bus,
		fetcher:     cfg.Fetcher,
		newResolver: cfg.NewResolver,
		registry:    cfg.Registry,
		logger:      cfg.Logger,
		timeout:     cfg.RequestTimeout,
		fixDuration: cfg.EnableDurationMismatchFix,
		docLocation: cfg.DocumentLocation,
		now:         cfg.Now,
	}

	l.mu.Lock()
	l.setupLocked()
	l.mu.Unlock()

	return l, nil
}

// setupLocked creates fresh collaborators and subscribes to resolver
// readiness.
func (l *Loader) setupLocked() {
	l.resolver = l.newResolver()
	l.parser = nil
	l.requests = make(map[*manifest.Manifest]string)
	l.state = StateIdle
	l.active = true
	l.bus.On(events.XlinkReady, l, l.onXlinkReady)
}

// State returns the current acquisition state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Load starts acquiring the manifest at url. It returns immediately; the
// outcome is published as events.InternalManifestLoaded.
func (l *Loader) Load(url string, opts ...manifest.RequestOption) {
	req := manifest.NewRequest(url, opts...)

	l.mu.Lock()
	if !l.active {
		l.setupLocked()
	}
	l.state = StateFetching
	generation := l.generation
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	l.cancel = cancel
	l.mu.Unlock()

	l.logger.Debug("loading manifest",
		slog.String("request_id", req.ID),
		slog.String("url", url),
		slog.String("service_location", req.ServiceLocation),
	)
	l.bus.Trigger(events.ManifestLoadingStarted, events.ManifestLoadingStartedPayload{Request: req})

	if url == "" {
		cancel()
		l.fail(generation, req.ID, manifest.NewLoadingError(url, errors.New("URL is required")))
		return
	}

	fetchReq := req
	if urlutil.IsRelative(url) {
		resolved, err := urlutil.Resolve(l.docLocation, url)
		if err != nil {
			cancel()
			l.fail(generation, req.ID, manifest.NewLoadingError(url, err))
			return
		}
		fetchReq.URL = resolved
	}

	go func() {
		defer cancel()
		res, err := l.fetcher.Fetch(ctx, fetchReq.FetchURL(), nil)
		l.onFetched(generation, req, fetchReq, res, err)
	}()
}

// current reports whether generation is still the live setup cycle and, if
// so, moves the loader to state.
func (l *Loader) current(generation uint64, state State) (Resolver, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if generation != l.generation || !l.active || l.resolver == nil {
		return nil, false
	}
	l.state = state
	return l.resolver, true
}

func (l *Loader) onFetched(generation uint64, req, fetchReq manifest.Request, res *urlutil.Resource, err error) {
	if _, ok := l.current(generation, StateFetching); !ok {
		l.logger.Debug("discarding manifest response after reset", slog.String("url", req.URL))
		return
	}

	if err != nil {
		l.fail(generation, req.ID, manifest.NewLoadingError(req.URL, err))
		return
	}

	manifestURL := fetchReq.URL
	baseURI := urlutil.BaseOf(fetchReq.URL)
	if res.URL != "" && res.URL != fetchReq.FetchURL() {
		manifestURL = res.URL
		baseURI = urlutil.BaseOf(res.URL)
	}

	if res.StatusCode == http.StatusNoContent || res.StatusText == http.StatusText(http.StatusNoContent) {
		l.logger.Debug("manifest unchanged", slog.String("url", manifestURL))
		l.publish(generation, req.ID, StatePublished, nil, nil)
		return
	}

	text, err := dialect.Decode(res.Data)
	if err != nil {
		l.fail(generation, req.ID, manifest.NewParsingError(req.URL, err))
		return
	}

	parser, err := l.parserFor(generation, text)
	if err != nil || parser == nil {
		l.fail(generation, req.ID, manifest.NewParsingError(req.URL, err))
		return
	}

	resolver, ok := l.current(generation, StateParsing)
	if !ok {
		return
	}
	resolver.SetParser(parser)

	m, err := safeParse(parser, text)
	if err != nil {
		l.fail(generation, req.ID, manifest.NewParsingError(req.URL, err))
		return
	}
	if m == nil {
		l.fail(generation, req.ID, manifest.NewParsingError(req.URL, nil))
		return
	}

	l.mu.Lock()
	if generation != l.generation {
		l.mu.Unlock()
		return
	}
	l.state = StateReconciling
	l.requests[m] = req.ID
	m.URL = manifestURL
	if m.OriginalURL == "" {
		if l.originalURL == "" {
			l.originalURL = manifestURL
		}
		m.OriginalURL = l.originalURL
	}
	l.mu.Unlock()

	if l.fixDuration {
		declared := m.MediaPresentationDuration
		if ReconcileDuration(m) {
			l.logger.Warn("manifest duration exceeds sum of period durations, using sum",
				slog.String("url", manifestURL),
				slog.Float64("declared", declared),
				slog.Float64("sum", m.MediaPresentationDuration),
			)
		}
	}

	m.BaseURI = baseURI
	m.LoadedTime = l.now()

	if _, ok := l.current(generation, StateAwaitingResolution); !ok {
		return
	}

	resolver.ResolveManifestOnLoad(m)
	l.bus.Trigger(events.OriginalManifestLoaded, events.OriginalManifestLoadedPayload{OriginalManifest: text})
}

// parserFor returns the parser kept for this setup cycle, creating it from
// the document's dialect on first use.
func (l *Loader) parserFor(generation uint64, text string) (dialect.Parser, error) {
	l.mu.Lock()
	if generation != l.generation {
		l.mu.Unlock()
		return nil, errors.New("loader was reset")
	}
	l.state = StateDetectingDialect
	if l.parser != nil {
		p := l.parser
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	p, d, err := l.registry.ParserFor(text)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no parser for %s content", d)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if generation == l.generation {
		l.parser = p
	}
	return p, nil
}

func safeParse(p dialect.Parser, text string) (m *manifest.Manifest, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()
	return p.Parse(text)
}

func (l *Loader) fail(generation uint64, requestID string, err *manifest.Error) {
	l.logger.Error("manifest acquisition failed",
		slog.String("request_id", requestID),
		slog.String("url", err.URL),
		slog.Int("code", err.Code),
		slog.String("error", err.Error()),
	)
	l.publish(generation, requestID, StateFailed, nil, err)
}

func (l *Loader) publish(generation uint64, requestID string, state State, m *manifest.Manifest, err *manifest.Error) {
	if _, ok := l.current(generation, state); !ok {
		return
	}
	l.bus.Trigger(events.InternalManifestLoaded, events.ManifestLoadedPayload{
		RequestID: requestID,
		Manifest:  m,
		Err:       err,
	})
}

func (l *Loader) onXlinkReady(payload any) {
	p, ok := payload.(events.XlinkReadyPayload)
	if !ok {
		return
	}
	l.mu.Lock()
	l.state = StatePublished
	requestID := l.requests[p.Manifest]
	delete(l.requests, p.Manifest)
	l.mu.Unlock()

	l.bus.Trigger(events.InternalManifestLoaded, events.ManifestLoadedPayload{
		RequestID: requestID,
		Manifest:  p.Manifest,
	})
}

// Reset cancels in-flight work and releases collaborators. It is safe to
// call at any time, including repeatedly. A later Load performs a fresh
// setup.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.generation++
	l.state = StateIdle
	if !l.active {
		return
	}

	l.bus.Off(events.XlinkReady, l)
	l.registry.Reset()
	if l.resolver != nil {
		l.resolver.Reset()
		l.resolver = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.parser = nil
	l.requests = nil
	l.originalURL = ""
	l.active = false
}

// ReconcileDuration replaces a declared presentation duration that exceeds
// the sum of a multi-period manifest's period durations with that sum. It
// never increases the declared duration and reports whether it changed it.
func ReconcileDuration(m *manifest.Manifest) bool {
	if !m.HasDeclaredDuration() || len(m.Periods) <= 1 {
		return false
	}
	sum := m.PeriodDurationSum()
	if math.IsNaN(sum) || math.IsInf(sum, 0) || sum >= m.MediaPresentationDuration {
		return false
	}
	m.MediaPresentationDuration = sum
	return true
}
