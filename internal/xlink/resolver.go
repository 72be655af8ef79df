// Package xlink resolves remote Period and AdaptationSet references that a
// manifest marks for resolution on load.
package xlink

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/streamsource/internal/dialect"
	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/urlutil"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4
)

// Fetcher retrieves remote documents.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) (*urlutil.Resource, error)
}

// Config configures a Resolver.
type Config struct {
	Bus         *events.Bus
	Fetcher     Fetcher
	Logger      *slog.Logger
	Timeout     time.Duration
	Concurrency int
}

// Resolver replaces onLoad remote elements with fetched content and
// publishes events.XlinkReady when the manifest is complete.
type Resolver struct {
	bus         *events.Bus
	fetcher     Fetcher
	logger      *slog.Logger
	timeout     time.Duration
	concurrency int

	mu         sync.Mutex
	parser     dialect.Parser
	generation uint64
	cancel     context.CancelFunc
}

// New creates a Resolver.
func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Resolver{
		bus:         cfg.Bus,
		fetcher:     cfg.Fetcher,
		logger:      cfg.Logger,
		timeout:     cfg.Timeout,
		concurrency: cfg.Concurrency,
	}
}

// SetParser sets the parser used for fetched fragments.
func (r *Resolver) SetParser(p dialect.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parser = p
}

// Reset cancels outstanding fetches and suppresses their publication.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.parser = nil
}

// target is one remote element awaiting resolution.
type target struct {
	period *manifest.Period
	set    *manifest.AdaptationSet
	href   string

	// Replacement content. Empty means the element is removed.
	periods []*manifest.Period
	sets    []*manifest.AdaptationSet
}

// ResolveManifestOnLoad resolves every onLoad reference in m. When there is
// nothing to resolve the ready event is published before it returns;
// otherwise it is published from a background goroutine once all
// references have been fetched.
func (r *Resolver) ResolveManifestOnLoad(m *manifest.Manifest) {
	r.mu.Lock()
	fp, _ := r.parser.(dialect.FragmentParser)
	targets := collectTargets(m)

	if len(targets) == 0 || fp == nil {
		r.mu.Unlock()
		r.publish(m)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	generation := r.generation
	r.mu.Unlock()

	r.logger.Debug("resolving remote elements",
		slog.Int("count", len(targets)),
		slog.String("url", m.URL),
	)

	go func() {
		defer cancel()
		r.resolve(ctx, fp, m, targets)

		r.mu.Lock()
		current := r.generation == generation && ctx.Err() == nil
		r.mu.Unlock()
		if !current {
			r.logger.Debug("discarding remote element resolution after reset")
			return
		}

		merge(m, targets)
		m.FillPeriodTimings()
		r.publish(m)
	}()
}

func (r *Resolver) publish(m *manifest.Manifest) {
	if r.bus == nil {
		return
	}
	r.bus.Trigger(events.XlinkReady, events.XlinkReadyPayload{Manifest: m})
}

func collectTargets(m *manifest.Manifest) []*target {
	var out []*target
	for _, p := range m.Periods {
		if p.Xlink.OnLoad() {
			out = append(out, &target{period: p, href: p.Xlink.Href})
			continue
		}
		for _, as := range p.AdaptationSets {
			if as.Xlink.OnLoad() {
				out = append(out, &target{set: as, href: as.Xlink.Href})
			}
		}
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, fp dialect.FragmentParser, m *manifest.Manifest, targets []*target) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, t := range targets {
		if t.href == manifest.XlinkResolveToZero {
			continue
		}
		g.Go(func() error {
			if err := r.fetchTarget(gctx, fp, m.BaseURI, t); err != nil {
				r.logger.Warn("remote element removed",
					slog.String("href", t.href),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Resolver) fetchTarget(ctx context.Context, fp dialect.FragmentParser, base string, t *target) error {
	href, err := urlutil.Resolve(base, t.href)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.fetcher.Fetch(ctx, href, nil)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", href, err)
	}
	text, err := dialect.Decode(res.Data)
	if err != nil {
		return err
	}

	if t.period != nil {
		t.periods, err = fp.ParsePeriods(text)
	} else {
		t.sets, err = fp.ParseAdaptationSets(text)
	}
	if err != nil {
		return fmt.Errorf("parsing %s: %w", href, err)
	}
	return nil
}

// merge replaces each target in place with its fetched content. Targets
// that resolved to nothing are removed.
func merge(m *manifest.Manifest, targets []*target) {
	periodRepl := make(map[*manifest.Period][]*manifest.Period)
	setRepl := make(map[*manifest.AdaptationSet][]*manifest.AdaptationSet)
	for _, t := range targets {
		if t.period != nil {
			periodRepl[t.period] = t.periods
		} else {
			setRepl[t.set] = t.sets
		}
	}

	periods := make([]*manifest.Period, 0, len(m.Periods))
	for _, p := range m.Periods {
		repl, ok := periodRepl[p]
		if !ok {
			periods = append(periods, p)
			continue
		}
		periods = append(periods, repl...)
	}
	m.Periods = periods

	for _, p := range m.Periods {
		sets := make([]*manifest.AdaptationSet, 0, len(p.AdaptationSets))
		for _, as := range p.AdaptationSets {
			repl, ok := setRepl[as]
			if !ok {
				sets = append(sets, as)
				continue
			}
			sets = append(sets, repl...)
		}
		p.AdaptationSets = sets
	}
}
