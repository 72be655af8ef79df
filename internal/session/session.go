// Package session wires the manifest loader, remote-inclusion resolver,
// blacklist, base URL selection, content steering and refresh scheduling
// around a single event bus.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/streamsource/internal/baseurl"
	"github.com/jmylchreest/streamsource/internal/blacklist"
	"github.com/jmylchreest/streamsource/internal/dialect"
	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/loader"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/refresh"
	"github.com/jmylchreest/streamsource/internal/steering"
	"github.com/jmylchreest/streamsource/internal/urlutil"
	"github.com/jmylchreest/streamsource/internal/xlink"
)

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("session: closed")

// Fetcher retrieves manifests, remote elements and steering documents.
type Fetcher interface {
	loader.Fetcher
}

// Config configures a Session.
type Config struct {
	Logger   *slog.Logger
	Fetcher  Fetcher
	Registry *dialect.Registry

	// Loader
	RequestTimeout            time.Duration
	EnableDurationMismatchFix bool
	DocumentLocation          string

	// Remote inclusion
	XlinkTimeout     time.Duration
	XlinkConcurrency int

	// Blacklist
	BlacklistBackend blacklist.Backend
	BlacklistTTL     time.Duration

	// Selection
	DVBTierRemoval bool

	// Steering
	ApplySteering   bool
	SteeringTimeout time.Duration

	// Refresh
	EnableRefresh           bool
	RefreshMinInterval      time.Duration
	RefreshFallbackInterval time.Duration
}

// Session is one player's view of a presentation.
type Session struct {
	logger *slog.Logger
	bus    *events.Bus

	loader     *loader.Loader
	blacklist  *blacklist.Controller
	selector   *baseurl.Selector
	controller *baseurl.Controller
	steering   *steering.Client
	refresher  *refresh.Refresher

	applySteering   bool
	steeringLoading atomic.Bool

	mu       sync.RWMutex
	manifest *manifest.Manifest
	lastErr  *manifest.Error
	closed   bool
}

// New builds a Session. A nil Fetcher uses urlutil.NewDefaultResourceFetcher.
func New(cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = urlutil.NewDefaultResourceFetcher()
	}
	logger := cfg.Logger
	bus := events.NewBus(logger.With(slog.String("component", "events")))

	s := &Session{
		logger:        logger,
		bus:           bus,
		applySteering: cfg.ApplySteering,
	}

	s.blacklist = blacklist.New(blacklist.Config{
		Bus:     bus,
		Backend: cfg.BlacklistBackend,
		TTL:     cfg.BlacklistTTL,
		Logger:  logger.With(slog.String("component", "blacklist")),
	})

	var err error
	s.steering, err = steering.NewClient(steering.Config{
		Bus:     bus,
		Fetcher: cfg.Fetcher,
		Logger:  logger.With(slog.String("component", "steering")),
		Timeout: cfg.SteeringTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating steering client: %w", err)
	}

	s.selector, err = baseurl.New(baseurl.Config{
		Bus:           bus,
		Blacklist:     s.blacklist,
		Steering:      steering.NewSelector(s.steering, s.blacklist),
		ApplySteering: cfg.ApplySteering,
		Logger:        logger.With(slog.String("component", "selector")),
		DVBOptions:    []baseurl.DVBOption{baseurl.WithStrictTierRemoval(cfg.DVBTierRemoval)},
	})
	if err != nil {
		return nil, fmt.Errorf("creating selector: %w", err)
	}

	s.controller, err = baseurl.NewController(baseurl.ControllerConfig{
		Bus:       bus,
		Selector:  s.selector,
		Blacklist: s.blacklist,
		Logger:    logger.With(slog.String("component", "baseurl")),
	})
	if err != nil {
		return nil, fmt.Errorf("creating base url controller: %w", err)
	}

	// Registered before the loader so the session's view is current when
	// other subscribers observe a publication.
	bus.On(events.InternalManifestLoaded, s, s.onManifestLoaded)

	xlinkLogger := logger.With(slog.String("component", "xlink"))
	s.loader, err = loader.New(loader.Config{
		Bus:     bus,
		Fetcher: cfg.Fetcher,
		NewResolver: func() loader.Resolver {
			return xlink.New(xlink.Config{
				Bus:         bus,
				Fetcher:     cfg.Fetcher,
				Logger:      xlinkLogger,
				Timeout:     cfg.XlinkTimeout,
				Concurrency: cfg.XlinkConcurrency,
			})
		},
		Registry:                  cfg.Registry,
		Logger:                    logger.With(slog.String("component", "loader")),
		RequestTimeout:            cfg.RequestTimeout,
		EnableDurationMismatchFix: cfg.EnableDurationMismatchFix,
		DocumentLocation:          cfg.DocumentLocation,
	})
	if err != nil {
		return nil, fmt.Errorf("creating loader: %w", err)
	}

	if cfg.EnableRefresh {
		s.refresher, err = refresh.New(refresh.Config{
			Bus:              bus,
			Loader:           s.loader,
			Steering:         s.steering,
			Logger:           logger.With(slog.String("component", "refresh")),
			MinInterval:      cfg.RefreshMinInterval,
			FallbackInterval: cfg.RefreshFallbackInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("creating refresher: %w", err)
		}
		if err := s.refresher.Start(); err != nil {
			return nil, fmt.Errorf("starting refresher: %w", err)
		}
	}

	return s, nil
}

// Bus returns the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }

// Selector returns the base URL selector.
func (s *Session) Selector() *baseurl.Selector { return s.selector }

// Blacklist returns the blacklist controller.
func (s *Session) Blacklist() *blacklist.Controller { return s.blacklist }

// Steering returns the content steering client.
func (s *Session) Steering() *steering.Client { return s.steering }

// LoaderState returns the loader's state.
func (s *Session) LoaderState() loader.State { return s.loader.State() }

// Manifest returns the latest published manifest and the error of the latest
// failed attempt, if any.
func (s *Session) Manifest() (*manifest.Manifest, *manifest.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest, s.lastErr
}

// Load starts loading url. The outcome is published as
// events.InternalManifestLoaded.
func (s *Session) Load(url string, opts ...manifest.RequestOption) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	s.loader.Load(url, opts...)
	return nil
}

// LoadAndWait loads url and blocks until this attempt is published or ctx is
// done. Publications of other attempts, such as scheduled refreshes, are
// ignored.
func (s *Session) LoadAndWait(ctx context.Context, url string, opts ...manifest.RequestOption) (*manifest.Manifest, error) {
	id := uuid.NewString()
	opts = append(opts[:len(opts):len(opts)], manifest.WithRequestID(id))

	done := make(chan events.ManifestLoadedPayload, 1)
	owner := new(int)
	s.bus.On(events.InternalManifestLoaded, owner, func(payload any) {
		if p, ok := payload.(events.ManifestLoadedPayload); ok && p.RequestID == id {
			select {
			case done <- p:
			default:
			}
		}
	})
	defer s.bus.Off(events.InternalManifestLoaded, owner)

	if err := s.Load(url, opts...); err != nil {
		return nil, err
	}

	select {
	case p := <-done:
		if p.Err != nil {
			return nil, p.Err
		}
		if p.Manifest == nil {
			return nil, nil
		}
		return p.Manifest, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) onManifestLoaded(payload any) {
	p, ok := payload.(events.ManifestLoadedPayload)
	if !ok {
		return
	}

	s.mu.Lock()
	if p.Err != nil {
		s.lastErr = p.Err
	} else if p.Manifest != nil {
		s.manifest = p.Manifest
		s.lastErr = nil
	}
	s.mu.Unlock()

	if p.Manifest == nil {
		return
	}
	m := p.Manifest
	s.controller.Update(m)
	s.steering.Update(m)

	if m.ContentSteering == nil || !s.applySteering {
		if s.refresher != nil {
			s.refresher.CancelSteering()
		}
		return
	}
	if s.steeringCurrent() {
		return
	}
	if m.ContentSteering.QueryBeforeStart {
		s.loadSteering()
		return
	}
	go s.loadSteering()
}

// steeringCurrent reports whether steering data for the current declaration
// is held and, when refreshing, its TTL reload is scheduled. The client drops
// its data when the declared server changes.
func (s *Session) steeringCurrent() bool {
	if s.steering.Data() == nil {
		return false
	}
	return s.refresher == nil || s.refresher.SteeringInterval() > 0
}

func (s *Session) loadSteering() {
	if !s.steeringLoading.CompareAndSwap(false, true) {
		return
	}
	defer s.steeringLoading.Store(false)

	data, err := s.steering.Load(context.Background())
	if err != nil {
		return
	}
	if s.refresher != nil {
		s.refresher.ScheduleSteering(data.ReloadAfter())
	}
}

// Resolve returns the full base URL of a representation.
func (s *Session) Resolve(periodID, representationID string) (*baseurl.Resolution, error) {
	return s.controller.Resolve(periodID, representationID)
}

// ResolveManifest returns the manifest-level base URL.
func (s *Session) ResolveManifest() (*baseurl.Resolution, error) {
	return s.controller.ResolveManifest()
}

// ReportFailure blacklists the origin of b.
func (s *Session) ReportFailure(b *manifest.BaseURL) {
	s.controller.ReportFailure(b)
}

// Reset returns the session to its initial state. The blacklist is kept.
func (s *Session) Reset() {
	if s.refresher != nil {
		s.refresher.CancelManifest()
		s.refresher.CancelSteering()
	}
	s.loader.Reset()
	s.steering.Reset()
	s.mu.Lock()
	s.manifest = nil
	s.lastErr = nil
	s.mu.Unlock()
	s.controller.Update(nil)
}

// Close stops every component and releases the blacklist backend.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.refresher != nil {
		s.refresher.Stop()
	}
	s.loader.Reset()
	s.controller.Close()
	s.bus.Off(events.InternalManifestLoaded, s)
	return s.blacklist.Close()
}
