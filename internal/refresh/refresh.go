// Package refresh reloads dynamic manifests and steering documents on a
// schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/steering"
)

const (
	// DefaultMinInterval is the shortest manifest reload interval.
	DefaultMinInterval = 2 * time.Second

	// DefaultFallbackInterval applies to dynamic manifests without a
	// minimum update period.
	DefaultFallbackInterval = 10 * time.Second

	// DefaultSteeringTimeout bounds a scheduled steering reload.
	DefaultSteeringTimeout = 10 * time.Second
)

// ManifestLoader starts a manifest load.
type ManifestLoader interface {
	Load(url string, opts ...manifest.RequestOption)
}

// SteeringLoader reloads steering data.
type SteeringLoader interface {
	Load(ctx context.Context) (*steering.Data, error)
}

// Config configures a Refresher.
type Config struct {
	Bus      *events.Bus
	Loader   ManifestLoader
	Steering SteeringLoader
	Logger   *slog.Logger

	// MinInterval is the lower bound applied to a manifest's minimum
	// update period.
	MinInterval time.Duration

	// FallbackInterval is used for dynamic manifests that declare no
	// minimum update period.
	FallbackInterval time.Duration
}

// Refresher schedules manifest reloads for dynamic presentations and steering
// reloads by TTL. It listens for events.InternalManifestLoaded.
type Refresher struct {
	mu sync.Mutex

	bus      *events.Bus
	loader   ManifestLoader
	steering SteeringLoader
	logger   *slog.Logger
	cron     *cron.Cron

	minInterval      time.Duration
	fallbackInterval time.Duration

	manifestEntry    cron.EntryID
	manifestURL      string
	manifestInterval time.Duration
	manifestGen      uint64

	steeringEntry    cron.EntryID
	steeringInterval time.Duration

	started bool
}

// New creates a Refresher and subscribes it to the bus.
func New(cfg Config) (*Refresher, error) {
	if cfg.Bus == nil {
		return nil, errors.New("refresh: bus is required")
	}
	if cfg.Loader == nil {
		return nil, errors.New("refresh: loader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = DefaultFallbackInterval
	}
	r := &Refresher{
		bus:              cfg.Bus,
		loader:           cfg.Loader,
		steering:         cfg.Steering,
		logger:           cfg.Logger,
		cron:             cron.New(),
		minInterval:      cfg.MinInterval,
		fallbackInterval: cfg.FallbackInterval,
	}
	r.bus.On(events.InternalManifestLoaded, r, r.onManifestLoaded)
	return r, nil
}

// Start begins running scheduled jobs.
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("refresher already started")
	}
	r.started = true
	r.cron.Start()
	r.logger.Info("refresher started",
		slog.Duration("min_interval", r.minInterval),
		slog.Duration("fallback_interval", r.fallbackInterval))
	return nil
}

// Stop unsubscribes from the bus, removes every job and waits for running
// jobs to finish.
func (r *Refresher) Stop() {
	r.bus.Off(events.InternalManifestLoaded, r)

	r.mu.Lock()
	r.removeManifestLocked()
	r.removeSteeringLocked()
	started := r.started
	r.started = false
	r.mu.Unlock()

	if started {
		<-r.cron.Stop().Done()
		r.logger.Info("refresher stopped")
	}
}

// Interval returns the reload interval for m. Static manifests return zero.
func (r *Refresher) Interval(m *manifest.Manifest) time.Duration {
	if m == nil || !m.IsDynamic() {
		return 0
	}
	mup := m.MinimumUpdatePeriod
	if mup <= 0 || math.IsNaN(mup) || math.IsInf(mup, 0) {
		return r.fallbackInterval
	}
	d := time.Duration(mup * float64(time.Second))
	return max(d, r.minInterval)
}

// ManifestInterval returns the active manifest reload interval, or zero.
func (r *Refresher) ManifestInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.manifestInterval
}

// SteeringInterval returns the active steering reload interval, or zero.
func (r *Refresher) SteeringInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steeringInterval
}

func (r *Refresher) onManifestLoaded(payload any) {
	p, ok := payload.(events.ManifestLoadedPayload)
	if !ok || p.Manifest == nil {
		// a failed reload keeps the current schedule
		return
	}
	r.ScheduleManifest(p.Manifest)
}

// ScheduleManifest reloads m.URL periodically if m is dynamic and cancels
// any manifest reload otherwise.
func (r *Refresher) ScheduleManifest(m *manifest.Manifest) {
	interval := r.Interval(m)

	r.mu.Lock()
	defer r.mu.Unlock()

	if interval == 0 {
		if r.manifestEntry != 0 {
			r.logger.Debug("manifest is static, cancelling refresh")
		}
		r.removeManifestLocked()
		return
	}
	if m.URL == r.manifestURL && interval == r.manifestInterval && r.manifestEntry != 0 {
		return
	}

	r.removeManifestLocked()
	url := m.URL
	gen := r.manifestGen
	r.manifestEntry = r.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		r.mu.Lock()
		current := gen == r.manifestGen
		r.mu.Unlock()
		if !current {
			return
		}
		r.logger.Debug("refreshing manifest", slog.String("url", url))
		r.loader.Load(url)
	}))
	r.manifestURL = url
	r.manifestInterval = interval
	r.logger.Info("manifest refresh scheduled",
		slog.String("url", url),
		slog.Duration("interval", interval))
}

// ScheduleSteering reloads steering data every ttl. Each reload reschedules
// itself when the returned TTL differs.
func (r *Refresher) ScheduleSteering(ttl time.Duration) {
	if r.steering == nil {
		return
	}
	if ttl <= 0 {
		ttl = steering.DefaultTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ttl == r.steeringInterval && r.steeringEntry != 0 {
		return
	}
	r.removeSteeringLocked()
	r.steeringEntry = r.cron.Schedule(cron.Every(ttl), cron.FuncJob(r.reloadSteering))
	r.steeringInterval = ttl
	r.logger.Debug("steering reload scheduled", slog.Duration("ttl", ttl))
}

// CancelManifest removes the manifest reload job. A job already running when
// it is removed does not start a load.
func (r *Refresher) CancelManifest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeManifestLocked()
}

// CancelSteering removes the steering reload job.
func (r *Refresher) CancelSteering() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeSteeringLocked()
}

func (r *Refresher) reloadSteering() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultSteeringTimeout)
	defer cancel()

	data, err := r.steering.Load(ctx)
	if err != nil {
		r.logger.Warn("scheduled steering reload failed", slog.String("error", err.Error()))
		return
	}
	r.ScheduleSteering(data.ReloadAfter())
}

func (r *Refresher) removeManifestLocked() {
	if r.manifestEntry != 0 {
		r.cron.Remove(r.manifestEntry)
	}
	r.manifestEntry = 0
	r.manifestURL = ""
	r.manifestInterval = 0
	r.manifestGen++
}

func (r *Refresher) removeSteeringLocked() {
	if r.steeringEntry != 0 {
		r.cron.Remove(r.steeringEntry)
	}
	r.steeringEntry = 0
	r.steeringInterval = 0
}
