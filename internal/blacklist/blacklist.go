// Package blacklist tracks origins that are temporarily excluded from base
// URL selection after a failure.
package blacklist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/streamsource/internal/events"
)

// Default configuration values.
const (
	DefaultTTL         = 60 * time.Second
	DefaultOpTimeout   = 2 * time.Second
	DefaultRedisPrefix = "streamsource:blacklist:"
)

// Backend stores blacklist entries. Entries added with a zero TTL stay until
// Reset.
type Backend interface {
	Add(ctx context.Context, entry string, ttl time.Duration) error
	Contains(ctx context.Context, entry string) (bool, error)
	List(ctx context.Context) ([]string, error)
	Reset(ctx context.Context) error
	Close() error
}

// Config configures a Controller.
type Config struct {
	Bus     *events.Bus
	Backend Backend
	TTL     time.Duration
	Logger  *slog.Logger

	// OpTimeout bounds each backend call.
	OpTimeout time.Duration
}

// Controller is the blacklist used by base URL selection. It listens for
// events.ServiceLocationBlacklistAdd and publishes
// events.ServiceLocationBlacklistChanged whenever its contents change.
type Controller struct {
	bus       *events.Bus
	backend   Backend
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger

	closeOnce sync.Once
}

// New creates a Controller and subscribes it to the bus.
func New(cfg Config) *Controller {
	if cfg.Backend == nil {
		cfg.Backend = NewMemoryBackend()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultOpTimeout
	}
	c := &Controller{
		bus:       cfg.Bus,
		backend:   cfg.Backend,
		ttl:       cfg.TTL,
		opTimeout: cfg.OpTimeout,
		logger:    cfg.Logger,
	}
	if c.bus != nil {
		c.bus.On(events.ServiceLocationBlacklistAdd, c, c.onAdd)
	}
	return c
}

func (c *Controller) onAdd(payload any) {
	if p, ok := payload.(events.BlacklistAddPayload); ok {
		c.Add(p.Entry)
	}
}

func (c *Controller) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.opTimeout)
}

// Contains reports whether entry is currently excluded. Backend errors are
// logged and treated as not excluded.
func (c *Controller) Contains(entry string) bool {
	if entry == "" {
		return false
	}
	ctx, cancel := c.context()
	defer cancel()

	ok, err := c.backend.Contains(ctx, entry)
	if err != nil {
		c.logger.Warn("blacklist lookup failed",
			slog.String("entry", entry),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

// Add excludes entry for the configured TTL. Adding an entry that is
// already present does nothing.
func (c *Controller) Add(entry string) {
	if entry == "" || c.Contains(entry) {
		return
	}

	ctx, cancel := c.context()
	defer cancel()

	if err := c.backend.Add(ctx, entry, c.ttl); err != nil {
		c.logger.Warn("blacklist add failed",
			slog.String("entry", entry),
			slog.String("error", err.Error()),
		)
		return
	}

	c.logger.Info("origin blacklisted",
		slog.String("entry", entry),
		slog.Duration("ttl", c.ttl),
	)
	c.trigger(entry)
}

// Entries lists the current entries.
func (c *Controller) Entries() []string {
	ctx, cancel := c.context()
	defer cancel()

	entries, err := c.backend.List(ctx)
	if err != nil {
		c.logger.Warn("blacklist list failed", slog.String("error", err.Error()))
		return nil
	}
	return entries
}

// Reset removes every entry.
func (c *Controller) Reset() {
	ctx, cancel := c.context()
	defer cancel()

	if err := c.backend.Reset(ctx); err != nil {
		c.logger.Warn("blacklist reset failed", slog.String("error", err.Error()))
		return
	}
	c.logger.Debug("blacklist cleared")
	c.trigger("")
}

func (c *Controller) trigger(entry string) {
	if c.bus != nil {
		c.bus.Trigger(events.ServiceLocationBlacklistChanged, events.BlacklistChangedPayload{Entry: entry})
	}
}

// Close unsubscribes from the bus and closes the backend.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.bus != nil {
			c.bus.Off(events.ServiceLocationBlacklistAdd, c)
		}
		err = c.backend.Close()
	})
	return err
}
