package baseurl

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/urlutil"
)

// ErrNoManifest is returned by Resolve before a manifest has been installed.
var ErrNoManifest = errors.New("baseurl: no manifest")

// ErrUnknownRepresentation is returned when the requested representation is
// not in the manifest.
var ErrUnknownRepresentation = errors.New("baseurl: unknown representation")

// Resolution is the outcome of walking a manifest tree.
type Resolution struct {
	URL                    string              `json:"url" yaml:"url"`
	ServiceLocation        string              `json:"service_location,omitempty" yaml:"service_location,omitempty"`
	AvailabilityTimeOffset float64             `json:"availability_time_offset" yaml:"availability_time_offset"`
	Selected               []*manifest.BaseURL `json:"selected,omitempty" yaml:"selected,omitempty"`
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Bus       *events.Bus
	Selector  *Selector
	Blacklist Blacklist
	Logger    *slog.Logger
}

// Controller resolves full base URLs for representations of the current
// manifest and invalidates selections when their origin is blacklisted.
type Controller struct {
	bus       *events.Bus
	selector  *Selector
	blacklist Blacklist
	logger    *slog.Logger

	mu       sync.RWMutex
	manifest *manifest.Manifest

	closeOnce sync.Once
}

// NewController creates a Controller and subscribes it to blacklist changes.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Selector == nil {
		return nil, errors.New("baseurl: selector is required")
	}
	if cfg.Blacklist == nil {
		return nil, errors.New("baseurl: blacklist is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Controller{
		bus:       cfg.Bus,
		selector:  cfg.Selector,
		blacklist: cfg.Blacklist,
		logger:    cfg.Logger,
	}
	if c.bus != nil {
		c.bus.On(events.ServiceLocationBlacklistChanged, c, c.onBlacklistChanged)
	}
	return c, nil
}

// Update installs m as the manifest to resolve against.
func (c *Controller) Update(m *manifest.Manifest) {
	c.mu.Lock()
	c.manifest = m
	c.mu.Unlock()
	if m != nil {
		c.selector.ChooseSelector(m.IsDVB())
	}
}

// Manifest returns the installed manifest.
func (c *Controller) Manifest() *manifest.Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest
}

func (c *Controller) onBlacklistChanged(payload any) {
	p, ok := payload.(events.BlacklistChangedPayload)
	if !ok || p.Entry == "" {
		return
	}
	m := c.Manifest()
	if m == nil {
		return
	}
	m.ForEachCandidateSet(func(set *manifest.CandidateSet) {
		if sel := set.Selected(); sel != nil && c.blacklist.Contains(sel.Key()) {
			c.logger.Debug("clearing blacklisted selection",
				slog.String("entry", p.Entry),
				slog.String("url", sel.URL))
			set.ClearSelection()
		}
	})
}

// ResolveManifest resolves the manifest-level base URL only.
func (c *Controller) ResolveManifest() (*Resolution, error) {
	m := c.Manifest()
	if m == nil {
		return nil, ErrNoManifest
	}
	return c.walk(m, m.Candidates)
}

// Resolve resolves the full base URL for a representation. An empty period id
// matches the first period.
func (c *Controller) Resolve(periodID, representationID string) (*Resolution, error) {
	m := c.Manifest()
	if m == nil {
		return nil, ErrNoManifest
	}
	p, as, r, ok := m.FindRepresentation(periodID, representationID)
	if !ok {
		return nil, fmt.Errorf("%w: period %q representation %q", ErrUnknownRepresentation, periodID, representationID)
	}
	return c.walk(m, m.Candidates, p.Candidates, as.Candidates, r.Candidates)
}

func (c *Controller) walk(m *manifest.Manifest, levels ...*manifest.CandidateSet) (*Resolution, error) {
	base := m.BaseURI
	if base == "" {
		base = urlutil.BaseOf(m.URL)
	}
	res := &Resolution{URL: base}

	for _, set := range levels {
		if set == nil || set.Len() == 0 {
			continue
		}
		selected := c.selector.Select(set)
		if selected == nil {
			return nil, manifest.NewResolutionError()
		}
		resolved, err := urlutil.Resolve(res.URL, selected.URL)
		if err != nil {
			return nil, fmt.Errorf("resolving %q against %q: %w", selected.URL, res.URL, err)
		}
		res.URL = resolved
		res.Selected = append(res.Selected, selected)
		if selected.ServiceLocation != "" {
			res.ServiceLocation = selected.ServiceLocation
		}
		res.AvailabilityTimeOffset = selected.AvailabilityTimeOffset
	}
	return res, nil
}

// ReportFailure asks for b's origin to be blacklisted.
func (c *Controller) ReportFailure(b *manifest.BaseURL) {
	if b == nil || c.bus == nil {
		return
	}
	c.logger.Info("reporting failed base URL",
		slog.String("url", b.URL),
		slog.String("service_location", b.ServiceLocation))
	c.bus.Trigger(events.ServiceLocationBlacklistAdd, events.BlacklistAddPayload{Entry: b.Key()})
}

// Close unsubscribes the Controller from the bus.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		if c.bus != nil {
			c.bus.Off(events.ServiceLocationBlacklistChanged, c)
		}
	})
}
