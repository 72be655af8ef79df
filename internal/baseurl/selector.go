// Package baseurl chooses which candidate origin a request uses.
//
// The Selector applies content steering, keeps a chosen index sticky per
// candidate set, and falls back to the active Strategy. The Controller walks
// a manifest tree, selecting at every level and resolving relative URLs
// against their parent.
package baseurl

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
)

// SteeringSelector is the content steering authority. It returns the index
// to force-select, or -1 when it has no opinion.
type SteeringSelector interface {
	SelectBaseURLIndex(set *manifest.CandidateSet) int
}

// Config configures a Selector.
type Config struct {
	Bus       *events.Bus
	Blacklist Blacklist
	Steering  SteeringSelector
	Logger    *slog.Logger

	// ApplySteering enables the steering override.
	ApplySteering bool

	// DVBOptions configure the DVB strategy.
	DVBOptions []DVBOption
}

// Override substitutes collaborators on a running Selector. Nil fields are
// left unchanged.
type Override struct {
	Strategy Strategy
	Steering SteeringSelector
}

// Selector picks a base URL from a candidate set.
//
// The active strategy is a property of the Selector, not of a call: one
// Selector cannot apply Basic selection to one manifest and DVB selection to
// another at the same time. Sessions that need both use two Selectors.
type Selector struct {
	bus       *events.Bus
	blacklist Blacklist
	logger    *slog.Logger
	basic     *BasicSelector
	dvb       *DVBSelector

	mu            sync.RWMutex
	strategy      Strategy
	steering      SteeringSelector
	applySteering bool
}

// New creates a Selector using the Basic strategy.
func New(cfg Config) (*Selector, error) {
	if cfg.Blacklist == nil {
		return nil, errors.New("baseurl: blacklist is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Selector{
		bus:           cfg.Bus,
		blacklist:     cfg.Blacklist,
		logger:        cfg.Logger,
		basic:         NewBasicSelector(cfg.Blacklist),
		dvb:           NewDVBSelector(cfg.Blacklist, cfg.DVBOptions...),
		steering:      cfg.Steering,
		applySteering: cfg.ApplySteering,
	}
	s.strategy = s.basic
	return s, nil
}

// ChooseSelector switches between the DVB and the Basic strategy.
func (s *Selector) ChooseSelector(isDVB bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if isDVB {
		s.strategy = s.dvb
	} else {
		s.strategy = s.basic
	}
}

// SetConfig substitutes the strategy or the steering authority.
func (s *Selector) SetConfig(o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Strategy != nil {
		s.strategy = o.Strategy
	}
	if o.Steering != nil {
		s.steering = o.Steering
	}
}

// SetApplySteering toggles the steering override.
func (s *Selector) SetApplySteering(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySteering = enabled
}

// Select returns the base URL to use for set, or nil when none can be
// resolved. A nil result for a non-nil set is also published as
// events.URLResolutionFailed.
func (s *Selector) Select(set *manifest.CandidateSet) *manifest.BaseURL {
	if set == nil {
		return nil
	}

	s.mu.RLock()
	strategy := s.strategy
	steering := s.steering
	applySteering := s.applySteering
	s.mu.RUnlock()

	if applySteering && steering != nil {
		if idx := steering.SelectBaseURLIndex(set); idx >= 0 && idx < set.Len() {
			set.SetSelectedIndex(idx)
		}
	}

	if idx, ok := set.SelectedIndex(); ok {
		return set.At(idx)
	}

	selected := strategy.Select(set.BaseURLs())
	if selected == nil {
		s.logger.Warn("no eligible base URL", slog.Int("candidates", set.Len()))
		if s.bus != nil {
			s.bus.Trigger(events.URLResolutionFailed, events.URLResolutionFailedPayload{Err: manifest.NewResolutionError()})
		}
		if basic, ok := strategy.(*BasicSelector); ok && basic == s.basic {
			s.Reset()
		}
		return nil
	}

	set.SetSelectedIndex(set.IndexOf(selected))
	return selected
}

// Reset clears the blacklist. Recorded selections are left alone.
func (s *Selector) Reset() {
	s.blacklist.Reset()
}
