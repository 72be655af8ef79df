package baseurl

import (
	"math/rand/v2"
	"sync"

	"github.com/jmylchreest/streamsource/internal/manifest"
)

// Blacklist is the exclusion store consulted during selection.
type Blacklist interface {
	Contains(entry string) bool
	Reset()
}

// Strategy picks one candidate from an ordered list, or nil if none is
// eligible. Implementations never return a blacklisted candidate, and never
// return a candidate from a higher priority value while an eligible one with
// a lower value exists.
type Strategy interface {
	Select(urls []*manifest.BaseURL) *manifest.BaseURL
}

func eligible(urls []*manifest.BaseURL, bl Blacklist) []*manifest.BaseURL {
	out := make([]*manifest.BaseURL, 0, len(urls))
	for _, u := range urls {
		if u != nil && !bl.Contains(u.Key()) {
			out = append(out, u)
		}
	}
	return out
}

// lowestTier returns the candidates sharing the lowest priority value, in
// their original order.
func lowestTier(urls []*manifest.BaseURL) []*manifest.BaseURL {
	if len(urls) == 0 {
		return nil
	}
	min := urls[0].Priority
	for _, u := range urls[1:] {
		if u.Priority < min {
			min = u.Priority
		}
	}
	tier := make([]*manifest.BaseURL, 0, len(urls))
	for _, u := range urls {
		if u.Priority == min {
			tier = append(tier, u)
		}
	}
	return tier
}

// BasicSelector returns the first eligible candidate, in document order,
// within the lowest priority tier.
type BasicSelector struct {
	blacklist Blacklist
}

// NewBasicSelector creates a BasicSelector.
func NewBasicSelector(bl Blacklist) *BasicSelector {
	return &BasicSelector{blacklist: bl}
}

// Select implements Strategy.
func (s *BasicSelector) Select(urls []*manifest.BaseURL) *manifest.BaseURL {
	tier := lowestTier(eligible(urls, s.blacklist))
	if len(tier) == 0 {
		return nil
	}
	return tier[0]
}

// DVBSelector implements DVB-DASH selection: within the lowest priority
// tier one candidate is chosen at random with probability proportional to
// its weight.
type DVBSelector struct {
	blacklist Blacklist

	// strictTierRemoval also drops every candidate sharing a priority with
	// a blacklisted one.
	strictTierRemoval bool

	mu   sync.Mutex
	intN func(n int) int
}

// DVBOption configures a DVBSelector.
type DVBOption func(*DVBSelector)

// WithStrictTierRemoval enables DVB strict priority-tier removal.
func WithStrictTierRemoval(enabled bool) DVBOption {
	return func(s *DVBSelector) { s.strictTierRemoval = enabled }
}

// WithRandom replaces the random source. intN must return a value in [0, n).
func WithRandom(intN func(n int) int) DVBOption {
	return func(s *DVBSelector) { s.intN = intN }
}

// NewDVBSelector creates a DVBSelector.
func NewDVBSelector(bl Blacklist, opts ...DVBOption) *DVBSelector {
	s := &DVBSelector{blacklist: bl, intN: rand.IntN}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select implements Strategy.
func (s *DVBSelector) Select(urls []*manifest.BaseURL) *manifest.BaseURL {
	tier := lowestTier(s.available(urls))
	switch len(tier) {
	case 0:
		return nil
	case 1:
		return tier[0]
	}

	total := 0
	for _, u := range tier {
		if u.Weight > 0 {
			total += u.Weight
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if total == 0 {
		return tier[s.intN(len(tier))]
	}
	rn := s.intN(total)
	cumulative := 0
	for _, u := range tier {
		if u.Weight > 0 {
			cumulative += u.Weight
		}
		if rn < cumulative {
			return u
		}
	}
	return tier[len(tier)-1]
}

func (s *DVBSelector) available(urls []*manifest.BaseURL) []*manifest.BaseURL {
	if !s.strictTierRemoval {
		return eligible(urls, s.blacklist)
	}

	removed := make(map[int]bool)
	kept := make([]*manifest.BaseURL, 0, len(urls))
	for _, u := range urls {
		if u == nil {
			continue
		}
		if s.blacklist.Contains(u.Key()) {
			removed[u.Priority] = true
			continue
		}
		kept = append(kept, u)
	}
	out := kept[:0]
	for _, u := range kept {
		if !removed[u.Priority] {
			out = append(out, u)
		}
	}
	return out
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(urls []*manifest.BaseURL) *manifest.BaseURL

// Select implements Strategy.
func (f StrategyFunc) Select(urls []*manifest.BaseURL) *manifest.BaseURL {
	return f(urls)
}
