package manifest

import (
	"encoding/json"
	"sync"
)

// DVB-DASH defaults for BaseURL@dvb:priority and BaseURL@dvb:weight.
const (
	DefaultPriority = 1
	DefaultWeight   = 1
)

// BaseURL is one candidate origin declared by a manifest element.
// Lower Priority values are preferred.
type BaseURL struct {
	URL                    string  `json:"url" yaml:"url"`
	ServiceLocation        string  `json:"service_location,omitempty" yaml:"service_location,omitempty"`
	Priority               int     `json:"priority" yaml:"priority"`
	Weight                 int     `json:"weight" yaml:"weight"`
	AvailabilityTimeOffset float64 `json:"availability_time_offset,omitempty" yaml:"availability_time_offset,omitempty"`
}

// NewBaseURL returns a candidate with DVB default priority and weight.
func NewBaseURL(u string) *BaseURL {
	return &BaseURL{URL: u, Priority: DefaultPriority, Weight: DefaultWeight}
}

// Key returns the identity used by the blacklist: the service location when
// one is declared, the URL otherwise.
func (b *BaseURL) Key() string {
	if b.ServiceLocation != "" {
		return b.ServiceLocation
	}
	return b.URL
}

// CandidateSet is the ordered list of BaseURLs declared by one manifest
// element together with the index of the candidate selected for it.
//
// A set remembers its selection until ClearSelection is called or the set is
// replaced. The mutex only protects the fields; a read-select-write sequence
// across calls must be serialised by the caller.
type CandidateSet struct {
	mu          sync.Mutex
	baseURLs    []*BaseURL
	selectedIdx int
	hasSelected bool
}

// NewCandidateSet builds a set over urls. The slice is copied.
func NewCandidateSet(urls []*BaseURL) *CandidateSet {
	cp := make([]*BaseURL, len(urls))
	copy(cp, urls)
	return &CandidateSet{baseURLs: cp}
}

// BaseURLs returns a copy of the candidate list.
func (c *CandidateSet) BaseURLs() []*BaseURL {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]*BaseURL, len(c.baseURLs))
	copy(cp, c.baseURLs)
	return cp
}

// Len returns the number of candidates.
func (c *CandidateSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.baseURLs)
}

// At returns the candidate at index i, or nil when out of range.
func (c *CandidateSet) At(i int) *BaseURL {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.baseURLs) {
		return nil
	}
	return c.baseURLs[i]
}

// IndexOf returns the position of b in the set, or -1.
func (c *CandidateSet) IndexOf(b *BaseURL) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, u := range c.baseURLs {
		if u == b {
			return i
		}
	}
	return -1
}

// SelectedIndex returns the recorded selection.
func (c *CandidateSet) SelectedIndex() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedIdx, c.hasSelected
}

// SetSelectedIndex records i as the selection. Out of range values are ignored.
func (c *CandidateSet) SetSelectedIndex(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.baseURLs) {
		return
	}
	c.selectedIdx = i
	c.hasSelected = true
}

// ClearSelection forgets the recorded selection.
func (c *CandidateSet) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selectedIdx = 0
	c.hasSelected = false
}

// Selected returns the selected candidate, or nil when none is recorded.
func (c *CandidateSet) Selected() *BaseURL {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSelected {
		return nil
	}
	return c.baseURLs[c.selectedIdx]
}

// MarshalJSON renders the set as its candidate list.
func (c *CandidateSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.BaseURLs())
}

// MarshalYAML renders the set as its candidate list.
func (c *CandidateSet) MarshalYAML() (any, error) {
	return c.BaseURLs(), nil
}
