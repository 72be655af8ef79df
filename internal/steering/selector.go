package steering

import (
	"github.com/jmylchreest/streamsource/internal/manifest"
)

// Blacklist reports excluded service locations.
type Blacklist interface {
	Contains(entry string) bool
}

// Selector is the steering authority consulted by base URL selection.
type Selector struct {
	client    *Client
	blacklist Blacklist
}

// NewSelector creates a Selector over client. blacklist may be nil.
func NewSelector(client *Client, blacklist Blacklist) *Selector {
	return &Selector{client: client, blacklist: blacklist}
}

// SelectBaseURLIndex returns the index of the candidate whose service location
// ranks highest in the pathway priority list, falling back to the manifest's
// default service locations. It returns -1 when it has no opinion.
func (s *Selector) SelectBaseURLIndex(set *manifest.CandidateSet) int {
	if set == nil || set.Len() == 0 {
		return -1
	}

	var order []string
	if data := s.client.Data(); data != nil && len(data.PathwayPriority) > 0 {
		order = data.PathwayPriority
	} else {
		order = s.client.Declaration().DefaultServiceLocations()
	}

	for _, pathway := range order {
		if s.blacklist != nil && s.blacklist.Contains(pathway) {
			continue
		}
		for i, b := range set.BaseURLs() {
			if b.ServiceLocation == pathway {
				s.client.SetPathway(pathway)
				return i
			}
		}
	}
	return -1
}
