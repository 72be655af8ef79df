package baseurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/streamsource/internal/blacklist"
	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
)

func treeManifest() *manifest.Manifest {
	rep := &manifest.Representation{
		ID:         "v1",
		Candidates: manifest.NewCandidateSet([]*manifest.BaseURL{manifest.NewBaseURL("v1/")}),
	}
	as := &manifest.AdaptationSet{
		ID:              "0",
		Representations: []*manifest.Representation{rep},
	}
	period := &manifest.Period{
		ID:             "p0",
		AdaptationSets: []*manifest.AdaptationSet{as},
		Candidates:     manifest.NewCandidateSet([]*manifest.BaseURL{manifest.NewBaseURL("period/")}),
	}
	return &manifest.Manifest{
		URL:     "http://origin.example/live/stream.mpd",
		BaseURI: "http://origin.example/live/",
		Candidates: manifest.NewCandidateSet([]*manifest.BaseURL{
			candidate("http://cdn1.example/content/", "cdn1", 1, 1),
			candidate("http://cdn2.example/content/", "cdn2", 2, 1),
		}),
		Periods: []*manifest.Period{period},
	}
}

type controllerHarness struct {
	bus       *events.Bus
	blacklist *blacklist.Controller
	selector  *Selector
	ctrl      *Controller
}

func newControllerHarness(t *testing.T) *controllerHarness {
	t.Helper()
	bus := events.NewBus(nil)
	bl := blacklist.New(blacklist.Config{Bus: bus})
	sel, err := New(Config{Bus: bus, Blacklist: bl})
	require.NoError(t, err)
	ctrl, err := NewController(ControllerConfig{Bus: bus, Selector: sel, Blacklist: bl})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctrl.Close()
		_ = bl.Close()
	})
	return &controllerHarness{bus: bus, blacklist: bl, selector: sel, ctrl: ctrl}
}

func TestController_ResolveWithoutManifest(t *testing.T) {
	h := newControllerHarness(t)
	_, err := h.ctrl.Resolve("", "v1")
	assert.ErrorIs(t, err, ErrNoManifest)
	_, err = h.ctrl.ResolveManifest()
	assert.ErrorIs(t, err, ErrNoManifest)
}

func TestController_ResolveTree(t *testing.T) {
	h := newControllerHarness(t)
	h.ctrl.Update(treeManifest())

	res, err := h.ctrl.Resolve("p0", "v1")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn1.example/content/period/v1/", res.URL)
	assert.Equal(t, "cdn1", res.ServiceLocation)
	assert.Len(t, res.Selected, 3)

	res, err = h.ctrl.ResolveManifest()
	require.NoError(t, err)
	assert.Equal(t, "http://cdn1.example/content/", res.URL)

	_, err = h.ctrl.Resolve("p0", "missing")
	assert.ErrorIs(t, err, ErrUnknownRepresentation)
}

func TestController_ResolveWithoutBaseURLs(t *testing.T) {
	h := newControllerHarness(t)
	h.ctrl.Update(&manifest.Manifest{
		URL: "http://origin.example/vod/stream.mpd",
		Periods: []*manifest.Period{{
			AdaptationSets: []*manifest.AdaptationSet{{
				Representations: []*manifest.Representation{{ID: "a1"}},
			}},
		}},
	})
	res, err := h.ctrl.Resolve("", "a1")
	require.NoError(t, err)
	assert.Equal(t, "http://origin.example/vod/", res.URL)
}

func TestController_FailoverOnReportedFailure(t *testing.T) {
	h := newControllerHarness(t)
	m := treeManifest()
	h.ctrl.Update(m)

	res, err := h.ctrl.ResolveManifest()
	require.NoError(t, err)
	require.Len(t, res.Selected, 1)

	h.ctrl.ReportFailure(res.Selected[0])
	assert.True(t, h.blacklist.Contains("cdn1"))
	_, ok := m.Candidates.SelectedIndex()
	assert.False(t, ok, "blacklisted selection cleared")

	res, err = h.ctrl.ResolveManifest()
	require.NoError(t, err)
	assert.Equal(t, "http://cdn2.example/content/", res.URL)
	assert.Equal(t, "cdn2", res.ServiceLocation)
}

func TestController_AllBlacklistedFailsThenHeals(t *testing.T) {
	h := newControllerHarness(t)
	var failed int
	h.bus.On(events.URLResolutionFailed, t, func(any) { failed++ })
	h.ctrl.Update(treeManifest())

	h.blacklist.Add("cdn1")
	h.blacklist.Add("cdn2")

	_, err := h.ctrl.ResolveManifest()
	var merr *manifest.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, manifest.CodeResolutionFailure, merr.Code)
	assert.Equal(t, 1, failed)
	assert.Empty(t, h.blacklist.Entries())

	res, err := h.ctrl.ResolveManifest()
	require.NoError(t, err)
	assert.Equal(t, "http://cdn1.example/content/", res.URL)
}

func TestController_UpdateChoosesDVB(t *testing.T) {
	h := newControllerHarness(t)
	m := treeManifest()
	m.Profiles = []string{"urn:dvb:dash:profile:dvb-dash:2014"}
	h.ctrl.Update(m)

	h.selector.mu.RLock()
	_, isDVB := h.selector.strategy.(*DVBSelector)
	h.selector.mu.RUnlock()
	assert.True(t, isDVB)
}
