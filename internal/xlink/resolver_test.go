package xlink

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/streamsource/internal/dialect"
	"github.com/jmylchreest/streamsource/internal/events"
	"github.com/jmylchreest/streamsource/internal/manifest"
	"github.com/jmylchreest/streamsource/internal/urlutil"
)

func newTestResolver(t *testing.T) (*Resolver, *events.Bus, chan *manifest.Manifest) {
	t.Helper()
	bus := events.NewBus(nil)
	ready := make(chan *manifest.Manifest, 4)
	bus.On(events.XlinkReady, t, func(p any) {
		ready <- p.(events.XlinkReadyPayload).Manifest
	})
	r := New(Config{Bus: bus, Fetcher: urlutil.NewDefaultResourceFetcher(), Timeout: 2 * time.Second})
	r.SetParser(&dialect.DASHParser{})
	return r, bus, ready
}

func waitReady(t *testing.T, ready chan *manifest.Manifest) *manifest.Manifest {
	t.Helper()
	select {
	case m := <-ready:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for xlink ready")
		return nil
	}
}

func parse(t *testing.T, mpd string) *manifest.Manifest {
	t.Helper()
	m, err := (&dialect.DASHParser{}).Parse(mpd)
	require.NoError(t, err)
	return m
}

func TestResolver_NothingToResolveIsSynchronous(t *testing.T) {
	r, _, ready := newTestResolver(t)
	m := parse(t, `<MPD><Period duration="PT5S"/></MPD>`)

	r.ResolveManifestOnLoad(m)

	select {
	case got := <-ready:
		assert.Same(t, m, got)
	default:
		t.Fatal("ready event should be published before returning")
	}
}

func TestResolver_OnRequestReferencesAreLeftAlone(t *testing.T) {
	r, _, ready := newTestResolver(t)
	m := parse(t, `<MPD xmlns:xlink="http://www.w3.org/1999/xlink">
  <Period duration="PT5S" xlink:href="https://ads.example/p.xml"/>
</MPD>`)

	r.ResolveManifestOnLoad(m)

	got := waitReady(t, ready)
	require.Len(t, got.Periods, 1)
	assert.Equal(t, manifest.XlinkActuateOnRequest, got.Periods[0].Xlink.Actuate)
}

func TestResolver_MergesRemoteElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ads/period.xml":
			_, _ = w.Write([]byte(`<Period id="ad1" duration="PT2S"/><Period id="ad2" duration="PT3S"/>`))
		case "/audio.xml":
			_, _ = w.Write([]byte(`<AdaptationSet id="audio" lang="en"/>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	r, _, ready := newTestResolver(t)
	m := parse(t, `<MPD xmlns:xlink="http://www.w3.org/1999/xlink" mediaPresentationDuration="PT20S">
  <Period id="main" duration="PT10S">
    <AdaptationSet id="video"/>
    <AdaptationSet xlink:href="/audio.xml" xlink:actuate="onLoad"/>
  </Period>
  <Period xlink:href="/ads/period.xml" xlink:actuate="onLoad"/>
  <Period xlink:href="/missing.xml" xlink:actuate="onLoad"/>
  <Period xlink:href="urn:mpeg:dash:resolve-to-zero:2013" xlink:actuate="onLoad"/>
</MPD>`)
	m.BaseURI = server.URL + "/live/"

	r.ResolveManifestOnLoad(m)
	got := waitReady(t, ready)

	require.Len(t, got.Periods, 3)
	assert.Equal(t, "main", got.Periods[0].ID)
	assert.Equal(t, "ad1", got.Periods[1].ID)
	assert.Equal(t, "ad2", got.Periods[2].ID)
	assert.InDelta(t, 10.0, got.Periods[1].Start, 1e-9)
	assert.InDelta(t, 12.0, got.Periods[2].Start, 1e-9)

	sets := got.Periods[0].AdaptationSets
	require.Len(t, sets, 2)
	assert.Equal(t, "video", sets[0].ID)
	assert.Equal(t, "audio", sets[1].ID)
	assert.False(t, math.IsNaN(got.PeriodDurationSum()))
}

func TestResolver_ResetSuppressesPublication(t *testing.T) {
	release := make(chan struct{})
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(`<Period id="late"/>`))
	}))
	defer server.Close()
	defer close(release)

	r, _, ready := newTestResolver(t)
	m := parse(t, `<MPD xmlns:xlink="http://www.w3.org/1999/xlink">
  <Period xlink:href="`+server.URL+`/p.xml" xlink:actuate="onLoad"/>
</MPD>`)

	r.ResolveManifestOnLoad(m)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&hits) == 1 }, 2*time.Second, 5*time.Millisecond)

	r.Reset()
	r.Reset()

	select {
	case <-ready:
		t.Fatal("no ready event expected after reset")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestResolver_NonFragmentParserPublishesImmediately(t *testing.T) {
	r, _, ready := newTestResolver(t)
	r.SetParser(&dialect.HLSParser{})

	m := &manifest.Manifest{Periods: []*manifest.Period{{
		Xlink: &manifest.Xlink{Href: "https://x.example/p.xml", Actuate: manifest.XlinkActuateOnLoad},
	}}}
	r.ResolveManifestOnLoad(m)

	got := waitReady(t, ready)
	assert.Len(t, got.Periods, 1)
}

func TestResolver_FetchTargetErrors(t *testing.T) {
	r := New(Config{Fetcher: urlutil.NewDefaultResourceFetcher()})
	err := r.fetchTarget(context.Background(), &dialect.DASHParser{}, "", &target{period: &manifest.Period{}, href: "ftp://x/p.xml"})
	assert.Error(t, err)
}
