package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const liveMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" minimumUpdatePeriod="PT4S"
     availabilityStartTime="2024-01-01T00:00:00Z">
  <BaseURL>http://live.example/</BaseURL>
  <Period id="live" start="PT0S">
    <AdaptationSet id="0" mimeType="video/mp4">
      <Representation id="hd" bandwidth="3000000" width="1920" height="1080"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestSession_SummaryNilBeforeLoad(t *testing.T) {
	s := newSession(t, Config{})
	assert.Nil(t, s.Summary())
}

func TestSession_SummaryResolvesRepresentations(t *testing.T) {
	srv := newOrigin(t)
	s := newSession(t, Config{})

	_, err := s.LoadAndWait(loadCtx(t), srv.URL+"/plain.mpd")
	require.NoError(t, err)

	sum := s.Summary()
	require.NotNil(t, sum)
	assert.Equal(t, "http://a.example/", sum.BaseURL)
	require.NotNil(t, sum.MediaPresentationDuration)
	assert.InDelta(t, 10.0, *sum.MediaPresentationDuration, 1e-9)
	require.Len(t, sum.Periods, 1)
	require.Len(t, sum.Periods[0].AdaptationSets, 1)

	rep := sum.Periods[0].AdaptationSets[0].Representations[0]
	assert.Equal(t, "a1", rep.ID)
	assert.Equal(t, "http://a.example/", rep.BaseURL)
	assert.Equal(t, "a", rep.ServiceLocation)
	assert.Empty(t, rep.Error)
}

func TestSession_SummaryUnknownDurationIsNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(liveMPD))
	}))
	t.Cleanup(srv.Close)
	s := newSession(t, Config{})

	_, err := s.LoadAndWait(loadCtx(t), srv.URL+"/live.mpd")
	require.NoError(t, err)

	sum := s.Summary()
	require.NotNil(t, sum)
	assert.Nil(t, sum.Periods[0].Duration)
	require.NotNil(t, sum.MinimumUpdatePeriod)
	assert.InDelta(t, 4.0, *sum.MinimumUpdatePeriod, 1e-9)

	data, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"duration":null`)
}
