package manifest

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateSet_Selection(t *testing.T) {
	a := NewBaseURL("https://a.example/")
	b := NewBaseURL("https://b.example/")
	set := NewCandidateSet([]*BaseURL{a, b})

	_, ok := set.SelectedIndex()
	assert.False(t, ok, "fresh set has no selection")
	assert.Nil(t, set.Selected())

	set.SetSelectedIndex(1)
	idx, ok := set.SelectedIndex()
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Same(t, b, set.Selected())

	t.Run("out of range is ignored", func(t *testing.T) {
		set.SetSelectedIndex(5)
		idx, ok := set.SelectedIndex()
		assert.True(t, ok)
		assert.Equal(t, 1, idx)
	})

	t.Run("clear", func(t *testing.T) {
		set.ClearSelection()
		_, ok := set.SelectedIndex()
		assert.False(t, ok)
	})

	assert.Equal(t, 0, set.IndexOf(a))
	assert.Equal(t, -1, set.IndexOf(NewBaseURL("https://a.example/")))
	assert.Nil(t, set.At(2))
	assert.Equal(t, 2, set.Len())
}

func TestCandidateSet_CopiesInput(t *testing.T) {
	urls := []*BaseURL{NewBaseURL("a"), NewBaseURL("b")}
	set := NewCandidateSet(urls)
	urls[0] = NewBaseURL("z")

	assert.Equal(t, "a", set.At(0).URL)

	out := set.BaseURLs()
	out[1] = nil
	assert.NotNil(t, set.At(1))
}

func TestCandidateSet_MarshalJSON(t *testing.T) {
	set := NewCandidateSet([]*BaseURL{{URL: "https://a.example/", ServiceLocation: "a", Priority: 1, Weight: 2}})
	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"url":"https://a.example/","service_location":"a","priority":1,"weight":2}]`, string(data))
}

func TestBaseURL_Key(t *testing.T) {
	assert.Equal(t, "cdn-a", (&BaseURL{URL: "https://a/", ServiceLocation: "cdn-a"}).Key())
	assert.Equal(t, "https://a/", (&BaseURL{URL: "https://a/"}).Key())
}

func TestManifest_PeriodDurationSum(t *testing.T) {
	m := &Manifest{Periods: []*Period{{Duration: 3}, {Duration: 4}}}
	assert.InDelta(t, 7.0, m.PeriodDurationSum(), 1e-9)

	m.Periods = append(m.Periods, &Period{Duration: math.NaN()})
	assert.True(t, math.IsNaN(m.PeriodDurationSum()))
	assert.False(t, m.Periods[2].HasDuration())
}

func TestManifest_Profiles(t *testing.T) {
	m := &Manifest{Profiles: []string{"urn:mpeg:dash:profile:isoff-live:2011", " urn:dvb:dash:profile:dvb-dash:2014"}}
	assert.True(t, m.IsDVB())
	assert.True(t, m.HasProfile("urn:mpeg:dash:profile:isoff-live"))
	assert.False(t, (&Manifest{}).IsDVB())
}

func TestManifest_ForEachCandidateSet(t *testing.T) {
	rep := &Representation{ID: "v1", Candidates: NewCandidateSet([]*BaseURL{NewBaseURL("r/")})}
	m := &Manifest{
		Candidates: NewCandidateSet([]*BaseURL{NewBaseURL("https://a/")}),
		Periods: []*Period{{
			ID: "p0",
			AdaptationSets: []*AdaptationSet{{
				Representations: []*Representation{rep, {ID: "v2"}},
			}},
		}},
	}

	var count int
	m.ForEachCandidateSet(func(*CandidateSet) { count++ })
	assert.Equal(t, 2, count)

	p, _, r, ok := m.FindRepresentation("", "v1")
	require.True(t, ok)
	assert.Equal(t, "p0", p.ID)
	assert.Same(t, rep, r)

	_, _, _, ok = m.FindRepresentation("p9", "v1")
	assert.False(t, ok)
}

func TestRequest(t *testing.T) {
	r := NewRequest("https://cdn.example/live.mpd?token=1",
		WithServiceLocation("cdn-a"),
		WithQueryParams(map[string]string{"b": "2", "a": "1"}),
	)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, RequestTypeMPD, r.Type)
	assert.Equal(t, "cdn-a", r.ServiceLocation)
	assert.False(t, r.StartDate.IsZero())
	assert.Equal(t, "https://cdn.example/live.mpd?a=1&b=2&token=1", r.FetchURL())

	plain := NewRequest("https://cdn.example/live.mpd")
	assert.Equal(t, "https://cdn.example/live.mpd", plain.FetchURL())
	assert.NotEqual(t, r.ID, plain.ID)

	assert.Equal(t, "load-1", NewRequest("u", WithRequestID("load-1")).ID)
	assert.NotEmpty(t, NewRequest("u", WithRequestID("")).ID)
}

func TestErrors(t *testing.T) {
	cause := errors.New("connection refused")

	loadErr := NewLoadingError("https://cdn.example/live.mpd", cause)
	assert.ErrorIs(t, loadErr, ErrLoadingFailure)
	assert.ErrorIs(t, loadErr, cause)
	assert.NotErrorIs(t, loadErr, ErrParsingFailure)
	assert.Equal(t, CodeLoadingFailure, loadErr.Code)
	assert.Equal(t, "Failed loading manifest: https://cdn.example/live.mpd, connection refused", loadErr.Error())

	parseErr := NewParsingError("https://cdn.example/live.mpd", cause)
	assert.ErrorIs(t, parseErr, ErrParsingFailure)
	assert.Equal(t, "parsing failed for https://cdn.example/live.mpd: connection refused", parseErr.Error())

	resErr := NewResolutionError()
	assert.ErrorIs(t, resErr, ErrResolutionFailure)
	assert.Equal(t, CodeResolutionFailure, resErr.Code)

	var typed *Error
	require.True(t, errors.As(error(parseErr), &typed))
	assert.Equal(t, "https://cdn.example/live.mpd", typed.URL)
}
