package manifest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFillPeriodTimings(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name      string
		typ       PresentationType
		declared  float64
		periods   [][2]float64 // start, duration
		wantStart []float64
		wantDur   []float64
	}{
		{
			name:      "explicit durations chain starts",
			typ:       PresentationStatic,
			declared:  10,
			periods:   [][2]float64{{nan, 3}, {nan, 4}},
			wantStart: []float64{0, 3},
			wantDur:   []float64{3, 4},
		},
		{
			name:      "durations from next start and declared duration",
			typ:       PresentationStatic,
			declared:  30,
			periods:   [][2]float64{{0, nan}, {12, nan}},
			wantStart: []float64{0, 12},
			wantDur:   []float64{12, 18},
		},
		{
			name:      "missing start after unknown duration derived in second round",
			typ:       PresentationStatic,
			declared:  0,
			periods:   [][2]float64{{0, nan}, {5, 5}, {nan, nan}},
			wantStart: []float64{0, 5, 10},
			wantDur:   []float64{5, 5, nan},
		},
		{
			name:      "dynamic first period without start stays unknown",
			typ:       PresentationDynamic,
			periods:   [][2]float64{{nan, nan}},
			wantStart: []float64{nan},
			wantDur:   []float64{nan},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Type: tt.typ, MediaPresentationDuration: tt.declared}
			for _, p := range tt.periods {
				m.Periods = append(m.Periods, &Period{Start: p[0], Duration: p[1]})
			}

			m.FillPeriodTimings()

			for i, p := range m.Periods {
				assertFloat(t, tt.wantStart[i], p.Start, "start of period %d", i)
				assertFloat(t, tt.wantDur[i], p.Duration, "duration of period %d", i)
			}
		})
	}
}

func assertFloat(t *testing.T, want, got float64, msg string, args ...any) {
	t.Helper()
	if math.IsNaN(want) {
		assert.True(t, math.IsNaN(got), append([]any{msg}, args...)...)
		return
	}
	assert.InDelta(t, want, got, 1e-9, append([]any{msg}, args...)...)
}
