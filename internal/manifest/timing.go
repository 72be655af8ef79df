package manifest

import "math"

// FillPeriodTimings derives missing period starts and durations.
//
// A period without a start begins where the previous one ends; the first
// period of a static presentation begins at zero. A period without a
// duration lasts until the next period starts or, for the last period, until
// the declared presentation duration. Values that cannot be derived stay NaN.
func (m *Manifest) FillPeriodTimings() {
	// A second round picks up values that depend on durations derived in
	// the first.
	for round := 0; round < 2; round++ {
		for i, p := range m.Periods {
			if !math.IsNaN(p.Start) {
				continue
			}
			if i == 0 {
				if !m.IsDynamic() {
					p.Start = 0
				}
				continue
			}
			prev := m.Periods[i-1]
			if !math.IsNaN(prev.Start) && prev.HasDuration() {
				p.Start = prev.Start + prev.Duration
			}
		}

		last := len(m.Periods) - 1
		for i, p := range m.Periods {
			if !math.IsNaN(p.Duration) || math.IsNaN(p.Start) {
				continue
			}
			if i < last {
				if next := m.Periods[i+1]; !math.IsNaN(next.Start) {
					p.Duration = next.Start - p.Start
				}
				continue
			}
			if m.HasDeclaredDuration() {
				p.Duration = m.MediaPresentationDuration - p.Start
			}
		}
	}
}
