// Package duration parses and formats ISO 8601 durations as used by the
// xs:duration attributes of DASH manifests (mediaPresentationDuration,
// minimumUpdatePeriod, Period@start, Period@duration, ...).
//
// Supported designators:
//   - Y: years (365 days)
//   - M: months (30 days) before the T separator, minutes after it
//   - W: weeks (7 days)
//   - D: days
//   - H: hours
//   - S: seconds, with an optional fractional part
//
// Examples:
//   - "PT10S" = 10 seconds
//   - "PT1H2M3.5S" = 1 hour, 2 minutes, 3.5 seconds
//   - "P1DT12H" = 1 day, 12 hours
//   - "-PT5S" = minus 5 seconds
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Seconds per designator.
const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
	secondsPerMonth  = 30 * secondsPerDay
	secondsPerYear   = 365 * secondsPerDay
)

// isoPattern matches an ISO 8601 duration. Every component is optional but at
// least one must be present, which Parse checks separately.
var isoPattern = regexp.MustCompile(
	`^([-+])?P(?:([\d.]+)Y)?(?:([\d.]+)M)?(?:([\d.]+)W)?(?:([\d.]+)D)?` +
		`(?:T(?:([\d.]+)H)?(?:([\d.]+)M)?(?:([\d.]+)S)?)?$`,
)

// componentSeconds is indexed by submatch position in isoPattern.
var componentSeconds = [...]float64{
	2: secondsPerYear,
	3: secondsPerMonth,
	4: secondsPerWeek,
	5: secondsPerDay,
	6: secondsPerHour,
	7: secondsPerMinute,
	8: 1,
}

// Seconds parses an ISO 8601 duration and returns its length in seconds.
func Seconds(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	matches := isoPattern.FindStringSubmatch(s)
	if matches == nil || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("duration: invalid ISO 8601 duration %q", s)
	}

	var total float64
	found := false
	for i := 2; i < len(matches); i++ {
		if matches[i] == "" {
			continue
		}
		v, err := strconv.ParseFloat(matches[i], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid component %q in %q: %w", matches[i], s, err)
		}
		total += v * componentSeconds[i]
		found = true
	}
	if !found {
		return 0, fmt.Errorf("duration: no components in %q", s)
	}

	if matches[1] == "-" {
		total = -total
	}
	return total, nil
}

// Parse parses an ISO 8601 duration into a time.Duration.
func Parse(s string) (time.Duration, error) {
	secs, err := Seconds(s)
	if err != nil {
		return 0, err
	}
	return FromSeconds(secs), nil
}

// MustParse is like Parse but panics on error. Intended for constants in tests.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromSeconds converts fractional seconds to a time.Duration, rounding to the
// nearest nanosecond.
func FromSeconds(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// Format renders a duration in ISO 8601 form using days, hours, minutes and
// seconds. Zero renders as "PT0S".
func Format(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if d == 0 {
		return b.String()
	}

	b.WriteByte('T')
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute

	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if d > 0 {
		b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
		b.WriteByte('S')
	}
	return b.String()
}
