// Package delay decodes the duration literals used in command expressions:
// bare numbers ("1", "1.5"), unit-suffixed numbers ("500ms"), and
// concatenated terms ("1m30s750ms"). Terms sum regardless of the order
// their units appear in: Parse("1m30s") == Parse("30s1m").
package delay

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var termRE = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)(ms|s|m)?`)

// Parse decodes a single delay literal (the text following one "+" in a
// command expression, or one "after" term in a dependency clause) into a
// duration. At most one term in the literal may omit its unit; an omitted
// unit means seconds. Negative numbers and unknown units are parse errors.
func Parse(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("delay: empty literal")
	}
	rest := s
	var total time.Duration
	for rest != "" {
		m := termRE.FindStringSubmatch(rest)
		if m == nil {
			return 0, fmt.Errorf("delay: invalid term %q in %q", rest, s)
		}
		numTxt, unit := m[1], m[2]
		n, err := strconv.ParseFloat(numTxt, 64)
		if err != nil {
			return 0, fmt.Errorf("delay: invalid number %q in %q: %w", numTxt, s, err)
		}
		if unit == "" {
			unit = "s"
		}
		var unitDur time.Duration
		switch unit {
		case "ms":
			unitDur = time.Millisecond
		case "s":
			unitDur = time.Second
		case "m":
			unitDur = time.Minute
		default:
			return 0, fmt.Errorf("delay: unknown unit %q in %q", unit, s)
		}
		total += time.Duration(n * float64(unitDur))
		rest = rest[len(m[0]):]
	}
	if total < 0 {
		return 0, fmt.Errorf("delay: negative duration in %q", s)
	}
	return total, nil
}

// Sum parses and sums a list of delay literals, as used for a dependency's
// "after" clauses or a Formula's start_delays.
func Sum(terms []string) (time.Duration, error) {
	var total time.Duration
	for _, t := range terms {
		d, err := Parse(t)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// String renders a duration in canonical "NmNsNms" form, skipping zero
// components. No code in this module calls it.
func String(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	ms := d / time.Millisecond
	if m > 0 {
		fmt.Fprintf(&b, "%dm", m)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%ds", s)
	}
	if ms > 0 {
		fmt.Fprintf(&b, "%dms", ms)
	}
	return b.String()
}
