// Package bitrate provides parsing and formatting of ffmpeg-style bitrate
// strings. A bitrate literal is a number followed by an optional unit:
//
//   - "6M" / "6m"   = 6,000,000 bits per second
//   - "192k" / "192K" = 192,000 bits per second
//   - "4000000"     = raw bits per second
//
// Units use the SI (1000) base, matching ffmpeg's -b:v / -b:a handling.
package bitrate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rate is a bitrate in bits per second.
type Rate int64

// Common rate constants using the SI (1000) base.
const (
	Bps  Rate = 1
	Kbps Rate = 1000
	Mbps Rate = 1000 * Kbps
)

// literalPattern matches the accepted bitrate literal grammar: an integer or
// decimal value followed by a single optional k/K/m/M unit suffix.
var literalPattern = regexp.MustCompile(`^([0-9]+(?:\.[0-9]+)?)([kKmM]?)$`)

// Valid reports whether s is a well-formed bitrate literal with a unit
// suffix, e.g. "6M", "1.5M", "192k". Raw numbers without a unit are not
// accepted here; they are allowed by Parse but rejected at the API boundary.
func Valid(s string) bool {
	m := literalPattern.FindStringSubmatch(strings.TrimSpace(s))
	return m != nil && m[2] != ""
}

// Parse parses a bitrate literal into bits per second.
// An empty string parses to 0, which callers treat as "unset/passthrough".
func Parse(s string) (Rate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	m := literalPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("bitrate: invalid literal %q", s)
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bitrate: invalid number %q: %w", m[1], err)
	}

	multiplier := Bps
	switch strings.ToLower(m[2]) {
	case "k":
		multiplier = Kbps
	case "m":
		multiplier = Mbps
	}

	return Rate(value * float64(multiplier)), nil
}

// ParseLenient is like Parse but returns 0 instead of an error for malformed
// input. Used where an unknown source bitrate must not block a decision.
func ParseLenient(s string) Rate {
	r, err := Parse(s)
	if err != nil {
		return 0
	}
	return r
}

// Kbps returns the rate rounded down to whole kilobits per second.
func (r Rate) Kbps() int {
	return int(r / Kbps)
}

// BufsizeLiteral returns the ffmpeg -bufsize literal for a 2x rate-control
// buffer, expressed in kilobits, e.g. Parse("6M").BufsizeLiteral() == "12000k".
// A zero rate falls back to the 8000k default the encoder path assumes.
func (r Rate) BufsizeLiteral() string {
	if r <= 0 {
		return "8000k"
	}
	return strconv.Itoa(r.Kbps()*2) + "k"
}

// String formats the rate using the largest whole SI unit.
func (r Rate) String() string {
	switch {
	case r <= 0:
		return "0"
	case r%Mbps == 0:
		return strconv.FormatInt(int64(r/Mbps), 10) + "M"
	case r%Kbps == 0:
		return strconv.FormatInt(int64(r/Kbps), 10) + "k"
	default:
		return strconv.FormatInt(int64(r), 10)
	}
}
