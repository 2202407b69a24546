// Package version parses the dotted browser version strings reported by
// user agents and the troubleshooting channel, e.g. "115.0.2" or "24.0.1b3".
package version

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Missing marks a numeric component that was absent or not a number.
// Comparisons against a missing component are skipped, never treated as zero.
const Missing = -1

// Cutoff names the last component emitted by Version.Format.
type Cutoff string

const (
	CutoffNone  Cutoff = ""
	CutoffMajor Cutoff = "major"
	CutoffMinor Cutoff = "minor"
	CutoffPatch Cutoff = "patch"
	CutoffLabel Cutoff = "label"
)

var versionPattern = regexp.MustCompile(`^([\d.]*)([ab]\d*)?`)

// Version is a parsed browser version. Missing numeric components hold Missing.
type Version struct {
	Major int
	Minor int
	Patch int
	Label string // alpha/beta label such as "b3", empty when absent
}

// Parse reads a leading run of digits and dots plus an optional alpha/beta
// label. It never fails: malformed input yields missing components.
func Parse(s string) Version {
	v := Version{Major: Missing, Minor: Missing, Patch: Missing}

	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return v
	}
	v.Label = m[2]

	parts := strings.Split(m[1], ".")
	dst := []*int{&v.Major, &v.Minor, &v.Patch}
	for i := 0; i < len(dst) && i < len(parts); i++ {
		if n, err := strconv.Atoi(parts[i]); err == nil {
			*dst[i] = n
		}
	}
	return v
}

// Known reports whether the major component was parsed.
func (v Version) Known() bool { return v.Major != Missing }

// String renders the version without padding.
func (v Version) String() string { return v.Format(CutoffNone) }

// Format renders the version up to and including cutoff. With a cutoff,
// missing numeric components are rendered as ".0"; without one, rendering
// of numbers stops at the first missing component and the label follows.
func (v Version) Format(cutoff Cutoff) string {
	var b strings.Builder

	numbers := []struct {
		name  Cutoff
		value int
	}{
		{CutoffMajor, v.Major},
		{CutoffMinor, v.Minor},
		{CutoffPatch, v.Patch},
	}

	for _, n := range numbers {
		if n.value == Missing {
			if cutoff == CutoffNone {
				break
			}
			b.WriteString(".0")
		} else {
			b.WriteString(".")
			b.WriteString(strconv.Itoa(n.value))
		}
		if cutoff == n.name {
			return strings.TrimPrefix(b.String(), ".")
		}
	}

	b.WriteString(v.Label)
	return strings.TrimPrefix(b.String(), ".")
}

// Float returns major.minor as a number for range comparisons against
// catalog versions. ok is false when the major component is missing.
func (v Version) Float() (f float64, ok bool) {
	if v.Major == Missing {
		return 0, false
	}
	f = float64(v.Major)
	if v.Minor != Missing {
		s := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			f = parsed
		}
	}
	return f, true
}

type versionJSON struct {
	Major *int   `json:"major"`
	Minor *int   `json:"minor"`
	Patch *int   `json:"patch"`
	Label string `json:"label,omitempty"`
	Text  string `json:"string"`
}

func component(n int) *int {
	if n == Missing {
		return nil
	}
	return &n
}

// MarshalJSON encodes missing components as null.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(versionJSON{
		Major: component(v.Major),
		Minor: component(v.Minor),
		Patch: component(v.Patch),
		Label: v.Label,
		Text:  v.String(),
	})
}

// UnmarshalJSON accepts either the object form produced by MarshalJSON or a
// plain version string.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Parse(s)
		return nil
	}

	var raw versionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Version{Major: Missing, Minor: Missing, Patch: Missing, Label: raw.Label}
	if raw.Major != nil {
		v.Major = *raw.Major
	}
	if raw.Minor != nil {
		v.Minor = *raw.Minor
	}
	if raw.Patch != nil {
		v.Patch = *raw.Patch
	}
	return nil
}
