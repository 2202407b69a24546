package showfor

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var aliases = map[string]string{
	"fx":   "firefox",
	"m":    "mobile",
	"fxos": "firefox-os",
	"tb":   "thunderbird",
}

// "win" stands for these platforms only, not win10 or win11.
var winPlatforms = []string{"winxp", "win7", "win8"}

var trailingNumber = regexp.MustCompile(`[\d.]+$`)

// ParseCriteria splits a data-for attribute into criteria.
func ParseCriteria(attr string) []string {
	var out []string
	for _, part := range strings.Split(attr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// MatchesCriteria reports whether content tagged with criteria should be
// shown for state. Unrecognized criteria are ignored.
func (c *Catalog) MatchesCriteria(criteria []string, state State) bool {
	var hasProduct, matchProduct, hasPlatform, matchPlatform bool
	enabledPlatforms := state.EnabledPlatforms()

	for _, name := range criteria {
		// A literal prefix check: a slug starting with "not " would misparse.
		negated := strings.HasPrefix(name, "not ")
		if negated {
			name = name[len("not "):]
		}
		if alias, ok := aliases[name]; ok {
			name = alias
		}
		exact := strings.HasPrefix(name, "=")
		if exact {
			name = name[1:]
		}

		switch {
		case c.HasProduct(name):
			hasProduct = true
			if state[name].Enabled != negated {
				matchProduct = true
			}

		case c.isVersion(name):
			hasProduct = true
			if c.versionMatches(name, exact, state) != negated {
				matchProduct = true
			}

		case c.HasPlatform(name):
			hasPlatform = true
			if slices.Contains(enabledPlatforms, name) != negated {
				matchPlatform = true
			}

		case name == "win":
			hasPlatform = true
			anyWin := slices.ContainsFunc(winPlatforms, func(p string) bool {
				return slices.Contains(enabledPlatforms, p)
			})
			if anyWin != negated {
				matchPlatform = true
			}
		}
	}

	return (!hasProduct || matchProduct) && (!hasPlatform || matchPlatform)
}

func (c *Catalog) isVersion(slug string) bool {
	_, _, ok := c.Version(slug)
	return ok
}

// versionMatches compares the version named by slug with the selected
// range of its product: ">=" content applies while it is below the
// selected maximum, "=" content only inside the selected range.
func (c *Catalog) versionMatches(slug string, exact bool, state State) bool {
	_, product, _ := c.Version(slug)
	ps := state[product]
	if !ps.Enabled || ps.Version == nil {
		return false
	}
	elem, err := strconv.ParseFloat(trailingNumber.FindString(slug), 64)
	if err != nil {
		return false
	}
	if exact {
		return ps.Version.Min <= elem && elem < ps.Version.Max
	}
	return elem < ps.Version.Max
}
