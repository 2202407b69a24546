package detect

import (
	"regexp"
	"slices"

	"golang.org/x/text/cases"

	"github.com/shortontech/showfor/internal/version"
)

var browserPattern = regexp.MustCompile(`(?P<name>Firefox|FxiOS|Fennec|Focus|Klar|Thunderbird)/(?P<version>[\d.]+(?:[ab]\d*)?)`)

// brandTable maps the case-folded product token to the brands it implies.
var brandTable = map[string][]string{
	"firefox":     {"Firefox", "Firefox Focus"},
	"fxios":       {"Firefox"},
	"fennec":      {"Firefox"},
	"focus":       {"Firefox Focus"},
	"klar":        {"Firefox Focus"},
	"thunderbird": {"Thunderbird"},
}

const brandFocus = "Firefox Focus"

type osPattern struct {
	name    string
	pattern *regexp.Regexp
}

// Windows comes first because its pattern is the most permissive; iOS
// precedes Mac OS since iOS agents also claim "like Mac OS X".
var osPatterns = []osPattern{
	{OSWindows, regexp.MustCompile(`Windows(?: (NT \d+\.\d+))?`)},
	{OSiOS, regexp.MustCompile(`(?:iPhone|iPad|iPod)(?:.*? OS (\d+))?`)},
	{OSMacOS, regexp.MustCompile(`Mac OS X(?: (\d+[._]\d+))?`)},
	{OSAndroid, regexp.MustCompile(`Android(?: (\d+(?:\.\d+)*))?`)},
	{OSLinux, regexp.MustCompile(`Linux`)},
}

var osVersionTable = map[string]map[string]string{
	OSWindows: {
		"nt 5.0":  "2000",
		"nt 5.1":  "XP",
		"nt 5.2":  "XP",
		"nt 6.0":  "Vista",
		"nt 6.1":  "7",
		"nt 6.2":  "8",
		"nt 6.3":  "8.1",
		"nt 10.0": "10",
	},
}

// UADetector sniffs the browser and OS out of a user-agent string. The
// string is parsed once at construction; the detector is immutable after.
type UADetector struct {
	userAgent string

	browserMatched bool
	brands         []string
	version        version.Version

	os      OS
	osKnown bool
}

// NewUADetector parses userAgent.
func NewUADetector(userAgent string) *UADetector {
	d := &UADetector{userAgent: userAgent}
	d.os, d.osKnown = parseOS(userAgent)

	m := browserPattern.FindStringSubmatch(userAgent)
	if m == nil {
		return d
	}
	name := m[browserPattern.SubexpIndex("name")]
	d.browserMatched = true
	d.brands = slices.Clone(brandTable[cases.Fold().String(name)])
	if !d.osKnown || !d.os.Mobile() {
		// Focus only ships on mobile.
		d.brands = slices.DeleteFunc(d.brands, func(b string) bool { return b == brandFocus })
	}
	d.version = version.Parse(m[browserPattern.SubexpIndex("version")])
	return d
}

// UserAgent returns the parsed string.
func (d *UADetector) UserAgent() string { return d.userAgent }

// Browser fills b from the user agent. Without a match b is returned as is.
func (d *UADetector) Browser(b Browser) Browser {
	if !d.browserMatched {
		return b
	}
	b.Mozilla = true
	b.Brands = slices.Clone(d.brands)
	if b.Brands == nil {
		b.Brands = []string{}
	}
	b.Version = d.version
	return b
}

// OS returns the first matching operating system. ok is false when no
// pattern matched and the OS is unknown.
func (d *UADetector) OS() (os OS, ok bool) {
	return d.os, d.osKnown
}

func parseOS(userAgent string) (OS, bool) {
	for _, p := range osPatterns {
		m := p.pattern.FindStringSubmatch(userAgent)
		if m == nil {
			continue
		}
		os := OS{Name: p.name}
		if len(m) > 1 && m[1] != "" {
			v := cases.Fold().String(m[1])
			if normalized, ok := osVersionTable[p.name][v]; ok {
				v = normalized
			}
			os.Version = v
		}
		return os, true
	}
	return OS{}, false
}
