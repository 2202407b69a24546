package showfor

import (
	"slices"

	"github.com/shortontech/showfor/internal/detect"
)

var windowsPlatforms = map[string]string{
	"XP":  "winxp",
	"7":   "win7",
	"8":   "win8",
	"8.1": "win8",
	"10":  "win10",
	"11":  "win11",
}

// PlatformSlug maps a detected OS to a platform slug. It returns "" for an
// unknown OS.
func PlatformSlug(os detect.OS) string {
	switch os.Name {
	case detect.OSWindows:
		if slug, ok := windowsPlatforms[os.Version]; ok {
			return slug
		}
		return "win10"
	case detect.OSMacOS:
		return "mac"
	case detect.OSLinux:
		return "linux"
	case detect.OSAndroid:
		return "android"
	case detect.OSiOS:
		return "ios"
	}
	return ""
}

// BrowserProduct maps a detected browser to the product slug it runs.
func BrowserProduct(b detect.Browser, os *detect.OS) string {
	if !b.Mozilla {
		return ""
	}
	switch {
	case slices.Contains(b.Brands, "Thunderbird"):
		return "thunderbird"
	case os != nil && os.Name == detect.OSAndroid:
		if slices.Contains(b.Brands, "Firefox") {
			return "mobile"
		}
		return "focus-firefox"
	case os != nil && os.Name == detect.OSiOS:
		return "ios"
	case slices.Contains(b.Brands, "Firefox"):
		return "firefox"
	}
	return ""
}

// Defaults builds the initial form from a detection: every product
// enabled, the detected platform where the product offers it, and the
// detected browser's version for the product it runs.
func Defaults(c *Catalog, r detect.Result) Form {
	platform := ""
	if r.OS != nil {
		platform = PlatformSlug(*r.OS)
	}
	browserProduct := BrowserProduct(r.Browser, r.OS)
	browserVersion, versionKnown := r.Browser.Version.Float()

	form := make(Form, len(c.Products))
	for _, p := range c.Products {
		sel := Selection{Enabled: true}

		if platforms := c.Platforms[p.Slug]; len(platforms) > 0 {
			chosen := platforms[0].Slug
			for _, pl := range platforms {
				if pl.Slug == platform {
					chosen = pl.Slug
					break
				}
			}
			sel.Options = append(sel.Options, EncodeOption(OptionPlatform, chosen))
		}

		if versions := c.Versions[p.Slug]; len(versions) > 0 {
			chosen := versions[0].Slug
			if p.Slug == browserProduct && versionKnown {
				for _, v := range versions {
					if v.MinVersion <= browserVersion && browserVersion < v.MaxVersion {
						chosen = v.Slug
						break
					}
				}
			}
			sel.Options = append(sel.Options, EncodeOption(OptionVersion, chosen))
		}

		form[p.Slug] = sel
	}
	return form
}
