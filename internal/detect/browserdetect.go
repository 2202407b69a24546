package detect

import "context"

// BrowserDetect resolves browser and OS from the user agent, refined by the
// troubleshooting channel and high entropy values where each is reliable.
type BrowserDetect struct {
	ua              *UADetector
	uaData          *UADataDetector
	troubleshooting *TroubleshootingDetector
}

// New builds a resolver. hints and ts may be nil when unavailable.
func New(userAgent string, hints HighEntropySource, ts TroubleshootingSource) *BrowserDetect {
	return newBrowserDetect(NewUADetector(userAgent), hints, ts)
}

func newBrowserDetect(ua *UADetector, hints HighEntropySource, ts TroubleshootingSource) *BrowserDetect {
	return &BrowserDetect{
		ua:              ua,
		uaData:          NewUADataDetector(hints),
		troubleshooting: NewTroubleshootingDetector(ts),
	}
}

// Browser returns the UA browser, refined by the troubleshooting channel
// for Mozilla browsers on desktop.
func (bd *BrowserDetect) Browser(ctx context.Context) Browser {
	b, _ := bd.browser(ctx)
	return b
}

func (bd *BrowserDetect) browser(ctx context.Context) (Browser, string) {
	b := bd.ua.Browser(NewBrowser())
	os, ok := bd.ua.OS()
	if !b.Mozilla || (ok && os.Mobile()) {
		return b, SourceUA
	}

	refined := bd.troubleshooting.Browser(ctx, b.clone())
	if refined.Mozilla && !sameBrowser(refined, b) {
		return refined, SourceTroubleshooting
	}
	return refined, SourceUA
}

// OS returns the UA operating system. Windows 10 is ambiguous with Windows
// 11 in the user agent and is disambiguated by the troubleshooting channel
// for Mozilla browsers, or by high entropy values otherwise. ok is false
// when the OS is unknown.
func (bd *BrowserDetect) OS(ctx context.Context) (OS, bool) {
	os, ok, _ := bd.os(ctx)
	return os, ok
}

func (bd *BrowserDetect) os(ctx context.Context) (OS, bool, string) {
	os, ok := bd.ua.OS()
	if !ok || os.Name != OSWindows || os.Version != "10" {
		return os, ok, SourceUA
	}

	b := bd.ua.Browser(NewBrowser())
	var refined OS
	source := SourceHighEntropy
	if b.Mozilla && !os.Mobile() {
		refined = bd.troubleshooting.OS(ctx, os)
		source = SourceTroubleshooting
	} else {
		refined = bd.uaData.OS(ctx, os)
	}
	if refined == os {
		source = SourceUA
	}
	return refined, true, source
}

// Result is a complete detection with the sources that contributed.
type Result struct {
	UserAgent string   `json:"user_agent"`
	Browser   Browser  `json:"browser"`
	OS        *OS      `json:"os"`
	Sources   []string `json:"sources"`
}

// Detect runs both resolutions.
func (bd *BrowserDetect) Detect(ctx context.Context) Result {
	b, browserSource := bd.browser(ctx)
	os, ok, osSource := bd.os(ctx)

	r := Result{UserAgent: bd.ua.UserAgent(), Browser: b, Sources: []string{browserSource}}
	if ok {
		r.OS = &os
	}
	if osSource != browserSource {
		r.Sources = append(r.Sources, osSource)
	}
	return r
}

func sameBrowser(a, b Browser) bool {
	if a.Mozilla != b.Mozilla || a.Version != b.Version || len(a.Brands) != len(b.Brands) {
		return false
	}
	for i := range a.Brands {
		if a.Brands[i] != b.Brands[i] {
			return false
		}
	}
	return true
}
