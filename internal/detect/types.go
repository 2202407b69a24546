package detect

import (
	"encoding/json"

	"github.com/shortontech/showfor/internal/version"
)

const (
	OSWindows = "Windows"
	OSiOS     = "iOS"
	OSMacOS   = "Mac OS"
	OSAndroid = "Android"
	OSLinux   = "Linux"
)

// Detection sources, reported in Result.Sources.
const (
	SourceUA              = "ua"
	SourceHighEntropy     = "high-entropy"
	SourceTroubleshooting = "troubleshooting"
)

// Browser is the detected browser family, brands and version.
type Browser struct {
	Mozilla bool            `json:"mozilla"`
	Brands  []string        `json:"brands"`
	Version version.Version `json:"version"`
}

// NewBrowser returns the default browser value: not Mozilla, no brands,
// unknown version.
func NewBrowser() Browser {
	return Browser{Brands: []string{}, Version: version.Parse("")}
}

func (b Browser) clone() Browser {
	b.Brands = append([]string{}, b.Brands...)
	return b
}

// OS is the detected operating system.
type OS struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Mobile reports whether the OS is Android or iOS.
func (o OS) Mobile() bool { return o.Name == OSAndroid || o.Name == OSiOS }

func (o OS) MarshalJSON() ([]byte, error) {
	type plain OS
	return json.Marshal(struct {
		plain
		Mobile bool `json:"mobile"`
	}{plain(o), o.Mobile()})
}
