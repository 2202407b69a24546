package detect

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrHintUnavailable is returned by a HighEntropySource that cannot supply
// a requested value.
var ErrHintUnavailable = errors.New("detect: high entropy hint unavailable")

const hintPlatformVersion = "platformVersion"

// HighEntropySource exposes the structured platform data of the
// user-agent client hints API.
type HighEntropySource interface {
	// Platform returns the low entropy platform name, empty when absent.
	Platform() string
	HighEntropyValues(ctx context.Context, hints []string) (map[string]string, error)
}

// UADataDetector refines the OS from high entropy platform values.
type UADataDetector struct {
	src HighEntropySource
}

func NewUADataDetector(src HighEntropySource) *UADataDetector {
	return &UADataDetector{src: src}
}

// OS overwrites os.Name with the reported platform and, for Windows,
// derives the version from the platform version. A failed lookup returns
// os with only the name applied.
func (d *UADataDetector) OS(ctx context.Context, os OS) OS {
	if d == nil || d.src == nil {
		return os
	}
	platform := d.src.Platform()
	if platform == "" {
		return os
	}
	os.Name = platform

	values, err := d.src.HighEntropyValues(ctx, []string{hintPlatformVersion})
	if err != nil {
		return os
	}

	if platform == OSWindows {
		major, err := strconv.Atoi(strings.SplitN(values[hintPlatformVersion], ".", 2)[0])
		if err != nil {
			return os
		}
		switch {
		case major >= 13:
			os.Version = "11"
		case major >= 1:
			os.Version = "10"
		}
	}
	return os
}

// ClientHints reads Sec-CH-UA-Platform and Sec-CH-UA-Platform-Version
// request headers.
type ClientHints struct {
	header http.Header
}

func NewClientHints(h http.Header) ClientHints { return ClientHints{header: h} }

func (c ClientHints) Platform() string {
	return unquote(c.header.Get("Sec-CH-UA-Platform"))
}

func (c ClientHints) HighEntropyValues(ctx context.Context, hints []string) (map[string]string, error) {
	values := map[string]string{"platform": c.Platform()}
	for _, h := range hints {
		switch h {
		case hintPlatformVersion:
			v := c.header.Get("Sec-CH-UA-Platform-Version")
			if v == "" {
				return nil, ErrHintUnavailable
			}
			values[h] = unquote(v)
		default:
			return nil, ErrHintUnavailable
		}
	}
	return values, nil
}

// HighEntropyValues is a HighEntropySource backed by values the page
// collected itself.
type HighEntropyValues struct {
	PlatformName    string `json:"platform"`
	PlatformVersion string `json:"platformVersion,omitempty"`
}

func (v HighEntropyValues) Platform() string { return v.PlatformName }

func (v HighEntropyValues) HighEntropyValues(ctx context.Context, hints []string) (map[string]string, error) {
	values := map[string]string{"platform": v.PlatformName}
	for _, h := range hints {
		if h != hintPlatformVersion || v.PlatformVersion == "" {
			return nil, ErrHintUnavailable
		}
		values[h] = v.PlatformVersion
	}
	return values, nil
}

// unquote strips the structured-field string quotes client hints carry.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
