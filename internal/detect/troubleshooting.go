package detect

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/shortontech/showfor/internal/version"
	"github.com/shortontech/showfor/internal/webchannel"
)

// DefaultTroubleshootingTimeout bounds a troubleshooting channel round trip.
const DefaultTroubleshootingTimeout = 1000 * time.Millisecond

// Windows 11 still reports NT 10.0; build numbers 2xxxx tell it apart.
var windows11Pattern = regexp.MustCompile(`^Windows_NT 10\.0 2\d{4}$`)

// Troubleshooting is the diagnostic payload of the troubleshooting channel.
type Troubleshooting struct {
	Application *Application `json:"application,omitempty"`
}

type Application struct {
	Name      string `json:"name,omitempty"`
	Version   string `json:"version,omitempty"`
	OSVersion string `json:"osVersion,omitempty"`
}

// TroubleshootingSource supplies troubleshooting data. An unavailable
// channel yields the zero value, not an error.
type TroubleshootingSource interface {
	Troubleshooting(ctx context.Context) (Troubleshooting, error)
}

// TroubleshootingDetector refines browser and OS from troubleshooting data.
// The data is fetched at most once per detector.
type TroubleshootingDetector struct {
	src TroubleshootingSource

	once sync.Once
	data Troubleshooting
}

func NewTroubleshootingDetector(src TroubleshootingSource) *TroubleshootingDetector {
	return &TroubleshootingDetector{src: src}
}

func (d *TroubleshootingDetector) fetch(ctx context.Context) Troubleshooting {
	if d == nil || d.src == nil {
		return Troubleshooting{}
	}
	d.once.Do(func() {
		data, err := d.src.Troubleshooting(ctx)
		if err == nil {
			d.data = data
		}
	})
	return d.data
}

// Browser replaces b when the channel reports an application name and version.
func (d *TroubleshootingDetector) Browser(ctx context.Context, b Browser) Browser {
	app := d.fetch(ctx).Application
	if app == nil || app.Name == "" || app.Version == "" {
		return b
	}
	b.Mozilla = true
	b.Brands = []string{app.Name}
	b.Version = version.Parse(app.Version)
	return b
}

// OS reports Windows 11 when the OS version carries a Windows 11 build.
func (d *TroubleshootingDetector) OS(ctx context.Context, os OS) OS {
	app := d.fetch(ctx).Application
	if app == nil || !windows11Pattern.MatchString(app.OSVersion) {
		return os
	}
	return OS{Name: OSWindows, Version: "11"}
}

// StaticTroubleshooting is troubleshooting data the page already collected.
type StaticTroubleshooting Troubleshooting

func (s StaticTroubleshooting) Troubleshooting(ctx context.Context) (Troubleshooting, error) {
	return Troubleshooting(s), nil
}

// ChannelSource requests troubleshooting data over a webchannel transport.
type ChannelSource struct {
	Transport webchannel.Transport
	Timeout   time.Duration
	Logger    *slog.Logger
}

type troubleshootingCommand struct {
	Command string `json:"command"`
}

// Troubleshooting resolves to empty data when the channel times out or
// fails.
func (c ChannelSource) Troubleshooting(ctx context.Context) (Troubleshooting, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTroubleshootingTimeout
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	msg, err := webchannel.Request(ctx, c.Transport, webchannel.TroubleshootingID,
		troubleshootingCommand{Command: "request"}, timeout)
	if err != nil {
		logger.Debug("troubleshooting channel unavailable", "error", err)
		return Troubleshooting{}, nil
	}

	var data Troubleshooting
	if err := json.Unmarshal(msg, &data); err != nil {
		logger.Debug("troubleshooting payload rejected", "error", err)
		return Troubleshooting{}, nil
	}
	return data, nil
}
