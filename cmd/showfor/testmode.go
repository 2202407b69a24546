package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/shortontech/showfor/internal/detect"
	"github.com/shortontech/showfor/internal/event"
	"github.com/shortontech/showfor/internal/showfor"
)

// sampleUserAgents covers the desktop and mobile platforms the default
// catalog knows about, plus a non-Mozilla browser.
var sampleUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Windows NT 6.1; Win64; x64; rv:115.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Android 14; Mobile; rv:128.0) Gecko/128.0 Firefox/128.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/127.0 Mobile/15E148 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:115.0) Gecko/20100101 Thunderbird/115.12.2",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// generateTestEvents resolves every sample user agent and builds a detect
// event for it, followed by a match event evaluating the detected browser
// product against the detection defaults. catalog may be nil, in which
// case only detect events are built.
func generateTestEvents(ctx context.Context, resolver *detect.Resolver, catalog *showfor.Catalog) []event.Event {
	now := time.Now().UTC()
	var events []event.Event
	for i, ua := range sampleUserAgents {
		var bd *detect.BrowserDetect
		if resolver != nil {
			bd = resolver.Detector(ua, nil, nil)
		} else {
			bd = detect.New(ua, nil, nil)
		}
		res := bd.Detect(ctx)
		ts := now.Add(time.Duration(i) * time.Second).Format(time.RFC3339)

		det := event.FromDetection(res)
		det.TS = ts
		events = append(events, det)

		if catalog == nil {
			continue
		}
		product := showfor.BrowserProduct(res.Browser, res.OS)
		if product == "" {
			continue
		}
		state, err := catalog.UpdateState(showfor.Defaults(catalog, res))
		if err != nil {
			continue
		}
		criteria := []string{product}
		match := event.FromMatch(criteria, catalog.MatchesCriteria(criteria, state))
		match.TS = ts
		events = append(events, match)
	}
	return events
}

// runTestMode sends the generated events through emit.
func runTestMode(ctx context.Context, resolver *detect.Resolver, catalog *showfor.Catalog, emit func(event.Event), logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("test mode: generating sample events")

	events := generateTestEvents(ctx, resolver, catalog)
	for i, e := range events {
		logger.Info("test mode: sending event", "n", i+1, "total", len(events), "type", e.Type, "event_id", e.EventID)
		emit(e)
	}

	logger.Info("test mode: all sample events sent", "count", len(events))
	return len(events)
}
