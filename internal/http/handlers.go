package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shortontech/showfor/internal/detect"
	"github.com/shortontech/showfor/internal/event"
	"github.com/shortontech/showfor/internal/markup"
	"github.com/shortontech/showfor/internal/metrics"
	"github.com/shortontech/showfor/internal/session"
	"github.com/shortontech/showfor/internal/showfor"
	"github.com/shortontech/showfor/internal/webchannel"
	"github.com/shortontech/showfor/pkg/config"
)

// DetectionChannelID is the channel the websocket endpoint answers on once
// detection completes.
const DetectionChannelID = "showfor-detection"

const defaultMaxBody = 1 << 20

type Env struct {
	Cfg      config.Config
	Catalog  *showfor.Catalog
	Resolver *detect.Resolver
	Sessions *session.Store
	Toolbar  *markup.Toolbar
	Metrics  *metrics.Metrics
	Emit     func(event.Event) // injected sink fan-out
	HMACAuth *HMACAuth         // nil disables signature checks
	Logger   *slog.Logger
	Ready    func(ctx context.Context) error // nil always reports ready
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// emit enriches ev with request fields and hands it to the sinks.
func (e Env) emit(r *http.Request, ev event.Event) {
	if e.Emit == nil {
		return
	}
	event.EnrichServerFields(r, &ev, e.Cfg.Server.TrustProxy)
	if e.Sessions != nil {
		if id, ok := e.Sessions.ID(r); ok {
			ev.Request.SessionID = id
		}
	}
	e.Emit(ev)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody reads the request body up to the configured limit.
func (e Env) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := e.Cfg.Server.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func (e Env) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := e.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := e.Ready(ctx); err != nil {
			e.logger().Warn("readiness check failed", "err", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type detectRequest struct {
	UserAgent       string                    `json:"user_agent"`
	HighEntropy     *detect.HighEntropyValues `json:"high_entropy,omitempty"`
	Troubleshooting *detect.Troubleshooting   `json:"troubleshooting,omitempty"`
}

type detectResponse struct {
	detect.Result
	Platform string       `json:"platform,omitempty"`
	Product  string       `json:"product,omitempty"`
	Defaults showfor.Form `json:"defaults,omitempty"`
}

// resolve runs detection and records metrics.
func (e Env) resolve(ctx context.Context, ua string, hints detect.HighEntropySource, ts detect.TroubleshootingSource) detect.Result {
	var bd *detect.BrowserDetect
	if e.Resolver != nil {
		bd = e.Resolver.Detector(ua, hints, ts)
	} else {
		bd = detect.New(ua, hints, ts)
	}
	res := bd.Detect(ctx)

	if e.Metrics != nil {
		osName := "unknown"
		if res.OS != nil {
			osName = res.OS.Name
		}
		browser := showfor.BrowserProduct(res.Browser, res.OS)
		if browser == "" {
			browser = "other"
		}
		e.Metrics.IncrementDetections(browser, osName, strings.Join(res.Sources, "+"))
		if e.Resolver != nil {
			e.Metrics.SetUACacheSize(e.Resolver.Len())
		}
	}
	return res
}

// detect resolves, emits a detect event and builds the response body.
func (e Env) detect(r *http.Request, ua string, hints detect.HighEntropySource, ts detect.TroubleshootingSource) detectResponse {
	res := e.resolve(r.Context(), ua, hints, ts)
	e.emit(r, event.FromDetection(res))

	resp := detectResponse{Result: res, Product: showfor.BrowserProduct(res.Browser, res.OS)}
	if res.OS != nil {
		resp.Platform = showfor.PlatformSlug(*res.OS)
	}
	if e.Catalog != nil {
		resp.Defaults = showfor.Defaults(e.Catalog, res)
	}
	return resp
}

// DetectGet detects from the request headers and client hints.
func (e Env) DetectGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Accept-CH", "Sec-CH-UA-Platform, Sec-CH-UA-Platform-Version")
	w.Header().Add("Vary", "User-Agent, Sec-CH-UA-Platform, Sec-CH-UA-Platform-Version")
	writeJSON(w, http.StatusOK, e.detect(r, r.UserAgent(), detect.NewClientHints(r.Header), nil))
}

// DetectPost detects from values the page collected: its user agent, high
// entropy values and troubleshooting data.
func (e Env) DetectPost(w http.ResponseWriter, r *http.Request) {
	body, err := e.readBody(w, r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if e.HMACAuth != nil && !e.HMACAuth.Verify(r, body) {
		writeError(w, http.StatusUnauthorized, "invalid or missing signature")
		return
	}

	var req detectRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	ua := req.UserAgent
	if ua == "" {
		ua = r.UserAgent()
	}
	var hints detect.HighEntropySource = detect.NewClientHints(r.Header)
	if req.HighEntropy != nil {
		hints = *req.HighEntropy
	}
	var ts detect.TroubleshootingSource
	if req.Troubleshooting != nil {
		ts = detect.StaticTroubleshooting(*req.Troubleshooting)
		if e.Metrics != nil {
			e.Metrics.IncrementTroubleshooting("provided")
		}
	}
	writeJSON(w, http.StatusOK, e.detect(r, ua, hints, ts))
}

// probeSource counts troubleshooting channel outcomes.
type probeSource struct {
	inner   detect.TroubleshootingSource
	metrics *metrics.Metrics
}

func (p probeSource) Troubleshooting(ctx context.Context) (detect.Troubleshooting, error) {
	data, err := p.inner.Troubleshooting(ctx)
	if p.metrics != nil {
		outcome := "answered"
		if err != nil || data.Application == nil {
			outcome = "unavailable"
		}
		p.metrics.IncrementTroubleshooting(outcome)
	}
	return data, err
}

func (e Env) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || originAllowed(e.Cfg.Server.AllowedOrigins, origin)
}

// DetectWS upgrades to a websocket carrying the troubleshooting channel.
// The page answers the remote-troubleshooting request; the detection is
// sent back on DetectionChannelID and the connection closed.
func (e Env) DetectWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     e.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger().Debug("websocket upgrade failed", "err", err)
		return
	}
	t := webchannel.NewWSTransport(conn)
	defer t.Close()

	timeout := e.Cfg.ShowFor.TroubleshootingTimeout
	if timeout <= 0 {
		timeout = detect.DefaultTroubleshootingTimeout
	}
	src := probeSource{
		inner:   detect.ChannelSource{Transport: t, Timeout: timeout, Logger: e.logger()},
		metrics: e.Metrics,
	}
	resp := e.detect(r, r.UserAgent(), detect.NewClientHints(r.Header), src)

	ev, err := webchannel.NewResponse(DetectionChannelID, resp)
	if err != nil {
		e.logger().Error("encode detection", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := t.Dispatch(ctx, ev); err != nil && !errors.Is(err, webchannel.ErrClosed) {
		e.logger().Debug("send detection", "err", err)
	}
}
