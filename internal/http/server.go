package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RewriteFunc transforms an HTML response body for the request r.
type RewriteFunc func(r *http.Request, body []byte) ([]byte, error)

// ProxyHandler implements a reverse proxy for middleware mode. HTML
// responses carrying showfor markup are rewritten on the way through.
type ProxyHandler struct {
	destination *url.URL
	client      *http.Client
	rewrite     RewriteFunc
	logger      *slog.Logger
}

// NewProxyHandler creates a new proxy handler for the given destination
func NewProxyHandler(destination *url.URL, rewrite RewriteFunc, logger *slog.Logger) *ProxyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyHandler{
		destination: destination,
		rewrite:     rewrite,
		logger:      logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
			// Redirects go back to the browser untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

// ServeHTTP proxies requests to the destination server
func (p *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := *p.destination
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), 25*time.Second)
	defer cancel()

	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, target.String(), r.Body)
	if err != nil {
		p.logger.Error("proxy: failed to create request", "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	for key, values := range r.Header {
		for _, value := range values {
			proxyReq.Header.Add(key, value)
		}
	}
	proxyReq.Host = target.Host

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		p.logger.Warn("proxy: upstream request failed", "url", target.String(), "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}

	if p.rewrite == nil || !isHTMLContent(resp.Header.Get("Content-Type")) {
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			p.logger.Debug("proxy: failed to copy response body", "err", err)
		}
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Warn("proxy: failed to read response body", "err", err)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	out := p.rewriteBody(r, body, strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip"))

	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(out); err != nil {
		p.logger.Debug("proxy: failed to write response body", "err", err)
	}
}

// rewriteBody applies the rewrite, preserving gzip encoding. Any failure
// serves the upstream body unchanged.
func (p *ProxyHandler) rewriteBody(r *http.Request, body []byte, gzipped bool) []byte {
	html := body
	if gzipped {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			p.logger.Warn("proxy: failed to create gzip reader", "err", err)
			return body
		}
		defer zr.Close()
		if html, err = io.ReadAll(zr); err != nil {
			p.logger.Warn("proxy: failed to decompress body", "err", err)
			return body
		}
	}

	if !bytes.Contains(html, []byte("data-for")) {
		return body
	}
	modified, err := p.rewrite(r, html)
	if err != nil {
		p.logger.Warn("proxy: showfor rewrite failed", "path", r.URL.Path, "err", err)
		return body
	}
	if !gzipped {
		return modified
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(modified); err != nil {
		p.logger.Warn("proxy: failed to write gzipped body", "err", err)
		return body
	}
	if err := zw.Close(); err != nil {
		p.logger.Warn("proxy: failed to close gzip writer", "err", err)
		return body
	}
	return buf.Bytes()
}

// isHTMLContent checks if the content type indicates HTML content (case-insensitive)
func isHTMLContent(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// rewriteHTML is the proxy's RewriteFunc: showfor applied for the visitor.
func (e Env) rewriteHTML(r *http.Request, body []byte) ([]byte, error) {
	out, err := e.render(r, body)
	if err != nil {
		return nil, err
	}
	return []byte(out.HTML), nil
}

// NewRouter builds the service's routes. In middleware mode every path the
// service does not own is proxied to the forward destination.
func NewRouter(e Env) http.Handler {
	logger := e.logger()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))
	r.Use(MetricsMiddleware(e.Metrics))
	r.Use(cors(e.Cfg.Server.AllowedOrigins))
	if e.Cfg.RateLimit.Enabled {
		limiter, err := NewRateLimiter(e.Cfg.RateLimit, e.Cfg.Server.TrustProxy, e.Metrics)
		if err != nil {
			logger.Warn("rate limiting disabled", "err", err)
		} else {
			r.Use(limiter.Middleware)
		}
	}

	r.Get("/healthz", e.Healthz)
	r.Get("/readyz", e.Readyz)

	r.Route("/detect", func(r chi.Router) {
		r.Get("/", e.DetectGet)
		r.Post("/", e.DetectPost)
		r.Get("/ws", e.DetectWS)
	})
	r.Route("/showfor", func(r chi.Router) {
		r.Get("/data", e.ShowForData)
		r.Post("/match", e.ShowForMatch)
		r.Post("/render", e.ShowForRender)
		r.Get("/state", e.GetState)
		r.Put("/state", e.PutState)
	})
	r.Route("/markup", func(r chi.Router) {
		r.Get("/toolbar", e.MarkupToolbar)
		r.Post("/apply", e.MarkupApply)
	})
	r.Get("/dashboard/filters", e.DashboardFilters)
	r.Post("/account/email", e.AccountEmail)

	if e.Cfg.Server.MiddlewareMode {
		dest, err := url.Parse(e.Cfg.Server.ForwardDestination)
		if err != nil || dest.Scheme == "" || dest.Host == "" {
			logger.Warn("invalid FORWARD_DESTINATION, middleware mode disabled", "destination", e.Cfg.Server.ForwardDestination)
			return r
		}
		logger.Info("middleware mode enabled", "destination", dest.String())
		proxy := NewProxyHandler(dest, e.rewriteHTML, logger.With("component", "proxy"))
		r.NotFound(proxy.ServeHTTP)
		r.MethodNotAllowed(proxy.ServeHTTP)
	}
	return r
}
