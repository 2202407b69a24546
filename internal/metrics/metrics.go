package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the showfor service.
type Metrics struct {
	// Counters
	Detections            *prometheus.CounterVec
	Matches               *prometheus.CounterVec
	RenderedElements      *prometheus.CounterVec
	TroubleshootingLookup *prometheus.CounterVec
	EventsIngested        *prometheus.CounterVec
	SinkErrors            *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	RateLimited           prometheus.Counter

	// Gauges
	QueueDepth  *prometheus.GaugeVec
	UACacheSize prometheus.Gauge

	// Histograms
	BatchFlushLatency *prometheus.HistogramVec
	HTTPDuration      *prometheus.HistogramVec
}

// Config holds configuration for the metrics server
type Config struct {
	Enabled     bool   `env:"METRICS_ENABLED" envDefault:"false"`
	Addr        string `env:"METRICS_ADDR" envDefault:"127.0.0.1:9090"`
	TLSCert     string `env:"METRICS_TLS_CERT"`
	TLSKey      string `env:"METRICS_TLS_KEY"`
	ClientCA    string `env:"METRICS_CLIENT_CA"`
	RequireTLS  bool   `env:"METRICS_REQUIRE_TLS" envDefault:"false"`
	RequireAuth bool   `env:"METRICS_REQUIRE_AUTH" envDefault:"false"`
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_detections_total",
				Help: "Browser/OS detections by browser family, OS and source",
			},
			[]string{"browser", "os", "source"},
		),

		Matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_matches_total",
				Help: "Criteria evaluations by result",
			},
			[]string{"result"},
		),

		RenderedElements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_rendered_elements_total",
				Help: "data-for elements processed by server-side rendering",
			},
			[]string{"state"},
		),

		TroubleshootingLookup: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_troubleshooting_requests_total",
				Help: "Troubleshooting channel requests by outcome",
			},
			[]string{"outcome"},
		),

		EventsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_events_ingested_total",
				Help: "Total events ingested by sink type",
			},
			[]string{"sink"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_sink_errors_total",
				Help: "Total errors writing to a sink",
			},
			[]string{"sink", "error_type"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "showfor_http_requests_total",
				Help: "Total HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "showfor_http_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "showfor_queue_depth",
				Help: "Events buffered in a sink awaiting flush",
			},
			[]string{"sink"},
		),

		UACacheSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "showfor_ua_cache_entries",
				Help: "Parsed user agents held by the detector cache",
			},
		),

		BatchFlushLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "showfor_batch_flush_latency_seconds",
				Help:    "Latency of flushing a batch to sinks",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "showfor_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method"},
		),
	}

	reg.MustRegister(
		m.Detections,
		m.Matches,
		m.RenderedElements,
		m.TroubleshootingLookup,
		m.EventsIngested,
		m.SinkErrors,
		m.HTTPRequests,
		m.RateLimited,
		m.QueueDepth,
		m.UACacheSize,
		m.BatchFlushLatency,
		m.HTTPDuration,
	)
	return m
}

// Server represents the metrics HTTP server
type Server struct {
	server *http.Server
	config Config
	logger *slog.Logger
}

// NewServer creates the metrics server exposing g on /metrics.
func NewServer(config Config, g prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.RequireTLS && config.TLSCert != "" && config.TLSKey != "" {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}

		// mTLS when a client CA is provided
		if config.ClientCA != "" {
			clientCAs, err := loadCertPool(config.ClientCA)
			if err != nil {
				logger.Error("failed to load client CA", "path", config.ClientCA, "err", err)
			} else {
				tlsConfig.ClientCAs = clientCAs
				tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
				logger.Info("mTLS enabled", "client_ca", config.ClientCA)
			}
		}

		srv.TLSConfig = tlsConfig
	}

	return &Server{
		server: srv,
		config: config,
		logger: logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start binds the listener and serves in a separate goroutine.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("metrics disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.config.Addr, err)
	}

	go func() {
		var err error
		if s.config.RequireTLS && s.config.TLSCert != "" && s.config.TLSKey != "" {
			s.logger.Info("HTTPS server listening", "addr", ln.Addr().String())
			err = s.server.ServeTLS(ln, s.config.TLSCert, s.config.TLSKey)
		} else {
			s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
			err = s.server.Serve(ln)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}

	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

func loadCertPool(certFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(certFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", certFile)
	}
	return pool, nil
}

// Convenience methods for common operations
func (m *Metrics) IncrementDetections(browser, os, source string) {
	m.Detections.WithLabelValues(browser, os, source).Inc()
}

func (m *Metrics) IncrementMatches(matched bool) {
	result := "hidden"
	if matched {
		result = "shown"
	}
	m.Matches.WithLabelValues(result).Inc()
}

func (m *Metrics) AddRenderedElements(shown, hidden int) {
	m.RenderedElements.WithLabelValues("shown").Add(float64(shown))
	m.RenderedElements.WithLabelValues("hidden").Add(float64(hidden))
}

func (m *Metrics) IncrementTroubleshooting(outcome string) {
	m.TroubleshootingLookup.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementEventsIngested(sink string) {
	m.EventsIngested.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncrementSinkErrors(sink, errorType string) {
	m.SinkErrors.WithLabelValues(sink, errorType).Inc()
}

func (m *Metrics) IncrementHTTPRequests(endpoint, method, status string) {
	m.HTTPRequests.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) IncrementRateLimited() { m.RateLimited.Inc() }

func (m *Metrics) SetQueueDepth(sink string, depth float64) {
	m.QueueDepth.WithLabelValues(sink).Set(depth)
}

func (m *Metrics) SetUACacheSize(n int) { m.UACacheSize.Set(float64(n)) }

func (m *Metrics) ObserveBatchFlushLatency(sink string, duration time.Duration) {
	m.BatchFlushLatency.WithLabelValues(sink).Observe(duration.Seconds())
}

func (m *Metrics) ObserveHTTPDuration(endpoint, method string, duration time.Duration) {
	m.HTTPDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}
