package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/shortontech/showfor/internal/assets"
	"github.com/shortontech/showfor/internal/detect"
	"github.com/shortontech/showfor/internal/event"
	httpx "github.com/shortontech/showfor/internal/http"
	"github.com/shortontech/showfor/internal/logging"
	"github.com/shortontech/showfor/internal/markup"
	"github.com/shortontech/showfor/internal/metrics"
	"github.com/shortontech/showfor/internal/session"
	"github.com/shortontech/showfor/internal/showfor"
	"github.com/shortontech/showfor/internal/sink"
	"github.com/shortontech/showfor/pkg/config"
)

// buildVersion is set at link time with -X main.buildVersion.
var buildVersion = "dev"

func main() {
	var (
		envFiles    []string
		addr        string
		testMode    bool
		healthCheck bool
		showVersion bool
	)
	pflag.StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading the environment")
	pflag.StringVar(&addr, "addr", "", "listen address, overrides SERVER_ADDR")
	pflag.BoolVar(&testMode, "test-mode", false, "emit sample detection events at startup")
	pflag.BoolVar(&healthCheck, "health-check", false, "probe /healthz of a running server and exit")
	pflag.BoolVarP(&showVersion, "version", "v", false, "print the version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Println(buildVersion)
		return
	}

	cfg, err := config.Load(envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if healthCheck {
		host, port := healthCheckTarget(cfg.Server.Addr)
		if err := performHealthCheck(host, port); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger, logCloser := logging.New(cfg.Logging, nil)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	metricsServer := metrics.NewServer(cfg.Metrics, prometheus.DefaultGatherer, logger)
	if err := metricsServer.Start(ctx); err != nil {
		logger.Error("metrics server failed to start", "err", err)
		os.Exit(1)
	}

	sinks := initializeSinks(ctx, cfg, logger, appMetrics)
	emit := createEmitFunc(sinks, appMetrics)

	env, closeSessions, err := buildEnv(ctx, cfg, logger, appMetrics, emit)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer closeSessions()
	env.HMACAuth = initializeHMACAuth(cfg, logger)

	if testMode {
		runTestMode(ctx, env.Resolver, env.Catalog, emit, logger)
	}

	srv := startHTTPServer(cfg, httpx.NewRouter(env), logger)
	waitForShutdown(srv, metricsServer, cfg.Server.ShutdownTimeout, logger, sinks...)
}

// initializeSinks starts one sink per configured output. Sinks that fail to
// start are logged and skipped.
func initializeSinks(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) []sink.Sink {
	var sinks []sink.Sink
	for _, out := range cfg.Server.Outputs {
		var s sink.Sink
		switch out {
		case "log":
			s = sink.NewLogSink(cfg.EventLog)
		case "kafka":
			s = sink.NewKafkaSinkWithConfig(cfg.Kafka, logger.With("sink", "kafka"))
		case "postgres":
			s = sink.NewPGSinkWithConfig(cfg.Postgres).WithMetrics(m).WithLogger(logger.With("sink", "postgres"))
		default:
			logger.Warn("unknown output ignored", "output", out)
			continue
		}
		if err := s.Start(ctx); err != nil {
			logger.Error("sink failed to start", "sink", s.Name(), "err", err)
			continue
		}
		logger.Info("sink started", "sink", s.Name())
		sinks = append(sinks, s)
	}
	return sinks
}

func initializeHMACAuth(cfg config.Config, logger *slog.Logger) *httpx.HMACAuth {
	auth := httpx.NewHMACAuth(cfg.Server.SignatureSecret, cfg.Server.TrustProxy, logger)
	if auth != nil {
		logger.Info("request signatures required", "header", httpx.SignatureHeader)
	}
	return auth
}

// createEmitFunc fans an event out to every sink, counting deliveries and
// failures. m may be nil.
func createEmitFunc(sinks []sink.Sink, m *metrics.Metrics) func(event.Event) {
	return func(e event.Event) {
		for _, s := range sinks {
			if err := s.Enqueue(e); err != nil {
				slog.Warn("enqueue failed", "sink", s.Name(), "event_id", e.EventID, "err", err)
				if m != nil {
					m.IncrementSinkErrors(s.Name(), "enqueue")
				}
				continue
			}
			if m != nil {
				m.IncrementEventsIngested(s.Name())
			}
		}
	}
}

// buildEnv assembles the handler dependencies. The returned func releases
// the session backend.
func buildEnv(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics, emit func(event.Event)) (httpx.Env, func(), error) {
	catalog, err := loadCatalog(cfg.ShowFor.CatalogPath)
	if err != nil {
		return httpx.Env{}, nil, err
	}
	responses, err := loadCannedResponses(cfg.ShowFor.CannedResponsesPath)
	if err != nil {
		return httpx.Env{}, nil, err
	}
	toolbar, err := markup.NewToolbar(responses, markup.DefaultKinds...)
	if err != nil {
		return httpx.Env{}, nil, err
	}
	resolver, err := detect.NewResolver(cfg.ShowFor.UACacheSize)
	if err != nil {
		return httpx.Env{}, nil, err
	}

	var (
		backend session.Backend
		ready   func(context.Context) error
	)
	if cfg.Session.RedisURL != "" {
		client, err := session.Connect(ctx, cfg.Session)
		if err != nil {
			return httpx.Env{}, nil, fmt.Errorf("sessions: %w", err)
		}
		backend = session.NewRedisBackend(client)
		ready = session.Healthcheck(client)
		logger.Info("sessions stored in redis")
	} else {
		backend = session.NewMemoryBackend()
		logger.Info("sessions stored in memory")
	}
	sessions := session.NewStore(backend, cfg.Session, logger.With("component", "session"))

	env := httpx.Env{
		Cfg:      cfg,
		Catalog:  catalog,
		Resolver: resolver,
		Sessions: sessions,
		Toolbar:  toolbar,
		Metrics:  m,
		Emit:     emit,
		Logger:   logger,
		Ready:    ready,
	}
	closeFn := func() {
		if err := sessions.Close(); err != nil {
			logger.Warn("session backend close failed", "err", err)
		}
	}
	return env, closeFn, nil
}

// loadCatalog reads a yaml or json catalog from path, or the embedded
// catalog when path is empty.
func loadCatalog(path string) (*showfor.Catalog, error) {
	if path == "" {
		return assets.Catalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return showfor.ParseCatalogJSON(data)
	}
	return showfor.ParseCatalogYAML(data)
}

// loadCannedResponses reads a title to text mapping from a yaml or json
// file. An empty path yields no responses.
func loadCannedResponses(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read canned responses: %w", err)
	}
	responses := map[string]string{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &responses)
	} else {
		err = yaml.Unmarshal(data, &responses)
	}
	if err != nil {
		return nil, fmt.Errorf("parse canned responses: %w", err)
	}
	return responses, nil
}

func startHTTPServer(cfg config.Config, handler http.Handler, logger *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("showfor listening", "addr", cfg.Server.Addr, "version", buildVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()
	return srv
}

// healthCheckTarget maps a listen address to the host and port to probe.
func healthCheckTarget(addr string) (string, string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "127.0.0.1", "19890"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return host, port
}

func performHealthCheck(host, port string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/healthz")
	if err != nil {
		return fmt.Errorf("health check failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("health check failed to read body: %w", err)
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return fmt.Errorf("health check returned unexpected body %q", body)
	}
	return nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, then stops the servers
// and closes every sink.
func waitForShutdown(srv *http.Server, metricsServer *metrics.Server, timeout time.Duration, logger *slog.Logger, sinks ...sink.Sink) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logger.Info("shutting down", "signal", sig.String())
	shutdown(srv, metricsServer, timeout, logger, sinks...)
}

func shutdown(srv *http.Server, metricsServer *metrics.Server, timeout time.Duration, logger *slog.Logger, sinks ...sink.Sink) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown", "err", err)
	}
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.Error("sink close", "sink", s.Name(), "err", err)
		}
	}
}
