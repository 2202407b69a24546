package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestNewMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m.Detections == nil || m.HTTPDuration == nil || m.UACacheSize == nil {
		t.Fatal("collectors should be initialized")
	}

	defer func() {
		if recover() == nil {
			t.Error("registering twice on the same registry should panic")
		}
	}()
	NewMetrics(reg)
}

func TestMetricsConvenienceMethods(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.IncrementDetections("firefox", "Windows", "ua")
	m.IncrementDetections("firefox", "Windows", "ua")
	if got := testutil.ToFloat64(m.Detections.WithLabelValues("firefox", "Windows", "ua")); got != 2 {
		t.Errorf("detections = %v, want 2", got)
	}

	m.IncrementMatches(true)
	m.IncrementMatches(false)
	m.IncrementMatches(false)
	if got := testutil.ToFloat64(m.Matches.WithLabelValues("hidden")); got != 2 {
		t.Errorf("hidden matches = %v, want 2", got)
	}

	m.AddRenderedElements(3, 1)
	if got := testutil.ToFloat64(m.RenderedElements.WithLabelValues("shown")); got != 3 {
		t.Errorf("shown elements = %v, want 3", got)
	}

	m.IncrementTroubleshooting("timeout")
	m.IncrementEventsIngested("log")
	m.IncrementSinkErrors("kafka", "produce")
	m.IncrementHTTPRequests("/detect", "GET", "200")
	m.IncrementRateLimited()
	m.SetQueueDepth("postgres", 7)
	m.SetUACacheSize(12)
	m.ObserveBatchFlushLatency("postgres", 20*time.Millisecond)
	m.ObserveHTTPDuration("/detect", "GET", time.Millisecond)

	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("postgres")); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.UACacheSize); got != 12 {
		t.Errorf("ua cache size = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.RateLimited); got != 1 {
		t.Errorf("rate limited = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.HTTPDuration); got != 1 {
		t.Errorf("http duration series = %d, want 1", got)
	}
}

func TestNewServer(t *testing.T) {
	t.Run("sets timeouts", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "localhost:9090"}, prometheus.NewRegistry(), nil)
		if srv.server.ReadTimeout != 10*time.Second {
			t.Errorf("ReadTimeout = %v, want 10s", srv.server.ReadTimeout)
		}
		if srv.server.WriteTimeout != 10*time.Second {
			t.Errorf("WriteTimeout = %v, want 10s", srv.server.WriteTimeout)
		}
		if srv.server.IdleTimeout != 60*time.Second {
			t.Errorf("IdleTimeout = %v, want 60s", srv.server.IdleTimeout)
		}
	})

	t.Run("configures TLS when required", func(t *testing.T) {
		srv := NewServer(Config{
			Enabled:    true,
			RequireTLS: true,
			TLSCert:    "/path/to/cert.pem",
			TLSKey:     "/path/to/key.pem",
		}, prometheus.NewRegistry(), nil)
		if srv.server.TLSConfig == nil {
			t.Error("TLSConfig should be set when RequireTLS is true")
		}
		if srv.server.TLSConfig.ClientCAs != nil {
			t.Error("ClientCAs should be nil without a client CA")
		}
	})

	t.Run("no TLS by default", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true}, prometheus.NewRegistry(), nil)
		if srv.server.TLSConfig != nil {
			t.Error("TLSConfig should be nil when RequireTLS is false")
		}
	})
}

func TestServerEndpoints(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.IncrementMatches(true)

	srv := NewServer(Config{Enabled: true}, reg, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `showfor_matches_total{result="shown"} 1`) {
		t.Errorf("metrics output missing match counter:\n%s", body)
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestServerStartShutdown(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		srv := NewServer(Config{Enabled: false}, prometheus.NewRegistry(), nil)
		if err := srv.Start(context.Background()); err != nil {
			t.Errorf("Start() should not error when disabled: %v", err)
		}
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() should not error when disabled: %v", err)
		}
	})

	t.Run("enabled listens on an ephemeral port", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "127.0.0.1:0"}, prometheus.NewRegistry(), nil)
		if err := srv.Start(context.Background()); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() failed: %v", err)
		}
	})

	t.Run("bad address fails fast", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "not-an-address"}, prometheus.NewRegistry(), nil)
		if err := srv.Start(context.Background()); err == nil {
			t.Error("Start() should fail for an invalid address")
		}
	})
}

func TestLoadCertPool(t *testing.T) {
	if _, err := loadCertPool(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("missing file should error")
	}

	path := filepath.Join(t.TempDir(), "empty.pem")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCertPool(path); err == nil {
		t.Error("file without certificates should error")
	}
}
