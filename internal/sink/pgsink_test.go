package sink

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shortontech/showfor/internal/event"
	"github.com/shortontech/showfor/internal/metrics"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{"simple", "showfor_events", false},
		{"leading underscore", "_events", false},
		{"mixed case with digits", "Events2024", false},
		{"empty", "", true},
		{"leading digit", "1events", true},
		{"dash", "show-for", true},
		{"injection", "events; DROP TABLE users", true},
		{"dot", "public.events", true},
		{"too long", strings.Repeat("a", 64), true},
		{"max length", strings.Repeat("a", 63), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateTableName(%q) error = %v, wantErr %v", tt.table, err, tt.wantErr)
			}
		})
	}
}

func TestNewPGSinkFromEnv(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/showfor")
	t.Setenv("PG_TABLE", "custom_events")
	t.Setenv("PG_BATCH_SIZE", "50")
	t.Setenv("PG_COPY", "false")

	s, err := NewPGSinkFromEnv()
	if err != nil {
		t.Fatalf("NewPGSinkFromEnv: %v", err)
	}
	if s.config.DSN != "postgres://localhost/showfor" {
		t.Errorf("DSN = %q", s.config.DSN)
	}
	if s.config.Table != "custom_events" {
		t.Errorf("Table = %q", s.config.Table)
	}
	if s.config.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", s.config.BatchSize)
	}
	if s.config.FlushMS != 500 {
		t.Errorf("FlushMS = %d, want default 500", s.config.FlushMS)
	}
	if s.config.UseCopy {
		t.Error("UseCopy should be false")
	}
}

func TestNewPGSinkFromEnv_BadInt(t *testing.T) {
	t.Setenv("PG_BATCH_SIZE", "many")
	if _, err := NewPGSinkFromEnv(); err == nil {
		t.Error("expected error for non-numeric batch size")
	}
}

func TestNewPGSink(t *testing.T) {
	s := NewPGSink("postgres://x")
	if s.config.Table != "showfor_events" || s.config.BatchSize != 500 || !s.config.UseCopy {
		t.Errorf("unexpected defaults: %+v", s.config)
	}
	if s.Name() != "postgres" {
		t.Errorf("Name() = %q", s.Name())
	}
}

func TestPGSinkStartValidation(t *testing.T) {
	tests := []struct {
		name   string
		config PGConfig
		want   string
	}{
		{"missing dsn", PGConfig{Table: "events"}, "DSN is required"},
		{"bad table", PGConfig{DSN: "postgres://x", Table: "bad-name"}, "invalid table name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewPGSinkWithConfig(tt.config).Start(context.Background())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Start() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestPGSink_Start_InvalidDSN(t *testing.T) {
	s := NewPGSink("invalid://dsn")
	if err := s.Start(context.Background()); err == nil {
		s.Close()
		t.Error("Start() should fail for invalid DSN")
	}
}

func TestPGSinkEnqueueBatching(t *testing.T) {
	s := &PGSink{config: PGConfig{Table: "events", BatchSize: 10}}
	for i := 0; i < 5; i++ {
		if err := s.Enqueue(event.Event{EventID: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if len(s.batch) != 5 {
		t.Errorf("batch len = %d, want 5", len(s.batch))
	}
}

func TestPGSinkClose_NotStarted(t *testing.T) {
	s := NewPGSink("postgres://x")
	if err := s.Close(); err != nil {
		t.Errorf("Close() on unstarted sink = %v", err)
	}
}

func newMock(t *testing.T) (*PGSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PGSink{config: PGConfig{Table: "test_events", BatchSize: 100, FlushMS: 1000}, db: db}, mock
}

func TestPGSink_EnsureSchema_Success(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS test_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_test_events_ts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_test_events_gin").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.ensureSchema(); err != nil {
		t.Errorf("ensureSchema() = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGSink_EnsureSchema_TableError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS test_events").WillReturnError(fmt.Errorf("permission denied"))

	err := s.ensureSchema()
	if err == nil || !strings.Contains(err.Error(), "failed to create table") {
		t.Errorf("ensureSchema() = %v, want table error", err)
	}
}

func TestPGSink_EnsureSchema_IndexError(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS test_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_test_events_ts").WillReturnError(fmt.Errorf("index failed"))

	err := s.ensureSchema()
	if err == nil || !strings.Contains(err.Error(), "failed to create index") {
		t.Errorf("ensureSchema() = %v, want index error", err)
	}
}

func TestPGSink_FlushWithInsert(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{
		{EventID: "evt-001", Type: event.TypeDetect, TS: "2026-01-01T00:00:00Z"},
		{EventID: "evt-002", Type: event.TypeMatch, TS: "not a time"},
	}
	mock.ExpectExec("INSERT INTO test_events").
		WithArgs("evt-001", sqlmock.AnyArg(), "detect", sqlmock.AnyArg(),
			"evt-002", sqlmock.AnyArg(), "match", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.flushWithInsert(); err != nil {
		t.Errorf("flushWithInsert() = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGSink_FlushWithInsert_Error(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{{EventID: "evt-001"}}
	mock.ExpectExec("INSERT INTO test_events").WillReturnError(fmt.Errorf("connection reset"))

	if err := s.flushWithInsert(); err == nil {
		t.Error("flushWithInsert() should fail")
	}
}

func TestPGSink_FlushWithInsert_EmptyBatch(t *testing.T) {
	s, mock := newMock(t)
	if err := s.flushWithInsert(); err != nil {
		t.Errorf("flushWithInsert() on empty batch = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no queries expected: %v", err)
	}
}

func TestPGSink_FlushWithCopy_BeginError(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{{EventID: "evt-001"}}
	mock.ExpectBegin().WillReturnError(fmt.Errorf("begin failed"))

	err := s.flushWithCopy()
	if err == nil || !strings.Contains(err.Error(), "failed to begin transaction") {
		t.Errorf("flushWithCopy() = %v", err)
	}
}

func TestPGSink_FlushWithCopy_PrepareError(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{{EventID: "evt-001"}}
	mock.ExpectBegin()
	mock.ExpectPrepare("COPY").WillReturnError(fmt.Errorf("prepare failed"))
	mock.ExpectRollback()

	err := s.flushWithCopy()
	if err == nil || !strings.Contains(err.Error(), "failed to prepare copy") {
		t.Errorf("flushWithCopy() = %v", err)
	}
}

func TestPGSink_FlushBatch_ErrorKeepsBatch(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{{EventID: "a"}, {EventID: "b"}}
	mock.ExpectExec("INSERT INTO test_events").WillReturnError(fmt.Errorf("boom"))

	if err := s.flushBatch(); err == nil {
		t.Fatal("flushBatch() should fail")
	}
	if len(s.batch) != 2 {
		t.Errorf("batch len = %d after failed flush, want 2", len(s.batch))
	}
}

func TestPGSink_FlushBatch_ReportsMetrics(t *testing.T) {
	s, mock := newMock(t)
	reg := prometheus.NewRegistry()
	s.WithMetrics(metrics.NewMetrics(reg))
	s.batch = []event.Event{{EventID: "a"}}
	mock.ExpectExec("INSERT INTO test_events").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.flushBatch(); err != nil {
		t.Fatalf("flushBatch() = %v", err)
	}
	if len(s.batch) != 0 {
		t.Errorf("batch len = %d, want 0", len(s.batch))
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if strings.HasSuffix(f.GetName(), "batch_flush_latency_seconds") {
			found = true
		}
	}
	if !found {
		t.Error("flush latency not observed")
	}
}

func TestPGSink_Enqueue_TriggerFlush(t *testing.T) {
	s, mock := newMock(t)
	s.config.BatchSize = 2
	s.batch = []event.Event{{EventID: "existing"}}
	mock.ExpectExec("INSERT INTO test_events").WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.Enqueue(event.Event{EventID: "new", Type: event.TypeRender}); err != nil {
		t.Errorf("Enqueue() = %v", err)
	}
	if len(s.batch) != 0 {
		t.Errorf("batch len = %d after flush, want 0", len(s.batch))
	}
}

func TestPGSink_FlushRoutine(t *testing.T) {
	s, mock := newMock(t)
	s.config.FlushMS = 20
	s.batch = []event.Event{{EventID: "tick"}}
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	mock.ExpectExec("INSERT INTO test_events").WillReturnResult(sqlmock.NewResult(0, 1))

	go s.flushRoutine()
	time.Sleep(100 * time.Millisecond)
	s.cancel()
	<-s.done

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPGSink_FlushRoutine_Cancellation(t *testing.T) {
	s := &PGSink{config: PGConfig{FlushMS: 100}, done: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.flushRoutine()
	s.cancel()

	select {
	case <-s.done:
	case <-time.After(200 * time.Millisecond):
		t.Error("flushRoutine did not exit on context cancellation")
	}
}

func TestPGSink_Close_FlushesEvents(t *testing.T) {
	s, mock := newMock(t)
	s.batch = []event.Event{{EventID: "pending"}}
	s.done = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.flushRoutine()

	mock.ExpectExec("INSERT INTO test_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := s.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
