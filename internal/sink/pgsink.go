package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/lib/pq"

	"github.com/shortontech/showfor/internal/event"
	"github.com/shortontech/showfor/internal/metrics"
)

// PGConfig holds configuration for the Postgres sink
type PGConfig struct {
	DSN       string `env:"PG_DSN"`
	Table     string `env:"PG_TABLE" envDefault:"showfor_events"`
	BatchSize int    `env:"PG_BATCH_SIZE" envDefault:"500"`
	FlushMS   int    `env:"PG_FLUSH_MS" envDefault:"500"`
	UseCopy   bool   `env:"PG_COPY" envDefault:"true"`
}

// PGSink buffers events and writes them to a jsonb table in batches.
type PGSink struct {
	config  PGConfig
	db      *sql.DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	batch []event.Event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateTableName(name string) error {
	if name == "" || len(name) > 63 || !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// NewPGSinkFromEnv reads PGConfig from the environment.
func NewPGSinkFromEnv() (*PGSink, error) {
	cfg, err := env.ParseAs[PGConfig]()
	if err != nil {
		return nil, fmt.Errorf("postgres sink config: %w", err)
	}
	return NewPGSinkWithConfig(cfg), nil
}

// NewPGSink creates a PGSink for dsn with default batching.
func NewPGSink(dsn string) *PGSink {
	return NewPGSinkWithConfig(PGConfig{
		DSN:       dsn,
		Table:     "showfor_events",
		BatchSize: 500,
		FlushMS:   500,
		UseCopy:   true,
	})
}

func NewPGSinkWithConfig(cfg PGConfig) *PGSink {
	return &PGSink{config: cfg, logger: slog.Default()}
}

// WithMetrics reports queue depth and flush latency to m.
func (s *PGSink) WithMetrics(m *metrics.Metrics) *PGSink {
	s.metrics = m
	return s
}

// WithLogger sets the logger used for background flush failures.
func (s *PGSink) WithLogger(l *slog.Logger) *PGSink {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Start(ctx context.Context) error {
	if s.config.DSN == "" {
		return fmt.Errorf("postgres DSN is required")
	}
	if err := validateTableName(s.config.Table); err != nil {
		return err
	}
	if s.config.BatchSize <= 0 {
		s.config.BatchSize = 500
	}
	if s.config.FlushMS <= 0 {
		s.config.FlushMS = 500
	}

	db, err := sql.Open("postgres", s.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db

	if err := s.ensureSchema(); err != nil {
		db.Close()
		s.db = nil
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.flushRoutine()
	return nil
}

func (s *PGSink) ensureSchema() error {
	table := s.config.Table
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id TEXT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		type TEXT NOT NULL,
		payload JSONB NOT NULL
	)`, table)
	if _, err := s.db.Exec(createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)", table, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_gin ON %s USING GIN (payload)", table, table),
	}
	for _, q := range indexes {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (s *PGSink) Enqueue(e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batch = append(s.batch, e)
	s.reportDepth()
	if len(s.batch) >= s.config.BatchSize {
		return s.flushBatch()
	}
	return nil
}

func (s *PGSink) flushRoutine() {
	defer close(s.done)

	ticker := time.NewTicker(time.Duration(s.config.FlushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if err := s.flushBatch(); err != nil {
				s.logger.Warn("postgres flush failed", "err", err, "pending", len(s.batch))
			}
			s.mu.Unlock()
		}
	}
}

// flushBatch writes the pending batch. Callers hold s.mu. On error the
// batch is kept for the next attempt.
func (s *PGSink) flushBatch() error {
	if len(s.batch) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	if s.config.UseCopy {
		err = s.flushWithCopy()
	} else {
		err = s.flushWithInsert()
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementSinkErrors(s.Name(), "flush")
		}
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveBatchFlushLatency(s.Name(), time.Since(start))
	}
	s.batch = s.batch[:0]
	s.reportDepth()
	return nil
}

func (s *PGSink) reportDepth() {
	if s.metrics != nil {
		s.metrics.SetQueueDepth(s.Name(), float64(len(s.batch)))
	}
}

// row returns the column values stored for e.
func row(e event.Event) (id string, ts any, typ string, payload []byte, err error) {
	payload, err = json.Marshal(e)
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	ts = time.Now().UTC()
	if e.TS != "" {
		if t, perr := time.Parse(time.RFC3339Nano, e.TS); perr == nil {
			ts = t
		}
	}
	return e.EventID, ts, e.Type, payload, nil
}

func (s *PGSink) flushWithInsert() error {
	if len(s.batch) == 0 {
		return nil
	}

	var (
		sb   strings.Builder
		args = make([]any, 0, len(s.batch)*4)
	)
	fmt.Fprintf(&sb, "INSERT INTO %s (event_id, ts, type, payload) VALUES ", s.config.Table)
	for i, e := range s.batch {
		id, ts, typ, payload, err := row(e)
		if err != nil {
			return err
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4)
		args = append(args, id, ts, typ, string(payload))
	}
	sb.WriteString(" ON CONFLICT (event_id) DO NOTHING")

	if _, err := s.db.ExecContext(s.context(), sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (s *PGSink) flushWithCopy() error {
	ctx := s.context()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.config.Table, "event_id", "ts", "type", "payload"))
	if err != nil {
		return fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, e := range s.batch {
		id, ts, typ, payload, err := row(e)
		if err != nil {
			stmt.Close()
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, ts, typ, string(payload)); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return fmt.Errorf("failed to finish copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("failed to close copy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// context returns the sink's context, or Background once it is cancelled
// so a final flush during Close still runs.
func (s *PGSink) context() context.Context {
	if s.ctx == nil || s.ctx.Err() != nil {
		return context.Background()
	}
	return s.ctx
}

func (s *PGSink) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}

	var err error
	if s.db != nil {
		s.mu.Lock()
		err = s.flushBatch()
		s.mu.Unlock()
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
		s.db = nil
	}
	return err
}
