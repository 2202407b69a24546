package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shortontech/showfor/internal/event"
)

// LogConfig configures the ndjson event log. Path "stdout" writes to
// standard output without rotation.
type LogConfig struct {
	Path       string `env:"EVENT_LOG_PATH" envDefault:"showfor-events.ndjson"`
	MaxSizeMB  int    `env:"EVENT_LOG_MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"EVENT_LOG_MAX_BACKUPS" envDefault:"10"`
	MaxAgeDays int    `env:"EVENT_LOG_MAX_AGE_DAYS" envDefault:"14"`
	Compress   bool   `env:"EVENT_LOG_COMPRESS" envDefault:"true"`
}

// LogSink appends one JSON event per line to a rotating file.
type LogSink struct {
	cfg LogConfig

	mu sync.Mutex
	w  io.Writer
	f  *lumberjack.Logger
}

func NewLogSink(cfg LogConfig) *LogSink { return &LogSink{cfg: cfg} }

// NewLogSinkFromEnv reads LogConfig from the environment.
func NewLogSinkFromEnv() (*LogSink, error) {
	cfg, err := env.ParseAs[LogConfig]()
	if err != nil {
		return nil, fmt.Errorf("log sink config: %w", err)
	}
	return NewLogSink(cfg), nil
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Path == "stdout" {
		s.w = os.Stdout
		return nil
	}

	// lumberjack opens lazily and creates missing directories; open once
	// here so a bad path fails at startup.
	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	_ = f.Close()

	s.f = &lumberjack.Logger{
		Filename:   s.cfg.Path,
		MaxSize:    s.cfg.MaxSizeMB,
		MaxBackups: s.cfg.MaxBackups,
		MaxAge:     s.cfg.MaxAgeDays,
		Compress:   s.cfg.Compress,
	}
	s.w = s.f
	return nil
}

func (s *LogSink) Enqueue(e event.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return errors.New("log sink not started")
	}
	_, err = s.w.Write(b)
	return err
}

func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = nil
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
