// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/shortontech/showfor/internal/logging"
	"github.com/shortontech/showfor/internal/metrics"
	"github.com/shortontech/showfor/internal/session"
	"github.com/shortontech/showfor/internal/sink"
)

var (
	ErrUnknownOutput       = errors.New("config: unknown output")
	ErrMissingDestination  = errors.New("config: middleware mode requires FORWARD_DESTINATION")
	ErrInvalidRateLimit    = errors.New("config: rate limit requires positive rps and burst")
	ErrInvalidMaxBodyBytes = errors.New("config: MAX_BODY_BYTES must be positive")
)

// Known sink names accepted in OUTPUTS.
var knownOutputs = map[string]bool{"log": true, "kafka": true, "postgres": true}

type Config struct {
	Server    Server
	ShowFor   ShowFor
	RateLimit RateLimit
	Session   session.Config
	Logging   logging.Config
	Metrics   metrics.Config
	EventLog  sink.LogConfig
	Kafka     sink.KafkaConfig
	Postgres  sink.PGConfig
}

type Server struct {
	Addr            string        `env:"SERVER_ADDR" envDefault:":19890"`
	TrustProxy      bool          `env:"TRUST_PROXY" envDefault:"false"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"` // request body limit for POST endpoints
	SignatureSecret string        `env:"SIGNATURE_SECRET"`                    // enables X-ShowFor-Signature checks on POST /detect
	Outputs         []string      `env:"OUTPUTS" envSeparator:"," envDefault:"log"`
	AllowedOrigins  []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Middleware mode serves the API under its own paths and proxies the
	// rest to ForwardDestination, rewriting ShowFor markup in HTML.
	MiddlewareMode     bool   `env:"MIDDLEWARE_MODE" envDefault:"false"`
	ForwardDestination string `env:"FORWARD_DESTINATION"`
}

type ShowFor struct {
	CatalogPath            string        `env:"SHOWFOR_CATALOG"` // yaml or json; empty uses the embedded catalog
	CannedResponsesPath    string        `env:"CANNED_RESPONSES"`
	UACacheSize            int           `env:"UA_CACHE_SIZE" envDefault:"1024"`
	TroubleshootingTimeout time.Duration `env:"TROUBLESHOOTING_TIMEOUT" envDefault:"1000ms"`
}

type RateLimit struct {
	Enabled    bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS        float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	Burst      int     `env:"RATE_LIMIT_BURST" envDefault:"40"`
	MaxClients int     `env:"RATE_LIMIT_CLIENTS" envDefault:"10000"` // tracked client addresses
}

// Load reads envFiles (or ./.env when none are given and it exists) into
// the process environment, then parses Config. Variables already set in
// the environment take precedence over file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return Config{}, fmt.Errorf("config: load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Server.Outputs = cleanList(c.Server.Outputs, true)
	c.Server.AllowedOrigins = cleanList(c.Server.AllowedOrigins, false)
	c.Kafka.Brokers = cleanList(c.Kafka.Brokers, false)
}

// Validate checks values that parse but cannot run.
func (c Config) Validate() error {
	for _, o := range c.Server.Outputs {
		if !knownOutputs[o] {
			return fmt.Errorf("%w: %q", ErrUnknownOutput, o)
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBodyBytes
	}
	if c.Server.MiddlewareMode && c.Server.ForwardDestination == "" {
		return ErrMissingDestination
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return ErrInvalidRateLimit
	}
	return nil
}

// HasOutput reports whether the named sink is enabled.
func (c Config) HasOutput(name string) bool {
	for _, o := range c.Server.Outputs {
		if o == name {
			return true
		}
	}
	return false
}

func cleanList(in []string, lower bool) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
