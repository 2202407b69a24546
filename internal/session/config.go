package session

import "time"

type Config struct {
	RedisURL       string        `env:"REDIS_URL"`                                   // empty keeps sessions in process memory
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`         // connection attempts before giving up
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`        // delay between attempts
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`      // overall connect deadline
	TTL            time.Duration `env:"SESSION_TTL" envDefault:"720h"`               // lifetime of a stored form, refreshed on save
	CookieName     string        `env:"SESSION_COOKIE" envDefault:"showfor_session"` // cookie carrying the session id
}
