package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/showfor/internal/showfor"
	"github.com/shortontech/showfor/internal/store"
)

const keyPrefix = "showfor:session:"

// Backend is a key/value store with expiry.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// Store loads and saves ShowFor forms by session id.
type Store struct {
	backend    Backend
	ttl        time.Duration
	cookieName string
	logger     *slog.Logger
}

func NewStore(backend Backend, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.CookieName
	if name == "" {
		name = "showfor_session"
	}
	return &Store{backend: backend, ttl: cfg.TTL, cookieName: name, logger: logger}
}

// NewID returns a fresh session id.
func NewID() string { return uuid.NewString() }

func key(id string) string { return keyPrefix + id }

// Load returns the form saved for id, or ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (showfor.Form, error) {
	raw, err := s.backend.Get(ctx, key(id))
	if err != nil {
		return nil, err
	}
	var form showfor.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return form, nil
}

// Save stores form for id and refreshes its expiry.
func (s *Store) Save(ctx context.Context, id string, form showfor.Form) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", id, err)
	}
	if err := s.backend.Set(ctx, key(id), raw, s.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.backend.Del(ctx, key(id))
}

// Persist saves every state change of st under id until the returned
// function is called.
func (s *Store) Persist(ctx context.Context, id string, st *store.Store[showfor.Form]) (stop func()) {
	return st.Subscribe(func(form showfor.Form) {
		if err := s.Save(ctx, id, form); err != nil {
			s.logger.Warn("session persist failed", "session", id, "err", err)
		}
	})
}

// ID reads the session id cookie. Ids that are not uuids are ignored.
func (s *Store) ID(r *http.Request) (string, bool) {
	c, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}
	if _, err := uuid.Parse(c.Value); err != nil {
		return "", false
	}
	return c.Value, true
}

// Cookie builds the cookie carrying id.
func (s *Store) Cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     s.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Store) Close() error { return s.backend.Close() }
