package webchannel

import (
	"context"
	"sync"
)

// Transport moves channel events between the page and the chrome.
type Transport interface {
	Dispatch(ctx context.Context, ev Event) error
	// Listen returns a channel receiving every event dispatched after the
	// call. The channel is closed when ctx is done or the transport closes.
	Listen(ctx context.Context) (<-chan Event, error)
}

type listener struct {
	ch     chan Event
	closed bool
}

// Hub is an in-memory Transport. Slow listeners drop events instead of
// blocking Dispatch. All methods are safe for concurrent use.
type Hub struct {
	mu         sync.RWMutex
	listeners  map[*listener]struct{}
	bufferSize int
	closed     bool
}

// NewHub creates a hub whose listeners buffer up to bufferSize events.
func NewHub(bufferSize int) *Hub {
	return &Hub{
		listeners:  make(map[*listener]struct{}),
		bufferSize: max(bufferSize, 1),
	}
}

func (h *Hub) Dispatch(ctx context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	for l := range h.listeners {
		select {
		case l.ch <- ev:
		default:
		}
	}
	return nil
}

func (h *Hub) Listen(ctx context.Context) (<-chan Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	l := &listener{ch: make(chan Event, h.bufferSize)}
	h.listeners[l] = struct{}{}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			h.remove(l)
		}()
	}
	return l.ch, nil
}

// Close closes every listener channel. It is safe to call more than once.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for l := range h.listeners {
		l.close()
	}
	clear(h.listeners)
	return nil
}

func (h *Hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.listeners, l)
	l.close()
}

func (l *listener) close() {
	if !l.closed {
		close(l.ch)
		l.closed = true
	}
}
