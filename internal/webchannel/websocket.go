package webchannel

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport carries channel events as JSON frames over a websocket. A
// single read loop fans incoming frames out through an internal Hub.
type WSTransport struct {
	conn    *websocket.Conn
	hub     *Hub
	writeMu sync.Mutex
	done    chan struct{}
}

// NewWSTransport starts reading from conn. The transport closes its
// listeners when the connection fails or is closed.
func NewWSTransport(conn *websocket.Conn) *WSTransport {
	t := &WSTransport{
		conn: conn,
		hub:  NewHub(16),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *WSTransport) readLoop() {
	defer close(t.done)
	defer t.hub.Close()

	for {
		var ev Event
		if err := t.conn.ReadJSON(&ev); err != nil {
			return
		}
		_ = t.hub.Dispatch(context.Background(), ev)
	}
}

func (t *WSTransport) Dispatch(ctx context.Context, ev Event) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(5 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return t.conn.WriteJSON(ev)
}

func (t *WSTransport) Listen(ctx context.Context) (<-chan Event, error) {
	return t.hub.Listen(ctx)
}

// Close sends a close frame and closes the connection.
func (t *WSTransport) Close() error {
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return t.conn.Close()
}

// Done is closed once the read loop has exited.
func (t *WSTransport) Done() <-chan struct{} { return t.done }
