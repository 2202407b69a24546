package webchannel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Request dispatches message on channel id and waits for the correlated
// response, the timeout, or ctx, whichever comes first.
func Request(ctx context.Context, t Transport, id string, message any, timeout time.Duration) (json.RawMessage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Listen before dispatching so a fast responder cannot be missed.
	events, err := t.Listen(ctx)
	if err != nil {
		return nil, err
	}

	req, err := NewRequest(id, message)
	if err != nil {
		return nil, err
	}
	if err := t.Dispatch(ctx, req); err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", id, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrTimeout
		case ev, ok := <-events:
			if !ok {
				return nil, ErrClosed
			}
			if ev.Type != EventToContent {
				continue
			}
			d, err := ev.DecodeDetail()
			if err != nil || d.ID != id || !truthy(d.Message) {
				continue
			}
			return d.Message, nil
		}
	}
}

// Serve answers requests arriving on channel id until ctx is done. It plays
// the chrome side of the protocol.
func Serve(ctx context.Context, t Transport, id string, answer func(message json.RawMessage) (any, error)) error {
	events, err := t.Listen(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrClosed
			}
			if ev.Type != EventToChrome {
				continue
			}
			d, err := ev.DecodeDetail()
			if err != nil || d.ID != id {
				continue
			}
			reply, err := answer(d.Message)
			if err != nil {
				continue
			}
			resp, err := NewResponse(id, reply)
			if err != nil {
				return err
			}
			if err := t.Dispatch(ctx, resp); err != nil {
				return err
			}
		}
	}
}
