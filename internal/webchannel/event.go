package webchannel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	EventToChrome  = "WebChannelMessageToChrome"
	EventToContent = "WebChannelMessageToContent"

	// TroubleshootingID identifies the remote-troubleshooting channel.
	TroubleshootingID = "remote-troubleshooting"
)

// Event mirrors a CustomEvent crossing the channel.
type Event struct {
	Type   string          `json:"type"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// Detail is the payload of a channel event.
type Detail struct {
	ID      string          `json:"id"`
	Message json.RawMessage `json:"message,omitempty"`
}

// NewRequest builds a WebChannelMessageToChrome event. The chrome expects
// the detail as a JSON encoded string rather than an object.
func NewRequest(id string, message any) (Event, error) {
	msg, err := json.Marshal(message)
	if err != nil {
		return Event{}, fmt.Errorf("encode message: %w", err)
	}
	inner, err := json.Marshal(Detail{ID: id, Message: msg})
	if err != nil {
		return Event{}, fmt.Errorf("encode detail: %w", err)
	}
	detail, err := json.Marshal(string(inner))
	if err != nil {
		return Event{}, fmt.Errorf("encode detail string: %w", err)
	}
	return Event{Type: EventToChrome, Detail: detail}, nil
}

// NewResponse builds a WebChannelMessageToContent event.
func NewResponse(id string, message any) (Event, error) {
	msg, err := json.Marshal(message)
	if err != nil {
		return Event{}, fmt.Errorf("encode message: %w", err)
	}
	detail, err := json.Marshal(Detail{ID: id, Message: msg})
	if err != nil {
		return Event{}, fmt.Errorf("encode detail: %w", err)
	}
	return Event{Type: EventToContent, Detail: detail}, nil
}

// DecodeDetail reads an event detail given either as an object or as a JSON
// encoded string of one.
func (e Event) DecodeDetail() (Detail, error) {
	var d Detail
	raw := bytes.TrimSpace(e.Detail)
	if len(raw) == 0 {
		return d, fmt.Errorf("empty detail")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return d, fmt.Errorf("decode detail string: %w", err)
		}
		raw = []byte(s)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("decode detail: %w", err)
	}
	return d, nil
}

// truthy reports whether a JSON value would be truthy in the page.
func truthy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}
