// Package protocol defines the relay's wire vocabulary: the inbound client
// events, the outbound notifications, and the JSON frame that carries them.
//
// Every frame is a JSON object {"event": <name>, "data": <payload>}.
// Payloads are not validated; missing fields decode to their zero values.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event names a frame's kind.
type Event string

// Inbound events.
const (
	EventSetUsername Event = "setUsername"
	EventSendMessage Event = "sendMessage"
	EventSendFile    Event = "sendFile"
)

// Outbound events.
const (
	EventReceiveMessage Event = "receiveMessage"
	EventReceiveFile    Event = "receiveFile"
	EventUserJoined     Event = "userJoined"
	EventUserLeft       Event = "userLeft"
	EventUpdateUsers    Event = "updateUsers"
)

var (
	// ErrMissingEvent is returned for a frame without an event name.
	ErrMissingEvent = errors.New("protocol: frame has no event")
	// ErrUnknownEvent is returned for an inbound frame whose event is not
	// one a client may send.
	ErrUnknownEvent = errors.New("protocol: unknown inbound event")
)

// Frame is the JSON object exchanged on the socket.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is a decoded client event.
type Inbound struct {
	Event Event
	// Username is set for EventSetUsername.
	Username string
	// Payload is the raw data for EventSendMessage and EventSendFile,
	// relayed to recipients as received. Never nil.
	Payload json.RawMessage
}

var emptyObject = json.RawMessage(`{}`)

// DecodeInbound parses one client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Inbound{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if f.Event == "" {
		return Inbound{}, ErrMissingEvent
	}

	in := Inbound{Event: f.Event, Payload: normalizePayload(f.Data)}
	switch f.Event {
	case EventSetUsername:
		in.Username = decodeUsername(f.Data)
	case EventSendMessage, EventSendFile:
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return in, nil
}

// decodeUsername accepts either a bare JSON string or {"username": "..."};
// anything else yields the empty name.
func decodeUsername(data json.RawMessage) string {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return name
	}
	var obj struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Username
	}
	return ""
}

func normalizePayload(data json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return emptyObject
	}
	return trimmed
}

// Encode builds an outbound frame. data is marshaled unless it is already a
// json.RawMessage.
func Encode(event Event, data any) ([]byte, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case nil:
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
