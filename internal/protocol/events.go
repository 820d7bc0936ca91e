// Package protocol defines the wire contract between the chat client and the server.
// Every frame is a JSON envelope carrying an event name and a payload; inbound
// payloads are decoded at the transport boundary into a closed set of variants.
package protocol

import (
	"encoding/json"
	"fmt"
)

// EventName is the name carried in an envelope
type EventName string

// Lifecycle events, produced locally by the transport
const (
	EventConnect      EventName = "connect"
	EventConnectError EventName = "connect_error"
	EventDisconnect   EventName = "disconnect"
	// EventReconnectFailed fires once when the transport stops retrying
	EventReconnectFailed EventName = "reconnect_failed"
)

// Inbound server events
const (
	EventNewMessage     EventName = "new_message"
	EventTyping         EventName = "typing"
	EventPresenceUpdate EventName = "presence_update"
	EventInit           EventName = "init"
)

// Outbound client events
const (
	EventClientReady      EventName = "client_ready"
	EventJoinChat         EventName = "join_chat"
	EventLeaveChat        EventName = "leave_chat"
	EventSendMessage      EventName = "send_message"
	EventReadMessage      EventName = "read_message"
	EventCallStarted      EventName = "call_started"
	EventCallICECandidate EventName = "call_ice_candidate"
	EventCallSDPOffer     EventName = "call_sdp_offer"
	EventCallSDPAnswer    EventName = "call_sdp_answer"
)

// IsLifecycle reports whether the event is produced by the transport itself
// rather than received from the server
func (e EventName) IsLifecycle() bool {
	switch e {
	case EventConnect, EventConnectError, EventDisconnect, EventReconnectFailed:
		return true
	default:
		return false
	}
}

// Envelope is the frame format for both directions
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for the given event
func NewEnvelope(event EventName, data interface{}) (*Envelope, error) {
	// No else needed: early return pattern (guard clause)
	if event == "" {
		return nil, &ValidationError{Field: "event", Message: "event is required"}
	}

	env := &Envelope{Event: event}
	// No else needed: optional operation (payload may be omitted)
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		env.Data = raw
	}
	return env, nil
}

// ParseEnvelope decodes a raw frame
func ParseEnvelope(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	// No else needed: early return pattern (guard clause)
	if env.Event == "" {
		return nil, &ValidationError{Field: "event", Message: "event is required"}
	}
	return &env, nil
}
