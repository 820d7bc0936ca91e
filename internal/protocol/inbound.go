package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/util"
)

// Inbound is the closed set of events a handler can receive.
// Use a type switch over the concrete types in this file.
type Inbound interface {
	Event() EventName
	inbound()
}

// NewMessage carries a message pushed by the server
type NewMessage struct {
	Message Message
}

// Typing reports that a user started or stopped typing in a chat
type Typing struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceUpdate reports a single user's presence change
type PresenceUpdate struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// Online reports whether the status means the user is online
func (p PresenceUpdate) Online() bool {
	return p.Status == constants.PresenceOnline
}

// Init is the server's initial state snapshot sent after connecting.
// OnlineUsers is nil when the payload has no onlineUsers field.
type Init struct {
	OnlineUsers map[string]bool `json:"onlineUsers,omitempty"`
}

// Lifecycle is a transport-produced event (connect, connect_error, disconnect, reconnect_failed)
type Lifecycle struct {
	Name    EventName `json:"-"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
}

// Raw is any event this package has no typed payload for
type Raw struct {
	Name EventName
	Data json.RawMessage
}

func (NewMessage) Event() EventName     { return EventNewMessage }
func (Typing) Event() EventName         { return EventTyping }
func (PresenceUpdate) Event() EventName { return EventPresenceUpdate }
func (Init) Event() EventName           { return EventInit }
func (l Lifecycle) Event() EventName    { return l.Name }
func (r Raw) Event() EventName          { return r.Name }

func (NewMessage) inbound()     {}
func (Typing) inbound()         {}
func (PresenceUpdate) inbound() {}
func (Init) inbound()           {}
func (Lifecycle) inbound()      {}
func (Raw) inbound()            {}

// Decode turns a raw payload into its typed variant and validates it.
// Unknown event names decode to Raw and are never an error.
func Decode(event EventName, data json.RawMessage) (Inbound, error) {
	switch event {
	case EventNewMessage:
		var msg Message
		if err := unmarshalPayload(event, data, &msg); err != nil {
			return nil, err
		}
		nm := NewMessage{Message: msg}
		if err := nm.Validate(); err != nil {
			return nil, err
		}
		return nm, nil

	case EventTyping:
		var t Typing
		if err := unmarshalPayload(event, data, &t); err != nil {
			return nil, err
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		return t, nil

	case EventPresenceUpdate:
		var p PresenceUpdate
		if err := unmarshalPayload(event, data, &p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil

	case EventInit:
		var in Init
		// No else needed: optional operation (init may carry no payload)
		if len(data) > 0 {
			if err := unmarshalPayload(event, data, &in); err != nil {
				return nil, err
			}
		}
		return in, nil

	case EventConnect, EventConnectError, EventDisconnect, EventReconnectFailed:
		l := Lifecycle{Name: event}
		// No else needed: optional operation (connect carries no payload)
		if len(data) > 0 {
			if err := unmarshalPayload(event, data, &l); err != nil {
				return nil, err
			}
		}
		return l, nil

	default:
		return Raw{Name: event, Data: data}, nil
	}
}

func unmarshalPayload(event EventName, data json.RawMessage, v interface{}) error {
	// No else needed: early return pattern (guard clause)
	if len(data) == 0 {
		return &ValidationError{Field: "data", Message: fmt.Sprintf("%s requires a payload", event)}
	}
	if err := util.UnmarshalJSON(data, v); err != nil {
		return &ValidationError{Field: "data", Message: fmt.Sprintf("invalid %s payload: %v", event, err)}
	}
	return nil
}
