package protocol

import (
	"encoding/json"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
)

// Outbound is a typed client command
type Outbound interface {
	EventName() EventName
	Validate() error
}

// ClientReady is emitted after every successful connect
type ClientReady struct {
	Timestamp string `json:"timestamp"`
}

// NewClientReady stamps a ClientReady with t in ISO-8601 milliseconds, UTC
func NewClientReady(t time.Time) ClientReady {
	return ClientReady{Timestamp: t.UTC().Format(constants.ClientReadyTimeFormat)}
}

// JoinChat subscribes the connection to a chat room
type JoinChat struct {
	ChatID string `json:"chatId"`
}

// LeaveChat unsubscribes the connection from a chat room
type LeaveChat struct {
	ChatID string `json:"chatId"`
}

// SendMessage is the live notification copy of a message.
// The REST API remains the system of record.
type SendMessage struct {
	ChatID  string
	Message Message
}

// MarshalJSON flattens the message fields next to chatId
func (s SendMessage) MarshalJSON() ([]byte, error) {
	type flat struct {
		ChatID string `json:"chatId"`
		Message
	}
	return json.Marshal(flat{ChatID: s.ChatID, Message: s.Message})
}

// ReadMessage is a read receipt
type ReadMessage struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// TypingIndicator tells chat members the user started or stopped typing
type TypingIndicator struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

// CallType is audio or video
type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

// CallStarted announces a call to the chat's participants
type CallStarted struct {
	CallID       string   `json:"callId"`
	ChatID       string   `json:"chatId"`
	CallType     CallType `json:"callType"`
	Participants []string `json:"participants,omitempty"`
}

// CallICECandidate relays an ICE candidate to one peer
type CallICECandidate struct {
	CallID    string          `json:"callId"`
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallSDP relays an SDP offer or answer to one peer
type CallSDP struct {
	Answer bool   `json:"-"`
	CallID string `json:"callId"`
	To     string `json:"to"`
	SDP    string `json:"sdp"`
}

func (ClientReady) EventName() EventName      { return EventClientReady }
func (JoinChat) EventName() EventName         { return EventJoinChat }
func (LeaveChat) EventName() EventName        { return EventLeaveChat }
func (SendMessage) EventName() EventName      { return EventSendMessage }
func (ReadMessage) EventName() EventName      { return EventReadMessage }
func (TypingIndicator) EventName() EventName  { return EventTyping }
func (CallStarted) EventName() EventName      { return EventCallStarted }
func (CallICECandidate) EventName() EventName { return EventCallICECandidate }

// EventName returns call_sdp_answer for answers and call_sdp_offer otherwise
func (c CallSDP) EventName() EventName {
	if c.Answer {
		return EventCallSDPAnswer
	}
	return EventCallSDPOffer
}
