package protocol

import (
	"fmt"
	"strings"
)

// Validation constants
const (
	MaxContentLength  = 10000 // Maximum content length in characters
	MaxIDLength       = 128   // Maximum length of any id field
	MaxSDPLength      = 65536 // Maximum SDP body length
	MaxCallMembers    = 64    // Maximum participants announced in call_started
	MaxAttachmentURLs = 2048  // Maximum attachment URL length
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

func requireID(field, value string) error {
	// No else needed: early return pattern (guard clause)
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s is required", field)}
	}
	// No else needed: early return pattern (guard clause)
	if len(value) > MaxIDLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s exceeds maximum length of %d characters", field, MaxIDLength),
		}
	}
	return nil
}

// Validate checks the pushed message has the fields the chat controller relies on
func (n NewMessage) Validate() error {
	if err := requireID("_id", n.Message.ID); err != nil {
		return err
	}
	if err := requireID("chatRoom", n.Message.ChatRoom); err != nil {
		return err
	}
	for i, a := range n.Message.Attachments {
		if len(a.URL) > MaxAttachmentURLs {
			return &ValidationError{
				Field:   fmt.Sprintf("attachments[%d].url", i),
				Message: fmt.Sprintf("url exceeds maximum length of %d characters", MaxAttachmentURLs),
			}
		}
	}
	return nil
}

// Validate checks both ids are present
func (t Typing) Validate() error {
	if err := requireID("chatId", t.ChatID); err != nil {
		return err
	}
	return requireID("userId", t.UserID)
}

// Validate checks the user id is present
func (p PresenceUpdate) Validate() error {
	return requireID("userId", p.UserID)
}

// Validate checks the timestamp is set
func (c ClientReady) Validate() error {
	// No else needed: early return pattern (guard clause)
	if c.Timestamp == "" {
		return &ValidationError{Field: "timestamp", Message: "timestamp is required"}
	}
	return nil
}

func (j JoinChat) Validate() error  { return requireID("chatId", j.ChatID) }
func (l LeaveChat) Validate() error { return requireID("chatId", l.ChatID) }

// Validate checks the chat id and content length
func (s SendMessage) Validate() error {
	if err := requireID("chatId", s.ChatID); err != nil {
		return err
	}
	// No else needed: early return pattern (guard clause)
	if len(s.Message.Content) > MaxContentLength {
		return &ValidationError{
			Field:   "content",
			Message: fmt.Sprintf("content exceeds maximum length of %d characters", MaxContentLength),
		}
	}
	return nil
}

// Validate checks both ids are present
func (r ReadMessage) Validate() error {
	if err := requireID("messageId", r.MessageID); err != nil {
		return err
	}
	return requireID("chatId", r.ChatID)
}

func (t TypingIndicator) Validate() error { return requireID("chatId", t.ChatID) }

// Validate checks ids, call type and participant count
func (c CallStarted) Validate() error {
	if err := requireID("callId", c.CallID); err != nil {
		return err
	}
	if err := requireID("chatId", c.ChatID); err != nil {
		return err
	}
	// No else needed: early return pattern (guard clause)
	if c.CallType != CallAudio && c.CallType != CallVideo {
		return &ValidationError{Field: "callType", Message: fmt.Sprintf("invalid call type: %s", c.CallType)}
	}
	// No else needed: early return pattern (guard clause)
	if len(c.Participants) > MaxCallMembers {
		return &ValidationError{
			Field:   "participants",
			Message: fmt.Sprintf("at most %d participants allowed", MaxCallMembers),
		}
	}
	return nil
}

// Validate checks ids and that a candidate is present
func (c CallICECandidate) Validate() error {
	if err := requireID("callId", c.CallID); err != nil {
		return err
	}
	if err := requireID("to", c.To); err != nil {
		return err
	}
	// No else needed: early return pattern (guard clause)
	if len(c.Candidate) == 0 {
		return &ValidationError{Field: "candidate", Message: "candidate is required"}
	}
	return nil
}

// Validate checks ids and the SDP body
func (c CallSDP) Validate() error {
	if err := requireID("callId", c.CallID); err != nil {
		return err
	}
	if err := requireID("to", c.To); err != nil {
		return err
	}
	// No else needed: early return pattern (guard clause)
	if c.SDP == "" {
		return &ValidationError{Field: "sdp", Message: "sdp is required"}
	}
	// No else needed: early return pattern (guard clause)
	if len(c.SDP) > MaxSDPLength {
		return &ValidationError{
			Field:   "sdp",
			Message: fmt.Sprintf("sdp exceeds maximum length of %d characters", MaxSDPLength),
		}
	}
	return nil
}
