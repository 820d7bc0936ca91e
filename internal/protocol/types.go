package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// UserRef identifies a user. The server sends either a bare id string or a
// populated user object, both decode into UserRef.
type UserRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

// MarshalJSON writes a bare id when no other field is populated
func (u UserRef) MarshalJSON() ([]byte, error) {
	if u.Name == "" {
		return json.Marshal(u.ID)
	}
	type alias UserRef
	return json.Marshal(alias(u))
}

// UnmarshalJSON accepts "id" or {"_id": "id", "name": "..."}
func (u *UserRef) UnmarshalJSON(data []byte) error {
	// No else needed: early return pattern (guard clause)
	if len(data) == 0 || string(data) == "null" {
		*u = UserRef{}
		return nil
	}

	// No else needed: early return pattern (guard clause)
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*u = UserRef{ID: id}
		return nil
	}

	type alias UserRef
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("user reference: %w", err)
	}
	*u = UserRef(a)
	return nil
}

// Attachment describes a file attached to a message
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Message represents a chat message as sent by the server
type Message struct {
	ID          string       `json:"_id"`
	ChatRoom    string       `json:"chatRoom"`
	Sender      UserRef      `json:"sender"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"createdAt"`
	Read        bool         `json:"read"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChatRoom represents a chat in the user's chat list
type ChatRoom struct {
	ID           string    `json:"_id"`
	Participants []UserRef `json:"participants"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	Name         string    `json:"name,omitempty"`
	IsGroup      bool      `json:"isGroup,omitempty"`
	UnreadCount  int       `json:"unreadCount,omitempty"`
}

// HasParticipant reports whether userID is a member of the chat
func (c *ChatRoom) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
