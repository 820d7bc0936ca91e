package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/real-rm/chatsocket/internal/api"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/util"
)

var (
	// ErrNoActiveChat is returned by commands that need an open chat
	ErrNoActiveChat = errors.New("no chat is open")

	errMissingMessageID = errors.New("sent message has no _id")
)

// JoinChat subscribes the connection to a chat room.
// Returns false when the session is not connected.
func (c *Controller) JoinChat(chatID string) bool {
	return c.socket.Send(protocol.JoinChat{ChatID: chatID})
}

// LeaveChat unsubscribes the connection from a chat room
func (c *Controller) LeaveChat(chatID string) bool {
	return c.socket.Send(protocol.LeaveChat{ChatID: chatID})
}

// SelectChat opens chatID: it leaves the previously open chat, joins the new
// one, loads its latest page and issues read receipts for unread messages
// from other users. An empty chatID closes the open chat.
func (c *Controller) SelectChat(ctx context.Context, chatID string) error {
	c.mu.Lock()
	previous := c.activeChat
	// No else needed: early return pattern (guard clause)
	if previous == chatID {
		c.mu.Unlock()
		return nil
	}
	c.activeChat = chatID
	c.resetMessagesLocked()
	if idx := c.chatIndexLocked(chatID); idx >= 0 {
		c.chats[idx].UnreadCount = 0
	}
	c.mu.Unlock()

	// No else needed: optional operation (nothing was open)
	if previous != "" {
		c.LeaveChat(previous)
	}
	c.publish(Change{Kind: ChangeActiveChat, ChatID: chatID})

	// No else needed: early return pattern (guard clause)
	if chatID == "" {
		return nil
	}
	c.JoinChat(chatID)

	msgs, hasMore, err := c.api.ListMessages(ctx, chatID, api.Page{Limit: c.opts.PageSize})
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(c.logger, "chat", "load messages", err, "chat", chatID)
		return fmt.Errorf("failed to load messages for chat %s: %w", chatID, err)
	}

	c.mu.Lock()
	// No else needed: early return pattern (guard clause)
	if c.activeChat != chatID {
		c.mu.Unlock()
		return nil
	}
	// Pushes that arrived while loading are newer than the page
	pushed := c.messages
	c.resetMessagesLocked()
	for _, m := range msgs {
		c.appendMessageLocked(m)
	}
	for _, m := range pushed {
		c.appendMessageLocked(m)
	}
	c.hasMore = hasMore
	unread := c.unreadForeignLocked(msgs)
	c.mu.Unlock()

	for _, m := range unread {
		c.SendReadReceipt(m.ID, chatID)
	}
	c.publish(Change{Kind: ChangeMessages, ChatID: chatID})
	return nil
}

// LoadOlderMessages fetches the page before the oldest loaded message and
// returns how many messages were added
func (c *Controller) LoadOlderMessages(ctx context.Context) (int, error) {
	c.mu.Lock()
	chatID := c.activeChat
	page := api.Page{Limit: c.opts.PageSize}
	if len(c.messages) > 0 {
		page.Before = c.messages[0].ID
	}
	hasMore := c.hasMore || len(c.messages) == 0
	c.mu.Unlock()

	// No else needed: early return pattern (guard clause)
	if chatID == "" {
		return 0, ErrNoActiveChat
	}
	// No else needed: early return pattern (guard clause)
	if !hasMore {
		return 0, nil
	}

	msgs, more, err := c.api.ListMessages(ctx, chatID, page)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(c.logger, "chat", "load older messages", err, "chat", chatID, "before", page.Before)
		return 0, fmt.Errorf("failed to load older messages for chat %s: %w", chatID, err)
	}

	c.mu.Lock()
	// No else needed: early return pattern (guard clause)
	if c.activeChat != chatID {
		c.mu.Unlock()
		return 0, nil
	}
	older := make([]protocol.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, seen := c.messageIDs[m.ID]; seen {
			continue
		}
		c.messageIDs[m.ID] = struct{}{}
		older = append(older, m)
	}
	c.messages = append(older, c.messages...)
	c.hasMore = more
	c.mu.Unlock()

	// No else needed: optional operation (nothing new)
	if len(older) > 0 {
		c.publish(Change{Kind: ChangeMessages, ChatID: chatID})
	}
	return len(older), nil
}

// SendMessage persists content through the REST API, appends the stored
// message to the open chat unless a push already delivered it, and emits
// the live notification copy for the other participants
func (c *Controller) SendMessage(ctx context.Context, content string, attachments ...api.File) (*protocol.Message, error) {
	c.mu.Lock()
	chatID := c.activeChat
	c.mu.Unlock()

	// No else needed: early return pattern (guard clause)
	if chatID == "" {
		return nil, ErrNoActiveChat
	}

	msg, err := c.api.SendMessage(ctx, chatID, content, attachments...)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(c.logger, "chat", "send message", err, "chat", chatID)
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	// No else needed: early return pattern (an id-less message would shadow later ones in the dedup set)
	if msg.ID == "" {
		invalid := chaterrors.ErrInvalidResponse(errMissingMessageID)
		util.LogError(c.logger, "chat", "send message", invalid, "chat", chatID)
		return nil, fmt.Errorf("failed to send message: %w", invalid)
	}
	// No else needed: optional operation (server may omit the room)
	if msg.ChatRoom == "" {
		msg.ChatRoom = chatID
	}

	var changes []Change
	c.mu.Lock()
	if c.touchChatLocked(*msg) {
		changes = append(changes, Change{Kind: ChangeChats, ChatID: chatID, MessageID: msg.ID})
	}
	if c.activeChat == chatID && c.appendMessageLocked(*msg) {
		changes = append(changes, Change{Kind: ChangeMessages, ChatID: chatID, MessageID: msg.ID})
	}
	c.mu.Unlock()

	c.socket.Send(protocol.SendMessage{ChatID: chatID, Message: *msg})
	c.publish(changes...)
	return msg, nil
}

// SendReadReceipt marks a message read locally and tells the server.
// Fire-and-forget: returns false when the emit was dropped.
func (c *Controller) SendReadReceipt(messageID, chatID string) bool {
	c.mu.Lock()
	if chatID == c.activeChat {
		for i := range c.messages {
			if c.messages[i].ID == messageID {
				c.messages[i].Read = true
				break
			}
		}
	}
	c.mu.Unlock()

	return c.socket.Send(protocol.ReadMessage{MessageID: messageID, ChatID: chatID})
}

// SendTypingIndicator tells chat members the user started or stopped typing.
// typing:true is throttled per chat; typing:false always goes out.
func (c *Controller) SendTypingIndicator(chatID string, isTyping bool) bool {
	// No else needed: early return pattern (guard clause)
	if isTyping && c.opts.TypingLimiter != nil && !c.opts.TypingLimiter.Allow(chatID) {
		c.logger.Debug("Typing indicator throttled", "chat", chatID)
		return false
	}
	return c.socket.Send(protocol.TypingIndicator{ChatID: chatID, IsTyping: isTyping})
}

// LoadChats replaces the chat list from the API, most recently active first
func (c *Controller) LoadChats(ctx context.Context) error {
	chats, err := c.api.ListChats(ctx)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(c.logger, "chat", "load chats", err)
		return fmt.Errorf("failed to load chats: %w", err)
	}

	sorted := append([]protocol.ChatRoom(nil), chats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LastActivity.After(sorted[j].LastActivity)
	})

	c.mu.Lock()
	c.chats = sorted
	c.mu.Unlock()

	c.publish(Change{Kind: ChangeChats})
	return nil
}

// SetChats replaces the chat list as given, without reordering
func (c *Controller) SetChats(chats []protocol.ChatRoom) {
	c.mu.Lock()
	c.chats = append([]protocol.ChatRoom(nil), chats...)
	c.mu.Unlock()

	c.publish(Change{Kind: ChangeChats})
}

func (c *Controller) unreadForeignLocked(msgs []protocol.Message) []protocol.Message {
	var out []protocol.Message
	for _, m := range msgs {
		if !m.Read && !c.isOwnLocked(m) {
			out = append(out, m)
		}
	}
	return out
}

// Chats returns a copy of the chat list, most recently active first
func (c *Controller) Chats() []protocol.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ChatRoom(nil), c.chats...)
}

// Messages returns a copy of the open chat's messages, oldest first
func (c *Controller) Messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.messages...)
}

// HasMoreMessages reports whether older messages remain on the server
func (c *Controller) HasMoreMessages() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// ActiveChatID returns the open chat, or "" when none is open
func (c *Controller) ActiveChatID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeChat
}

// IsOnline reports the last known presence of userID
func (c *Controller) IsOnline(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[userID]
}

// OnlineUsers returns the users currently known to be online, sorted
func (c *Controller) OnlineUsers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.online))
	for id, on := range c.online {
		if on {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CanCompose reports whether new messages can be written: only while the
// session is connected
func (c *Controller) CanCompose() bool {
	return c.socket.IsConnected()
}

// CurrentUserID returns the user whose messages are not receipted
func (c *Controller) CurrentUserID() string {
	return c.opts.CurrentUserID
}
