package chat

import (
	"github.com/real-rm/chatsocket/internal/protocol"
)

// handleConnect rejoins the open chat after every (re)connect since the
// server forgets room membership with the socket
func (c *Controller) handleConnect() {
	c.mu.Lock()
	active := c.activeChat
	c.mu.Unlock()

	// No else needed: optional operation (nothing open)
	if active != "" {
		c.socket.Send(protocol.JoinChat{ChatID: active})
		c.logger.Debug("Rejoined active chat", "chat", active)
	}
}

func (c *Controller) handleNewMessage(msg protocol.Message) {
	var changes []Change
	sendReceipt := false

	c.mu.Lock()
	if c.touchChatLocked(msg) {
		changes = append(changes, Change{Kind: ChangeChats, ChatID: msg.ChatRoom, MessageID: msg.ID})
	} else {
		changes = append(changes, Change{Kind: ChangeUnknownChat, ChatID: msg.ChatRoom, MessageID: msg.ID})
	}

	// No else needed: optional operation (only the open chat shows messages)
	if msg.ChatRoom == c.activeChat && c.appendMessageLocked(msg) {
		changes = append(changes, Change{Kind: ChangeMessages, ChatID: msg.ChatRoom, MessageID: msg.ID})
		sendReceipt = !c.isOwnLocked(msg)
	}

	// A message supersedes its sender's typing indicator
	if c.removeTypingLocked(msg.ChatRoom, msg.Sender.ID) {
		changes = append(changes, Change{Kind: ChangeTyping, ChatID: msg.ChatRoom, UserID: msg.Sender.ID})
	}
	c.mu.Unlock()

	// No else needed: optional operation (own messages are not receipted)
	if sendReceipt {
		c.SendReadReceipt(msg.ID, msg.ChatRoom)
	}

	// No else needed: optional operation (unknown chat is only reported)
	if changes[0].Kind == ChangeUnknownChat {
		c.logger.Debug("Message for chat not in list", "chat", msg.ChatRoom, "message", msg.ID)
	}
	c.publish(changes...)
}

func (c *Controller) handleTyping(t protocol.Typing) {
	c.mu.Lock()
	var changed bool
	if t.IsTyping {
		changed = c.addTypingLocked(t.ChatID, t.UserID)
	} else {
		changed = c.removeTypingLocked(t.ChatID, t.UserID)
	}
	c.mu.Unlock()

	// No else needed: optional operation (idempotent update)
	if changed {
		c.publish(Change{Kind: ChangeTyping, ChatID: t.ChatID, UserID: t.UserID})
	}
}

func (c *Controller) handlePresence(p protocol.PresenceUpdate) {
	c.mu.Lock()
	c.online[p.UserID] = p.Online()
	c.mu.Unlock()

	c.publish(Change{Kind: ChangePresence, UserID: p.UserID})
}

func (c *Controller) handleInit(in protocol.Init) {
	// No else needed: early return pattern (guard clause)
	if in.OnlineUsers == nil {
		return
	}

	online := make(map[string]bool, len(in.OnlineUsers))
	for id, on := range in.OnlineUsers {
		online[id] = on
	}

	c.mu.Lock()
	c.online = online
	c.mu.Unlock()

	c.publish(Change{Kind: ChangePresence})
}

// touchChatLocked records msg as the chat's latest activity and moves the
// chat to the front. Reports false when the chat is not in the list.
func (c *Controller) touchChatLocked(msg protocol.Message) bool {
	idx := c.chatIndexLocked(msg.ChatRoom)
	// No else needed: early return pattern (guard clause)
	if idx < 0 {
		return false
	}

	chat := c.chats[idx]
	latest := msg
	chat.LastMessage = &latest
	chat.LastActivity = msg.CreatedAt
	if chat.LastActivity.IsZero() {
		chat.LastActivity = c.opts.Now()
	}
	if msg.ChatRoom != c.activeChat && !c.isOwnLocked(msg) {
		chat.UnreadCount++
	}

	copy(c.chats[1:idx+1], c.chats[:idx])
	c.chats[0] = chat
	return true
}

func (c *Controller) chatIndexLocked(chatID string) int {
	for i := range c.chats {
		if c.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

func (c *Controller) isOwnLocked(msg protocol.Message) bool {
	return c.opts.CurrentUserID != "" && msg.Sender.ID == c.opts.CurrentUserID
}

// appendMessageLocked adds msg to the open chat unless its id is already shown
func (c *Controller) appendMessageLocked(msg protocol.Message) bool {
	// No else needed: early return pattern (ids key the dedup set)
	if msg.ID == "" {
		return false
	}
	// No else needed: early return pattern (guard clause)
	if _, seen := c.messageIDs[msg.ID]; seen {
		return false
	}
	c.messageIDs[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	return true
}

func (c *Controller) resetMessagesLocked() {
	c.messages = nil
	c.messageIDs = make(map[string]struct{})
	c.hasMore = false
}
