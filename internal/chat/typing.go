package chat

import (
	"sort"
	"time"
)

// addTypingLocked marks userID typing in chatID and (re)arms its expiry.
// Reports whether the set changed.
func (c *Controller) addTypingLocked(chatID, userID string) bool {
	users, ok := c.typing[chatID]
	if !ok {
		users = make(map[string]*typingEntry)
		c.typing[chatID] = users
	}

	// A refresh replaces the entry so a timer already firing for the old one is ignored
	previous, present := users[userID]
	previous.stop()

	entry := &typingEntry{}
	if c.opts.TypingExpiry > 0 {
		entry.timer = time.AfterFunc(c.opts.TypingExpiry, func() { c.expireTyping(chatID, userID, entry) })
	}
	users[userID] = entry
	return !present
}

// removeTypingLocked drops userID from chatID, removing the chat entry when
// its set becomes empty. Reports whether anything was removed.
func (c *Controller) removeTypingLocked(chatID, userID string) bool {
	users, ok := c.typing[chatID]
	// No else needed: early return pattern (guard clause)
	if !ok {
		return false
	}
	entry, present := users[userID]
	// No else needed: early return pattern (guard clause)
	if !present {
		return false
	}

	entry.stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(c.typing, chatID)
	}
	return true
}

// expireTyping clears an entry whose timer fired, unless it was replaced meanwhile
func (c *Controller) expireTyping(chatID, userID string, entry *typingEntry) {
	c.mu.Lock()
	current, ok := c.typing[chatID][userID]
	if !ok || current != entry {
		c.mu.Unlock()
		return
	}
	c.removeTypingLocked(chatID, userID)
	c.mu.Unlock()

	c.logger.Debug("Typing indicator expired", "chat", chatID, "user", userID)
	c.publish(Change{Kind: ChangeTyping, ChatID: chatID, UserID: userID})
}

// TypingUsers returns the users typing in chatID, sorted
func (c *Controller) TypingUsers(chatID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	users := c.typing[chatID]
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// TypingChats returns the chats with at least one typing user, sorted
func (c *Controller) TypingChats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.typing))
	for id := range c.typing {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
