// Package chat turns session events into chat state: the most-recently-active
// chat list, the open chat's messages, per-chat typing sets and presence.
// It also issues the commands a chat screen needs back through the session.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/real-rm/chatsocket/internal/api"
	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/ratelimit"
	"github.com/real-rm/chatsocket/internal/session"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// Socket is the part of session.Session the controller uses
type Socket interface {
	On(event protocol.EventName, handler session.Handler) *session.Subscription
	Send(cmd protocol.Outbound) bool
	IsConnected() bool
}

// MessageAPI is the REST collaborator the controller uses
type MessageAPI interface {
	ListChats(ctx context.Context) ([]protocol.ChatRoom, error)
	ListMessages(ctx context.Context, chatID string, page api.Page) ([]protocol.Message, bool, error)
	SendMessage(ctx context.Context, chatID, content string, attachments ...api.File) (*protocol.Message, error)
}

// ChangeKind identifies which part of the state changed
type ChangeKind int

const (
	ChangeChats ChangeKind = iota
	ChangeMessages
	ChangeTyping
	ChangePresence
	ChangeActiveChat
	// ChangeUnknownChat reports a message for a chat missing from the list.
	// The chat is not synthesized; callers refresh with LoadChats.
	ChangeUnknownChat
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeChats:
		return "chats"
	case ChangeMessages:
		return "messages"
	case ChangeTyping:
		return "typing"
	case ChangePresence:
		return "presence"
	case ChangeActiveChat:
		return "active_chat"
	case ChangeUnknownChat:
		return "unknown_chat"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every state update
type Change struct {
	Kind      ChangeKind
	ChatID    string
	MessageID string
	UserID    string
}

// Observer receives state changes
type Observer func(Change)

// Options tunes a Controller
type Options struct {
	// CurrentUserID suppresses read receipts for the user's own messages
	CurrentUserID string
	// TypingExpiry clears a typing entry not refreshed within the window; 0 disables
	TypingExpiry time.Duration
	// TypingLimiter throttles outbound typing:true per chat; nil disables throttling
	TypingLimiter *ratelimit.Limiter
	// PageSize is the number of messages fetched per page
	PageSize int
	// Now overrides the clock used for lastActivity when a message has no timestamp
	Now func() time.Time
}

type observerEntry struct {
	id uint64
	fn Observer
}

type typingEntry struct {
	timer *time.Timer
}

// Controller holds chat state for one signed-in user
type Controller struct {
	socket Socket
	api    MessageAPI
	opts   Options
	logger *golog.Logger

	mu         sync.Mutex
	chats      []protocol.ChatRoom
	activeChat string
	messages   []protocol.Message
	messageIDs map[string]struct{}
	hasMore    bool
	typing     map[string]map[string]*typingEntry
	online     map[string]bool
	observers  []observerEntry
	nextObsID  uint64

	subs      []*session.Subscription
	closeOnce sync.Once
}

// New creates a controller and subscribes it to the socket's events
func New(socket Socket, client MessageAPI, logger *golog.Logger, opts Options) *Controller {
	// No else needed: optional operation (defaults)
	if opts.PageSize <= 0 {
		opts.PageSize = constants.DefaultMessagePageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Controller{
		socket:     socket,
		api:        client,
		opts:       opts,
		logger:     logger.WithGroup("chat"),
		messageIDs: make(map[string]struct{}),
		typing:     make(map[string]map[string]*typingEntry),
		online:     make(map[string]bool),
	}

	c.subs = []*session.Subscription{
		socket.On(protocol.EventConnect, func(protocol.Inbound) { c.handleConnect() }),
		socket.On(protocol.EventNewMessage, func(in protocol.Inbound) {
			if nm, ok := in.(protocol.NewMessage); ok {
				c.handleNewMessage(nm.Message)
			}
		}),
		socket.On(protocol.EventTyping, func(in protocol.Inbound) {
			if t, ok := in.(protocol.Typing); ok {
				c.handleTyping(t)
			}
		}),
		socket.On(protocol.EventPresenceUpdate, func(in protocol.Inbound) {
			if p, ok := in.(protocol.PresenceUpdate); ok {
				c.handlePresence(p)
			}
		}),
		socket.On(protocol.EventInit, func(in protocol.Inbound) {
			if i, ok := in.(protocol.Init); ok {
				c.handleInit(i)
			}
		}),
	}
	return c
}

// Close leaves the open chat, unsubscribes from the socket and stops
// typing timers. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		active := c.activeChat
		c.activeChat = ""
		c.resetMessagesLocked()
		for chatID, users := range c.typing {
			for _, entry := range users {
				entry.stop()
			}
			delete(c.typing, chatID)
		}
		subs := c.subs
		c.subs = nil
		c.mu.Unlock()

		// No else needed: optional operation (nothing open)
		if active != "" {
			c.socket.Send(protocol.LeaveChat{ChatID: active})
		}
		for _, sub := range subs {
			sub.Unsubscribe()
		}
		c.logger.Debug("Chat controller closed", "active_chat", active)
	})
}

// Observe registers fn for every change and returns a func that removes it
func (c *Controller) Observe(fn Observer) func() {
	c.mu.Lock()
	c.nextObsID++
	id := c.nextObsID
	c.observers = append(c.observers, observerEntry{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, o := range c.observers {
				if o.id == id {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers changes to a snapshot of observers; call without c.mu held
func (c *Controller) publish(changes ...Change) {
	// No else needed: early return pattern (guard clause)
	if len(changes) == 0 {
		return
	}
	c.mu.Lock()
	observers := make([]observerEntry, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, change := range changes {
		for _, o := range observers {
			c.notify(o.fn, change)
		}
	}
}

func (c *Controller) notify(fn Observer, change Change) {
	defer util.Recover(c.logger, "chat_observer", "change", change.Kind.String())
	fn(change)
}

func (e *typingEntry) stop() {
	if e != nil && e.timer != nil {
		e.timer.Stop()
	}
}
