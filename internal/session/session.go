// Package session owns one authenticated real-time connection: it opens and
// replaces the transport, keeps handler registrations alive across
// reconnects, and broadcasts the connection state machine.
//
//	DISCONNECTED --Connect--> CONNECTING --connect--> CONNECTED
//	CONNECTED --disconnect--> DISCONNECTED
//	any --connect_error--> ERROR (the transport keeps retrying)
//	any --Disconnect--> DISCONNECTED
//
// Reconnection belongs to the transport; the session only observes it.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/metrics"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// Handler receives decoded inbound events
type Handler func(protocol.Inbound)

// Config holds the connection policy handed to every transport
type Config struct {
	URL               string // used when Connect gets an empty url
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	DialTimeout       time.Duration
}

// DefaultConfig returns the built-in connection policy
func DefaultConfig() Config {
	return Config{
		URL:               constants.DefaultServerURL,
		ReconnectAttempts: constants.DefaultReconnectAttempts,
		ReconnectDelay:    constants.DefaultReconnectDelay,
		ReconnectDelayMax: constants.DefaultReconnectDelayMax,
		DialTimeout:       constants.DialTimeout,
	}
}

// Option customizes a Session
type Option func(*Session)

// WithFactory replaces the transport factory
func WithFactory(f transport.Factory) Option {
	return func(s *Session) {
		s.factory = f
	}
}

// Session coordinates one logical real-time connection. It is safe for
// concurrent use. Handlers and status listeners run on the transport's
// read goroutine and may call back into the Session.
type Session struct {
	cfg      Config
	logger   *golog.Logger
	factory  transport.Factory
	registry *registry
	status   *statusBroadcaster

	// lifecycle serializes transport replacement and the status
	// transitions driven by transport events. Status listeners are never
	// called while it is held. Lock order: lifecycle, mu, status.
	lifecycle sync.Mutex

	mu                sync.Mutex
	transport         transport.Transport
	reconnectAttempts int
	lastMessages      map[protocol.EventName]json.RawMessage
}

// New creates a disconnected Session
func New(cfg Config, logger *golog.Logger, opts ...Option) *Session {
	if cfg.URL == "" {
		cfg.URL = constants.DefaultServerURL
	}
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = constants.DefaultReconnectAttempts
	}

	sessionLogger := logger.WithGroup("session")
	s := &Session{
		cfg:          cfg,
		logger:       sessionLogger,
		factory:      transport.DefaultFactory,
		registry:     newRegistry(),
		status:       newStatusBroadcaster(sessionLogger),
		lastMessages: make(map[protocol.EventName]json.RawMessage),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect replaces any existing transport with a new one and returns it.
// An empty token is logged and nil is returned without touching the
// current state. Failures after this point surface only as status
// transitions and logs.
func (s *Session) Connect(token, url string) transport.Transport {
	// No else needed: early return pattern (guard clause)
	if token == "" {
		util.LogError(s.logger, "session", "connect", chaterrors.ErrMissingToken())
		return nil
	}
	if url == "" {
		url = s.cfg.URL
	}

	s.lifecycle.Lock()
	s.teardownLocked()

	t := s.factory(transport.Options{
		URL:               url,
		Token:             token,
		Reconnection:      true,
		ReconnectAttempts: s.cfg.ReconnectAttempts,
		ReconnectDelay:    s.cfg.ReconnectDelay,
		ReconnectDelayMax: s.cfg.ReconnectDelayMax,
		DialTimeout:       s.cfg.DialTimeout,
		Logger:            s.logger,
	})

	s.mu.Lock()
	s.transport = t
	s.reconnectAttempts = 0
	s.mu.Unlock()

	t.On(protocol.EventConnect, func(json.RawMessage) { s.handleConnect(t) })
	t.On(protocol.EventConnectError, func(data json.RawMessage) { s.handleConnectError(t, data) })
	t.On(protocol.EventDisconnect, func(data json.RawMessage) { s.handleDisconnect(t, data) })
	t.On(protocol.EventReconnectFailed, func(data json.RawMessage) { s.handleReconnectFailed(t, data) })
	t.OnAny(func(event protocol.EventName, data json.RawMessage) {
		s.logger.Debug("Socket event", "event", event, "transport_id", t.ID(), "bytes", len(data))
	})
	s.registry.reattachAll(t)
	change := s.setStatus(StatusConnecting)
	s.lifecycle.Unlock()

	s.logger.Info("Connecting", "url", url, "transport_id", t.ID(), "handlers", s.registry.size())
	s.announce(change)
	t.Open()
	return t
}

// Disconnect detaches every listener, closes the transport and moves to
// DISCONNECTED. It is safe to call repeatedly and from a handler.
func (s *Session) Disconnect() {
	s.lifecycle.Lock()
	s.teardownLocked()
	s.mu.Lock()
	s.reconnectAttempts = 0
	s.mu.Unlock()
	change := s.setStatus(StatusDisconnected)
	s.lifecycle.Unlock()

	s.announce(change)
}

// teardownLocked detaches and closes the live transport. The caller holds
// s.lifecycle.
func (s *Session) teardownLocked() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	// No else needed: early return pattern (nothing to tear down)
	if t == nil {
		return
	}
	t.RemoveAllListeners()
	if err := t.Close(); err != nil {
		util.LogError(s.logger, "session", "close transport", err, "transport_id", t.ID())
	}
}

// statusChange is a transition stored under s.lifecycle and announced to
// listeners after it is released
type statusChange struct {
	previous Status
	status   Status
	changed  bool
}

func (s *Session) setStatus(status Status) statusChange {
	previous, changed := s.status.set(status)
	return statusChange{previous: previous, status: status, changed: changed}
}

func (s *Session) announce(change statusChange) {
	// No else needed: optional operation (unchanged status is not announced)
	if change.changed {
		s.status.broadcast(change.previous, change.status)
	}
}

// isCurrent reports whether t is still the live transport; events from
// a replaced transport are ignored
func (s *Session) isCurrent(t transport.Transport) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport == t
}

// transitionFrom moves to status on behalf of an event from t. The
// currency check, apply and the status write happen under s.lifecycle so
// a concurrent Connect or Disconnect cannot interleave. It returns false,
// changing nothing, when t has been replaced.
func (s *Session) transitionFrom(t transport.Transport, status Status, apply func()) bool {
	s.lifecycle.Lock()
	// No else needed: early return pattern (stale transport)
	if !s.isCurrent(t) {
		s.lifecycle.Unlock()
		return false
	}
	if apply != nil {
		apply()
	}
	change := s.setStatus(status)
	s.lifecycle.Unlock()

	s.announce(change)
	return true
}

func (s *Session) handleConnect(t transport.Transport) {
	current := s.transitionFrom(t, StatusConnected, func() {
		s.mu.Lock()
		s.reconnectAttempts = 0
		s.mu.Unlock()
		s.registry.reattachAll(t)
	})
	// No else needed: early return pattern (stale transport)
	if !current {
		return
	}

	s.logger.Info("Connected", "transport_id", t.ID())
	s.Send(protocol.NewClientReady(time.Now()))
}

func (s *Session) handleConnectError(t transport.Transport, data json.RawMessage) {
	var info protocol.Lifecycle
	_ = json.Unmarshal(data, &info)

	var attempts int
	current := s.transitionFrom(t, StatusError, func() {
		s.mu.Lock()
		s.reconnectAttempts++
		attempts = s.reconnectAttempts
		s.mu.Unlock()
	})
	// No else needed: early return pattern (stale transport)
	if !current {
		return
	}

	s.logger.Warn("Connection error",
		"attempt", attempts,
		"max_attempts", s.cfg.ReconnectAttempts,
		"error", info.Message)

	// No else needed: logging only (the transport's policy decides what happens next)
	if attempts >= s.cfg.ReconnectAttempts {
		util.LogError(s.logger, "session", "connect", chaterrors.ErrReconnectExhausted(attempts),
			"transport_id", t.ID())
	}
}

func (s *Session) handleDisconnect(t transport.Transport, data json.RawMessage) {
	var info protocol.Lifecycle
	_ = json.Unmarshal(data, &info)

	// No else needed: optional operation (stale transport)
	if s.transitionFrom(t, StatusDisconnected, nil) {
		s.logger.Info("Disconnected", "transport_id", t.ID(), "reason", info.Reason)
	}
}

func (s *Session) handleReconnectFailed(t transport.Transport, data json.RawMessage) {
	var info protocol.Lifecycle
	_ = json.Unmarshal(data, &info)

	// No else needed: optional operation (stale transport)
	if s.transitionFrom(t, StatusDisconnected, nil) {
		s.logger.Error("Transport gave up reconnecting", "transport_id", t.ID(), "error", info.Message)
	}
}

// On registers a durable handler for event. It is kept across reconnects
// and attached immediately when a transport exists. The raw payload is
// recorded for LastMessage before the handler runs.
func (s *Session) On(event protocol.EventName, handler Handler) *Subscription {
	wrapper := func(data json.RawMessage) {
		s.mu.Lock()
		s.lastMessages[event] = data
		s.mu.Unlock()

		in, err := protocol.Decode(event, data)
		// No else needed: early return pattern (invalid payloads never reach handlers)
		if err != nil {
			metrics.DecodeErrors.WithLabelValues(string(event)).Inc()
			s.logger.Warn("Dropping invalid payload", "event", event, "error", err)
			return
		}
		handler(in)
	}
	reg := s.registry.register(event, wrapper)

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	// No else needed: optional operation (attached on the next connect otherwise)
	if t != nil {
		s.registry.attach(reg, t)
	}

	return &Subscription{session: s, id: reg.id, event: event}
}

// Off removes a handler from the registry and the live transport
func (s *Session) Off(sub *Subscription) {
	// No else needed: optional operation (nil subscription)
	if sub != nil {
		sub.Unsubscribe()
	}
}

func (s *Session) off(id uint64) {
	removed, ok := s.registry.remove(id)
	// No else needed: early return pattern (already removed)
	if !ok {
		return
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	// No else needed: optional operation (detach only from the transport it is attached to)
	if t != nil && removed.attachedTo == t.ID() {
		t.Off(removed.event, removed.listenerID)
	}
}

// Emit hands an event to the transport. It returns false, and drops the
// event, when the session is not connected. true means a local hand-off
// only, not delivery.
func (s *Session) Emit(event protocol.EventName, data interface{}) bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	// No else needed: early return pattern (never queued)
	if t == nil || !t.Connected() || s.status.get() != StatusConnected {
		metrics.EmitsDropped.WithLabelValues(string(event)).Inc()
		s.logger.Warn("Cannot emit while not connected", "event", event, "status", s.status.get().String())
		return false
	}

	// No else needed: early return pattern (guard clause)
	if err := t.Emit(event, data); err != nil {
		metrics.EmitsDropped.WithLabelValues(string(event)).Inc()
		util.LogError(s.logger, "session", "emit", err, "event", event)
		return false
	}
	return true
}

// Send validates a typed command and emits it
func (s *Session) Send(cmd protocol.Outbound) bool {
	// No else needed: early return pattern (guard clause)
	if err := cmd.Validate(); err != nil {
		util.LogError(s.logger, "session", "send", chaterrors.ErrInvalidPayload(string(cmd.EventName()), err))
		return false
	}
	return s.Emit(cmd.EventName(), cmd)
}

// OnStatusChange registers listener and invokes it once with the current
// status before returning
func (s *Session) OnStatusChange(listener StatusListener) Unsubscribe {
	return s.status.subscribe(listener)
}

// Status returns the cached connection status
func (s *Session) Status() Status {
	return s.status.get()
}

// IsConnected is true only when a transport exists, the transport reports
// itself connected, and the cached status is CONNECTED
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	return t != nil && t.Connected() && s.status.get() == StatusConnected
}

// ReconnectAttempts returns the consecutive connect errors since the last
// successful connect
func (s *Session) ReconnectAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectAttempts
}

// Transport returns the live transport, or nil
func (s *Session) Transport() transport.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// LastMessage returns the most recent raw payload dispatched for event
func (s *Session) LastMessage(event protocol.EventName) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.lastMessages[event]
	return data, ok
}

// HandlerCount returns how many handlers are registered for event
func (s *Session) HandlerCount(event protocol.EventName) int {
	return s.registry.count(event)
}

// Subscription identifies one handler registered with On
type Subscription struct {
	session *Session
	id      uint64
	event   protocol.EventName
	once    sync.Once
}

// Event returns the event the handler is registered for
func (sub *Subscription) Event() protocol.EventName {
	return sub.event
}

// Unsubscribe removes the handler. It takes effect for future dispatches;
// a dispatch already in progress may still deliver once.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.session.off(sub.id)
	})
}
