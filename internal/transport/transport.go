// Package transport provides the persistent WebSocket connection used by a
// chat session, including its reconnection policy and native listener list.
package transport

import (
	"encoding/json"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/golog"
)

// ListenerID identifies a native listener so it can be removed
type ListenerID uint64

// Listener receives the raw payload of one event
type Listener func(data json.RawMessage)

// AnyListener receives every event with its name
type AnyListener func(event protocol.EventName, data json.RawMessage)

// Transport is a bidirectional event channel with built-in reconnection.
// Lifecycle events (connect, connect_error, disconnect, reconnect_failed)
// are delivered through the same listener list as server events.
type Transport interface {
	// ID uniquely identifies this transport instance
	ID() string
	// Open starts connecting in the background. Listeners attached before
	// Open observe the first connect. Calls after the first are ignored.
	Open()
	On(event protocol.EventName, fn Listener) ListenerID
	Off(event protocol.EventName, id ListenerID)
	OnAny(fn AnyListener) ListenerID
	OffAny(id ListenerID)
	RemoveAllListeners()
	// Emit hands one event to the write queue. It fails when not connected.
	Emit(event protocol.EventName, data interface{}) error
	Connected() bool
	// Close stops reconnection and closes the socket without waiting for
	// the read loop, so it may be called from a listener.
	Close() error
}

// Factory creates an unopened transport. A session uses it for every Connect.
type Factory func(opts Options) Transport

// Options configures a transport
type Options struct {
	URL   string
	Token string

	Reconnection      bool
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	DialTimeout       time.Duration

	// Zero values use the package defaults
	PingPeriod time.Duration
	PongWait   time.Duration

	Logger *golog.Logger
}

func (o *Options) applyDefaults() {
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = constants.DefaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if o.ReconnectDelayMax <= 0 {
		o.ReconnectDelayMax = constants.DefaultReconnectDelayMax
	}
	if o.ReconnectDelayMax < o.ReconnectDelay {
		o.ReconnectDelayMax = o.ReconnectDelay
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = constants.DialTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = constants.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
}

// DefaultFactory creates gorilla/websocket transports
func DefaultFactory(opts Options) Transport {
	return New(opts)
}
