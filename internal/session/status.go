package session

import (
	"sync"

	"github.com/real-rm/chatsocket/internal/metrics"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// Status is the connection state of a Session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StatusListener observes status transitions
type StatusListener func(Status)

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

type statusEntry struct {
	id uint64
	fn StatusListener
}

// statusBroadcaster holds the current status and notifies listeners
// synchronously, in registration order, outside its lock
type statusBroadcaster struct {
	logger *golog.Logger

	mu        sync.Mutex
	current   Status
	nextID    uint64
	listeners []statusEntry
}

func newStatusBroadcaster(logger *golog.Logger) *statusBroadcaster {
	metrics.ConnectionStatus.Set(float64(StatusDisconnected))
	return &statusBroadcaster{logger: logger, current: StatusDisconnected}
}

func (b *statusBroadcaster) get() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// subscribe registers fn and invokes it once with the current status
// before returning
func (b *statusBroadcaster) subscribe(fn StatusListener) Unsubscribe {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, statusEntry{id: id, fn: fn})
	current := b.current
	b.mu.Unlock()

	b.notify(fn, current)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *statusBroadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.listeners {
		if e.id == id {
			next := make([]statusEntry, 0, len(b.listeners)-1)
			next = append(next, b.listeners[:i]...)
			b.listeners = append(next, b.listeners[i+1:]...)
			return
		}
	}
}

// set records status without notifying. The session sets under its
// lifecycle lock and broadcasts after releasing it.
func (b *statusBroadcaster) set(status Status) (previous Status, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	previous = b.current
	// No else needed: early return pattern (not a transition)
	if previous == status {
		return previous, false
	}
	b.current = status
	metrics.ConnectionStatus.Set(float64(status))
	return previous, true
}

// broadcast notifies the listeners registered now of a transition made by set
func (b *statusBroadcaster) broadcast(previous, status Status) {
	b.mu.Lock()
	listeners := b.listeners
	b.mu.Unlock()

	b.logger.Info("Connection status changed", "from", previous.String(), "to", status.String())
	for _, e := range listeners {
		b.notify(e.fn, status)
	}
}

func (b *statusBroadcaster) notify(fn StatusListener, status Status) {
	defer util.Recover(b.logger, "status_listener", "status", status.String())
	fn(status)
}
