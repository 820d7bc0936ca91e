package transport

import (
	"encoding/json"
	"sync"

	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

type listenerEntry struct {
	id ListenerID
	fn Listener
}

type anyEntry struct {
	id ListenerID
	fn AnyListener
}

// Listeners is the native listener list of a transport. Catch-all listeners
// run first, then the listeners of the event in registration order.
type Listeners struct {
	logger *golog.Logger

	mu      sync.RWMutex
	nextID  ListenerID
	byEvent map[protocol.EventName][]listenerEntry
	any     []anyEntry
}

// NewListeners creates an empty listener list
func NewListeners(logger *golog.Logger) *Listeners {
	return &Listeners{
		logger:  logger,
		byEvent: make(map[protocol.EventName][]listenerEntry),
	}
}

// On appends fn to the listeners of event
func (l *Listeners) On(event protocol.EventName, fn Listener) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.byEvent[event] = append(l.byEvent[event], listenerEntry{id: l.nextID, fn: fn})
	return l.nextID
}

// Off removes a single listener. Unknown ids are ignored.
func (l *Listeners) Off(event protocol.EventName, id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.byEvent[event]
	for i, e := range entries {
		if e.id == id {
			// Copy so snapshots taken by an in-flight dispatch stay intact
			next := make([]listenerEntry, 0, len(entries)-1)
			next = append(next, entries[:i]...)
			next = append(next, entries[i+1:]...)
			if len(next) == 0 {
				delete(l.byEvent, event)
			} else {
				l.byEvent[event] = next
			}
			return
		}
	}
}

// OnAny registers a listener for every event, lifecycle events included
func (l *Listeners) OnAny(fn AnyListener) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.any = append(l.any, anyEntry{id: l.nextID, fn: fn})
	return l.nextID
}

// OffAny removes a catch-all listener
func (l *Listeners) OffAny(id ListenerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.any {
		if e.id == id {
			next := make([]anyEntry, 0, len(l.any)-1)
			next = append(next, l.any[:i]...)
			l.any = append(next, l.any[i+1:]...)
			return
		}
	}
}

// RemoveAllListeners drops every listener, catch-all included
func (l *Listeners) RemoveAllListeners() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.byEvent = make(map[protocol.EventName][]listenerEntry)
	l.any = nil
}

// ListenerCount returns the number of listeners attached to event
func (l *Listeners) ListenerCount(event protocol.EventName) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byEvent[event])
}

// Dispatch invokes the listeners of event outside the lock.
// A panicking listener is logged and does not stop the others.
func (l *Listeners) Dispatch(event protocol.EventName, data json.RawMessage) {
	l.mu.RLock()
	anys := l.any
	entries := l.byEvent[event]
	l.mu.RUnlock()

	for _, e := range anys {
		func() {
			defer util.Recover(l.logger, "transport_listener", "event", event)
			e.fn(event, data)
		}()
	}
	for _, e := range entries {
		func() {
			defer util.Recover(l.logger, "transport_listener", "event", event)
			e.fn(data)
		}()
	}
}
