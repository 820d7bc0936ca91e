package session

import (
	"sync"

	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/transport"
)

// registration is one durable handler. It records where its native
// listener is currently attached so reattachment never double-registers.
type registration struct {
	id      uint64
	event   protocol.EventName
	wrapper transport.Listener

	attachedTo string // transport id, empty when detached
	listenerID transport.ListenerID
}

// registry is the source of truth for what should be listening. A
// transport's listener list is rebuilt from it on every connect.
type registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries []*registration
}

func newRegistry() *registry {
	return &registry{}
}

// register appends a handler; insertion order is dispatch order
func (r *registry) register(event protocol.EventName, wrapper transport.Listener) *registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	reg := &registration{id: r.nextID, event: event, wrapper: wrapper}
	r.entries = append(r.entries, reg)
	return reg
}

// attach subscribes one registration on t, replacing a previous
// attachment to the same transport
func (r *registry) attach(reg *registration, t transport.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// No else needed: early return pattern (removed concurrently)
	if !r.containsLocked(reg) {
		return
	}
	r.attachLocked(reg, t)
}

// reattachAll subscribes every registration on t in registration order.
// Repeated calls for the same transport leave exactly one listener each.
func (r *registry) reattachAll(t transport.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.entries {
		r.attachLocked(reg, t)
	}
}

func (r *registry) attachLocked(reg *registration, t transport.Transport) {
	id := t.ID()
	// No else needed: optional operation (first attachment to this transport)
	if reg.attachedTo == id {
		t.Off(reg.event, reg.listenerID)
	}
	reg.listenerID = t.On(reg.event, reg.wrapper)
	reg.attachedTo = id
}

// remove deletes one registration and returns a copy holding its last
// attachment. ok is false when it was already removed.
func (r *registry) remove(id uint64) (removed registration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, reg := range r.entries {
		if reg.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return *reg, true
		}
	}
	return registration{}, false
}

func (r *registry) containsLocked(reg *registration) bool {
	for _, e := range r.entries {
		if e == reg {
			return true
		}
	}
	return false
}

// count returns the number of registrations for event
func (r *registry) count(event protocol.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, reg := range r.entries {
		if reg.event == event {
			n++
		}
	}
	return n
}

// size returns the total number of registrations
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
