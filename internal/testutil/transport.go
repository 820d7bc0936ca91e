package testutil

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/real-rm/golog"
)

// Emitted is one event handed to a FakeTransport
type Emitted struct {
	Event protocol.EventName
	Data  json.RawMessage
}

// FakeTransport is a scriptable in-memory Transport. Tests drive the
// lifecycle explicitly with Connect, Drop and Fire.
type FakeTransport struct {
	*transport.Listeners

	Opts transport.Options

	id        string
	opened    atomic.Bool
	connected atomic.Bool
	closed    atomic.Bool

	mu      sync.Mutex
	emitted []Emitted
}

// NewFakeTransport creates a disconnected fake
func NewFakeTransport(logger *golog.Logger, opts transport.Options) *FakeTransport {
	return &FakeTransport{
		Listeners: transport.NewListeners(logger),
		Opts:      opts,
		id:        uuid.NewString(),
	}
}

func (f *FakeTransport) ID() string      { return f.id }
func (f *FakeTransport) Connected() bool { return f.connected.Load() }

// Open records that the owner started the transport
func (f *FakeTransport) Open() { f.opened.Store(true) }

// Opened reports whether Open was called
func (f *FakeTransport) Opened() bool { return f.opened.Load() }

// Closed reports whether Close was called
func (f *FakeTransport) Closed() bool { return f.closed.Load() }

// Emit records the event when connected
func (f *FakeTransport) Emit(event protocol.EventName, data interface{}) error {
	if !f.connected.Load() {
		return chaterrors.ErrNotConnected()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return chaterrors.ErrInvalidPayload(string(event), err)
	}
	f.mu.Lock()
	f.emitted = append(f.emitted, Emitted{Event: event, Data: raw})
	f.mu.Unlock()
	return nil
}

// Close marks the fake closed and disconnected
func (f *FakeTransport) Close() error {
	f.closed.Store(true)
	f.connected.Store(false)
	return nil
}

// Connect marks the fake connected and fires connect
func (f *FakeTransport) Connect() {
	f.connected.Store(true)
	f.Dispatch(protocol.EventConnect, json.RawMessage(`{}`))
}

// Drop marks the fake disconnected and fires disconnect
func (f *FakeTransport) Drop(reason string) {
	f.connected.Store(false)
	data, _ := json.Marshal(protocol.Lifecycle{Reason: reason})
	f.Dispatch(protocol.EventDisconnect, data)
}

// FailConnect fires connect_error for the given attempt
func (f *FakeTransport) FailConnect(attempt int, message string) {
	data, _ := json.Marshal(protocol.Lifecycle{Message: message, Attempt: attempt})
	f.Dispatch(protocol.EventConnectError, data)
}

// Fire delivers a server event with data marshalled to JSON
func (f *FakeTransport) Fire(event protocol.EventName, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		panic(err)
	}
	f.Dispatch(event, raw)
}

// Emitted returns every recorded emit
func (f *FakeTransport) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// EmittedEvents returns the recorded emits for one event name
func (f *FakeTransport) EmittedEvents(event protocol.EventName) []Emitted {
	var out []Emitted
	for _, e := range f.Emitted() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// ResetEmitted clears the emit log
func (f *FakeTransport) ResetEmitted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = nil
}

// FakeFactory records every transport a session opens
type FakeFactory struct {
	Logger *golog.Logger

	mu         sync.Mutex
	transports []*FakeTransport
}

// Open implements transport.Factory
func (ff *FakeFactory) Open(opts transport.Options) transport.Transport {
	ft := NewFakeTransport(ff.Logger, opts)
	ff.mu.Lock()
	ff.transports = append(ff.transports, ft)
	ff.mu.Unlock()
	return ft
}

// Last returns the most recently opened transport, or nil
func (ff *FakeFactory) Last() *FakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.transports) == 0 {
		return nil
	}
	return ff.transports[len(ff.transports)-1]
}

// Count returns how many transports were opened
func (ff *FakeFactory) Count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.transports)
}

// All returns every opened transport in order
func (ff *FakeFactory) All() []*FakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return append([]*FakeTransport(nil), ff.transports...)
}
