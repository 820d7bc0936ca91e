package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/testutil"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestListeners_DispatchOrder(t *testing.T) {
	l := transport.NewListeners(testutil.CreateTestLogger(t))

	var calls []string
	l.OnAny(func(event protocol.EventName, _ json.RawMessage) { calls = append(calls, "any:"+string(event)) })
	l.On(protocol.EventTyping, func(json.RawMessage) { calls = append(calls, "first") })
	l.On(protocol.EventTyping, func(json.RawMessage) { calls = append(calls, "second") })
	l.On(protocol.EventInit, func(json.RawMessage) { calls = append(calls, "other") })

	l.Dispatch(protocol.EventTyping, json.RawMessage(`{}`))

	assert.Equal(t, []string{"any:typing", "first", "second"}, calls)
}

func TestListeners_Off(t *testing.T) {
	l := transport.NewListeners(testutil.CreateTestLogger(t))

	var calls []string
	first := l.On(protocol.EventTyping, func(json.RawMessage) { calls = append(calls, "first") })
	l.On(protocol.EventTyping, func(json.RawMessage) { calls = append(calls, "second") })

	l.Off(protocol.EventTyping, first)
	l.Off(protocol.EventTyping, first)
	l.Off(protocol.EventInit, 999)
	l.Dispatch(protocol.EventTyping, nil)

	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, l.ListenerCount(protocol.EventTyping))
}

func TestListeners_RemoveAll(t *testing.T) {
	l := transport.NewListeners(testutil.CreateTestLogger(t))

	called := false
	l.On(protocol.EventTyping, func(json.RawMessage) { called = true })
	anyID := l.OnAny(func(protocol.EventName, json.RawMessage) { called = true })
	l.OffAny(anyID)
	l.OnAny(func(protocol.EventName, json.RawMessage) { called = true })

	l.RemoveAllListeners()
	l.Dispatch(protocol.EventTyping, nil)

	assert.False(t, called)
	assert.Equal(t, 0, l.ListenerCount(protocol.EventTyping))
}

func TestListeners_PanicIsolation(t *testing.T) {
	l := transport.NewListeners(testutil.CreateTestLogger(t))

	reached := false
	l.On(protocol.EventTyping, func(json.RawMessage) { panic("bad listener") })
	l.On(protocol.EventTyping, func(json.RawMessage) { reached = true })

	assert.NotPanics(t, func() { l.Dispatch(protocol.EventTyping, nil) })
	assert.True(t, reached)
}

func TestListeners_OffDuringDispatch(t *testing.T) {
	l := transport.NewListeners(testutil.CreateTestLogger(t))

	var second transport.ListenerID
	count := 0
	l.On(protocol.EventTyping, func(json.RawMessage) { l.Off(protocol.EventTyping, second) })
	second = l.On(protocol.EventTyping, func(json.RawMessage) { count++ })

	// The in-flight snapshot still delivers once
	l.Dispatch(protocol.EventTyping, nil)
	l.Dispatch(protocol.EventTyping, nil)

	assert.Equal(t, 1, count)
}
