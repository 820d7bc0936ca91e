package session

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/testutil"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *testutil.FakeFactory) {
	t.Helper()
	logger := testutil.CreateTestLogger(t)
	factory := &testutil.FakeFactory{Logger: logger}
	cfg := DefaultConfig()
	cfg.ReconnectAttempts = 3
	return New(cfg, logger, WithFactory(factory.Open)), factory
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func (r *statusRecorder) record(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *statusRecorder) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func TestConnect_EmptyTokenDoesNothing(t *testing.T) {
	s, factory := newTestSession(t)

	assert.Nil(t, s.Connect("", ""))
	assert.Equal(t, 0, factory.Count())
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Nil(t, s.Transport())
}

func TestConnect_PassesPolicyToTransport(t *testing.T) {
	s, factory := newTestSession(t)

	tr := s.Connect("abc", "")
	require.NotNil(t, tr)

	ft := factory.Last()
	assert.Same(t, ft, tr)
	assert.True(t, ft.Opened())
	assert.Equal(t, "abc", ft.Opts.Token)
	assert.Equal(t, DefaultConfig().URL, ft.Opts.URL)
	assert.True(t, ft.Opts.Reconnection)
	assert.Equal(t, 3, ft.Opts.ReconnectAttempts)

	s.Connect("abc", "ws://chat.example.com/ws")
	assert.Equal(t, "ws://chat.example.com/ws", factory.Last().Opts.URL)
}

// Scenario A: DISCONNECTED -> CONNECTING -> CONNECTED, and IsConnected only
// after the CONNECTED transition
func TestConnect_StatusSequence(t *testing.T) {
	s, factory := newTestSession(t)
	rec := &statusRecorder{}
	s.OnStatusChange(rec.record)

	s.Connect("abc", "")
	assert.Equal(t, []Status{StatusDisconnected, StatusConnecting}, rec.all())
	assert.False(t, s.IsConnected())

	factory.Last().Connect()

	assert.Equal(t, []Status{StatusDisconnected, StatusConnecting, StatusConnected}, rec.all())
	assert.True(t, s.IsConnected())
}

func TestConnect_EmitsClientReady(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	ready := ft.EmittedEvents(protocol.EventClientReady)
	require.Len(t, ready, 1)

	var payload protocol.ClientReady
	require.NoError(t, json.Unmarshal(ready[0].Data, &payload))
	assert.NotEmpty(t, payload.Timestamp)
}

func TestConnect_ReplacesPreviousTransport(t *testing.T) {
	s, factory := newTestSession(t)

	s.Connect("abc", "")
	first := factory.Last()
	first.Connect()

	got := 0
	s.On(protocol.EventTyping, func(protocol.Inbound) { got++ })

	s.Connect("abc", "")
	second := factory.Last()

	assert.True(t, first.Closed())
	assert.Equal(t, 0, first.ListenerCount(protocol.EventTyping))
	assert.Equal(t, StatusConnecting, s.Status())

	// Late events from the old transport are ignored
	first.Drop("transport close")
	assert.Equal(t, StatusConnecting, s.Status())

	second.Connect()
	second.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1", IsTyping: true})
	assert.Equal(t, 1, got)
}

func TestDisconnect_Idempotent(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	rec := &statusRecorder{}
	s.OnStatusChange(rec.record)

	s.Disconnect()
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Nil(t, s.Transport())
	assert.True(t, ft.Closed())

	s.Disconnect()
	assert.Equal(t, StatusDisconnected, s.Status())
	assert.Nil(t, s.Transport())
	assert.Equal(t, []Status{StatusConnected, StatusDisconnected}, rec.all())
}

func TestDisconnect_FromHandler(t *testing.T) {
	s, factory := newTestSession(t)
	s.On(protocol.EventTyping, func(protocol.Inbound) { s.Disconnect() })

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	assert.NotPanics(t, func() {
		ft.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1", IsTyping: true})
	})
	assert.Equal(t, StatusDisconnected, s.Status())
}

func TestConnect_ConcurrentLeavesOneOpenTransport(t *testing.T) {
	s, factory := newTestSession(t)

	const callers = 16
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			s.Connect("abc", "")
		}()
	}
	wg.Wait()

	require.Equal(t, callers, factory.Count())
	var open []*testutil.FakeTransport
	for _, ft := range factory.All() {
		if !ft.Closed() {
			open = append(open, ft)
		}
	}
	require.Len(t, open, 1)
	assert.Same(t, open[0], s.Transport())
	assert.Equal(t, StatusConnecting, s.Status())
}

func TestDisconnect_RacingConnectEventEndsDisconnected(t *testing.T) {
	s, factory := newTestSession(t)

	for i := 0; i < 200; i++ {
		s.Connect("abc", "")
		ft := factory.Last()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			ft.Connect()
		}()
		go func() {
			defer wg.Done()
			s.Disconnect()
		}()
		wg.Wait()

		require.Equal(t, StatusDisconnected, s.Status(), "iteration %d", i)
		require.Nil(t, s.Transport(), "iteration %d", i)
		require.False(t, s.IsConnected(), "iteration %d", i)
	}
}

func TestOnStatusChange_ListenerMayReconnect(t *testing.T) {
	s, factory := newTestSession(t)

	done := make(chan struct{})
	var once sync.Once
	s.OnStatusChange(func(st Status) {
		if st == StatusDisconnected && factory.Count() == 1 {
			once.Do(func() {
				s.Connect("abc", "")
				close(done)
			})
		}
	})

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	ft.Drop("transport close")

	<-done
	assert.Equal(t, 2, factory.Count())
	assert.Equal(t, StatusConnecting, s.Status())
	assert.Same(t, factory.Last(), s.Transport())
}

func TestOn_BeforeConnectIsDelivered(t *testing.T) {
	s, factory := newTestSession(t)

	var got []protocol.Inbound
	s.On(protocol.EventNewMessage, func(in protocol.Inbound) { got = append(got, in) })

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	ft.Fire(protocol.EventNewMessage, protocol.Message{ID: "m1", ChatRoom: "c1", Content: "hi"})

	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].(protocol.NewMessage).Message.ID)
}

func TestOn_WhileConnectedAttachesLive(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	got := 0
	s.On(protocol.EventPresenceUpdate, func(protocol.Inbound) { got++ })
	ft.Fire(protocol.EventPresenceUpdate, protocol.PresenceUpdate{UserID: "u1", Status: "online"})

	assert.Equal(t, 1, got)
}

func TestOn_HandlersFireInRegistrationOrder(t *testing.T) {
	s, factory := newTestSession(t)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		s.On(protocol.EventTyping, func(protocol.Inbound) { order = append(order, i) })
	}

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	ft.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1"})

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestReconnect_HandlersSurviveWithoutDuplicates(t *testing.T) {
	s, factory := newTestSession(t)

	got := 0
	s.On(protocol.EventTyping, func(protocol.Inbound) { got++ })

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	for i := 0; i < 3; i++ {
		ft.Drop("transport close")
		assert.Equal(t, StatusDisconnected, s.Status())
		ft.Connect()
		assert.Equal(t, StatusConnected, s.Status())
	}

	ft.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1"})
	assert.Equal(t, 1, got)
	assert.Equal(t, 1, ft.ListenerCount(protocol.EventTyping))
}

func TestOff_RemovesOnlyThatHandler(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	var calls []string
	first := s.On(protocol.EventTyping, func(protocol.Inbound) { calls = append(calls, "first") })
	s.On(protocol.EventTyping, func(protocol.Inbound) { calls = append(calls, "second") })

	s.Off(first)
	first.Unsubscribe()
	s.Off(nil)

	ft.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1"})
	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, s.HandlerCount(protocol.EventTyping))

	// Stays removed after a reconnect
	ft.Drop("transport close")
	ft.Connect()
	calls = nil
	ft.Fire(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u1"})
	assert.Equal(t, []string{"second"}, calls)
}

func TestOn_InvalidPayloadNotDelivered(t *testing.T) {
	s, factory := newTestSession(t)
	got := 0
	s.On(protocol.EventTyping, func(protocol.Inbound) { got++ })

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	ft.Fire(protocol.EventTyping, map[string]string{"chatId": "c1"})

	assert.Equal(t, 0, got)
	last, ok := s.LastMessage(protocol.EventTyping)
	require.True(t, ok)
	assert.JSONEq(t, `{"chatId":"c1"}`, string(last))
}

func TestLastMessage_RecordedBeforeHandler(t *testing.T) {
	s, factory := newTestSession(t)

	var seen json.RawMessage
	s.On(protocol.EventPresenceUpdate, func(protocol.Inbound) {
		seen, _ = s.LastMessage(protocol.EventPresenceUpdate)
	})

	_, ok := s.LastMessage(protocol.EventPresenceUpdate)
	assert.False(t, ok)

	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	ft.Fire(protocol.EventPresenceUpdate, protocol.PresenceUpdate{UserID: "u9", Status: "offline"})

	assert.JSONEq(t, `{"userId":"u9","status":"offline"}`, string(seen))
}

func TestEmit_NotConnectedReturnsFalse(t *testing.T) {
	s, factory := newTestSession(t)

	assert.False(t, s.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))

	s.Connect("abc", "")
	assert.False(t, s.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))

	ft := factory.Last()
	ft.Connect()
	assert.True(t, s.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))

	ft.Drop("transport close")
	assert.False(t, s.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))
}

func TestSend_ValidatesCommand(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()

	assert.False(t, s.Send(protocol.JoinChat{}))
	assert.True(t, s.Send(protocol.ReadMessage{MessageID: "m1", ChatID: "c1"}))
	assert.Len(t, ft.EmittedEvents(protocol.EventJoinChat), 0)
	assert.Len(t, ft.EmittedEvents(protocol.EventReadMessage), 1)
}

func TestConnectError_CountsAttempts(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()

	for i := 1; i <= 4; i++ {
		ft.FailConnect(i, "refused")
		assert.Equal(t, StatusError, s.Status())
		assert.Equal(t, i, s.ReconnectAttempts())
	}

	ft.Connect()
	assert.Equal(t, StatusConnected, s.Status())
	assert.Equal(t, 0, s.ReconnectAttempts())
}

func TestReconnectFailed_MovesToDisconnected(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()

	ft.FailConnect(1, "refused")
	data, _ := json.Marshal(protocol.Lifecycle{Message: "gave up"})
	ft.Dispatch(protocol.EventReconnectFailed, data)

	assert.Equal(t, StatusDisconnected, s.Status())
	assert.False(t, s.IsConnected())
}

func TestIsConnected_ThreeWayCheck(t *testing.T) {
	s, factory := newTestSession(t)
	s.Connect("abc", "")
	ft := factory.Last()
	ft.Connect()
	require.True(t, s.IsConnected())

	// Transport dropped without a disconnect event yet
	ft.Close()
	assert.Equal(t, StatusConnected, s.Status())
	assert.False(t, s.IsConnected())
}

func TestOnStatusChange_InvokedImmediately(t *testing.T) {
	s, _ := newTestSession(t)

	rec := &statusRecorder{}
	unsubscribe := s.OnStatusChange(rec.record)
	assert.Equal(t, []Status{StatusDisconnected}, rec.all())

	unsubscribe()
	unsubscribe()
	s.Connect("abc", "")
	assert.Equal(t, []Status{StatusDisconnected}, rec.all())
}

func TestOnStatusChange_PanickingListenerIsolated(t *testing.T) {
	s, _ := newTestSession(t)

	s.OnStatusChange(func(st Status) {
		if st == StatusConnecting {
			panic("bad listener")
		}
	})
	rec := &statusRecorder{}
	s.OnStatusChange(rec.record)

	assert.NotPanics(t, func() { s.Connect("abc", "") })
	assert.Equal(t, []Status{StatusDisconnected, StatusConnecting}, rec.all())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StatusDisconnected.String())
	assert.Equal(t, "CONNECTING", StatusConnecting.String())
	assert.Equal(t, "CONNECTED", StatusConnected.String())
	assert.Equal(t, "ERROR", StatusError.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
}

func TestNew_DefaultsFactory(t *testing.T) {
	s := New(Config{}, testutil.CreateTestLogger(t))
	assert.NotNil(t, s.factory)
	assert.Equal(t, DefaultConfig().URL, s.cfg.URL)
	var _ transport.Factory = s.factory
}
