package transport_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/testutil"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type lifecycleRecorder struct {
	events chan protocol.EventName
	frames chan protocol.Lifecycle
}

// recordLifecycle attaches recorders and opens the transport
func recordLifecycle(tr transport.Transport) *lifecycleRecorder {
	r := &lifecycleRecorder{
		events: make(chan protocol.EventName, 64),
		frames: make(chan protocol.Lifecycle, 64),
	}
	for _, ev := range []protocol.EventName{
		protocol.EventConnect, protocol.EventConnectError,
		protocol.EventDisconnect, protocol.EventReconnectFailed,
	} {
		ev := ev
		tr.On(ev, func(data json.RawMessage) {
			var l protocol.Lifecycle
			_ = json.Unmarshal(data, &l)
			r.events <- ev
			r.frames <- l
		})
	}
	tr.Open()
	return r
}

func (r *lifecycleRecorder) next(t *testing.T) (protocol.EventName, protocol.Lifecycle) {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev, <-r.frames
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for lifecycle event")
		return "", protocol.Lifecycle{}
	}
}

func testOptions(t *testing.T, url, token string) transport.Options {
	return transport.Options{
		URL:               url,
		Token:             token,
		Reconnection:      true,
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
		ReconnectDelayMax: 20 * time.Millisecond,
		DialTimeout:       time.Second,
		Logger:            testutil.CreateTestLogger(t),
	}
}

func TestDial_HandshakeCarriesToken(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	token := testutil.SignToken(t, testutil.TestSecret, "user-1")

	tr := transport.New(testOptions(t, srv.WSURL(), token))
	defer tr.Close()
	rec := recordLifecycle(tr)

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)
	assert.True(t, tr.Connected())
	assert.NotEmpty(t, tr.ID())

	select {
	case hs := <-srv.Handshakes:
		assert.Equal(t, token, hs.HeaderToken)
		assert.Equal(t, token, hs.QueryToken)
		assert.Equal(t, "user-1", hs.UserID)
	case <-time.After(waitTimeout):
		t.Fatal("no handshake recorded")
	}
}

func TestEmit_ReachesServer(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))
	defer tr.Close()
	rec := recordLifecycle(tr)

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)

	require.NoError(t, tr.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))

	select {
	case env := <-srv.Received:
		assert.Equal(t, protocol.EventJoinChat, env.Event)
		assert.JSONEq(t, `{"chatId":"c1"}`, string(env.Data))
	case <-time.After(waitTimeout):
		t.Fatal("server did not receive join_chat")
	}
}

func TestClose_FlushesQueuedFrames(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))
	rec := recordLifecycle(tr)

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)

	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, tr.Emit(protocol.EventLeaveChat, protocol.LeaveChat{ChatID: id}))
	}
	require.NoError(t, tr.Close())

	var got []string
	for len(got) < 3 {
		select {
		case env := <-srv.Received:
			var l protocol.LeaveChat
			require.NoError(t, json.Unmarshal(env.Data, &l))
			got = append(got, l.ChatID)
		case <-time.After(waitTimeout):
			t.Fatalf("server received only %v before close", got)
		}
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, got)

	ev, l := rec.next(t)
	require.Equal(t, protocol.EventDisconnect, ev)
	assert.Equal(t, transport.ReasonClientClose, l.Reason)
}

func TestEmit_NotConnected(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	srv.Reject(http.StatusServiceUnavailable)

	opts := testOptions(t, srv.WSURL(), "token")
	opts.Reconnection = false
	tr := transport.New(opts)
	defer tr.Close()

	assert.Error(t, tr.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))
	tr.Open()
	assert.Error(t, tr.Emit(protocol.EventJoinChat, protocol.JoinChat{ChatID: "c1"}))
}

func TestServerPush_DispatchedToListeners(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))
	defer tr.Close()
	rec := recordLifecycle(tr)

	got := make(chan json.RawMessage, 1)
	tr.On(protocol.EventTyping, func(data json.RawMessage) { got <- data })

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)

	// Malformed and reserved frames are skipped without dropping the socket
	require.NoError(t, srv.PushRaw([]byte(`not json`)))
	require.NoError(t, srv.Push(protocol.EventConnect, nil))
	require.NoError(t, srv.Push(protocol.EventTyping, protocol.Typing{ChatID: "c1", UserID: "u2", IsTyping: true}))

	select {
	case data := <-got:
		assert.JSONEq(t, `{"chatId":"c1","userId":"u2","isTyping":true}`, string(data))
	case <-time.After(waitTimeout):
		t.Fatal("typing not dispatched")
	}
	assert.True(t, tr.Connected())
}

func TestReconnect_AfterServerDrop(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))
	defer tr.Close()
	rec := recordLifecycle(tr)

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)

	srv.DropConnections()

	ev, l := rec.next(t)
	require.Equal(t, protocol.EventDisconnect, ev)
	assert.Equal(t, transport.ReasonServerClose, l.Reason)

	ev, _ = rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)
	assert.True(t, tr.Connected())
}

func TestReconnect_ExhaustsAttempts(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	srv.Reject(http.StatusServiceUnavailable)

	opts := testOptions(t, srv.WSURL(), "token")
	tr := transport.New(opts)
	defer tr.Close()
	rec := recordLifecycle(tr)

	// One initial attempt plus ReconnectAttempts retries
	for i := 1; i <= opts.ReconnectAttempts+1; i++ {
		ev, l := rec.next(t)
		require.Equal(t, protocol.EventConnectError, ev)
		assert.Equal(t, i, l.Attempt)
	}

	ev, l := rec.next(t)
	require.Equal(t, protocol.EventReconnectFailed, ev)
	assert.NotEmpty(t, l.Message)
	assert.False(t, tr.Connected())
}

func TestDial_UnauthorizedIsNotRetried(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, "some-other-secret", "user-1")))
	defer tr.Close()
	rec := recordLifecycle(tr)

	ev, l := rec.next(t)
	require.Equal(t, protocol.EventConnectError, ev)
	assert.Equal(t, 1, l.Attempt)

	ev, _ = rec.next(t)
	assert.Equal(t, protocol.EventReconnectFailed, ev)
}

func TestClose_StopsReconnecting(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))
	rec := recordLifecycle(tr)

	ev, _ := rec.next(t)
	require.Equal(t, protocol.EventConnect, ev)

	require.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
	assert.False(t, tr.Connected())

	ev, l := rec.next(t)
	require.Equal(t, protocol.EventDisconnect, ev)
	assert.Equal(t, transport.ReasonClientClose, l.Reason)

	assert.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, waitTimeout, 10*time.Millisecond)

	select {
	case ev := <-rec.events:
		t.Fatalf("unexpected event after close: %s", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_FromListener(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	tr := transport.New(testOptions(t, srv.WSURL(), testutil.SignToken(t, testutil.TestSecret, "user-1")))

	closed := make(chan struct{})
	tr.On(protocol.EventConnect, func(json.RawMessage) {
		tr.Close()
		close(closed)
	})
	tr.Open()

	select {
	case <-closed:
	case <-time.After(waitTimeout):
		t.Fatal("Close from listener blocked")
	}
	assert.False(t, tr.Connected())
}

func TestClose_NoGoroutineLeak(t *testing.T) {
	srv := testutil.NewFakeServer(t, testutil.TestSecret)
	token := testutil.SignToken(t, testutil.TestSecret, "user-1")

	testutil.WaitForGoroutines()
	before := testutil.MeasureGoroutines()

	for i := 0; i < 5; i++ {
		tr := transport.New(testOptions(t, srv.WSURL(), token))
		rec := recordLifecycle(tr)
		ev, _ := rec.next(t)
		require.Equal(t, protocol.EventConnect, ev)
		tr.Close()
		ev, _ = rec.next(t)
		require.Equal(t, protocol.EventDisconnect, ev)
	}

	assert.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, waitTimeout, 10*time.Millisecond)
	testutil.WaitForGoroutines()
	testutil.AssertGoroutineCount(t, before, testutil.MeasureGoroutines(), "5 dial/close cycles")
}
