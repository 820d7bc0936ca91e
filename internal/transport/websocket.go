package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/real-rm/chatsocket/internal/constants"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/metrics"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// Disconnect reasons reported in the disconnect payload
const (
	ReasonClientClose = "io client disconnect"
	ReasonServerClose = "io server disconnect"
	ReasonTransport   = "transport close"
	ReasonPingTimeout = "ping timeout"
)

var errSendQueueFull = errors.New("send queue full")

var _ Transport = (*WSTransport)(nil)

// WSTransport is a Transport over gorilla/websocket.
//
// One goroutine owns dialing, reading and dispatch, so listeners observe
// lifecycle and server events in order. A second goroutine per connection
// owns socket writes.
type WSTransport struct {
	*Listeners

	id     string
	opts   Options
	logger *golog.Logger
	dialer *websocket.Dialer

	connected atomic.Bool

	// mu protects the current connection and its write queue
	mu     sync.Mutex
	conn   *websocket.Conn
	outbox chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	openOnce  sync.Once
	closeOnce sync.Once
}

// New creates a transport that connects once Open is called.
// Progress is reported through lifecycle events.
func New(opts Options) *WSTransport {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()
	logger := opts.Logger.WithGroup("transport")
	t := &WSTransport{
		Listeners: NewListeners(logger),
		id:        id,
		opts:      opts,
		logger:    logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	return t
}

// Open starts the connect loop and returns immediately
func (t *WSTransport) Open() {
	t.openOnce.Do(func() {
		util.SafeGo(t.logger, "transport_run", t.run)
	})
}

// ID returns the transport instance id
func (t *WSTransport) ID() string {
	return t.id
}

// Connected reports whether a socket is currently open
func (t *WSTransport) Connected() bool {
	return t.connected.Load()
}

// Emit queues one envelope for the write pump
func (t *WSTransport) Emit(event protocol.EventName, data interface{}) error {
	// No else needed: early return pattern (guard clause)
	if !t.connected.Load() {
		return chaterrors.ErrNotConnected()
	}

	env, err := protocol.NewEnvelope(event, data)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrInvalidPayload(string(event), err)
	}
	frame, err := util.MarshalJSON(env)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrInvalidPayload(string(event), err)
	}

	t.mu.Lock()
	outbox := t.outbox
	t.mu.Unlock()

	// No else needed: early return pattern (guard clause)
	if outbox == nil {
		return chaterrors.ErrNotConnected()
	}

	select {
	case outbox <- frame:
		metrics.EventsEmitted.WithLabelValues(string(event)).Inc()
		return nil
	default:
		return chaterrors.ErrWriteFailed(errSendQueueFull)
	}
}

// Close stops reconnecting and closes the current socket. Frames already
// queued by Emit are flushed by the write pump before the close frame. It is
// idempotent and does not wait for the read loop.
func (t *WSTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.connected.Store(false)
		t.logger.Info("Transport closed", "transport_id", t.id)
	})
	return nil
}

func (t *WSTransport) closed() bool {
	return t.ctx.Err() != nil
}

// run dials, reads until the socket drops, and redials under the
// reconnection policy until the transport is closed or retries run out
func (t *WSTransport) run() {
	established := false
	for {
		conn, err := t.dialWithRetry()
		if err != nil {
			// No else needed: early return pattern (closed while dialing)
			if t.closed() {
				return
			}
			util.LogError(t.logger, "transport", "connect", err, "transport_id", t.id)
			t.dispatchLifecycle(protocol.EventReconnectFailed, protocol.Lifecycle{Message: err.Error()})
			return
		}

		outbox := make(chan []byte, constants.SendQueueSize)
		t.mu.Lock()
		t.conn = conn
		t.outbox = outbox
		t.mu.Unlock()

		// No else needed: early return pattern (Close raced the dial)
		if t.closed() {
			conn.Close()
			return
		}

		if established {
			metrics.Reconnects.Inc()
		}
		established = true

		done := make(chan struct{})
		t.connected.Store(true)
		util.SafeGo(t.logger, "transport_write_pump", func() { t.writePump(conn, outbox, done) })

		t.logger.Info("Transport connected", "transport_id", t.id)
		t.dispatchLifecycle(protocol.EventConnect, protocol.Lifecycle{})

		reason := t.readPump(conn)

		t.connected.Store(false)
		close(done)
		t.mu.Lock()
		if t.conn == conn {
			t.conn = nil
			t.outbox = nil
		}
		t.mu.Unlock()
		conn.Close()

		t.logger.Info("Transport disconnected", "transport_id", t.id, "reason", reason)
		t.dispatchLifecycle(protocol.EventDisconnect, protocol.Lifecycle{Reason: reason})

		// No else needed: early return pattern (closed or reconnection disabled)
		if t.closed() || !t.opts.Reconnection {
			return
		}
	}
}

func (t *WSTransport) newBackOff() backoff.BackOff {
	// No else needed: early return pattern (single attempt)
	if !t.opts.Reconnection {
		return &backoff.StopBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.opts.ReconnectDelay
	b.MaxInterval = t.opts.ReconnectDelayMax
	b.Multiplier = constants.ReconnectMultiplier
	b.RandomizationFactor = constants.ReconnectJitter
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(t.opts.ReconnectAttempts))
}

// dialWithRetry makes one initial attempt plus up to ReconnectAttempts
// retries. Every failed attempt fires connect_error.
func (t *WSTransport) dialWithRetry() (*websocket.Conn, error) {
	var conn *websocket.Conn
	attempt := 0

	operation := func() error {
		// No else needed: early return pattern (guard clause)
		if t.closed() {
			return backoff.Permanent(t.ctx.Err())
		}
		attempt++

		c, err := t.dialOnce()
		// No else needed: early return pattern (guard clause)
		if err == nil {
			conn = c
			return nil
		}

		// No else needed: early return pattern (closing cancels the dial)
		if t.closed() {
			return backoff.Permanent(t.ctx.Err())
		}

		metrics.ConnectErrors.Inc()
		t.dispatchLifecycle(protocol.EventConnectError, protocol.Lifecycle{Message: err.Error(), Attempt: attempt})

		var chatErr *chaterrors.ChatError
		// No else needed: early return pattern (auth failures are not retried)
		if errors.As(err, &chatErr) && chatErr.IsFatal() {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		t.logger.Info("Reconnecting",
			"transport_id", t.id,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(t.newBackOff(), t.ctx), notify)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		var chatErr *chaterrors.ChatError
		if errors.As(err, &chatErr) && chatErr.Category == chaterrors.CategoryAuth {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrReconnectExhausted(attempt), err)
	}
	return conn, nil
}

// dialOnce performs one handshake. The token travels both as a bearer
// header and as a query parameter for proxies that drop headers.
func (t *WSTransport) dialOnce() (*websocket.Conn, error) {
	u, err := url.Parse(t.opts.URL)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		dialErr := chaterrors.ErrDialFailed(err)
		dialErr.Recoverable = false
		return nil, dialErr
	}
	q := u.Query()
	q.Set(constants.QueryParamToken, t.opts.Token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set(constants.HeaderAuthorization, util.BearerHeader(t.opts.Token))

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.DialTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		// No else needed: early return pattern (rejected credentials)
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, chaterrors.NewAuthError(chaterrors.ErrCodeUnauthorized,
				fmt.Sprintf("Handshake rejected with status %d", resp.StatusCode), err)
		}
		return nil, chaterrors.ErrDialFailed(err)
	}
	return conn, nil
}

// readPump reads frames until the socket fails and returns the disconnect reason
func (t *WSTransport) readPump(conn *websocket.Conn) string {
	conn.SetReadLimit(constants.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(t.opts.PongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(constants.WriteWait))
		// No else needed: a closed socket surfaces on the next read
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, frame, err := conn.ReadMessage()
		// No else needed: error handling with return (exits loop)
		if err != nil {
			return t.disconnectReason(err)
		}

		env, err := protocol.ParseEnvelope(frame)
		// No else needed: error handling with continue (skips to next iteration)
		if err != nil {
			t.logger.Warn("Dropping malformed frame", "transport_id", t.id, "error", err)
			metrics.DecodeErrors.WithLabelValues("envelope").Inc()
			continue
		}

		// No else needed: error handling with continue (skips to next iteration)
		if env.Event.IsLifecycle() {
			t.logger.Warn("Ignoring reserved event from server", "event", env.Event)
			continue
		}

		metrics.EventsReceived.WithLabelValues(string(env.Event)).Inc()
		t.Dispatch(env.Event, env.Data)
	}
}

func (t *WSTransport) disconnectReason(err error) string {
	// No else needed: early return pattern (guard clause)
	if t.closed() {
		return ReasonClientClose
	}

	var closeErr *websocket.CloseError
	// No else needed: early return pattern (guard clause)
	if errors.As(err, &closeErr) {
		// No else needed: logging only
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			util.LogError(t.logger, "transport", "read frame", err, "transport_id", t.id)
		}
		return ReasonServerClose
	}

	var netErr interface{ Timeout() bool }
	// No else needed: early return pattern (guard clause)
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}
	return ReasonTransport
}

// writePump owns all data writes on conn and sends heartbeats
func (t *WSTransport) writePump(conn *websocket.Conn, outbox <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(t.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-t.ctx.Done():
			t.flush(conn, outbox)
			return

		case frame := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			// No else needed: error handling with return (closing unblocks the reader)
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				util.LogError(t.logger, "transport", "write frame", err, "transport_id", t.id)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			// No else needed: error handling with return (closing unblocks the reader)
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// flush writes the frames still queued, then the close frame, then closes conn
func (t *WSTransport) flush(conn *websocket.Conn, outbox <-chan []byte) {
	defer conn.Close()
	for {
		select {
		case frame := <-outbox:
			conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			// No else needed: early return pattern (socket already broken)
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (t *WSTransport) dispatchLifecycle(event protocol.EventName, payload protocol.Lifecycle) {
	data, err := util.MarshalJSON(payload)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(t.logger, "transport", "marshal lifecycle payload", err, "event", event)
		return
	}
	t.Dispatch(event, data)
}
