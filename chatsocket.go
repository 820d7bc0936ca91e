// Package chatsocket is the real-time chat client. A Client owns one
// authenticated session, the chat controller that consumes it, and the
// REST client the controller persists messages through.
//
//	client, err := chatsocket.New(cfg, logger)
//	client.Start(token)
//	defer client.Shutdown(ctx)
//	client.Chat().SelectChat(ctx, chatID)
package chatsocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/real-rm/chatsocket/internal/api"
	"github.com/real-rm/chatsocket/internal/auth"
	"github.com/real-rm/chatsocket/internal/chat"
	"github.com/real-rm/chatsocket/internal/config"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/ratelimit"
	"github.com/real-rm/chatsocket/internal/session"
	"github.com/real-rm/chatsocket/internal/transport"
	"github.com/real-rm/golog"
)

var (
	// ErrAlreadyStarted is returned by a second Start before Shutdown
	ErrAlreadyStarted = errors.New("client already started")
	// ErrNotStarted is returned by operations that need a started client
	ErrNotStarted = errors.New("client not started")
)

// Client is the top-level application context
type Client struct {
	cfg     *config.Config
	base    *golog.Logger
	logger  *golog.Logger
	session *session.Session

	httpClient *http.Client
	factory    transport.Factory

	mu      sync.Mutex
	started bool
	userID  string
	api     *api.Client
	chat    *chat.Controller
	typing  *ratelimit.Limiter
}

// Option customizes a Client
type Option func(*Client)

// WithTransportFactory replaces the websocket transport, for tests
func WithTransportFactory(f transport.Factory) Option {
	return func(c *Client) { c.factory = f }
}

// WithHTTPClient replaces the HTTP client used for REST calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New validates cfg and creates a stopped client
func New(cfg *config.Config, logger *golog.Logger, opts ...Option) (*Client, error) {
	// No else needed: optional operation (defaults)
	if cfg == nil {
		cfg = config.Default()
	}
	// No else needed: early return pattern (guard clause)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		base:   logger,
		logger: logger.WithGroup("chatsocket"),
	}
	for _, opt := range opts {
		opt(c)
	}

	sessionOpts := []session.Option{}
	if c.factory != nil {
		sessionOpts = append(sessionOpts, session.WithFactory(c.factory))
	}
	c.session = session.New(session.Config{
		URL:               cfg.Socket.URL,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    cfg.Socket.ReconnectDelay,
		ReconnectDelayMax: cfg.Socket.ReconnectDelayMax,
		DialTimeout:       cfg.Socket.DialTimeout,
	}, logger, sessionOpts...)

	return c, nil
}

// Start signs in with token: it builds the REST client and chat controller
// and opens the session. The token is only decoded, never verified; the
// server verifies it. The client lock is released before the session
// connects, so status listeners may call back into the Client.
func (c *Client) Start(token string) error {
	// No else needed: early return pattern (guard clause)
	if token == "" {
		return chaterrors.ErrMissingToken()
	}

	c.mu.Lock()
	// No else needed: early return pattern (guard clause)
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	userID := ""
	claims, err := auth.ParseUnverified(token)
	if err != nil {
		c.logger.Warn("Token claims unreadable, read receipts will not skip own messages", "error", err)
	} else {
		userID = claims.UserID
	}

	apiOpts := []api.Option{}
	if c.httpClient != nil {
		apiOpts = append(apiOpts, api.WithHTTPClient(c.httpClient))
	} else {
		apiOpts = append(apiOpts, api.WithHTTPClient(&http.Client{Timeout: c.cfg.API.Timeout}))
	}
	c.api = api.New(c.cfg.API.URL, token, c.base, apiOpts...)

	c.typing = ratelimit.NewLimiter(c.cfg.Chat.TypingWindow, c.cfg.Chat.TypingLimit)
	c.typing.StartCleanup(c.base)

	controller := chat.New(c.session, c.api, c.base, chat.Options{
		CurrentUserID: userID,
		TypingExpiry:  c.cfg.Chat.TypingExpiry,
		TypingLimiter: c.typing,
		PageSize:      c.cfg.Chat.PageSize,
	})
	c.chat = controller
	c.userID = userID
	c.started = true
	c.mu.Unlock()

	t := c.session.Connect(token, c.cfg.Socket.URL)

	c.mu.Lock()
	stopped := c.chat != controller
	c.mu.Unlock()
	// No else needed: optional operation (Shutdown ran while connecting)
	if stopped && c.session.Transport() == t {
		c.session.Disconnect()
		return nil
	}

	c.logger.Info("Chat client started", "user", userID, "socket_url", c.cfg.Socket.URL, "api_url", c.cfg.API.URL)
	return nil
}

// Shutdown leaves the open chat, closes the session and stops background
// work. It returns ctx.Err() if ctx ends first. Safe to call when stopped.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	// No else needed: early return pattern (guard clause)
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	controller, limiter := c.chat, c.typing
	c.started = false
	c.chat = nil
	c.api = nil
	c.typing = nil
	c.userID = ""
	c.mu.Unlock()

	c.logger.Info("Starting graceful shutdown of chat client")

	// Leave before disconnecting so the leave_chat can still go out
	controller.Close()
	c.session.Disconnect()

	done := make(chan struct{})
	go func() {
		limiter.StopCleanup()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Chat client shutdown complete")
		return nil
	case <-ctx.Done():
		c.logger.Warn("Chat client shutdown interrupted", "error", ctx.Err())
		return ctx.Err()
	}
}

// Session returns the transport session
func (c *Client) Session() *session.Session {
	return c.session
}

// Chat returns the chat controller, or nil before Start
func (c *Client) Chat() *chat.Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

// API returns the REST client, or nil before Start
func (c *Client) API() *api.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.api
}

// UserID returns the signed-in user decoded from the token
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Config returns the configuration the client was built with
func (c *Client) Config() *config.Config {
	return c.cfg
}

// OnStatusChange forwards to the session's status broadcaster
func (c *Client) OnStatusChange(listener session.StatusListener) session.Unsubscribe {
	return c.session.OnStatusChange(listener)
}

// Reconnect reopens the session with token after the transport gave up
func (c *Client) Reconnect(token string) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	// No else needed: early return pattern (guard clause)
	if !started {
		return ErrNotStarted
	}
	// No else needed: early return pattern (guard clause)
	if c.session.Connect(token, c.cfg.Socket.URL) == nil {
		return chaterrors.ErrMissingToken()
	}
	return nil
}
