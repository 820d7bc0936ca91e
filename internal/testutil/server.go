package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/real-rm/chatsocket/internal/auth"
	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Handshake records the credentials presented by one socket upgrade
type Handshake struct {
	HeaderToken string
	QueryToken  string
	UserID      string
}

// MessageQuery records the cursor parameters of one message fetch
type MessageQuery struct {
	ChatID string
	Before string
	After  string
	Limit  int
}

type fakeConn struct {
	conn   *websocket.Conn
	userID string
	mu     sync.Mutex
}

func (c *fakeConn) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(constants.WriteWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// FakeServer is an in-process chat backend: a WebSocket endpoint at /ws
// that validates tokens, records every envelope it receives, and can push
// events, plus the REST chat endpoints backed by in-memory data.
type FakeServer struct {
	*httptest.Server

	// Received gets every envelope sent by any client
	Received chan protocol.Envelope
	// Handshakes gets one entry per accepted socket upgrade
	Handshakes chan Handshake

	validator *auth.JWTValidator

	mu           sync.Mutex
	conns        map[*fakeConn]struct{}
	rejectStatus int
	echoSent     bool
	chats        []protocol.ChatRoom
	messages     map[string][]protocol.Message
	queries      []MessageQuery
	uploads      map[string][]string
}

// NewFakeServer starts a server that accepts tokens signed with secret.
// It is closed when the test ends.
func NewFakeServer(t testing.TB, secret string) *FakeServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &FakeServer{
		Received:   make(chan protocol.Envelope, 256),
		Handshakes: make(chan Handshake, 64),
		validator:  auth.NewJWTValidator(secret),
		conns:      make(map[*fakeConn]struct{}),
		messages:   make(map[string][]protocol.Message),
		uploads:    make(map[string][]string),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(constants.DefaultSocketPath, s.handleSocket)

	api := r.Group(constants.PathChats, s.authMiddleware)
	api.GET("", s.handleListChats)
	api.GET("/:id/messages", s.handleListMessages)
	api.POST("/:id/messages", s.handleSendMessage)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// WSURL returns the socket endpoint URL
func (s *FakeServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + constants.DefaultSocketPath
}

// Close drops every socket and shuts the server down
func (s *FakeServer) Close() {
	s.DropConnections()
	s.Server.Close()
}

// Reject makes subsequent upgrades fail with status; 0 accepts again
func (s *FakeServer) Reject(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectStatus = status
}

// EchoSentMessages makes a REST send push new_message to connected clients
// before answering
func (s *FakeServer) EchoSentMessages(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.echoSent = on
}

// ConnectionCount returns the number of open sockets
func (s *FakeServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Push sends one envelope to every connected client
func (s *FakeServer) Push(event protocol.EventName, data interface{}) error {
	env, err := protocol.NewEnvelope(event, data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.PushRaw(frame)
}

// PushRaw sends a frame verbatim to every connected client
func (s *FakeServer) PushRaw(frame []byte) error {
	s.mu.Lock()
	conns := make([]*fakeConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		if err := c.write(frame); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every socket from the server side
func (s *FakeServer) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = make(map[*fakeConn]struct{})
	s.mu.Unlock()

	for c := range conns {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server restart"),
			time.Now().Add(constants.WriteWait))
		c.mu.Unlock()
		c.conn.Close()
	}
}

// SetChats replaces the chat list served by GET /api/chats
func (s *FakeServer) SetChats(chats []protocol.ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = append([]protocol.ChatRoom(nil), chats...)
}

// SetMessages replaces the history of one chat
func (s *FakeServer) SetMessages(chatID string, msgs []protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[chatID] = append([]protocol.Message(nil), msgs...)
}

// Messages returns the stored history of one chat
func (s *FakeServer) Messages(chatID string) []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.messages[chatID]...)
}

// Queries returns every message fetch seen so far
func (s *FakeServer) Queries() []MessageQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MessageQuery(nil), s.queries...)
}

// Uploads returns the attachment file names received for a message id
func (s *FakeServer) Uploads(messageID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads[messageID]...)
}

func (s *FakeServer) handleSocket(c *gin.Context) {
	s.mu.Lock()
	reject := s.rejectStatus
	s.mu.Unlock()
	// No else needed: early return pattern (guard clause)
	if reject != 0 {
		c.String(reject, "rejected")
		return
	}

	headerToken, _ := bearerToken(c.GetHeader(constants.HeaderAuthorization))
	queryToken := c.Query(constants.QueryParamToken)
	token := headerToken
	if token == "" {
		token = queryToken
	}

	claims, err := s.validator.ValidateToken(token)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		c.String(http.StatusUnauthorized, "Authentication failed")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return
	}

	fc := &fakeConn{conn: conn, userID: claims.UserID}
	s.mu.Lock()
	s.conns[fc] = struct{}{}
	s.mu.Unlock()

	select {
	case s.Handshakes <- Handshake{HeaderToken: headerToken, QueryToken: queryToken, UserID: claims.UserID}:
	default:
	}

	go s.readLoop(fc)
}

func (s *FakeServer) readLoop(fc *fakeConn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, fc)
		s.mu.Unlock()
		fc.conn.Close()
	}()

	for {
		_, frame, err := fc.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.ParseEnvelope(frame)
		if err != nil {
			continue
		}
		select {
		case s.Received <- *env:
		default:
		}
	}
}

// bearerToken returns the token of a "Bearer <token>" header value
func bearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, constants.BearerPrefix)
	return token, ok && token != ""
}

func (s *FakeServer) authMiddleware(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader(constants.HeaderAuthorization))
	// No else needed: early return pattern (guard clause)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	claims, err := s.validator.ValidateToken(token)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set("user_id", claims.UserID)
	c.Next()
}

func (s *FakeServer) handleListChats(c *gin.Context) {
	s.mu.Lock()
	chats := append([]protocol.ChatRoom{}, s.chats...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, chats)
}

// handleListMessages pages a chat's history, which is kept oldest first.
// before returns the newest page older than the cursor, after the oldest
// page newer than it.
func (s *FakeServer) handleListMessages(c *gin.Context) {
	q := MessageQuery{
		ChatID: c.Param("id"),
		Before: c.Query("before"),
		After:  c.Query("after"),
		Limit:  constants.DefaultMessagePageSize,
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		// No else needed: early return pattern (guard clause)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		q.Limit = n
	}

	s.mu.Lock()
	s.queries = append(s.queries, q)
	history := append([]protocol.Message(nil), s.messages[q.ChatID]...)
	s.mu.Unlock()

	sort.SliceStable(history, func(i, j int) bool { return history[i].CreatedAt.Before(history[j].CreatedAt) })

	window := history
	fromStart := false
	if q.Before != "" {
		window = history[:indexOf(history, q.Before, len(history))]
	} else if q.After != "" {
		idx := indexOf(history, q.After, -1)
		window = history[idx+1:]
		fromStart = true
	}

	hasMore := len(window) > q.Limit
	if hasMore {
		if fromStart {
			window = window[:q.Limit]
		} else {
			window = window[len(window)-q.Limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": window, "hasMore": hasMore})
}

func indexOf(msgs []protocol.Message, id string, missing int) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return missing
}

func (s *FakeServer) handleSendMessage(c *gin.Context) {
	chatID := c.Param("id")
	msg := protocol.Message{
		ID:        "m-" + uuid.NewString(),
		ChatRoom:  chatID,
		Sender:    protocol.UserRef{ID: c.GetString("user_id")},
		CreatedAt: time.Now().UTC(),
	}

	var files []string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		msg.Content = c.PostForm(constants.MultipartContent)
		form, err := c.MultipartForm()
		// No else needed: early return pattern (guard clause)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, fh := range form.File[constants.MultipartFiles] {
			files = append(files, fh.Filename)
			msg.Attachments = append(msg.Attachments, protocol.Attachment{
				URL:  fmt.Sprintf("%s/uploads/%s/%s", s.URL, msg.ID, fh.Filename),
				Name: fh.Filename,
				Size: fh.Size,
			})
		}
	} else {
		var body struct {
			Content string `json:"content"`
		}
		// No else needed: early return pattern (guard clause)
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		msg.Content = body.Content
	}

	s.mu.Lock()
	s.messages[chatID] = append(s.messages[chatID], msg)
	if len(files) > 0 {
		s.uploads[msg.ID] = files
	}
	echo := s.echoSent
	s.mu.Unlock()

	// No else needed: optional operation (simulate the push racing the response)
	if echo {
		_ = s.Push(protocol.EventNewMessage, msg)
	}

	c.JSON(http.StatusCreated, msg)
}
