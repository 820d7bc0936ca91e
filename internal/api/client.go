// Package api is the REST collaborator of the chat client: the chat list,
// cursor-paginated message history, and message send. The REST API is the
// system of record for messages; the socket only carries notifications.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
	chaterrors "github.com/real-rm/chatsocket/internal/errors"
	"github.com/real-rm/chatsocket/internal/metrics"
	"github.com/real-rm/chatsocket/internal/protocol"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/golog"
)

// HeaderRequestID carries the client request id on every call
const HeaderRequestID = "X-Request-ID"

// Page selects a window of a chat's history. Before and After are message
// ids; at most one should be set. Limit 0 uses the server default.
type Page struct {
	Before string
	After  string
	Limit  int
}

// File is one attachment uploaded with a message
type File struct {
	Name   string
	Reader io.Reader
}

// Client calls the chat REST API with a bearer token
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *golog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for baseURL (scheme and host, no trailing path)
func New(baseURL, token string, logger *golog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: constants.DefaultContextTimeout},
		logger:     logger.WithGroup("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListChats returns the current user's chats
func (c *Client) ListChats(ctx context.Context) ([]protocol.ChatRoom, error) {
	var chats []protocol.ChatRoom
	// No else needed: early return pattern (guard clause)
	if err := c.do(ctx, "list_chats", http.MethodGet, constants.PathChats, nil, "", &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

type messagePage struct {
	Messages []protocol.Message `json:"messages"`
	HasMore  bool               `json:"hasMore"`
}

// ListMessages returns one page of a chat's history, oldest first, and
// whether more messages exist past the page in the cursor's direction
func (c *Client) ListMessages(ctx context.Context, chatID string, page Page) ([]protocol.Message, bool, error) {
	// No else needed: early return pattern (guard clause)
	if err := util.ValidateNotEmpty(chatID, "chat ID"); err != nil {
		return nil, false, err
	}

	q := url.Values{}
	if page.Before != "" {
		q.Set("before", page.Before)
	}
	if page.After != "" {
		q.Set("after", page.After)
	}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}

	path := messagesPath(chatID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp messagePage
	// No else needed: early return pattern (guard clause)
	if err := c.do(ctx, "list_messages", http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, false, err
	}
	return resp.Messages, resp.HasMore, nil
}

// SendMessage stores a message through the API and returns it as persisted.
// Messages with attachments are sent as multipart form data.
func (c *Client) SendMessage(ctx context.Context, chatID, content string, attachments ...File) (*protocol.Message, error) {
	// No else needed: early return pattern (guard clause)
	if err := util.ValidateNotEmpty(chatID, "chat ID"); err != nil {
		return nil, err
	}
	// No else needed: early return pattern (guard clause)
	if len(content) > protocol.MaxContentLength {
		return nil, chaterrors.ErrInvalidPayload(
			fmt.Sprintf("content exceeds maximum length of %d characters", protocol.MaxContentLength), nil)
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	if len(attachments) == 0 {
		body, err = util.MarshalJSON(map[string]string{constants.MultipartContent: content})
		contentType = constants.ContentTypeJSON
	} else {
		body, contentType, err = encodeMultipart(content, attachments)
	}
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return nil, chaterrors.ErrInvalidPayload("failed to encode message", err)
	}

	var msg protocol.Message
	// No else needed: early return pattern (guard clause)
	if err := c.do(ctx, "send_message", http.MethodPost, messagesPath(chatID), body, contentType, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func messagesPath(chatID string) string {
	return fmt.Sprintf(constants.PathChatMessages, url.PathEscape(chatID))
}

func encodeMultipart(content string, attachments []File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	// No else needed: early return pattern (guard clause)
	if err := w.WriteField(constants.MultipartContent, content); err != nil {
		return nil, "", err
	}
	for _, f := range attachments {
		part, err := w.CreateFormFile(constants.MultipartFiles, f.Name)
		// No else needed: early return pattern (guard clause)
		if err != nil {
			return nil, "", err
		}
		// No else needed: early return pattern (guard clause)
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, "", fmt.Errorf("failed to read attachment %s: %w", f.Name, err)
		}
	}
	// No else needed: early return pattern (guard clause)
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// do performs one request and decodes a 2xx JSON body into out
func (c *Client) do(ctx context.Context, operation, method, path string, body []byte, contentType string, out interface{}) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.APIRequests.WithLabelValues(operation, outcome).Inc()
		metrics.APILatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return chaterrors.ErrRequestFailed(err)
	}
	requestID := util.RequestIDFromContext(ctx)
	req.Header.Set(HeaderRequestID, requestID)
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if c.token != "" {
		req.Header.Set(constants.HeaderAuthorization, util.BearerHeader(c.token))
	}
	if contentType != "" {
		req.Header.Set(constants.HeaderContentType, contentType)
	}

	resp, err := c.httpClient.Do(req)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		util.LogError(c.logger, "api", operation, err, "request_id", requestID)
		return chaterrors.ErrRequestFailed(err)
	}
	defer resp.Body.Close()

	// No else needed: early return pattern (guard clause)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodySize))
		apiErr := chaterrors.ErrHTTPStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
		c.logger.Warn("API request rejected",
			"operation", operation,
			"status", resp.StatusCode,
			"request_id", requestID)
		return apiErr
	}

	// No else needed: early return pattern (guard clause)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return chaterrors.ErrInvalidResponse(err)
	}

	outcome = "ok"
	c.logger.Debug("API request completed",
		"operation", operation,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))
	return nil
}
