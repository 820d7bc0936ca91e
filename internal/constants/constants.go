// Package constants provides centralized constant definitions for the chatsocket client.
// This eliminates magic numbers and strings throughout the codebase.
package constants

import "time"

// Reconnection policy defaults
const (
	DefaultReconnectAttempts = 5                // Maximum consecutive dial attempts before giving up
	DefaultReconnectDelay    = 1 * time.Second  // Base delay before the first retry
	DefaultReconnectDelayMax = 5 * time.Second  // Cap for the exponential delay
	ReconnectMultiplier      = 2.0              // Growth factor between attempts
	ReconnectJitter          = 0.5              // Randomization factor applied to each delay
	DialTimeout              = 20 * time.Second // Handshake timeout for a single dial
	DefaultContextTimeout    = 10 * time.Second // REST calls
	ShutdownTimeout          = 5 * time.Second  // Graceful shutdown of the terminal client
	DefaultTypingExpiry      = 8 * time.Second  // Local expiry of a typing indicator
	DefaultTypingWindow      = 3 * time.Second  // Window for outbound typing throttle
	DefaultTypingLimit       = 1                // typing:true emits allowed per window per chat
	DefaultMessagePageSize   = 50               // Messages fetched per page
	DefaultCleanupInterval   = 5 * time.Minute  // Typing limiter cleanup
	ClientReadyTimeFormat    = "2006-01-02T15:04:05.000Z07:00"
)

// WebSocket pump timings
const (
	PongWait       = 60 * time.Second
	PingPeriod     = (PongWait * 9) / 10 // must be less than PongWait
	WriteWait      = 10 * time.Second
	SendQueueSize  = 256
	MaxMessageSize = 1048576 // 1MB in bytes for inbound frames
)

// Server URL resolution
const (
	FallbackPort       = "5000"
	DefaultSocketPath  = "/ws"
	DefaultServerURL   = "ws://localhost:5000/ws"
	DefaultAPIURL      = "http://localhost:5000"
	DefaultTokenFile   = "~/.chatsocket/token"
	QueryParamToken    = "token"
	PresenceOnline     = "online"
	DefaultLogLevel    = "info"
	DefaultLogDir      = "logs"
	DefaultMetricsAddr = ""
)

// Environment variables
const (
	EnvSocketURL = "CHAT_SOCKET_URL"
	EnvAPIURL    = "CHAT_API_URL"
	EnvToken     = "CHAT_TOKEN"
	EnvOrigin    = "CHAT_APP_ORIGIN"
	EnvTokenFile = "CHAT_TOKEN_FILE"
	EnvLogLevel  = "CHAT_LOG_LEVEL"
	EnvMetrics   = "CHAT_METRICS_ADDR"
)

// Metrics endpoint server timeouts
const (
	HTTPReadTimeout  = 15 * time.Second
	HTTPWriteTimeout = 15 * time.Second
	HTTPIdleTimeout  = 60 * time.Second
	MetricsPath      = "/metrics"
)

// HTTP Headers
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	BearerPrefix        = "Bearer "
	ContentTypeJSON     = "application/json"
)

// REST paths
const (
	PathChats        = "/api/chats"
	PathChatMessages = "/api/chats/%s/messages"
	MultipartContent = "content"
	MultipartFiles   = "attachments"
	MaxErrorBodySize = 1024 // Max bytes read from an error response body
)
