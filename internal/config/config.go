// Package config resolves the chat client configuration.
// Priority: environment variable > config file (goconfig) > built-in default.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/util"
	"github.com/real-rm/goconfig"
)

// Config holds all client configuration
type Config struct {
	Socket  SocketConfig
	API     APIConfig
	Auth    AuthConfig
	Chat    ChatConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// SocketConfig holds the realtime connection and its reconnection policy
type SocketConfig struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectDelayMax time.Duration
	DialTimeout       time.Duration
}

// APIConfig holds the REST collaborator settings
type APIConfig struct {
	URL     string
	Timeout time.Duration
}

// AuthConfig locates the persisted token
type AuthConfig struct {
	TokenFile string
}

// ChatConfig holds chat controller tuning
type ChatConfig struct {
	TypingExpiry time.Duration // 0 disables local expiry
	TypingWindow time.Duration // window of the outbound typing throttle
	TypingLimit  int           // typing:true emits per window per chat, 0 disables throttling
	PageSize     int
}

// LogConfig holds golog settings
type LogConfig struct {
	Dir            string
	Level          string
	StandardOutput bool
}

// MetricsConfig holds the optional Prometheus endpoint; empty Addr disables it
type MetricsConfig struct {
	Addr string
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			URL:               constants.DefaultServerURL,
			ReconnectAttempts: constants.DefaultReconnectAttempts,
			ReconnectDelay:    constants.DefaultReconnectDelay,
			ReconnectDelayMax: constants.DefaultReconnectDelayMax,
			DialTimeout:       constants.DialTimeout,
		},
		API: APIConfig{
			URL:     constants.DefaultAPIURL,
			Timeout: constants.DefaultContextTimeout,
		},
		Auth: AuthConfig{TokenFile: constants.DefaultTokenFile},
		Chat: ChatConfig{
			TypingExpiry: constants.DefaultTypingExpiry,
			TypingWindow: constants.DefaultTypingWindow,
			TypingLimit:  constants.DefaultTypingLimit,
			PageSize:     constants.DefaultMessagePageSize,
		},
		Log: LogConfig{
			Dir:            constants.DefaultLogDir,
			Level:          constants.DefaultLogLevel,
			StandardOutput: true,
		},
		Metrics: MetricsConfig{Addr: constants.DefaultMetricsAddr},
	}
}

// Load builds the configuration from the environment and the accessor.
// A nil accessor resolves from the environment and defaults only.
func Load(accessor *goconfig.ConfigAccessor) (*Config, error) {
	cfg := Default()
	r := reader{accessor: accessor}

	origin := r.str(constants.EnvOrigin, "app.origin", "")

	cfg.Socket.URL = r.str(constants.EnvSocketURL, "socket.url", "")
	// No else needed: optional operation (derive from origin)
	if cfg.Socket.URL == "" {
		cfg.Socket.URL = SocketURLFromOrigin(origin)
	}
	cfg.Socket.ReconnectAttempts = r.integer("socket.reconnect_attempts", cfg.Socket.ReconnectAttempts)
	cfg.Socket.ReconnectDelay = r.duration("socket.reconnect_delay", cfg.Socket.ReconnectDelay)
	cfg.Socket.ReconnectDelayMax = r.duration("socket.reconnect_delay_max", cfg.Socket.ReconnectDelayMax)
	cfg.Socket.DialTimeout = r.duration("socket.dial_timeout", cfg.Socket.DialTimeout)

	cfg.API.URL = r.str(constants.EnvAPIURL, "api.url", "")
	// No else needed: optional operation (derive from origin)
	if cfg.API.URL == "" {
		cfg.API.URL = APIURLFromOrigin(origin)
	}
	cfg.API.Timeout = r.duration("api.timeout", cfg.API.Timeout)

	cfg.Auth.TokenFile = r.str(constants.EnvTokenFile, "auth.token_file", cfg.Auth.TokenFile)

	cfg.Chat.TypingExpiry = r.duration("chat.typing_expiry", cfg.Chat.TypingExpiry)
	cfg.Chat.TypingWindow = r.duration("chat.typing_window", cfg.Chat.TypingWindow)
	cfg.Chat.TypingLimit = r.integer("chat.typing_limit", cfg.Chat.TypingLimit)
	cfg.Chat.PageSize = r.integer("chat.page_size", cfg.Chat.PageSize)

	cfg.Log.Dir = r.str("", "log.dir", cfg.Log.Dir)
	cfg.Log.Level = r.str(constants.EnvLogLevel, "log.level", cfg.Log.Level)
	cfg.Log.StandardOutput = r.boolean("log.standardOutput", cfg.Log.StandardOutput)

	cfg.Metrics.Addr = r.str(constants.EnvMetrics, "metrics.addr", cfg.Metrics.Addr)

	// No else needed: early return pattern (guard clause)
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("failed to load configuration: %w", errors.Join(r.errs...))
	}
	return cfg, nil
}

// SocketURLFromOrigin derives the socket endpoint from the app origin:
// http becomes ws, https becomes wss, the port is replaced by the fallback
// port and the path by the socket path. An unusable origin yields the default URL.
func SocketURLFromOrigin(origin string) string {
	u, ok := parseOrigin(origin)
	// No else needed: early return pattern (guard clause)
	if !ok {
		return constants.DefaultServerURL
	}
	scheme := "ws"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(u.Hostname(), constants.FallbackPort),
		Path:   constants.DefaultSocketPath,
	}).String()
}

// APIURLFromOrigin derives the REST base URL from the app origin with the
// fallback port. An unusable origin yields the default URL.
func APIURLFromOrigin(origin string) string {
	u, ok := parseOrigin(origin)
	// No else needed: early return pattern (guard clause)
	if !ok {
		return constants.DefaultAPIURL
	}
	scheme := "http"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "https"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(u.Hostname(), constants.FallbackPort),
	}).String()
}

func parseOrigin(origin string) (*url.URL, bool) {
	// No else needed: early return pattern (guard clause)
	if strings.TrimSpace(origin) == "" {
		return nil, false
	}
	u, err := url.Parse(strings.TrimSpace(origin))
	// No else needed: early return pattern (guard clause)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	return u, true
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	// Validate socket config
	if err := util.ValidateURL(c.Socket.URL, "ws", "wss"); err != nil {
		errs = append(errs, fmt.Errorf("socket URL: %w", err))
	}
	if c.Socket.ReconnectAttempts < 0 {
		errs = append(errs, errors.New("reconnect attempts cannot be negative"))
	}
	if err := util.ValidatePositiveDuration(c.Socket.ReconnectDelay, "reconnect delay"); err != nil {
		errs = append(errs, err)
	}
	if c.Socket.ReconnectDelayMax < c.Socket.ReconnectDelay {
		errs = append(errs, fmt.Errorf("reconnect delay max (%v) must not be less than reconnect delay (%v)",
			c.Socket.ReconnectDelayMax, c.Socket.ReconnectDelay))
	}
	if err := util.ValidatePositiveDuration(c.Socket.DialTimeout, "dial timeout"); err != nil {
		errs = append(errs, err)
	}

	// Validate API config
	if err := util.ValidateURL(c.API.URL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("API URL: %w", err))
	}
	if err := util.ValidatePositiveDuration(c.API.Timeout, "API timeout"); err != nil {
		errs = append(errs, err)
	}

	// Validate chat config
	if c.Chat.TypingExpiry < 0 {
		errs = append(errs, errors.New("typing expiry cannot be negative"))
	}
	if c.Chat.TypingLimit < 0 {
		errs = append(errs, errors.New("typing limit cannot be negative"))
	}
	if c.Chat.TypingLimit > 0 {
		if err := util.ValidatePositiveDuration(c.Chat.TypingWindow, "typing window"); err != nil {
			errs = append(errs, err)
		}
	}
	if err := util.ValidateRange(c.Chat.PageSize, 1, 500, "page size"); err != nil {
		errs = append(errs, err)
	}

	// Validate log config
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level must be debug, info, warn, or error (got %q)", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// reader applies env > file > default and collects parse errors
type reader struct {
	accessor *goconfig.ConfigAccessor
	errs     []error
}

func (r *reader) str(envKey, key, defaultValue string) string {
	// No else needed: early return pattern (guard clause)
	if envKey != "" {
		if value := strings.TrimSpace(os.Getenv(envKey)); value != "" {
			return value
		}
	}
	// No else needed: early return pattern (guard clause)
	if r.accessor == nil {
		return defaultValue
	}
	value, err := r.accessor.ConfigStringWithDefault(key, defaultValue)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func (r *reader) integer(key string, defaultValue int) int {
	// No else needed: early return pattern (guard clause)
	if r.accessor == nil {
		return defaultValue
	}
	value, err := r.accessor.ConfigIntWithDefault(key, defaultValue)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

func (r *reader) boolean(key string, defaultValue bool) bool {
	// No else needed: early return pattern (guard clause)
	if r.accessor == nil {
		return defaultValue
	}
	value, err := r.accessor.ConfigBoolWithDefault(key, defaultValue)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return value
}

// duration reads a Go duration string such as "1500ms"
func (r *reader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := r.str("", key, defaultValue.String())
	value, err := time.ParseDuration(raw)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s format: %w", key, err))
		return defaultValue
	}
	return value
}
