package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/real-rm/goconfig"
	"github.com/real-rm/golog"

	"github.com/real-rm/chatsocket"
	"github.com/real-rm/chatsocket/internal/chat"
	"github.com/real-rm/chatsocket/internal/config"
	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/real-rm/chatsocket/internal/session"
	"github.com/real-rm/chatsocket/internal/tokenstore"
	"github.com/real-rm/chatsocket/internal/util"
)

// errQuit ends the command loop without an error
var errQuit = errors.New("quit")

// loadConfiguration loads the config file named by RMBASE_FILE_CFG.
// Without one it returns a nil accessor and configuration comes from the
// environment and defaults.
func loadConfiguration() (*goconfig.ConfigAccessor, error) {
	// No else needed: optional operation (config file)
	if os.Getenv("RMBASE_FILE_CFG") == "" {
		return nil, nil
	}

	if err := goconfig.LoadConfig(); err != nil {
		return nil, err
	}

	accessor, err := goconfig.Default()
	if err != nil {
		return nil, err
	}

	return accessor, nil
}

// initializeLogger initializes the logger with the given configuration
func initializeLogger(cfg *config.Config) (*golog.Logger, error) {
	logger, err := golog.InitLog(golog.LogConfig{
		Dir:            cfg.Log.Dir,
		Level:          cfg.Log.Level,
		StandardOutput: cfg.Log.StandardOutput,
		InfoFile:       "info.log",
		WarnFile:       "warn.log",
		ErrorFile:      "error.log",
	})
	if err != nil {
		return nil, err
	}

	return logger, nil
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

// NewHTTPServer creates an HTTP server with production-safe timeout defaults
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  constants.HTTPReadTimeout,
		WriteTimeout: constants.HTTPWriteTimeout,
		IdleTimeout:  constants.HTTPIdleTimeout,
	}
}

// metricsHandler serves the Prometheus registry at /metrics
func metricsHandler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(constants.MetricsPath, gin.WrapH(promhttp.Handler()))
	return r
}

// startMetricsServer serves metrics on addr in the background; empty addr
// disables it and returns nil
func startMetricsServer(addr string, logger *golog.Logger) *http.Server {
	// No else needed: early return pattern (guard clause)
	if addr == "" {
		return nil
	}

	srv := NewHTTPServer(addr, metricsHandler())
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Metrics server listening", "addr", addr, "path", constants.MetricsPath)
	return srv
}

// console serializes writes from the command loop and the observers
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

// watch prints status transitions and messages shown in the open chat
func watch(client *chatsocket.Client, out *console) func() {
	stopStatus := client.OnStatusChange(func(s session.Status) {
		out.printf("* %s", s)
	})

	ctrl := client.Chat()
	stopChat := ctrl.Observe(func(change chat.Change) {
		switch change.Kind {
		case chat.ChangeMessages:
			// No else needed: optional operation (page loads carry no message id)
			if change.MessageID == "" {
				return
			}
			for _, m := range ctrl.Messages() {
				if m.ID == change.MessageID {
					out.printf("[%s] %s: %s", m.ChatRoom, m.Sender.ID, m.Content)
					return
				}
			}
		case chat.ChangeTyping:
			// No else needed: optional operation (only the open chat is shown)
			if change.ChatID == ctrl.ActiveChatID() && len(ctrl.TypingUsers(change.ChatID)) > 0 {
				out.printf("* %s typing", strings.Join(ctrl.TypingUsers(change.ChatID), ", "))
			}
		}
	})

	return func() {
		stopStatus()
		stopChat()
	}
}

// execute runs one input line. Lines starting with / are commands,
// anything else is sent to the open chat.
func execute(ctx context.Context, ctrl *chat.Controller, line string, out *console) error {
	fields := strings.Fields(line)
	// No else needed: early return pattern (guard clause)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "/quit":
		return errQuit

	case "/chats":
		if err := ctrl.LoadChats(ctx); err != nil {
			return err
		}
		for _, c := range ctrl.Chats() {
			out.printf("%s\t%s\tunread=%d", c.ID, c.Name, c.UnreadCount)
		}
		return nil

	case "/join":
		// No else needed: early return pattern (guard clause)
		if len(fields) < 2 {
			return fmt.Errorf("usage: /join <chat id>")
		}
		if err := ctrl.SelectChat(ctx, fields[1]); err != nil {
			return err
		}
		for _, m := range ctrl.Messages() {
			out.printf("[%s] %s: %s", m.ChatRoom, m.Sender.ID, m.Content)
		}
		return nil

	case "/leave":
		return ctrl.SelectChat(ctx, "")

	case "/older":
		n, err := ctrl.LoadOlderMessages(ctx)
		if err != nil {
			return err
		}
		out.printf("* loaded %d older messages", n)
		return nil

	case "/typing":
		// No else needed: early return pattern (guard clause)
		if ctrl.ActiveChatID() == "" {
			return chat.ErrNoActiveChat
		}
		ctrl.SendTypingIndicator(ctrl.ActiveChatID(), true)
		return nil

	case "/online":
		out.printf("* online: %s", strings.Join(ctrl.OnlineUsers(), ", "))
		return nil
	}

	// No else needed: early return pattern (guard clause)
	if !ctrl.CanCompose() {
		return fmt.Errorf("not connected")
	}
	_, err := ctrl.SendMessage(ctx, line)
	return err
}

// runCommands reads lines from in until EOF or /quit
func runCommands(ctx context.Context, ctrl *chat.Controller, in io.Reader, out *console) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := execute(ctx, ctrl, scanner.Text(), out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			out.printf("! %v", err)
		}
	}
	return scanner.Err()
}

// runWithSignalChannel is a testable version of run that accepts a signal channel
func runWithSignalChannel(sigChan chan os.Signal, in io.Reader, out io.Writer) error {
	// Load configuration
	accessor, err := loadConfiguration()
	if err != nil {
		return err
	}
	cfg, err := config.Load(accessor)
	if err != nil {
		return err
	}

	// Initialize logger
	logger, err := initializeLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	token, err := tokenstore.New(cfg.Auth.TokenFile).Load()
	if err != nil {
		return err
	}

	client, err := chatsocket.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Start(token); err != nil {
		return err
	}

	metricsSrv := startMetricsServer(cfg.Metrics.Addr, logger)

	con := &console{out: out}
	stopWatch := watch(client, con)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runCommands(ctx, client.Chat(), in, con)
	}()

	// Wait for shutdown signal or end of input
	select {
	case <-sigChan:
		logger.Info("Shutting down gracefully")
	case err = <-done:
		if err != nil {
			logger.Error("Reading input failed", "error", err)
		}
	}
	cancel()
	stopWatch()

	shutdownCtx, stop := util.NewTimeoutContext(constants.ShutdownTimeout)
	defer stop()
	if metricsSrv != nil {
		if shutdownErr := metricsSrv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("Metrics server shutdown failed", "error", shutdownErr)
		}
	}
	if shutdownErr := client.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	return err
}

func main() {
	if err := runMain(); err != nil {
		log.Fatalf("Failed to run chat client: %v", err)
	}
}

// runMain is the testable main function
func runMain() error {
	sigChan := setupSignalHandler()
	return runWithSignalChannel(sigChan, os.Stdin, os.Stdout)
}
