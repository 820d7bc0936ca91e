// Package testutil provides shared test helpers: a test logger, token
// signing, an in-process chat server, and a scriptable fake transport.
package testutil

import (
	"runtime"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/real-rm/golog"
	"github.com/stretchr/testify/assert"
)

// TestSecret signs tokens accepted by a FakeServer created with it
const TestSecret = "test-secret-key-for-chat-socket-tests"

// CreateTestLogger creates a logger for testing that writes to a temporary directory
func CreateTestLogger(t testing.TB) *golog.Logger {
	logger, err := golog.InitLog(golog.LogConfig{
		Dir:            t.TempDir(),
		Level:          "error",
		StandardOutput: false,
	})
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// SignToken creates an HS256 chat token for userID
func SignToken(t testing.TB, secret, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    userID,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

// AssertGoroutineCount reports goroutine count changes and fails on a leak
func AssertGoroutineCount(t *testing.T, before, after int, description string) {
	t.Helper()
	delta := after - before

	t.Logf("Goroutine count (%s): %d → %d (delta: %d)", description, before, after, delta)

	// Allow for small variations due to test framework and GC
	tolerance := 5
	assert.InDelta(t, before, after, float64(tolerance),
		"Goroutine count should not increase significantly")
}

// MeasureGoroutines returns the current goroutine count
func MeasureGoroutines() int {
	return runtime.NumGoroutine()
}

// WaitForGoroutines waits for goroutines to stabilize
func WaitForGoroutines() {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
}
