// Package tokenstore reads the persisted auth token used to open a chat
// session. Tokens are issued elsewhere; this package never creates one.
package tokenstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/real-rm/chatsocket/internal/constants"
)

// ErrNoToken is returned when neither the environment nor the token file carry a token
var ErrNoToken = errors.New("no auth token available")

// Store resolves the token from CHAT_TOKEN, then from a file
type Store struct {
	path string
}

// New creates a store reading from path. An empty path uses the default token file.
func New(path string) *Store {
	// No else needed: optional operation (default path)
	if path == "" {
		path = constants.DefaultTokenFile
	}
	return &Store{path: path}
}

// Path returns the token file path with ~ expanded
func (s *Store) Path() string {
	return expandHome(s.path)
}

// Load returns the token. The environment variable wins over the file.
func (s *Store) Load() (string, error) {
	// No else needed: early return pattern (guard clause)
	if token := strings.TrimSpace(os.Getenv(constants.EnvToken)); token != "" {
		return token, nil
	}

	path := s.Path()
	data, err := os.ReadFile(path)
	// No else needed: early return pattern (guard clause)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("failed to read token file %s: %w", path, err)
	}

	token := strings.TrimSpace(string(data))
	// No else needed: early return pattern (guard clause)
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

func expandHome(path string) string {
	// No else needed: early return pattern (guard clause)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	// No else needed: early return pattern (guard clause)
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
