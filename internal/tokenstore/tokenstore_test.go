package tokenstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/real-rm/chatsocket/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_EnvWins(t *testing.T) {
	t.Setenv(constants.EnvToken, "  env-token\n")
	path := writeToken(t, "file-token")

	token, err := New(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv(constants.EnvToken, "")
	path := writeToken(t, "file-token\n")

	token, err := New(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)
}

func TestLoad_Missing(t *testing.T) {
	t.Setenv(constants.EnvToken, "")

	_, err := New(filepath.Join(t.TempDir(), "absent")).Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Setenv(constants.EnvToken, "")
	path := writeToken(t, "   \n")

	_, err := New(path).Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestLoad_UnreadablePath(t *testing.T) {
	t.Setenv(constants.EnvToken, "")

	// A directory cannot be read as a file
	_, err := New(t.TempDir()).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoToken)
}

func TestPath_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, ".chatsocket", "token"), New("").Path())
	assert.Equal(t, home, New("~").Path())
	assert.Equal(t, "/etc/token", New("/etc/token").Path())
	assert.Equal(t, "~user/token", New("~user/token").Path())
}
