package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsUsableBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("before init")
		Named("flow").Debug("still fine")
	})
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", "json", "stdout")
	require.Error(t, err)
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	l, err := New("info", "json", path)
	require.NoError(t, err)

	l.Info("fold finished")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fold finished")
}

func TestSetLevelChangesInitLogger(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "cli.log")
	require.NoError(t, Init("info", "console", path))

	Debug("hidden fold detail")
	require.NoError(t, SetLevel("debug"))
	Debug("visible fold detail")
	require.Error(t, SetLevel("chatty"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden fold detail")
	assert.Contains(t, string(data), "visible fold detail")
	assert.Contains(t, string(data), "DEBUG")
}
