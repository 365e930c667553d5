package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{"error", []string{"error"}},
		{"warn", []string{"error", "warn"}},
		{"INFO", []string{"error", "warn", "info"}},
		{"debug", []string{"error", "warn", "info", "debug"}},
		{"bogus", []string{"error", "warn", "info"}},
		{"", []string{"error", "warn", "info"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, Levels(tt.level))
		})
	}
}

func TestNewWritesToConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "agent.log")

	logger, closer, err := New(Options{File: path, Level: "info", Console: &console})
	require.NoError(t, err)

	logger.Infof("replied to %s", "alice@example.com")
	logger.Debugf("hidden at info level")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Contains(t, string(data), "replied to alice@example.com")
	assert.NotContains(t, string(data), "hidden at info level")
	assert.Contains(t, console.String(), "replied to alice@example.com")
}

func TestNewWithoutFile(t *testing.T) {
	var console bytes.Buffer

	logger, closer, err := New(Options{Level: "error", Console: &console})
	require.NoError(t, err)
	defer closer.Close()

	logger.Warnf("not shown")
	logger.Errorf("shown")

	assert.NotContains(t, console.String(), "not shown")
	assert.Contains(t, console.String(), "shown")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "héé...", Truncate("hééllo", 3))
}
