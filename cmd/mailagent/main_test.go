package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append(args, "--keyring=false"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInitConfig(t *testing.T) {
	t.Setenv("MAILAGENT_ENV", "test")
	path := filepath.Join(t.TempDir(), "config.yaml")

	code, out, _ := runCLI(t, "init-config", "--config", path)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "Created sample config")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "your-email@gmail.com")

	t.Run("refuses to overwrite", func(t *testing.T) {
		code, _, errOut := runCLI(t, "init-config", "--config", path)
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "already exists")
	})

	t.Run("overwrites with force", func(t *testing.T) {
		code, _, _ := runCLI(t, "init-config", "--config", path, "--force")
		assert.Equal(t, 0, code)
	})
}

func TestCheckConfig(t *testing.T) {
	t.Setenv("MAILAGENT_ENV", "test")
	dir := t.TempDir()

	t.Run("sample config is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "sample.yaml")
		code, _, _ := runCLI(t, "init-config", "--config", path)
		require.Equal(t, 0, code)

		code, _, errOut := runCLI(t, "check-config", "--config", path)
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "mailbox.address")
		assert.Contains(t, errOut, "init-config")
	})

	t.Run("valid config prints a summary without secrets", func(t *testing.T) {
		path := filepath.Join(dir, "valid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mailbox:\n  address: me@example.com\n  credential: hunter2\n"), 0o600))

		code, out, _ := runCLI(t, "check-config", "--config", path)
		require.Equal(t, 0, code)
		assert.Contains(t, out, "mailbox: me@example.com")
		assert.Contains(t, out, "Configuration OK")
		assert.NotContains(t, out, "hunter2")
	})

	t.Run("bot flag requires a token", func(t *testing.T) {
		path := filepath.Join(dir, "nobot.yaml")
		require.NoError(t, os.WriteFile(path, []byte("mailbox:\n  address: me@example.com\n  credential: hunter2\n"), 0o600))

		code, _, errOut := runCLI(t, "check-config", "--config", path, "--bot")
		assert.Equal(t, 1, code)
		assert.Contains(t, errOut, "messaging.bot_token")
	})
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestReadSecret(t *testing.T) {
	got, err := readSecret(strings.NewReader("  s3cret \nignored"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)

	got, err = readSecret(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", got)

	_, err = readSecret(strings.NewReader("\n"))
	assert.Error(t, err)
}
