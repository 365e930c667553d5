// Package logging builds the leveled logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/gologme/log"
)

// Options selects where log lines go and which levels are emitted.
type Options struct {
	// File is appended to in addition to the console. Empty disables the file sink.
	File string
	// Level is the lowest level written: error, warn, info or debug.
	Level string
	// Console receives the colored copy of every line. Defaults to os.Stdout.
	Console io.Writer
	// Component is shown in the line prefix.
	Component string
}

var levelOrder = []string{"error", "warn", "info", "debug", "trace"}

// Levels returns every level at or above the severity of level.
// Unknown names are treated as info.
func Levels(level string) []string {
	level = strings.ToLower(strings.TrimSpace(level))
	for i, name := range levelOrder {
		if name == level {
			return append([]string(nil), levelOrder[:i+1]...)
		}
	}
	return append([]string(nil), levelOrder[:3]...)
}

// New returns a logger that writes to the console and, when configured, to a file.
// The returned closer releases the file and is never nil.
func New(opts Options) (*log.Logger, io.Closer, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	component := opts.Component
	if component == "" {
		component = "mailagent"
	}

	writer := console
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", opts.File, err)
		}

		writer = io.MultiWriter(console, f)
		closer = f
	}

	cyan := color.New(color.FgCyan).SprintfFunc()
	logger := log.New(writer, fmt.Sprintf("[ %s ] ", cyan(component)), log.LstdFlags|log.Lmsgprefix)
	for _, level := range Levels(opts.Level) {
		logger.EnableLevel(level)
	}

	return logger, closer, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// Truncate shortens s to at most n runes for log previews.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
