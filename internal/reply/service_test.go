package reply

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gologme/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	probeErr error
	text     string
	err      error
	block    bool
	prompts  []string
}

func (m *fakeModel) Probe(context.Context) error { return m.probeErr }

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.text, m.err
}

func bufferLogger() (*log.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	for _, level := range []string{"error", "warn", "info"} {
		logger.EnableLevel(level)
	}
	return logger, &buf
}

func enabled() ServiceOptions {
	return ServiceOptions{Enabled: true, Credential: "key", Timeout: time.Second}
}

func TestNewServiceSelection(t *testing.T) {
	ctx := context.Background()
	logger, _ := bufferLogger()

	tests := []struct {
		name   string
		opts   ServiceOptions
		model  Model
		active bool
	}{
		{"disabled", ServiceOptions{Enabled: false, Credential: "key"}, &fakeModel{}, false},
		{"missing credential", ServiceOptions{Enabled: true}, &fakeModel{}, false},
		{"missing model", enabled(), nil, false},
		{"probe fails", enabled(), &fakeModel{probeErr: errors.New("403")}, false},
		{"ready", enabled(), &fakeModel{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewService(ctx, tt.opts, tt.model, Template{}, logger)
			assert.Equal(t, tt.active, Active(g))
			if !tt.active {
				assert.Equal(t, TemplateName, g.Name())
			}
		})
	}
}

func TestServiceGenerate(t *testing.T) {
	ctx := context.Background()
	sender, subject, body := "Sam Lee <sam@example.com>", "Quick coffee?", "Are you free Thursday?"
	fallback := Template{}.Generate(ctx, sender, subject, body)

	t.Run("returns trimmed model text", func(t *testing.T) {
		logger, _ := bufferLogger()
		model := &fakeModel{text: "  Dear Sam,\n\nSure!\n\nBest regards, Yash \n"}
		g := NewService(ctx, enabled(), model, Template{}, logger)

		assert.Equal(t, "Dear Sam,\n\nSure!\n\nBest regards, Yash", g.Generate(ctx, sender, subject, body))
		require.Len(t, model.prompts, 1)
		assert.Contains(t, model.prompts[0], "Sender: Sam\n")
		assert.Contains(t, model.prompts[0], "Subject: Quick coffee?")
	})

	failures := []struct {
		name  string
		model *fakeModel
	}{
		{"error", &fakeModel{err: errors.New("quota exceeded for key AIzaSECRET")}},
		{"empty text", &fakeModel{text: "   "}},
		{"timeout", &fakeModel{block: true}},
	}

	for _, tt := range failures {
		t.Run("falls back on "+tt.name, func(t *testing.T) {
			logger, buf := bufferLogger()
			fallbacks := 0
			opts := enabled()
			opts.Timeout = 50 * time.Millisecond
			opts.OnFallback = func() { fallbacks++ }

			g := NewService(ctx, opts, tt.model, Template{}, logger)
			require.True(t, Active(g))

			assert.Equal(t, fallback, g.Generate(ctx, sender, subject, body))
			assert.Equal(t, 1, fallbacks)
			assert.NotContains(t, buf.String(), "AIzaSECRET")
			assert.NotContains(t, buf.String(), "quota")
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	long := strings.Repeat("é", 600)

	prompt := BuildPrompt("Sam", "Hi", long, "friendly", "Alex")

	assert.Contains(t, prompt, strings.Repeat("é", 500)+"\n")
	assert.NotContains(t, prompt, strings.Repeat("é", 501))
	assert.Contains(t, prompt, "friendly tone")
	assert.Contains(t, prompt, `Sign as "Best regards, Alex"`)
	assert.Contains(t, prompt, "2-3 sentences")
}
