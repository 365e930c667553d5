package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gologme/log"
)

// GenerationServiceName identifies replies produced by Service.
const GenerationServiceName = "generation-service"

// maxPromptBody caps how much of the incoming body is sent to the model.
const maxPromptBody = 500

// ServiceOptions configures NewService.
type ServiceOptions struct {
	Enabled    bool
	Credential string
	Tone       string
	Signer     string
	// Timeout bounds the startup probe and every generation call.
	Timeout time.Duration
	// OnFallback is called each time a reply degrades to the template.
	OnFallback func()
}

// Service asks a Model for replies and falls back to a Template on any failure.
type Service struct {
	model    Model
	fallback Template
	opts     ServiceOptions
	logger   *log.Logger
}

var _ Generator = (*Service)(nil)

// NewService resolves, once, which generator the process uses. It returns fallback
// when generation is disabled, no credential or model is configured, or the model
// fails its startup probe.
func NewService(ctx context.Context, opts ServiceOptions, model Model, fallback Template, logger *log.Logger) Generator {
	if !opts.Enabled {
		logger.Infof("Generation service disabled, using template replies")
		return fallback
	}

	if strings.TrimSpace(opts.Credential) == "" || model == nil {
		logger.Warnf("Generation service enabled but not configured, using template replies")
		return fallback
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Tone == "" {
		opts.Tone = "professional"
	}
	if opts.Signer == "" {
		opts.Signer = fallback.signer()
	}

	probeCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	if err := model.Probe(probeCtx); err != nil {
		// The error may echo the credential, so it is not logged.
		logger.Warnf("Generation service unavailable at startup, using template replies")
		return fallback
	}

	logger.Infof("Generation service ready")
	return &Service{model: model, fallback: fallback, opts: opts, logger: logger}
}

// Name implements Generator.
func (s *Service) Name() string { return GenerationServiceName }

// Generate implements Generator.
func (s *Service) Generate(ctx context.Context, sender, subject, body string) string {
	prompt := BuildPrompt(SenderName(sender), subject, body, s.opts.Tone, s.opts.Signer)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := s.model.Generate(callCtx, prompt)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.logger.Warnf("Generation service reply failed, using template reply")
		if s.opts.OnFallback != nil {
			s.opts.OnFallback()
		}
		return s.fallback.Generate(ctx, sender, subject, body)
	}

	s.logger.Infof("Generated reply with generation service")
	return text
}

// BuildPrompt renders the instruction sent to the model. The body is cut to its
// first 500 characters.
func BuildPrompt(senderName, subject, body, tone, signer string) string {
	if r := []rune(body); len(r) > maxPromptBody {
		body = string(r[:maxPromptBody])
	}

	return fmt.Sprintf(`You are an email assistant for %[5]s. Write a polite, helpful auto-reply to this email in a %[4]s tone.

Sender: %[1]s
Subject: %[2]s
Email content: %[3]s

Write a reply that:
1. Acknowledges their message appropriately
2. Is helpful and courteous
3. Indicates you'll respond properly soon (if needed)
4. Keep it brief (2-3 sentences)
5. Sign as "Best regards, %[5]s"
6. Use proper email formatting with line breaks

Reply:`, senderName, subject, body, tone, signer)
}
