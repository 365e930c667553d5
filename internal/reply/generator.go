package reply

import "context"

// Generator produces reply text for an incoming message. Implementations never
// fail: problems degrade to a template reply.
type Generator interface {
	Generate(ctx context.Context, sender, subject, body string) string
	// Name identifies the generator in logs, metrics and the reply journal.
	Name() string
}

// Model is a text-generation backend.
type Model interface {
	// Probe checks once at startup that the model is reachable and usable.
	Probe(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (string, error)
}

// Active reports whether g calls out to a generation service.
func Active(g Generator) bool {
	return g != nil && g.Name() != TemplateName
}
