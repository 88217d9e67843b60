package ai

import (
	"context"
	"fmt"
	"strings"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Completer is a single-shot text completion capability. The system text carries
// fixed instructions and user carries the variable field (a subject or a body).
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Named is implemented by completers that can report their backend for logging.
type Named interface {
	Provider() string
	Model() string
}

// Describe returns provider and model names when the completer exposes them.
func Describe(c Completer) (string, string) {
	if named, ok := c.(Named); ok {
		return named.Provider(), named.Model()
	}
	return "", ""
}

// NormalizeProvider validates a configured provider name.
func NormalizeProvider(name string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(name)); p {
	case "", ProviderGemini:
		return ProviderGemini, nil
	case ProviderOpenAI, "local":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported ai provider %q", name)
	}
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}
