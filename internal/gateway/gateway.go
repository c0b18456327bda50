// Package gateway wraps hosted chat-completion backends behind a single
// interface: one system prompt plus an ordered history in, one assistant
// message out. Exactly one network call per invocation; no retries and
// no streaming. Failures are wrapped in *Error and surfaced unmodified.
package gateway

import (
	"context"
	"fmt"

	"github.com/execsim/personachat/internal/conversation"
)

const (
	maxTokens   = 500
	temperature = 0.7
)

// Gateway produces the next assistant message for a conversation.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error)
}

// Error wraps a completion backend failure with the provider that
// produced it. The underlying cause is preserved for errors.Is/As.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("completion gateway (%s): %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New selects a provider from a model alias, mirroring the model flag:
// gpt-* models go to OpenAI, haiku/sonnet to Anthropic, nova-* to
// Bedrock. Credentials come from the environment and are validated at
// startup by the CLI, not here.
func New(ctx context.Context, model string) (Gateway, error) {
	switch model {
	case "gpt-4o", "gpt-4o-mini":
		return NewOpenAI(model), nil
	case "haiku", "sonnet":
		return NewAnthropic(model), nil
	case "nova-lite":
		return NewNova(ctx, model)
	}
	return nil, fmt.Errorf("unknown model %q: must be gpt-4o, gpt-4o-mini, haiku, sonnet, or nova-lite", model)
}

// ModelNames lists the accepted model aliases for flag help text.
func ModelNames() []string {
	return []string{"gpt-4o", "gpt-4o-mini", "haiku", "sonnet", "nova-lite"}
}
