package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/execsim/personachat/internal/conversation"
)

var claudeModels = map[string]string{
	"haiku":  "claude-haiku-4-5-20251001",
	"sonnet": "claude-sonnet-4-5-20250929",
}

// AnthropicGateway calls the Anthropic Messages API. The client reads
// ANTHROPIC_API_KEY from the environment.
type AnthropicGateway struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(model string) *AnthropicGateway {
	return &AnthropicGateway{client: anthropic.NewClient(), model: model}
}

func (g *AnthropicGateway) Complete(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	modelID := claudeModels[g.model]
	if modelID == "" {
		modelID = claudeModels["haiku"]
	}

	messages := make([]anthropic.MessageParam, 0, len(history))
	for _, t := range history {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == conversation.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	message, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(modelID),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: messages,
	})
	if err != nil {
		return "", &Error{Provider: "anthropic", Err: err}
	}

	var parts []string
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	text := strings.Join(parts, "")
	if text == "" {
		return "", &Error{Provider: "anthropic", Err: errors.New("empty response")}
	}
	return text, nil
}
