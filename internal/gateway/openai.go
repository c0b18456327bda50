package gateway

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/execsim/personachat/internal/conversation"
)

var openAIModels = map[string]string{
	"gpt-4o":      openai.GPT4o,
	"gpt-4o-mini": openai.GPT4oMini,
}

// OpenAIGateway calls the OpenAI chat completions API. This is the
// default provider.
type OpenAIGateway struct {
	client *openai.Client
	model  string
}

func NewOpenAI(model string) *OpenAIGateway {
	return &OpenAIGateway{
		client: openai.NewClient(os.Getenv("OPENAI_API_KEY")),
		model:  model,
	}
}

func (g *OpenAIGateway) Complete(ctx context.Context, systemPrompt string, history []conversation.Turn) (string, error) {
	modelID := openAIModels[g.model]
	if modelID == "" {
		modelID = openai.GPT4o
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, t := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", &Error{Provider: "openai", Err: err}
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &Error{Provider: "openai", Err: errors.New("empty response")}
	}
	return resp.Choices[0].Message.Content, nil
}
