package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsProvider(t *testing.T) {
	gw, err := New(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGateway{}, gw)

	gw, err = New(context.Background(), "gpt-4o-mini")
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGateway{}, gw)

	gw, err = New(context.Background(), "haiku")
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGateway{}, gw)

	gw, err = New(context.Background(), "sonnet")
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGateway{}, gw)
}

func TestNewRejectsUnknownModel(t *testing.T) {
	_, err := New(context.Background(), "gpt-5-turbo-max")
	assert.Error(t, err)
}

func TestErrorWrapsCause(t *testing.T) {
	cause := assert.AnError
	err := &Error{Provider: "openai", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "openai")
}
