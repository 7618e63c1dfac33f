package mockllm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptrelay/promptrelay/utils"
)

func TestGenerateCompletions(t *testing.T) {
	client := NewMockLLMClient()
	req := utils.ToChatCompletionRequestFromPrompt("system prompt here", "a user prompt of some length", "mock-model")

	resp, err := client.GenerateCompletions(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "mock-model", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Contains(t, contents, resp.Choices[0].Message.Content)
	assert.Positive(t, resp.Usage.PromptTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
}

func TestGenerateCompletionsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := NewMockLLMClient().GenerateCompletions(ctx, utils.ToChatCompletionRequestFromPrompt("", "", "mock-model"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.Canceled)
}
