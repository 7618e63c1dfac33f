package mockllm

import (
	"context"
	"math/rand"
	"time"

	openaigo "github.com/sashabaranov/go-openai"

	"github.com/promptrelay/promptrelay/utils"
)

var contents = []string{
	"This is a mock completion response.",
	"Here is another example of a response.",
	"Mock response with different content.",
	"Simulated output for testing purposes.",
	"Generated response for mock client.",
}

// MockLLMClient answers without calling any vendor. Used for local development.
type MockLLMClient struct {
}

func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{}
}

// GenerateCompletions returns one canned choice and token counts derived from the prompt size.
func (c *MockLLMClient) GenerateCompletions(ctx context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	promptTokens := 0
	for _, message := range payload.Messages {
		promptTokens += len(utils.MessageText(message)) / 4
	}
	content := contents[rand.Intn(len(contents))]
	completionTokens := len(content) / 4

	return &openaigo.ChatCompletionResponse{
		ID:      "mock-id",
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   payload.Model,
		Choices: []openaigo.ChatCompletionChoice{
			{
				Index: 0,
				Message: openaigo.ChatCompletionMessage{
					Role:    openaigo.ChatMessageRoleAssistant,
					Content: content,
				},
				FinishReason: openaigo.FinishReasonStop,
			},
		},
		Usage: openaigo.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}
