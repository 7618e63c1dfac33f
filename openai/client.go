package openai

import (
	"context"
	"fmt"

	openaigo "github.com/sashabaranov/go-openai"

	"github.com/promptrelay/promptrelay/internal/config"
)

type OpenAIClient struct {
	client *openaigo.Client
}

func NewOpenAIClient(openaiConfig config.OpenAIConfig) *OpenAIClient {
	clientConfig := openaigo.DefaultConfig(openaiConfig.Key)
	if openaiConfig.BaseURL != "" {
		clientConfig.BaseURL = openaiConfig.BaseURL
	}
	return &OpenAIClient{
		client: openaigo.NewClientWithConfig(clientConfig),
	}
}

// GenerateCompletions calls the OpenAI Chat Completions API
func (c *OpenAIClient) GenerateCompletions(ctx context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	response, err := c.client.CreateChatCompletion(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("error creating chat completion: %w", err)
	}
	return &response, nil
}
