// Package llm selects the upstream provider the relay forwards completions to.
package llm

import (
	"context"
	"fmt"
	"strings"

	openaigo "github.com/sashabaranov/go-openai"

	"github.com/promptrelay/promptrelay/claude"
	"github.com/promptrelay/promptrelay/gemini"
	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/mockllm"
	"github.com/promptrelay/promptrelay/openai"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
	ProviderMock   = "mock"
)

// Client is implemented by every provider. Requests and responses use the
// OpenAI chat completion shape regardless of vendor.
type Client interface {
	GenerateCompletions(ctx context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error)
}

// NewClient builds the provider named by llmConfigs.Provider. An empty
// provider means OpenAI.
func NewClient(llmConfigs config.LLMConfigs) (Client, error) {
	switch strings.ToLower(llmConfigs.Provider) {
	case "", ProviderOpenAI:
		return openai.NewOpenAIClient(llmConfigs.OpenAI), nil
	case ProviderGemini:
		return gemini.NewGeminiClient(llmConfigs.Gemini), nil
	case ProviderClaude:
		return claude.NewClaudeClient(llmConfigs.Claude), nil
	case ProviderMock:
		return mockllm.NewMockLLMClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", llmConfigs.Provider)
	}
}
