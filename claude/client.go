package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic"
	openaigo "github.com/sashabaranov/go-openai"

	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/utils"
)

const defaultMaxTokens = 1024

type ClaudeClient struct {
	client    *anthropic.Client
	maxTokens int
}

func NewClaudeClient(claudeConfig config.ClaudeConfig) *ClaudeClient {
	maxTokens := claudeConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(claudeConfig.Key),
		maxTokens: maxTokens,
	}
}

func (c *ClaudeClient) GenerateCompletions(ctx context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	messages, err := convertOpenAIToClaudeMessages(payload.Messages)
	if err != nil {
		return nil, err
	}

	request := anthropic.MessagesRequest{
		Model:     payload.Model,
		System:    getSystemPrompt(payload),
		Messages:  messages,
		MaxTokens: c.maxTokens,
	}
	if payload.MaxTokens > 0 {
		request.MaxTokens = payload.MaxTokens
	}

	resp, err := c.client.CreateMessages(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	openAIResp := convertClaudeToOpenAI(payload.Model, resp)
	return &openAIResp, nil
}

func convertClaudeToOpenAI(model string, claudeResp anthropic.MessagesResponse) openaigo.ChatCompletionResponse {
	openaiChoices := make([]openaigo.ChatCompletionChoice, 0, len(claudeResp.Content))
	for _, content := range claudeResp.Content {
		text := content.Text
		if text == "" {
			continue
		}
		openaiChoices = append(openaiChoices, openaigo.ChatCompletionChoice{
			Index: len(openaiChoices),
			Message: openaigo.ChatCompletionMessage{
				Role:    openaigo.ChatMessageRoleAssistant,
				Content: text,
			},
			FinishReason: openaigo.FinishReasonStop,
		})
	}
	return openaigo.ChatCompletionResponse{
		ID:      claudeResp.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: openaiChoices,
		Usage: openaigo.Usage{
			PromptTokens:     claudeResp.Usage.InputTokens,
			CompletionTokens: claudeResp.Usage.OutputTokens,
			TotalTokens:      claudeResp.Usage.InputTokens + claudeResp.Usage.OutputTokens,
		},
	}
}

func convertOpenAIToClaudeMessages(messages []openaigo.ChatCompletionMessage) ([]anthropic.Message, error) {
	claudeMessages := make([]anthropic.Message, 0)
	for _, msg := range messages {
		// claude takes the system prompt as a separate field
		if msg.Role == openaigo.ChatMessageRoleSystem {
			continue
		}

		contents, err := convertContent(msg)
		if err != nil {
			return nil, err
		}
		if len(contents) == 0 {
			continue
		}
		claudeMessages = append(claudeMessages, anthropic.Message{
			Role:    convertRole(msg.Role),
			Content: contents,
		})
	}
	return claudeMessages, nil
}

func convertContent(msg openaigo.ChatCompletionMessage) ([]anthropic.MessageContent, error) {
	if len(msg.MultiContent) == 0 {
		if msg.Content == "" {
			return nil, nil
		}
		return []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)}, nil
	}

	contents := make([]anthropic.MessageContent, 0, len(msg.MultiContent))
	for _, part := range msg.MultiContent {
		switch part.Type {
		case openaigo.ChatMessagePartTypeText:
			contents = append(contents, anthropic.NewTextMessageContent(part.Text))
		case openaigo.ChatMessagePartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			mediaType, data, err := utils.ParseImageDataURL(part.ImageURL.URL)
			if err != nil {
				return nil, fmt.Errorf("unsupported image for claude: %w", err)
			}
			contents = append(contents, anthropic.NewImageMessageContent(anthropic.MessageContentImageSource{
				Type:      "base64",
				MediaType: mediaType,
				Data:      base64.StdEncoding.EncodeToString(data),
			}))
		}
	}
	return contents, nil
}

func convertRole(role string) string {
	switch role {
	case openaigo.ChatMessageRoleAssistant:
		return "assistant"
	default:
		return "user"
	}
}

func getSystemPrompt(payload openaigo.ChatCompletionRequest) string {
	var prompts []string
	for _, msg := range payload.Messages {
		if msg.Role == openaigo.ChatMessageRoleSystem {
			prompts = append(prompts, utils.MessageText(msg))
		}
	}
	return strings.Join(prompts, "\n")
}
