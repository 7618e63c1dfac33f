package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	openaigo "github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/utils"
)

type GeminiClient struct {
	geminiConfig config.GeminiConfig
}

func NewGeminiClient(geminiConfig config.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		geminiConfig: geminiConfig,
	}
}

// GenerateCompletions calls the Gemini API with an OpenAI shaped payload
func (c *GeminiClient) GenerateCompletions(ctx context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.geminiConfig.Key))
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(payload.Model)

	systemInstruction, prompt, err := convertOpenAIToGeminiParts(payload.Messages)
	if err != nil {
		return nil, err
	}
	if systemInstruction != nil {
		genModel.SystemInstruction = systemInstruction
	}

	geminiResponse, err := genModel.GenerateContent(ctx, prompt...)
	if err != nil {
		return nil, fmt.Errorf("error generating content: %w", err)
	}

	openaiResponse := convertGeminiToOpenAI(payload.Model, geminiResponse)
	return &openaiResponse, nil
}

// convertOpenAIToGeminiParts flattens the conversation into prompt parts.
// System messages are lifted into the system instruction.
func convertOpenAIToGeminiParts(messages []openaigo.ChatCompletionMessage) (*genai.Content, []genai.Part, error) {
	var systemTexts []string
	prompt := make([]genai.Part, 0)

	for _, message := range messages {
		if message.Role == openaigo.ChatMessageRoleSystem {
			systemTexts = append(systemTexts, utils.MessageText(message))
			continue
		}
		if len(message.MultiContent) == 0 {
			prompt = append(prompt, genai.Text(message.Content))
			continue
		}
		for _, part := range message.MultiContent {
			switch part.Type {
			case openaigo.ChatMessagePartTypeText:
				prompt = append(prompt, genai.Text(part.Text))
			case openaigo.ChatMessagePartTypeImageURL:
				if part.ImageURL == nil {
					continue
				}
				mediaType, data, err := utils.ParseImageDataURL(part.ImageURL.URL)
				if err != nil {
					return nil, nil, fmt.Errorf("unsupported image for gemini: %w", err)
				}
				prompt = append(prompt, genai.ImageData(strings.TrimPrefix(mediaType, "image/"), data))
			}
		}
	}

	if len(systemTexts) == 0 {
		return nil, prompt, nil
	}
	return &genai.Content{
		Parts: []genai.Part{genai.Text(strings.Join(systemTexts, "\n"))},
	}, prompt, nil
}

// Convert Gemini response to OpenAI response
func convertGeminiToOpenAI(model string, geminiResp *genai.GenerateContentResponse) openaigo.ChatCompletionResponse {
	openAIResp := openaigo.ChatCompletionResponse{
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []openaigo.ChatCompletionChoice{},
	}
	if geminiResp == nil {
		return openAIResp
	}

	if geminiResp.UsageMetadata != nil {
		openAIResp.Usage = openaigo.Usage{
			PromptTokens:     int(geminiResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(geminiResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(geminiResp.UsageMetadata.TotalTokenCount),
		}
	}

	for _, candidate := range geminiResp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
		openAIResp.Choices = append(openAIResp.Choices, openaigo.ChatCompletionChoice{
			Index: int(candidate.Index),
			Message: openaigo.ChatCompletionMessage{
				Role:    openaigo.ChatMessageRoleAssistant,
				Content: text.String(),
			},
			FinishReason: mapFinishReason(candidate.FinishReason),
		})
	}

	return openAIResp
}

func mapFinishReason(reason genai.FinishReason) openaigo.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return openaigo.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return openaigo.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return openaigo.FinishReasonContentFilter
	default:
		return openaigo.FinishReasonNull
	}
}
