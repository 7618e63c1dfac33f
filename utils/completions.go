package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"

	"github.com/promptrelay/promptrelay/models"
)

const (
	defaultImageMediaType = "image/jpeg"
	dataURLPrefix         = "data:"
	dataURLBase64Marker   = ";base64,"
)

func ToChatCompletionRequestFromPrompt(systemPrompt, userPrompt, model string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
	}
}

// ToChatCompletionRequestFromImage builds a single user message carrying the
// prompt text followed by the image as a base64 data URL.
func ToChatCompletionRequestFromImage(prompt string, image []byte, model string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: ToImageDataURL(image),
						},
					},
				},
			},
		},
	}
}

// ToResponseStringFromChatCompletionResponse returns the first choice's text,
// or models.NoResponse when there is nothing to return.
func ToResponseStringFromChatCompletionResponse(openaiResponse *openai.ChatCompletionResponse) string {
	if openaiResponse == nil || len(openaiResponse.Choices) == 0 {
		return models.NoResponse
	}
	// an empty reply counts as no reply
	content := openaiResponse.Choices[0].Message.Content
	if content == "" {
		return models.NoResponse
	}
	return content
}

// ImageMediaType sniffs the image type. Anything that is not recognised as an
// image is labelled image/jpeg.
func ImageMediaType(image []byte) string {
	mtype := mimetype.Detect(image)
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	return defaultImageMediaType
}

func ToImageDataURL(image []byte) string {
	return dataURLPrefix + ImageMediaType(image) + dataURLBase64Marker + base64.StdEncoding.EncodeToString(image)
}

// ParseImageDataURL splits a base64 data URL into its media type and raw bytes.
func ParseImageDataURL(url string) (string, []byte, error) {
	if !strings.HasPrefix(url, dataURLPrefix) {
		return "", nil, errors.New("not a data url")
	}
	mediaType, encoded, found := strings.Cut(strings.TrimPrefix(url, dataURLPrefix), dataURLBase64Marker)
	if !found {
		return "", nil, errors.New("data url is not base64 encoded")
	}
	if mediaType == "" {
		mediaType = defaultImageMediaType
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("error decoding data url: %w", err)
	}
	return mediaType, data, nil
}

// MessageText concatenates the text of a message, whichever content form it uses.
func MessageText(message openai.ChatCompletionMessage) string {
	if len(message.MultiContent) == 0 {
		return message.Content
	}
	var texts []string
	for _, part := range message.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "\n")
}
