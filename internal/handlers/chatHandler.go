package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/internal/middleware"
	"github.com/promptrelay/promptrelay/internal/utils"
	"github.com/promptrelay/promptrelay/llm"
	"github.com/promptrelay/promptrelay/models"
	completions "github.com/promptrelay/promptrelay/utils"
)

const (
	promptFormKey = "prompt"
	fileFormKey   = "file"

	promptEndpoint = "prompt"
	uploadEndpoint = "upload"
	textMode       = "text"
	imageMode      = "image"

	completionsMetric       = "relay_completions_total"
	completionLatencyMetric = "relay_completion_latency"
	tokensMetric            = "relay_tokens_total"
)

type metricsRecorder interface {
	RecordCounter(metricName string, labels map[string]string, value float64)
	RecordTimer(metricName string, labels map[string]string, duration time.Duration)
}

type ChatHandler struct {
	llmClient     llm.Client
	metrics       metricsRecorder
	logger        *zap.Logger
	handlerConfig config.ChatHandlerConfig
}

func NewChatHandler(
	llmClient llm.Client,
	metrics metricsRecorder,
	logger *zap.Logger,
	handlerConfig config.ChatHandlerConfig) *ChatHandler {
	return &ChatHandler{
		llmClient:     llmClient,
		metrics:       metrics,
		logger:        logger,
		handlerConfig: handlerConfig,
	}
}

// Prompt sends the prompt as the only user message, after the configured system prompt.
func (h *ChatHandler) Prompt(c *gin.Context) {
	var request models.ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.Debug("failed to decode request body",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		utils.ProcessInvalidBody(c, err)
		return
	}
	if request.Prompt == nil {
		utils.ProcessMissingField(c, promptFormKey)
		return
	}

	payload := completions.ToChatCompletionRequestFromPrompt(
		h.handlerConfig.PromptSystemPrompt,
		*request.Prompt,
		h.handlerConfig.TextModel)

	response, err := h.generateCompletions(c, promptEndpoint, textMode, payload)
	if err != nil {
		utils.ProcessGenericInternalError(c)
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Response: completions.ToResponseStringFromChatCompletionResponse(response),
	})
}

// UploadFile answers a form carrying a prompt and an optional image. With an
// image the vision model gets prompt and image in one user message; without
// one it falls back to a plain text completion.
func (h *ChatHandler) UploadFile(c *gin.Context) {
	if err := parseMultipartForm(c); err != nil {
		h.logger.Warn("failed to parse multipart form",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		utils.ProcessGenericBadRequest(c)
		return
	}

	// an empty form value counts as missing
	prompt, ok := c.GetPostForm(promptFormKey)
	if !ok || prompt == "" {
		utils.ProcessMissingField(c, promptFormKey)
		return
	}

	image, hasFile, err := readFormFile(c, fileFormKey)
	if err != nil {
		h.logger.Warn("failed to read uploaded file",
			zap.Error(err),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		utils.ProcessGenericBadRequest(c)
		return
	}

	var payload openaigo.ChatCompletionRequest
	mode := textMode
	if hasFile {
		mode = imageMode
		h.logger.Debug("received file",
			zap.Int("size", len(image)),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		payload = completions.ToChatCompletionRequestFromImage(prompt, image, h.handlerConfig.VisionModel)
	} else {
		payload = completions.ToChatCompletionRequestFromPrompt(
			h.handlerConfig.UploadSystemPrompt,
			prompt,
			h.handlerConfig.TextModel)
	}

	response, err := h.generateCompletions(c, uploadEndpoint, mode, payload)
	if err != nil {
		utils.ProcessGenericInternalError(c)
		return
	}

	c.JSON(http.StatusOK, models.ChatResponse{
		Response: completions.ToResponseStringFromChatCompletionResponse(response),
	})
}

func (h *ChatHandler) generateCompletions(
	c *gin.Context,
	endpoint, mode string,
	payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	start := time.Now()
	response, err := h.llmClient.GenerateCompletions(c.Request.Context(), payload)
	h.metrics.RecordTimer(completionLatencyMetric, map[string]string{
		"endpoint": endpoint,
		"mode":     mode,
	}, time.Since(start))

	status := "success"
	if err != nil {
		status = "failure"
		h.logger.Error("upstream completion failed",
			zap.Error(err),
			zap.String("endpoint", endpoint),
			zap.String("model", payload.Model),
			zap.String("request_id", middleware.GetRequestID(c)),
		)
		_ = c.Error(err)
	}
	h.metrics.RecordCounter(completionsMetric, map[string]string{
		"endpoint": endpoint,
		"mode":     mode,
		"status":   status,
	}, 1)

	if response != nil {
		h.metrics.RecordCounter(tokensMetric, map[string]string{"endpoint": endpoint, "kind": "prompt"}, float64(response.Usage.PromptTokens))
		h.metrics.RecordCounter(tokensMetric, map[string]string{"endpoint": endpoint, "kind": "completion"}, float64(response.Usage.CompletionTokens))
	}

	return response, err
}

// parseMultipartForm reports a broken multipart body. Other content types are
// left to gin's form parsing.
func parseMultipartForm(c *gin.Context) error {
	if c.ContentType() != binding.MIMEMultipartPOSTForm {
		return nil
	}
	if _, err := c.MultipartForm(); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return fmt.Errorf("error parsing multipart form: %w", err)
	}
	return nil
}

// readFormFile reads the named file fully into memory. A request without that
// file, or without a multipart body at all, is not an error.
func readFormFile(c *gin.Context, name string) ([]byte, bool, error) {
	fileHeader, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error parsing form file: %w", err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, false, fmt.Errorf("error opening form file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, false, fmt.Errorf("error reading form file: %w", err)
	}
	return data, true, nil
}
