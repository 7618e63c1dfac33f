package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	openaigo "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	googlemonitoring "github.com/promptrelay/promptrelay/googleMonitoring"
	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeLLMClient records every payload and answers with a fixed response or error.
type fakeLLMClient struct {
	mu       sync.Mutex
	payloads []openaigo.ChatCompletionRequest
	response *openaigo.ChatCompletionResponse
	err      error
}

func (f *fakeLLMClient) GenerateCompletions(_ context.Context, payload openaigo.ChatCompletionRequest) (*openaigo.ChatCompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.response, f.err
}

func (f *fakeLLMClient) lastPayload(t *testing.T) openaigo.ChatCompletionRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.payloads)
	return f.payloads[len(f.payloads)-1]
}

func completionWith(content string) *openaigo.ChatCompletionResponse {
	return &openaigo.ChatCompletionResponse{
		Choices: []openaigo.ChatCompletionChoice{
			{Message: openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleAssistant, Content: content}},
		},
		Usage: openaigo.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13},
	}
}

var testHandlerConfig = config.ChatHandlerConfig{
	TextModel:          "gpt-3.5-turbo",
	VisionModel:        "o4-mini",
	PromptSystemPrompt: "You are a helpful software development assistant.",
	UploadSystemPrompt: "You are a helpful assistant.",
}

func newTestRouter(t *testing.T, client *fakeLLMClient) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	monitoring, err := googlemonitoring.NewMonitoringClient(context.Background(), "", "", registry)
	require.NoError(t, err)

	h := NewChatHandler(client, monitoring, zap.NewNop(), testHandlerConfig)
	router := gin.New()
	router.POST("/", h.Prompt)
	router.POST("/uploadfile/", h.UploadFile)
	return router, registry
}

func decodeChatResponse(t *testing.T, w *httptest.ResponseRecorder) models.ChatResponse {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Contains(t, raw, "response")

	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestPrompt(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("Use a map.")}
	router, _ := newTestRouter(t, client)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt": "Hello, this is a test"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Use a map.", decodeChatResponse(t, w).Response)

	payload := client.lastPayload(t)
	assert.Equal(t, "gpt-3.5-turbo", payload.Model)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, openaigo.ChatMessageRoleSystem, payload.Messages[0].Role)
	assert.Equal(t, "You are a helpful software development assistant.", payload.Messages[0].Content)
	assert.Equal(t, openaigo.ChatMessageRoleUser, payload.Messages[1].Role)
	assert.Equal(t, "Hello, this is a test", payload.Messages[1].Content)
}

func TestPromptEmptyPrompt(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("Ask me anything.")}
	router, _ := newTestRouter(t, client)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt": ""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ask me anything.", decodeChatResponse(t, w).Response)
	assert.Equal(t, "", client.lastPayload(t).Messages[1].Content)
}

func TestPromptNoChoices(t *testing.T) {
	router, _ := newTestRouter(t, &fakeLLMClient{response: &openaigo.ChatCompletionResponse{}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NoResponse, decodeChatResponse(t, w).Response)
}

func TestPromptValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		loc  []string
	}{
		{"missing prompt", `{}`, []string{"body", "prompt"}},
		{"null body", `null`, []string{"body", "prompt"}},
		{"not an object", `["hi"]`, []string{"body"}},
		{"prompt not a string", `{"prompt": 5}`, []string{"body", "prompt"}},
		{"invalid json", `{"prompt":`, []string{"body"}},
		{"empty body", ``, []string{"body"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeLLMClient{response: completionWith("unused")}
			router, _ := newTestRouter(t, client)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			require.Equal(t, http.StatusUnprocessableEntity, w.Code)
			var verr models.ValidationError
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
			require.Len(t, verr.Detail, 1)
			assert.Equal(t, tt.loc, verr.Detail[0].Loc)
			assert.NotContains(t, verr.Detail[0].Msg, "models.")
			assert.NotContains(t, verr.Detail[0].Msg, "Go value")
			assert.Empty(t, client.payloads)
		})
	}
}

func TestPromptUpstreamError(t *testing.T) {
	router, registry := newTestRouter(t, &fakeLLMClient{err: errors.New("upstream down")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"prompt": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())

	count, err := testutil.GatherAndCount(registry, completionsMetric)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUploadFileWithoutFile(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("Nothing to describe.")}
	router, _ := newTestRouter(t, client)

	form := url.Values{"prompt": {"Describe this image"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Nothing to describe.", decodeChatResponse(t, w).Response)

	payload := client.lastPayload(t)
	assert.Equal(t, "gpt-3.5-turbo", payload.Model)
	require.Len(t, payload.Messages, 2)
	assert.Equal(t, "You are a helpful assistant.", payload.Messages[0].Content)
	assert.Equal(t, "Describe this image", payload.Messages[1].Content)
}

func TestUploadFileMultipartWithoutFile(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("ok")}
	router, _ := newTestRouter(t, client)

	body, contentType := multipartBody(t, map[string]string{"prompt": "hello"}, "", nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gpt-3.5-turbo", client.lastPayload(t).Model)
}

func TestUploadFileWithImage(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("A cat.")}
	router, registry := newTestRouter(t, client)

	image := []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01")
	body, contentType := multipartBody(t, map[string]string{"prompt": "What's in this image?"}, "test.jpg", image)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A cat.", decodeChatResponse(t, w).Response)

	payload := client.lastPayload(t)
	assert.Equal(t, "o4-mini", payload.Model)
	require.Len(t, payload.Messages, 1)
	msg := payload.Messages[0]
	assert.Equal(t, openaigo.ChatMessageRoleUser, msg.Role)
	require.Len(t, msg.MultiContent, 2)
	assert.Equal(t, "What's in this image?", msg.MultiContent[0].Text)
	require.NotNil(t, msg.MultiContent[1].ImageURL)
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(image), msg.MultiContent[1].ImageURL.URL)

	count, err := testutil.GatherAndCount(registry, tokensMetric)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUploadFileEmptyFileStillUsesVision(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("empty")}
	router, _ := newTestRouter(t, client)

	body, contentType := multipartBody(t, map[string]string{"prompt": "hi"}, "empty.jpg", []byte{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o4-mini", client.lastPayload(t).Model)
}

func TestUploadFileMissingPrompt(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("unused")}
	router, _ := newTestRouter(t, client)

	body, contentType := multipartBody(t, map[string]string{}, "test.jpg", []byte("data"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var verr models.ValidationError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	require.Len(t, verr.Detail, 1)
	assert.Equal(t, []string{"body", "prompt"}, verr.Detail[0].Loc)
	assert.Equal(t, "missing", verr.Detail[0].Type)
	assert.Empty(t, client.payloads)
}

func TestUploadFileEmptyPrompt(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("unused")}
	router, _ := newTestRouter(t, client)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", strings.NewReader("prompt="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var verr models.ValidationError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verr))
	require.Len(t, verr.Detail, 1)
	assert.Equal(t, []string{"body", "prompt"}, verr.Detail[0].Loc)
	assert.Empty(t, client.payloads)
}

func TestUploadFileTruncatedMultipart(t *testing.T) {
	client := &fakeLLMClient{response: completionWith("unused")}
	router, _ := newTestRouter(t, client)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("prompt", "hello"))
	part, err := writer.CreateFormFile("file", "cut.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("\xff\xd8\xff\xe0 partial"))
	require.NoError(t, err)
	// no closing boundary

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad request"}`, w.Body.String())
	assert.Empty(t, client.payloads)
}

func TestUploadFileMissingPromptNoBody(t *testing.T) {
	router, _ := newTestRouter(t, &fakeLLMClient{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/uploadfile/", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUploadFileNoResponse(t *testing.T) {
	router, _ := newTestRouter(t, &fakeLLMClient{response: nil})

	form := url.Values{"prompt": {"anything"}}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No response", decodeChatResponse(t, w).Response)
}

func TestUploadFileUpstreamError(t *testing.T) {
	router, _ := newTestRouter(t, &fakeLLMClient{err: errors.New("boom")})

	body, contentType := multipartBody(t, map[string]string{"prompt": "hi"}, "a.png", []byte("\x89PNG\r\n\x1a\n"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/uploadfile/", body)
	req.Header.Set("Content-Type", contentType)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
