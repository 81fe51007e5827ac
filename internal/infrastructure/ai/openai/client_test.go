package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/infrastructure/config"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

func completionResponse(content string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":30}}`
}

func mustJSON(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func newServerClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.AIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	}, zap.NewNop())
}

func TestCompleteText_SendsPromptAndReturnsContent(t *testing.T) {
	var captured chatCompletionRequest
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionResponse(`{"meal_name":"Toast"}`)))
	})

	out, err := client.CompleteText(context.Background(), outbound.ModelPrompt{
		System:      "analyze meals",
		User:        "two slices of toast",
		MaxTokens:   500,
		Temperature: 0.3,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"meal_name":"Toast"}`, out)
	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 500, captured.MaxTokens)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "analyze meals", captured.Messages[0].Content)
}

func TestCompleteVision_InlinesImageAsDataURL(t *testing.T) {
	var rawBody map[string]interface{}
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rawBody))
		w.Write([]byte(completionResponse("ok")))
	})

	_, err := client.CompleteVision(context.Background(), outbound.ModelPrompt{User: "what meal is this"}, "aW1hZ2U=")

	require.NoError(t, err)
	messages := rawBody["messages"].([]interface{})
	user := messages[1].(map[string]interface{})
	parts := user["content"].([]interface{})
	require.Len(t, parts, 2)
	image := parts[1].(map[string]interface{})
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/jpeg;base64,aW1hZ2U=", image["image_url"].(map[string]interface{})["url"])
}

func TestComplete_APIErrorSurfacesStatus(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	})

	_, err := client.CompleteText(context.Background(), outbound.ModelPrompt{User: "hello"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limit")
}

func TestComplete_EmptyChoicesIsAnError(t *testing.T) {
	client := newServerClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := client.CompleteText(context.Background(), outbound.ModelPrompt{User: "hello"})
	require.Error(t, err)
}

func TestAvailable(t *testing.T) {
	withKey := NewClient(config.AIConfig{APIKey: "k"}, zap.NewNop())
	assert.True(t, withKey.Available())

	remoteNoKey := NewClient(config.AIConfig{}, zap.NewNop())
	assert.False(t, remoteNoKey.Available())

	localNoKey := NewClient(config.AIConfig{BaseURL: "http://localhost:11434/v1"}, zap.NewNop())
	assert.True(t, localNoKey.Available())
}

func TestComplete_UnavailableClientReturnsSentinel(t *testing.T) {
	client := NewClient(config.AIConfig{}, zap.NewNop())

	_, err := client.CompleteText(context.Background(), outbound.ModelPrompt{User: "hi"})
	assert.ErrorIs(t, err, outbound.ErrModelUnavailable)
}
