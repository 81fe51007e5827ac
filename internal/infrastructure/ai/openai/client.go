// Package openai implements the external model boundary against any
// OpenAI-compatible chat completions API, including local Ollama.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/infrastructure/config"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	visionModel string
	client      *http.Client
	logger      *zap.Logger
}

// NewClient creates a model client from configuration. An empty API key
// against the default OpenAI endpoint leaves the client unavailable; the
// pipeline degrades to synthesis instead of failing.
func NewClient(cfg config.AIConfig, logger *zap.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = model
	}

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		visionModel: visionModel,
		client: &http.Client{
			// Per-call deadlines come from the request context; this is the
			// hard ceiling for a hung connection.
			Timeout: 0,
		},
		logger: logger.Named("openai"),
	}
}

// Available reports whether the client has a usable endpoint. Local
// endpoints (Ollama) need no key.
func (c *Client) Available() bool {
	if c.apiKey != "" {
		return true
	}
	return strings.Contains(c.baseURL, "localhost") || strings.Contains(c.baseURL, "127.0.0.1")
}

// chatCompletionRequest is the wire request. Content is either a plain
// string or a list of typed parts when an image rides along.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// CompleteText runs a text-only completion.
func (c *Client) CompleteText(ctx context.Context, prompt outbound.ModelPrompt) (string, error) {
	return c.complete(ctx, c.model, []chatMessage{
		{Role: "system", Content: prompt.System},
		{Role: "user", Content: prompt.User},
	}, prompt)
}

// CompleteVision runs a completion over an encoded image plus prompt. The
// image travels inline as a data URL content part.
func (c *Client) CompleteVision(ctx context.Context, prompt outbound.ModelPrompt, imageBase64 string) (string, error) {
	parts := []contentPart{
		{Type: "text", Text: prompt.User},
		{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + imageBase64}},
	}
	return c.complete(ctx, c.visionModel, []chatMessage{
		{Role: "system", Content: prompt.System},
		{Role: "user", Content: parts},
	}, prompt)
}

func (c *Client) complete(ctx context.Context, model string, messages []chatMessage, prompt outbound.ModelPrompt) (string, error) {
	if !c.Available() {
		return "", outbound.ErrModelUnavailable
	}

	reqBody := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: prompt.Temperature,
		MaxTokens:   prompt.MaxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API error %d: %s", resp.StatusCode, truncateBody(body))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("unmarshal completion response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}

	c.logger.Debug("completion succeeded",
		zap.String("model", model),
		zap.String("finish_reason", chatResp.Choices[0].FinishReason),
		zap.Int("prompt_tokens", chatResp.Usage.PromptTokens),
		zap.Int("completion_tokens", chatResp.Usage.CompletionTokens),
	)
	return chatResp.Choices[0].Message.Content, nil
}

// truncateBody keeps error messages readable when the API returns HTML or a
// long error document.
func truncateBody(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
