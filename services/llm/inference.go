package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultInferenceTimeout leaves room for workers streaming up to 8k tokens
	DefaultInferenceTimeout = 180 * time.Second
	DefaultInferenceModel   = "gpt-4o-mini"
	DefaultBaseURL          = "https://api.openai.com"
	chatCompletionsPath     = "/v1/chat/completions"
)

// InferenceConfig is shared by InferenceClient and OpenAIClient
type InferenceConfig struct {
	Keys    *KeyPool
	BaseURL string
	Timeout time.Duration
	Model   string
	// Limiter is optional; nil disables client-side rate limiting
	Limiter *RateLimiter
}

func (c InferenceConfig) withDefaults() InferenceConfig {
	if c.Timeout == 0 {
		c.Timeout = DefaultInferenceTimeout
	}
	if c.Model == "" {
		c.Model = DefaultInferenceModel
	}
	if c.Keys == nil {
		c.Keys = NewKeyPool()
	}
	return c
}

// InferenceClient posts to any OpenAI-compatible chat completions endpoint
// over plain HTTP
type InferenceClient struct {
	config   InferenceConfig
	endpoint string
	http     *http.Client
}

func NewInferenceClient(config InferenceConfig) *InferenceClient {
	config = config.withDefaults()
	base := config.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &InferenceClient{
		config:   config,
		endpoint: strings.TrimRight(base, "/") + chatCompletionsPath,
		http:     &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatRequest is the request body of a chat completion
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements Completer
func (c *InferenceClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	body := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return withKeyRotation(ctx, c.config, "InferenceClient", func(apiKey string) (*Completion, error) {
		return c.post(ctx, payload, apiKey)
	})
}

func (c *InferenceClient) post(ctx context.Context, payload []byte, apiKey string) (*Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var envelope chatResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return &Completion{
		Content:      envelope.Choices[0].Message.Content,
		Model:        envelope.Model,
		FinishReason: envelope.Choices[0].FinishReason,
		Raw:          raw,
	}, nil
}
