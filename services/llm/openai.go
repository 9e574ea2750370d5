package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient is a Completer backed by the go-openai SDK, sharing key
// rotation and rate limiting with InferenceClient
type OpenAIClient struct {
	config  InferenceConfig
	baseURL string
	http    *http.Client
}

func NewOpenAIClient(config InferenceConfig) *OpenAIClient {
	config = config.withDefaults()

	// the SDK expects the version segment in its base URL
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL != "" && !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	return &OpenAIClient{
		config:  config,
		baseURL: baseURL,
		http:    &http.Client{Timeout: config.Timeout},
	}
}

func (c *OpenAIClient) client(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	cfg.HTTPClient = c.http
	return openai.NewClientWithConfig(cfg)
}

// Complete implements Completer
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return withKeyRotation(ctx, c.config, "OpenAIClient", func(apiKey string) (*Completion, error) {
		resp, err := c.client(apiKey).CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, asStatusError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, ErrNoChoices
		}
		raw, _ := json.Marshal(resp)
		return &Completion{
			Content:      resp.Choices[0].Message.Content,
			Model:        resp.Model,
			FinishReason: string(resp.Choices[0].FinishReason),
			Raw:          raw,
		}, nil
	})
}

// asStatusError maps SDK HTTP failures onto StatusError so key rotation
// treats both clients alike
func asStatusError(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	case errors.As(err, &reqErr):
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("openai chat completion: %w", err)
}
