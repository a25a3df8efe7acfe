// Package openaicompat adapts llmrouter's ChatRequest/ChatResponse onto any
// OpenAI-compatible chat completions endpoint via github.com/openai/openai-go.
package openaicompat

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// Client implements llmrouter.Provider over the OpenAI chat completions API,
// or any self-hosted endpoint that speaks the same wire format via BaseURL.
type Client struct {
	mu      sync.Mutex
	clients map[string]*openai.Client
}

// New creates an empty adapter; SDK clients are built lazily per
// ProviderConfig.
func New() *Client {
	return &Client{clients: make(map[string]*openai.Client)}
}

// Chat sends req as a single chat completion request.
func (c *Client) Chat(ctx context.Context, cfg model.ProviderConfig, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	sdkClient, err := c.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	modelID := cfg.Model
	if req.Model != "" {
		modelID = req.Model
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llmrouter.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case llmrouter.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case llmrouter.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("openaicompat: at least one message is required")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelID),
		Messages: messages,
	}
	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}
	temp := cfg.Temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}

	resp, err := sdkClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openaicompat chat.completions.new: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openaicompat: response carried no choices")
	}

	choice := resp.Choices[0]
	return &llmrouter.ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Provider:     cfg.Name,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llmrouter.Usage{
			Prompt:     int(resp.Usage.PromptTokens),
			Completion: int(resp.Usage.CompletionTokens),
			Total:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (c *Client) clientFor(cfg model.ProviderConfig) (*openai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.clients[cfg.Name]; ok {
		return cached, nil
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("openaicompat: api key env %q is unset for provider %q", cfg.APIKeyEnv, cfg.Name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	sdkClient := openai.NewClient(opts...)
	c.clients[cfg.Name] = &sdkClient
	return &sdkClient, nil
}
