// Package anthropic adapts llmrouter's ChatRequest/ChatResponse onto the
// Anthropic Messages API via github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"fmt"
	"os"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// Client implements llmrouter.Provider over the Anthropic Messages API,
// lazily building one sdk.Client per configured provider name.
type Client struct {
	mu      sync.Mutex
	clients map[string]*sdk.Client
}

// New creates an empty adapter; SDK clients are built lazily per
// ProviderConfig.Name so one adapter instance can serve multiple
// configured Anthropic-kind providers.
func New() *Client {
	return &Client{clients: make(map[string]*sdk.Client)}
}

// Chat sends req as a single Anthropic Messages request.
func (c *Client) Chat(ctx context.Context, cfg model.ProviderConfig, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	sdkClient, err := c.clientFor(cfg)
	if err != nil {
		return nil, err
	}

	modelID := cfg.Model
	if req.Model != "" {
		modelID = req.Model
	}

	maxTokens := int64(cfg.MaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system []sdk.TextBlockParam
	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llmrouter.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case llmrouter.RoleUser:
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case llmrouter.RoleAssistant:
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("anthropic: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := cfg.Temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}

	msg, err := sdkClient.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &llmrouter.ChatResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Provider:     cfg.Name,
		Content:      content,
		FinishReason: string(msg.StopReason),
		Usage: llmrouter.Usage{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
			Total:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func (c *Client) clientFor(cfg model.ProviderConfig) (*sdk.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.clients[cfg.Name]; ok {
		return cached, nil
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key env %q is unset for provider %q", cfg.APIKeyEnv, cfg.Name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	sdkClient := sdk.NewClient(opts...)
	c.clients[cfg.Name] = &sdkClient
	return &sdkClient, nil
}
