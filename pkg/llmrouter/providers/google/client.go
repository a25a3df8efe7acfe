// Package google adapts llmrouter's ChatRequest/ChatResponse onto the
// Gemini API via github.com/google/generative-ai-go/genai.
package google

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
)

// Client implements llmrouter.Provider over the Gemini generative API.
type Client struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

// New creates an empty adapter; SDK clients are built lazily per
// ProviderConfig.
func New() *Client {
	return &Client{clients: make(map[string]*genai.Client)}
}

// Chat sends req as a single GenerateContent request.
func (c *Client) Chat(ctx context.Context, cfg model.ProviderConfig, req llmrouter.ChatRequest) (*llmrouter.ChatResponse, error) {
	sdkClient, err := c.clientFor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	modelID := cfg.Model
	if req.Model != "" {
		modelID = req.Model
	}

	gm := sdkClient.GenerativeModel(modelID)
	temp := cfg.Temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	if temp > 0 {
		t := float32(temp)
		gm.Temperature = &t
	}
	maxTokens := cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	if maxTokens > 0 {
		mt := int32(maxTokens)
		gm.MaxOutputTokens = &mt
	}

	var system string
	var prompt string
	for _, m := range req.Messages {
		switch m.Role {
		case llmrouter.RoleSystem:
			system += m.Content + "\n"
		default:
			prompt += string(m.Role) + ": " + m.Content + "\n"
		}
	}
	if system != "" {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if prompt == "" {
		return nil, fmt.Errorf("google: at least one message is required")
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("google generatecontent: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("google: response carried no candidates")
	}

	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content += string(text)
		}
	}

	usage := llmrouter.Usage{}
	if resp.UsageMetadata != nil {
		usage.Prompt = int(resp.UsageMetadata.PromptTokenCount)
		usage.Completion = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.Total = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &llmrouter.ChatResponse{
		Model:        modelID,
		Provider:     cfg.Name,
		Content:      content,
		FinishReason: fmt.Sprintf("%v", resp.Candidates[0].FinishReason),
		Usage:        usage,
	}, nil
}

func (c *Client) clientFor(ctx context.Context, cfg model.ProviderConfig) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.clients[cfg.Name]; ok {
		return cached, nil
	}

	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("google: api key env %q is unset for provider %q", cfg.APIKeyEnv, cfg.Name)
	}

	sdkClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google: failed to build client for provider %q: %w", cfg.Name, err)
	}
	c.clients[cfg.Name] = sdkClient
	return sdkClient, nil
}
