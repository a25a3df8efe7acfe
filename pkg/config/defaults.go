package config

import "github.com/conductor-run/conductor/pkg/model"

// builtinTools are registered even when no tools.yaml is present, mirroring
// the teacher's GetBuiltinConfig approach of shipping a usable catalog
// out of the box.
func builtinTools() map[string]ToolCatalogEntry {
	return map[string]ToolCatalogEntry{
		"shell_exec": {
			Name: "shell_exec", Category: "shell",
			Description:          "Run a shell command in a sandboxed working directory",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            30_000, CostCredits: 2,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 30, RequestsPerHour: 600, BurstSize: 5, Concurrent: 4},
		},
		"shell_background": {
			Name: "shell_background", Category: "shell",
			Description:          "Start a long-running shell command and return a handle without blocking",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            5_000, CostCredits: 1,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 200, BurstSize: 3, Concurrent: 2},
		},
		"shell_kill": {
			Name: "shell_kill", Category: "shell",
			Description:          "Terminate a previously started background shell command",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            5_000, CostCredits: 0,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 30, RequestsPerHour: 600, BurstSize: 5, Concurrent: 4},
		},
		"file_read": {
			Name: "file_read", Category: "file",
			Description:          "Read a file from the run's workspace",
			RequiredCapabilities: []string{"file_operations"},
			TimeoutMs:            5_000, CostCredits: 1, Idempotent: true,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 120, RequestsPerHour: 3000, BurstSize: 20, Concurrent: 8},
		},
		"file_write": {
			Name: "file_write", Category: "file",
			Description:          "Write a file into the run's workspace",
			RequiredCapabilities: []string{"file_operations"},
			TimeoutMs:            5_000, CostCredits: 1,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 60, RequestsPerHour: 1500, BurstSize: 10, Concurrent: 6},
		},
		"file_delete": {
			Name: "file_delete", Category: "file",
			Description:          "Remove a file from the run's workspace",
			RequiredCapabilities: []string{"file_operations"},
			TimeoutMs:            5_000, CostCredits: 1,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 30, RequestsPerHour: 600, BurstSize: 5, Concurrent: 4},
		},
		"file_list": {
			Name: "file_list", Category: "file",
			Description:          "List files and directories under a workspace path",
			RequiredCapabilities: []string{"file_operations"},
			TimeoutMs:            5_000, CostCredits: 0, Idempotent: true,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 120, RequestsPerHour: 3000, BurstSize: 20, Concurrent: 8},
		},
		"web_search": {
			Name: "web_search", Category: "search",
			Description:          "Search the web for a query string",
			RequiredCapabilities: []string{"web_search"},
			TimeoutMs:            10_000, CostCredits: 1,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 20, RequestsPerHour: 400, BurstSize: 5, Concurrent: 4},
		},
		"web_fetch": {
			Name: "web_fetch", Category: "search",
			Description:          "Fetch a single URL's content without rendering it as a browser page",
			RequiredCapabilities: []string{"web_search"},
			TimeoutMs:            10_000, CostCredits: 1, Idempotent: true,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 30, RequestsPerHour: 600, BurstSize: 10, Concurrent: 4},
		},
		"code_search": {
			Name: "code_search", Category: "search",
			Description:          "Search indexed source code for a symbol or pattern",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            10_000, CostCredits: 1, Idempotent: true,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 30, RequestsPerHour: 600, BurstSize: 10, Concurrent: 4},
		},
		"browser_open": {
			Name: "browser_open", Category: "browser",
			Description:          "Open a URL and return rendered page text",
			RequiredCapabilities: []string{"web_browsing"},
			TimeoutMs:            20_000, CostCredits: 3,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 150, BurstSize: 3, Concurrent: 2},
		},
		"browser_screenshot": {
			Name: "browser_screenshot", Category: "browser",
			Description:          "Capture a screenshot of the currently open page",
			RequiredCapabilities: []string{"web_browsing"},
			TimeoutMs:            20_000, CostCredits: 3,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 150, BurstSize: 3, Concurrent: 2},
		},
		"document_generate": {
			Name: "document_generate", Category: "document",
			Description:          "Render structured content into a document artifact",
			RequiredCapabilities: []string{"document_generation"},
			TimeoutMs:            15_000, CostCredits: 4,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 150, BurstSize: 2, Concurrent: 2},
		},
		"document_convert": {
			Name: "document_convert", Category: "document",
			Description:          "Convert a document artifact from one format to another",
			RequiredCapabilities: []string{"document_generation"},
			TimeoutMs:            15_000, CostCredits: 3,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 150, BurstSize: 2, Concurrent: 2},
		},
		"image_generate": {
			Name: "image_generate", Category: "image",
			Description:          "Generate an image artifact from a prompt",
			RequiredCapabilities: []string{"image_generation"},
			TimeoutMs:            60_000, CostCredits: 10,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 5, RequestsPerHour: 60, BurstSize: 1, Concurrent: 1},
		},
		"image_edit": {
			Name: "image_edit", Category: "image",
			Description:          "Apply a prompted edit to an existing image artifact",
			RequiredCapabilities: []string{"image_generation"},
			TimeoutMs:            60_000, CostCredits: 8,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 5, RequestsPerHour: 60, BurstSize: 1, Concurrent: 1},
		},
		"slack_notify": {
			Name: "slack_notify", Category: "communication",
			Description: "Post a message to a configured Slack channel",
			TimeoutMs:   5_000, CostCredits: 1,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 20, RequestsPerHour: 400, BurstSize: 5, Concurrent: 4},
		},
		"email_send": {
			Name: "email_send", Category: "communication",
			Description: "Send an email through the configured outbound relay",
			TimeoutMs:   10_000, CostCredits: 2,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 10, RequestsPerHour: 200, BurstSize: 3, Concurrent: 2},
		},
		"deployment_trigger": {
			Name: "deployment_trigger", Category: "deployment",
			Description:          "Trigger a deployment pipeline run",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            10_000, CostCredits: 5,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 5, RequestsPerHour: 60, BurstSize: 1, Concurrent: 2},
		},
		"deployment_rollback": {
			Name: "deployment_rollback", Category: "deployment",
			Description:          "Roll a deployment back to its previous revision",
			RequiredCapabilities: []string{"code_execution"},
			TimeoutMs:            10_000, CostCredits: 5,
			RateLimit: &RateLimitConfig{RequestsPerMinute: 5, RequestsPerHour: 60, BurstSize: 1, Concurrent: 2},
		},
	}
}

// builtinProviders ships a usable default fallback chain across the three
// native providers (no gRPC proxy entry is built in), so a fresh deployment has
// something to route to before an operator supplies llm-providers.yaml.
func builtinProviders() map[string]ProviderCatalogEntry {
	return map[string]ProviderCatalogEntry{
		"gemini-flash": {
			Name: "gemini-flash", Kind: string(model.LLMProviderGoogle),
			Model: "gemini-2.5-flash", APIKeyEnv: "GOOGLE_API_KEY",
			MaxTokens: 8192, Temperature: 0.7, TimeoutMs: 60_000,
		},
		"claude-sonnet": {
			Name: "claude-sonnet", Kind: string(model.LLMProviderAnthropic),
			Model: "claude-sonnet-4-5", APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 8192, Temperature: 0.7, TimeoutMs: 60_000,
		},
		"gpt-4o": {
			Name: "gpt-4o", Kind: string(model.LLMProviderOpenAI),
			Model: "gpt-4o", APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: 8192, Temperature: 0.7, TimeoutMs: 60_000,
		},
	}
}

func builtinChains() map[string]FallbackChainEntry {
	return map[string]FallbackChainEntry{
		"default": {
			Name:      "default",
			Providers: []string{"gemini-flash", "claude-sonnet", "gpt-4o"},
		},
	}
}
