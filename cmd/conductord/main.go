// Command conductord is the Agent Run Orchestrator server: it loads
// configuration, connects to Postgres, wires the Dispatcher's worker pool
// behind a Supervisor, and serves the Ingress API over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/conductor-run/conductor/pkg/artifact"
	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/credit"
	"github.com/conductor-run/conductor/pkg/events"
	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/llmrouter/providers/anthropic"
	"github.com/conductor-run/conductor/pkg/llmrouter/providers/google"
	"github.com/conductor-run/conductor/pkg/llmrouter/providers/grpcproxy"
	"github.com/conductor-run/conductor/pkg/llmrouter/providers/openaicompat"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/planner"
	"github.com/conductor-run/conductor/pkg/queue"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store/postgres"
	"github.com/conductor-run/conductor/pkg/supervisor"
	"github.com/conductor-run/conductor/pkg/toolrouter"
	"github.com/conductor-run/conductor/pkg/toolrouter/limiter"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/browser"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/communication"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/deployment"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/document"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/file"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/image"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/search"
	"github.com/conductor-run/conductor/pkg/toolrouter/tools/shell"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	workDir := flag.String("work-dir",
		getEnv("WORK_DIR", "./data/runs"),
		"Sandbox root for shell_exec/file_read/file_write")
	artifactDir := flag.String("artifact-dir",
		getEnv("ARTIFACT_DIR", "./data/artifacts"),
		"Local blob store root for artifacts")
	nodeID := flag.String("node-id", getEnv("NODE_ID", hostnameOrFallback()), "Dispatcher node identity")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load .env file, continuing with existing environment", "path", envPath, "error", err)
	} else {
		slog.Info("loaded environment file", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	stats := cfg.Stats()
	slog.Info("configuration loaded", "tools", stats.Tools, "providers", stats.Providers, "chains", stats.Chains)

	dbCfg := postgres.Config{DSN: getEnv("DATABASE_URL", "postgres://localhost:5432/conductor")}
	db, err := postgres.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Pool.Close()
	slog.Info("connected to postgres")

	if err := os.MkdirAll(*workDir, 0o755); err != nil {
		slog.Error("failed to create work directory", "error", err, "path", *workDir)
		os.Exit(1)
	}
	blobs, err := artifact.NewLocalStore(*artifactDir)
	if err != nil {
		slog.Error("failed to initialize artifact store", "error", err, "path", *artifactDir)
		os.Exit(1)
	}
	artifacts := artifact.New(blobs, db.Artifacts)

	broadcast := events.NewBroadcaster(cfg.Events)
	publisher := events.NewPublisher(broadcast)

	creditCounter := creditCounterFromEnv()
	creditManager := credit.New(db.Credits, creditCounter, cfg.Credit.DefaultBudget)

	hooks := runstate.CompositeHooks{creditManager, publisher}

	toolLimiter := toolLimiterFromEnv()
	toolRouter := toolrouter.New(cfg.Tools, toolLimiter)
	registerBuiltinTools(toolRouter, artifacts, *workDir)

	llmRouter := llmrouter.New(cfg.Providers, cfg.Chains, map[model.LLMProviderKind]llmrouter.Provider{
		model.LLMProviderAnthropic: anthropic.New(),
		model.LLMProviderGoogle:    google.New(),
		model.LLMProviderOpenAI:    openaicompat.New(),
		model.LLMProviderGRPCProxy: grpcproxy.New(),
	})

	plan := planner.New(llmRouter, cfg.Planner)

	super := supervisor.New(plan, llmRouter, toolRouter, cfg.Tools,
		db.Runs, db.Steps, hooks, creditManager, publisher, cfg.Supervisor)

	pool := queue.NewWorkerPool(*nodeID, db.Runs, cfg.Queue, super, hooks)
	pool.Start(ctx)
	defer pool.Stop()

	auth := ingress.NewStaticAuthenticator(loadStaticTokens())
	server := ingress.NewServer(db.Runs, db.Steps, artifacts, pool, hooks, broadcast, auth, cfg.Credit, cfg.Queue)

	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	server.Routes(engine)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		slog.Info("ingress API listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ingress API server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("ingress API graceful shutdown failed", "error", err)
	}
}

func hostnameOrFallback() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "conductord"
	}
	return h
}

// registerBuiltinTools wires the builtin catalog tools (see
// pkg/config/defaults.go's builtinTools) that have a concrete handler in
// this module. The remaining catalog entries (shell_background, shell_kill,
// file_delete, file_list, web_fetch, code_search, browser_screenshot,
// document_convert, image_edit, email_send, deployment_rollback) have no
// handler and are not registered. A tool
// whose handler needs an external dependency not supplied by the
// environment (a Slack bot token, an HTTP search endpoint) is skipped with
// a warning rather than registered half-configured.
func registerBuiltinTools(router *toolrouter.Router, artifacts *artifact.Manager, workDir string) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	router.Register("shell_exec", shell.Handler(workDir))
	router.Register("file_read", file.ReadHandler(workDir))
	router.Register("file_write", file.WriteHandler(workDir))
	router.Register("browser_open", browser.Handler(httpClient))

	router.Register("document_generate", document.Handler(artifacts, renderDocument))

	if endpoint := os.Getenv("IMAGE_GENERATE_ENDPOINT"); endpoint != "" {
		router.Register("image_generate", image.Handler(artifacts, httpImageGenerator(httpClient, endpoint, os.Getenv("IMAGE_GENERATE_API_KEY"))))
	} else {
		slog.Warn("IMAGE_GENERATE_ENDPOINT unset, image_generate tool not registered")
	}

	if endpoint := os.Getenv("WEB_SEARCH_ENDPOINT"); endpoint != "" {
		router.Register("web_search", search.Handler(httpClient, endpoint, os.Getenv("WEB_SEARCH_API_KEY")))
	} else {
		slog.Warn("WEB_SEARCH_ENDPOINT unset, web_search tool not registered")
	}

	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" {
		slackClient := communication.NewClient(token, os.Getenv("SLACK_CHANNEL_ID"))
		router.Register("slack_notify", communication.Handler(slackClient))
	} else {
		slog.Warn("SLACK_BOT_TOKEN unset, slack_notify tool not registered")
	}

	if webhook := os.Getenv("DEPLOYMENT_WEBHOOK_URL"); webhook != "" {
		router.Register("deployment_trigger", deployment.Handler(httpClient, webhook, os.Getenv("DEPLOYMENT_AUTH_TOKEN")))
	} else {
		slog.Warn("DEPLOYMENT_WEBHOOK_URL unset, deployment_trigger tool not registered")
	}
}

// httpImageGenerator posts a prompt to a configured image backend and
// returns the raw image bytes, the simplest Generator that can sit behind
// image.Handler without hard-coding a specific provider's API shape.
func httpImageGenerator(client *http.Client, endpoint, apiKey string) image.Generator {
	return func(ctx context.Context, prompt string) ([]byte, error) {
		body, err := json.Marshal(map[string]string{"prompt": prompt})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("image backend returned status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

// renderDocument is the default document_generate renderer: content is
// rendered as indented JSON, mirroring the teacher's preference for
// structured, inspectable artifacts over bespoke templating.
func renderDocument(content any) ([]byte, string, error) {
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// redisClientFromEnv returns a new client when REDIS_URL is set, or nil
// when it isn't — callers fall back to an in-process implementation, which
// is only safe for a single-node deployment.
func redisClientFromEnv() *redis.Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		return nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		slog.Warn("REDIS_URL could not be parsed, falling back to in-process rate limiting/credit counting", "error", err)
		return nil
	}
	return redis.NewClient(opts)
}

func creditCounterFromEnv() credit.Counter {
	if client := redisClientFromEnv(); client != nil {
		return credit.NewRedisCounter(client, "conductor:credit")
	}
	slog.Warn("running with an in-process credit counter; this is not safe across multiple conductord nodes")
	return credit.NewMemoryCounter()
}

func toolLimiterFromEnv() limiter.Limiter {
	if client := redisClientFromEnv(); client != nil {
		return limiter.NewRedisLimiter(client, "conductor:ratelimit")
	}
	slog.Warn("running with an in-process tool rate limiter; this is not safe across multiple conductord nodes")
	return limiter.NewMemoryLimiter()
}

func loadStaticTokens() map[string]ingress.Principal {
	tokens := make(map[string]ingress.Principal)
	raw := os.Getenv("INGRESS_BEARER_TOKEN")
	if raw == "" {
		slog.Warn("INGRESS_BEARER_TOKEN unset, ingress will reject every request")
		return tokens
	}
	tokens[raw] = ingress.Principal{
		TenantID: getEnv("INGRESS_DEFAULT_TENANT", "default"),
		UserID:   getEnv("INGRESS_DEFAULT_USER", "operator"),
	}
	return tokens
}
