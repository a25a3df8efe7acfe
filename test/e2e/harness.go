// Package e2e drives the orchestrator end to end over real HTTP, the way
// the teacher's test/e2e package drives a TestApp rather than calling
// package internals directly. It wires the same components cmd/conductord
// wires, swapping the teacher's testcontainers-backed Postgres for
// memstore (fast, deterministic, no Docker dependency) and the real
// provider adapters for a scriptedProvider that returns canned LLM
// responses on a per-provider-name schedule. The heavier
// testcontainers-backed coverage lives in pkg/store/postgres's own
// integration test; this package only needs a RunStore, not a specific
// one.
package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/conductor-run/conductor/pkg/artifact"
	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/credit"
	"github.com/conductor-run/conductor/pkg/events"
	"github.com/conductor-run/conductor/pkg/ingress"
	"github.com/conductor-run/conductor/pkg/llmrouter"
	"github.com/conductor-run/conductor/pkg/model"
	"github.com/conductor-run/conductor/pkg/planner"
	"github.com/conductor-run/conductor/pkg/queue"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store/memstore"
	"github.com/conductor-run/conductor/pkg/supervisor"
	"github.com/conductor-run/conductor/pkg/toolrouter"
	"github.com/conductor-run/conductor/pkg/toolrouter/limiter"
)

// testToken is the single bearer token every TestApp accepts, resolving to
// testTenant/testUser.
const (
	testToken  = "test-token"
	testTenant = "test-tenant"
	testUser   = "test-user"

	// primaryProviderName doubles as the default model name: run.Config's
	// zero value (model.DefaultRunConfig) always carries a non-empty
	// Model, and llmrouter.Router.resolveModel treats a non-empty
	// ChatRequest.Model as a provider name rather than a capability
	// lookup. Naming the primary provider after that default is the only
	// way a run with no explicit model override resolves to it.
	primaryProviderName  = "gemini-2.5-flash"
	fallbackProviderName = "fallback-claude"
)

// TestApp bundles one fully wired orchestrator, serving the Ingress API
// over a real httptest.Server, mirroring the teacher's test/e2e.TestApp.
type TestApp struct {
	t *testing.T

	Store     *memstore.Store
	Artifacts *artifact.Manager
	Credits   *credit.Manager
	Tools     *toolrouter.Router
	LLM       *scriptedProvider
	Router    *llmrouter.Router
	Pool      *queue.WorkerPool
	Server    *httptest.Server

	client *http.Client
}

// testAppConfig collects the knobs scenario tests can override via
// TestAppOption; everything else is a fixed, fast-polling default tuned
// for tests rather than production (cmd/conductord uses config.Default*
// directly; tests shrink the queue's poll interval so a run is picked up
// in milliseconds, not a second).
type testAppConfig struct {
	queue     *config.QueueConfig
	credit    *config.CreditConfig
	tools     map[string]config.ToolCatalogEntry
	providers map[string]config.ProviderCatalogEntry
	chains    map[string]config.FallbackChainEntry
}

// TestAppOption customizes a TestApp before it is built.
type TestAppOption func(*testAppConfig)

// WithQueueConfig overrides the worker pool's polling behavior, used by the
// cancellation scenario to slow things down enough to observe an
// in-flight step.
func WithQueueConfig(cfg *config.QueueConfig) TestAppOption {
	return func(c *testAppConfig) { c.queue = cfg }
}

// WithTools replaces the default tool catalog.
func WithTools(tools map[string]config.ToolCatalogEntry) TestAppOption {
	return func(c *testAppConfig) { c.tools = tools }
}

// WithCreditConfig overrides the default credit budget/ceiling.
func WithCreditConfig(cfg *config.CreditConfig) TestAppOption {
	return func(c *testAppConfig) { c.credit = cfg }
}

func defaultTestAppConfig() *testAppConfig {
	return &testAppConfig{
		queue: &config.QueueConfig{
			WorkerCount:             1,
			MaxConcurrentRuns:       2,
			PollInterval:            20 * time.Millisecond,
			PollIntervalJitter:      5 * time.Millisecond,
			LeaseDuration:           time.Minute,
			GracefulShutdownTimeout: 5 * time.Second,
			OrphanDetectionInterval: time.Minute,
			OrphanThreshold:         time.Minute,
			MaxRetries:              3,
		},
		credit: &config.CreditConfig{DefaultBudget: 100, ToolCostCredit: 1, MaxPerRun: 1000},
		tools:  defaultToolCatalog(),
		providers: map[string]config.ProviderCatalogEntry{
			primaryProviderName: {
				Name: primaryProviderName, Kind: "google", Model: primaryProviderName,
				MaxTokens: 2048, Temperature: 0.2, TimeoutMs: 5000,
			},
			fallbackProviderName: {
				Name: fallbackProviderName, Kind: "anthropic", Model: "claude-3-5-sonnet",
				MaxTokens: 2048, Temperature: 0.2, TimeoutMs: 5000,
			},
		},
		chains: map[string]config.FallbackChainEntry{
			"default": {Name: "default", Providers: []string{primaryProviderName, fallbackProviderName}, MaxRetries: 1},
		},
	}
}

// defaultToolCatalog sums exactly 22 credits across research+synthesize+
// deliver's cost, matching a straightforward three-tool happy path, plus
// a zero-cost long_running tool the cancellation scenario blocks on.
func defaultToolCatalog() map[string]config.ToolCatalogEntry {
	return map[string]config.ToolCatalogEntry{
		"research": {
			Name: "research", Category: "search", Description: "gather source material",
			TimeoutMs: 5000, CostCredits: 10, Idempotent: true,
		},
		"synthesize": {
			Name: "synthesize", Category: "document", Description: "draft the findings",
			TimeoutMs: 5000, CostCredits: 8, Idempotent: true,
		},
		"deliver": {
			Name: "deliver", Category: "communication", Description: "hand off the result",
			TimeoutMs: 5000, CostCredits: 4, Idempotent: true,
		},
		"long_running": {
			Name: "long_running", Category: "shell", Description: "a tool that blocks until cancelled",
			TimeoutMs: 60000, CostCredits: 0, Idempotent: false,
		},
	}
}

// NewTestApp wires a complete orchestrator in-process and serves it over a
// real HTTP listener, tearing everything down via t.Cleanup in the reverse
// order it was built, mirroring the teacher's NewTestApp.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	cfg := defaultTestAppConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	db := memstore.New()

	blobs, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.NewLocalStore: %v", err)
	}
	artifacts := artifact.New(blobs, db.Artifacts)

	broadcast := events.NewBroadcaster(config.DefaultEventConfig())
	publisher := events.NewPublisher(broadcast)

	creditManager := credit.New(db.Credits, credit.NewMemoryCounter(), cfg.credit.DefaultBudget)

	hooks := runstate.CompositeHooks{creditManager, publisher}

	toolRouter := toolrouter.New(config.NewToolRegistry(cfg.tools), limiter.NewMemoryLimiter())
	registerTestTools(toolRouter)

	scripted := newScriptedProvider()
	llmRouter := llmrouter.New(
		config.NewProviderRegistry(cfg.providers),
		config.NewChainRegistry(cfg.chains),
		map[model.LLMProviderKind]llmrouter.Provider{
			model.LLMProviderGoogle:    scripted,
			model.LLMProviderAnthropic: scripted,
		},
	)

	plan := planner.New(llmRouter, config.DefaultPlannerConfig())

	super := supervisor.New(plan, llmRouter, toolRouter, config.NewToolRegistry(cfg.tools),
		db.Runs, db.Steps, hooks, creditManager, publisher, testSupervisorConfig())

	pool := queue.NewWorkerPool("test-node", db.Runs, cfg.queue, super, hooks)
	pool.Start(t.Context())
	t.Cleanup(pool.Stop)

	auth := ingress.NewStaticAuthenticator(map[string]ingress.Principal{
		testToken: {TenantID: testTenant, UserID: testUser},
	})
	server := ingress.NewServer(db.Runs, db.Steps, artifacts, pool, hooks, broadcast, auth, cfg.credit, cfg.queue)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	server.Routes(engine)

	httpServer := httptest.NewServer(engine)
	t.Cleanup(httpServer.Close)

	return &TestApp{
		t:         t,
		Store:     db,
		Artifacts: artifacts,
		Credits:   creditManager,
		Tools:     toolRouter,
		LLM:       scripted,
		Router:    llmRouter,
		Pool:      pool,
		Server:    httpServer,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// testSupervisorConfig shrinks the decision loop's pacing and tool retry
// delays so a scenario test doesn't spend real wall-clock time waiting on
// production-sized backoffs.
func testSupervisorConfig() *config.SupervisorConfig {
	return &config.SupervisorConfig{
		ActionParseRetries: 2,
		ToolMaxRetries:      2,
		ToolRetryBaseDelay:  10 * time.Millisecond,
		ToolRetryMaxDelay:   100 * time.Millisecond,
		IterationPacing:     5 * time.Millisecond,
		Temperature:         0.2,
		MaxTokens:           2048,
	}
}

// registerTestTools wires the default catalog's handlers: research/
// synthesize/deliver are simple instant echoes (their cost accounting is
// what scenario tests care about, not their output), long_running blocks
// until its context is cancelled, giving the cancellation scenario
// something to cancel mid-flight.
func registerTestTools(router *toolrouter.Router) {
	echo := func(label string) toolrouter.Handler {
		return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
			return map[string]any{"tool": label, "input": call.Input}, nil
		}
	}

	router.Register("research", echo("research"))
	router.Register("synthesize", echo("synthesize"))
	router.Register("deliver", echo("deliver"))

	router.Register("long_running", func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}
