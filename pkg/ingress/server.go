// Package ingress implements the Ingress API (spec §6): the gin HTTP
// surface callers use to create, start, stop, retry, resume, and poll
// Runs, plus the SSE event stream and artifact download endpoints. It is
// the one place in the orchestrator that speaks HTTP; everything else
// operates on model.Run and friends directly.
package ingress

import (
	"github.com/gin-gonic/gin"

	"github.com/conductor-run/conductor/pkg/artifact"
	"github.com/conductor-run/conductor/pkg/config"
	"github.com/conductor-run/conductor/pkg/events"
	"github.com/conductor-run/conductor/pkg/queue"
	"github.com/conductor-run/conductor/pkg/runstate"
	"github.com/conductor-run/conductor/pkg/store"
)

// Server wires the persistence seam, the dispatcher, the event broadcaster,
// and the artifact manager behind gin handlers. All fields are required
// except Artifacts, which may be nil if the deployment has no blob store
// configured (the download endpoint then answers 400 INVALID_REQUEST).
type Server struct {
	runs      store.RunStore
	steps     store.StepStore
	artifacts *artifact.Manager
	pool      *queue.WorkerPool
	hooks     runstate.Hooks
	broadcast *events.Broadcaster
	auth      Authenticator
	credit    *config.CreditConfig
	queue     *config.QueueConfig

	metrics *metricSet
}

// NewServer builds a Server. hooks is the composed runstate.Hooks the same
// Dispatcher/Supervisor wiring uses (credit.Manager + events.Publisher),
// so transitions applied from ingress settle credits and emit events
// exactly like transitions applied inside the Supervisor loop.
func NewServer(
	runs store.RunStore,
	steps store.StepStore,
	artifacts *artifact.Manager,
	pool *queue.WorkerPool,
	hooks runstate.Hooks,
	broadcast *events.Broadcaster,
	auth Authenticator,
	creditCfg *config.CreditConfig,
	queueCfg *config.QueueConfig,
) *Server {
	return &Server{
		runs:      runs,
		steps:     steps,
		artifacts: artifacts,
		pool:      pool,
		hooks:     hooks,
		broadcast: broadcast,
		auth:      auth,
		credit:    creditCfg,
		queue:     queueCfg,
		metrics:   newMetricSet(),
	}
}

// Routes registers every Ingress API endpoint (spec §6) plus /healthz and
// /metrics on engine.
func (s *Server) Routes(engine *gin.Engine) {
	engine.Use(s.metrics.middleware())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(s.metrics.handler()))

	v1 := engine.Group("/v1")
	v1.Use(requireAuth(s.auth))
	{
		v1.POST("/runs", s.handleCreate)
		v1.POST("/runs/:id/start", s.handleStart)
		v1.POST("/runs/:id/stop", s.handleStop)
		v1.POST("/runs/:id/retry", s.handleRetry)
		v1.POST("/runs/:id/resume", s.handleResume)
		v1.GET("/runs/:id", s.handleStatus)
		v1.GET("/runs/:id/events", s.handleEvents)
		v1.GET("/artifacts/:id", s.handleArtifactDownload)
	}
}
