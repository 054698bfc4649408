// Package api provides the gin HTTP handlers backlogd serves: image
// submission, job status polling, result download, statistics and a
// server-sent event stream of lifecycle events.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xraph/backlog/job"
	"github.com/xraph/backlog/scheduler"
	"github.com/xraph/backlog/stream"
)

// DefaultMaxUploadBytes caps the size of a single multipart request.
const DefaultMaxUploadBytes int64 = 32 << 20

// API wires the HTTP handlers to a Scheduler.
type API struct {
	sched     *scheduler.Scheduler
	processor job.Processor
	broker    *stream.Broker
	logger    *slog.Logger

	maxUploadBytes int64
}

// Option configures an API.
type Option func(*API)

// WithBroker enables GET /v1/events backed by b. b must be registered
// with the scheduler as an extension.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithMaxUploadBytes caps the request body of POST /v1/images.
func WithMaxUploadBytes(n int64) Option {
	return func(a *API) { a.maxUploadBytes = n }
}

// New creates an API that submits uploads to s using processor.
func New(s *scheduler.Scheduler, processor job.Processor, opts ...Option) *API {
	a := &API{
		sched:          s,
		processor:      processor,
		logger:         slog.Default(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	a.RegisterRoutes(router)
	return router
}

// RegisterRoutes registers all backlog routes on router.
func (a *API) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", a.healthz)

	v1 := router.Group("/v1")
	a.registerJobRoutes(v1)
	a.registerStatsRoutes(v1)
	if a.broker != nil {
		v1.GET("/events", a.events)
	}
}

// registerJobRoutes registers submission and job lookup routes.
func (a *API) registerJobRoutes(g gin.IRouter) {
	g.POST("/images", a.submitImages)
	g.GET("/jobs/:jobId", a.getJob)
	g.GET("/jobs/:jobId/result", a.getResult)
}

// registerStatsRoutes registers aggregate statistics routes.
func (a *API) registerStatsRoutes(g gin.IRouter) {
	g.GET("/stats", a.stats)
}
