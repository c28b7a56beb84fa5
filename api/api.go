package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/memory"
	"github.com/mnemohq/mnemo/pkg/search"
	"github.com/mnemohq/mnemo/pkg/storage/postgres"
)

// PoolStatser reports connection pool health and metrics.
type PoolStatser interface {
	Healthy() bool
	Stats() postgres.PoolStats
}

// Server is the API server for querying the retrieval system.
type Server struct {
	config  Config
	engine  *search.Engine
	builder *memory.Builder
	pool    PoolStatser
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server. The engine and builder are injected to
// share them with the bot; pool may be nil when running on the in-memory
// store.
func NewServer(config Config, engine *search.Engine, builder *memory.Builder, pool PoolStatser, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		engine:  engine,
		builder: builder,
		pool:    pool,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/search", s.handleSearch)
	app.Get("/context/:channel", s.handleContext)
	app.Get("/pool/stats", s.handlePoolStats)

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
