// Package server exposes indexing and question answering over HTTP.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"repolens/internal/fetcher"
	"repolens/internal/index"
	"repolens/internal/rag"
	"repolens/internal/store"
)

// Estimator sizes a repository without indexing it. *index.Indexer
// implements it.
type Estimator interface {
	EstimateCost(ctx context.Context, ref string, creds fetcher.Credentials) (int, error)
}

// Jobs runs indexing in the background. *index.Queue implements it.
type Jobs interface {
	Submit(req index.Request) (string, error)
	Status(id string) (index.Job, error)
}

// Searcher returns the fragments a question would be answered from.
type Searcher interface {
	Retrieve(ctx context.Context, question, projectID string) ([]store.SearchResult, error)
}

// Answerer answers a question as a token stream.
type Answerer interface {
	Answer(ctx context.Context, question, projectID string) (*rag.Answer, error)
}

// Projects deletes indexed projects.
type Projects interface {
	DeleteProject(ctx context.Context, projectID string) error
}

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Estimator Estimator
	Jobs      Jobs
	Searcher  Searcher
	Answerer  Answerer
	Projects  Projects
	// DefaultToken is used when a request carries no GitHub token.
	DefaultToken string
}

type Server struct {
	listenAddr string
	app        *fiber.App
	logger     *slog.Logger
}

// New builds the fiber app and its routes. A nil logger discards log
// output.
func New(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(logger))

	var (
		checkHandler   = NewCheckHandler()
		indexHandler   = NewIndexHandler(deps.Estimator, deps.Jobs, deps.DefaultToken)
		projectHandler = NewProjectHandler(deps.Searcher, deps.Answerer, deps.Projects, logger)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/estimate", indexHandler.HandleEstimate)
	apiv1.Post("/projects/:id/index", indexHandler.HandleIndex)
	apiv1.Get("/jobs/:id", indexHandler.HandleJob)
	apiv1.Post("/projects/:id/search", projectHandler.HandleSearch)
	apiv1.Post("/projects/:id/ask", projectHandler.HandleAsk)
	apiv1.Delete("/projects/:id", projectHandler.HandleDelete)

	return &Server{listenAddr: addr, app: app, logger: logger}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.listenAddr)
		errCh <- s.app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("server stopping")
	if err := s.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Debug("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}
