// ABOUTME: Wires the agent runner, orchestrator, engines, and store behind one HTTP server.
// ABOUTME: Owns the listener lifecycle; handlers live in api.go and ws.go.

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/moltpit/arena/internal/agent"
	"github.com/moltpit/arena/internal/config"
	"github.com/moltpit/arena/internal/game"
	"github.com/moltpit/arena/internal/match"
	"github.com/moltpit/arena/internal/store"
)

// Gateway hosts the arena's HTTP/WebSocket surface.
type Gateway struct {
	cfg    *config.Config
	logger *slog.Logger

	engines      *game.Registry
	agents       *agent.Registry
	runner       *agent.Runner
	orchestrator *match.Orchestrator
	archive      *store.SQLiteStore
}

// New assembles a Gateway from configuration. The built-in engines are
// registered; external engines can be added through the registry before
// Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	engines := game.NewRegistry(logger)
	if err := engines.Register(game.NewNimEngine()); err != nil {
		return nil, err
	}

	agents := agent.NewRegistry(logger)
	runner := agent.NewRunner(agents, logger)

	archive, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	bus := match.NewBus(logger)
	orchestrator := match.NewOrchestrator(engines, runner, bus, logger,
		match.WithArchiver(archive),
		match.WithBroadcastInterval(cfg.Matches.BroadcastInterval),
	)

	return &Gateway{
		cfg:          cfg,
		logger:       logger.With("component", "gateway"),
		engines:      engines,
		agents:       agents,
		runner:       runner,
		orchestrator: orchestrator,
		archive:      archive,
	}, nil
}

// Engines exposes the game engine registry for external registration.
func (g *Gateway) Engines() *game.Registry { return g.engines }

// Handler builds the HTTP routing tree.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/games", g.handleListGames)

		r.Post("/agents", g.handleRegisterAgent)
		r.Get("/agents", g.handleListAgents)

		r.Post("/matches", g.handleCreateMatch)
		r.Get("/matches", g.handleListMatches)
		r.Get("/matches/{id}", g.handleGetMatch)
		r.Post("/matches/{id}/start", g.handleStartMatch)
		r.Delete("/matches/{id}", g.handleCancelMatch)
		r.Get("/matches/{id}/events", g.handleMatchEvents)
		r.Get("/matches/{id}/archive", g.handleGetArchive)
	})

	r.Get("/ws/agent", g.handleAgentSocket)

	return r
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		g.logger.Info("http server listening", "addr", g.cfg.Server.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	if closeErr := g.archive.Close(); closeErr != nil {
		g.logger.Error("closing archive store", "error", closeErr)
	}
	return err
}
