package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/termhub/workbench/internal/config"
	"github.com/termhub/workbench/internal/orchestrator"
	"github.com/termhub/workbench/internal/routes"
	"github.com/termhub/workbench/internal/server/middleware"
	"github.com/termhub/workbench/internal/session"
	"github.com/termhub/workbench/internal/worker"
)

type Server struct {
	cfg        *config.Config
	router     chi.Router
	httpServer *http.Server
}

func New(cfg *config.Config, store *session.Store, orch *orchestrator.Orchestrator, bg *worker.Worker) *Server {
	s := &Server{cfg: cfg}
	s.setupRouter(store, orch, bg)
	return s
}

func (s *Server) setupRouter(store *session.Store, orch *orchestrator.Orchestrator, bg *worker.Worker) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","version":%q}`, s.cfg.Version)
	})

	routes.Register(r, routes.Deps{
		Store:        store,
		Orchestrator: orch,
		Worker:       bg,
	})

	s.router = r
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
		// No WriteTimeout: the shell WebSocket stays open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
