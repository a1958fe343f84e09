package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/AgroIntelX/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/AgroIntelX/internal/api/middlewares"
	"github.com/markdave123-py/AgroIntelX/internal/auth"
	"github.com/markdave123-py/AgroIntelX/internal/config"
	"github.com/markdave123-py/AgroIntelX/internal/services"
)

const (
	// report analysis alone may take up to two minutes upstream
	requestTimeout  = 150 * time.Second
	shutdownTimeout = 15 * time.Second
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Users  *services.UserService
	Tokens *auth.TokenIssuer
	Soil   *services.SoilService
	Chat   *services.ChatService
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, deps, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

func NewRouter(cfg *config.Config, deps Deps, logger *zap.Logger) http.Handler {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens, logger)
	soilHandler := handlers.NewSoilHandler(deps.Soil, cfg.MaxUploadBytes, logger)
	chatHandler := handlers.NewChatHandler(deps.Chat, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = handlers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/auth/signup", authHandler.Signup)
		api.Post("/auth/login", authHandler.Login)
		api.Post("/auth/logout", authHandler.Logout)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware(deps.Tokens, deps.Users, logger))
			protected.Get("/auth/me", authHandler.Me)

			protected.Post("/soil/analyze", soilHandler.Analyze)
			protected.Get("/soil/my-reports", soilHandler.ListReports)
			protected.Get("/soil/reports/{reportId}", soilHandler.GetReport)

			protected.Post("/chat/send", chatHandler.SendMessage)
			protected.Get("/chat/sessions", chatHandler.ListSessions)
			protected.Get("/chat/messages/{sessionId}", chatHandler.ListMessages)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
