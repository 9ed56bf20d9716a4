package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/recipebox/apiserver/config"
	"github.com/recipebox/apiserver/internal/auth"
	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/events"
	"github.com/recipebox/apiserver/internal/handlers"
	"github.com/recipebox/apiserver/internal/logger"
	"github.com/recipebox/apiserver/internal/mq"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/recipebox/apiserver/internal/storage"
	"github.com/recipebox/apiserver/internal/store"
	"github.com/recipebox/apiserver/types"
	"github.com/rs/zerolog"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Users       *services.UserService
	Tokens      *services.TokenService
	Recipes     *services.RecipeService
	Tags        *services.LabelService
	Ingredients *services.LabelService
	Presenter   handlers.Presenter
	Log         zerolog.Logger
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	log        zerolog.Logger
}

// New connects to the database, object storage and message queue
// configured in cfg and builds the HTTP server on top of them.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get()

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	images, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	repos := sqlRepositories(dbConn)

	deps := Deps{
		Users: services.NewUserService(userRepo, services.WithRequireVerified(cfg.Auth.RequireVerified)),
		Tokens: services.NewTokenService(
			store.NewTokenRepository(dbConn),
			userRepo,
			auth.NewKeySigner(cfg.Auth.TokenSecret),
		),
		Recipes: services.NewRecipeService(
			repos,
			sqlUnitOfWork{db: dbConn},
			images,
			events.NewPublisher(queue, cfg.MQ.Channel),
			log,
		),
		Tags:        services.NewLabelService(types.KindTag, repos),
		Ingredients: services.NewLabelService(types.KindIngredient, repos),
		Presenter:   handlers.Presenter{PublicBaseURL: cfg.Storage.PublicBaseURL},
		Log:         log,
	}
	router := NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		log:        log,
	}, nil
}

// NewRouter builds the chi router serving every API route.
func NewRouter(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		accessLog(deps.Log),
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.Timeout(60*time.Second),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.Handler())

	requireAuth := handlers.RequireAuth(deps.Tokens)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, deps.Users, deps.Tokens)
	})
	router.Route("/recipe", func(r chi.Router) {
		r.Use(requireAuth)
		handlers.RecipeRouter(r, deps.Recipes, deps.Presenter)
	})
	router.Route("/tag", func(r chi.Router) {
		r.Use(requireAuth)
		handlers.LabelRouter(r, deps.Tags)
	})
	router.Route("/ingredient", func(r chi.Router) {
		r.Use(requireAuth)
		handlers.LabelRouter(r, deps.Ingredients)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and closes
// the database and broker connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if cerr := s.queue.Close(); cerr != nil {
			s.log.Warn().Err(cerr).Msg("failed to close message queue")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
