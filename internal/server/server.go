package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boardtrack/apiserver/config"
	"github.com/boardtrack/apiserver/internal/db"
	"github.com/boardtrack/apiserver/internal/handlers"
	"github.com/boardtrack/apiserver/internal/logging"
	"github.com/boardtrack/apiserver/internal/mq"
	"github.com/boardtrack/apiserver/internal/services"
	"github.com/boardtrack/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     mq.Backend
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	broker, err := mq.NewBackend(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	departmentRepo := store.NewDepartmentRepository(dbConn)
	orderRepo := store.NewOrderRepository(dbConn)
	scanRepo := store.NewScanRepository(dbConn)
	shardManager := store.NewShardManager(dbConn)

	queryRouter := services.NewQueryRouter(departmentRepo, shardManager)
	identityService := services.NewIdentityService(userRepo, departmentRepo, orderRepo, scanRepo, queryRouter, shardManager)
	orderService := services.NewOrderService(orderRepo, userRepo, queryRouter, shardManager)
	scanService := services.NewScanService(scanRepo, orderRepo, userRepo, queryRouter)
	if broker != nil {
		scanService = scanService.WithPublisher(broker, cfg.MQ.Channel)
		logging.Logger.Info().Str("backend", cfg.MQ.Backend).Str("channel", cfg.MQ.Channel).Msg("scan event publishing enabled")
	}

	authMiddleware := handlers.RequireAuth(identityService, cfg.JWTSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, identityService, cfg.JWTSecret)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, identityService, authMiddleware)
	})
	router.Route("/departments", func(r chi.Router) {
		handlers.DepartmentRouter(r, identityService, authMiddleware)
	})
	router.Route("/orders", func(r chi.Router) {
		handlers.OrderRouter(r, orderService, authMiddleware)
	})
	router.Route("/scans", func(r chi.Router) {
		handlers.ScanRouter(r, scanService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
