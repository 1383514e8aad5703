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
	"github.com/go-chi/cors"
	"github.com/merchforge/apiserver/config"
	"github.com/merchforge/apiserver/internal/auth"
	"github.com/merchforge/apiserver/internal/cache"
	"github.com/merchforge/apiserver/internal/db"
	"github.com/merchforge/apiserver/internal/handlers"
	"github.com/merchforge/apiserver/internal/mailer"
	"github.com/merchforge/apiserver/internal/metrics"
	"github.com/merchforge/apiserver/internal/mq"
	"github.com/merchforge/apiserver/internal/services"
	"github.com/merchforge/apiserver/internal/storage"
	"github.com/merchforge/apiserver/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	requestTimeout  = 60 * time.Second
)

// Server wraps the HTTP server, router and the backing connections.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	db         *sql.DB
	broker     *mq.MQ
	statsCache *cache.StatsCache
}

// New connects the configured backends and builds the router. cfg must
// already be validated.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *Server, err error) {
	srv := &Server{logger: logger}
	defer func() {
		if err != nil {
			srv.closeBackends()
		}
	}()

	srv.db, err = db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	mail, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	srv.broker, err = mq.Connect(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("init mq: %w", err)
	}

	if cfg.Redis.URL != "" {
		srv.statsCache, err = cache.NewStatsCache(ctx, cfg.Redis.URL, cfg.Redis.StatsTTL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	m := metrics.New()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, nil)

	userRepo := store.NewUserRepository(srv.db)
	orderRepo := store.NewOrderRepository(srv.db)

	userService := services.NewUserService(userRepo)
	authService := services.NewAuthService(userRepo, tokens, mail, m, logger, services.AuthOptions{
		PublicURL:  cfg.PublicURL,
		ResetTTL:   cfg.Auth.ResetTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	})

	orderDeps := services.OrderDeps{
		Repo:    orderRepo,
		Mailer:  mail,
		Metrics: m,
		Logger:  logger,
	}
	var statsCache services.StatisticsCache
	if objects != nil {
		orderDeps.Designs = storage.NewDesignStore(objects)
		logger.Info("design images stored in object storage", zap.String("backend", objects.Name()))
	}
	if srv.broker != nil {
		orderDeps.Events = mq.NewOrderEvents(srv.broker, cfg.MQ.OrderEventsChannel)
		logger.Info("publishing order events", zap.String("backend", cfg.MQ.Backend))
	}
	if srv.statsCache != nil {
		orderDeps.Stats = srv.statsCache
		statsCache = srv.statsCache
	}
	orderService := services.NewOrderService(orderDeps)
	statsService := services.NewStatisticsService(store.NewStatisticsRepository(srv.db), statsCache, m, logger)
	guestService := services.NewGuestService(store.NewGuestInfoRepository(srv.db))

	authn := handlers.NewAuthenticator(tokens, userService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		handlers.RequestLogger(logger),
		middleware.Recoverer,
		m.Middleware,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}),
	)
	readiness := map[string]handlers.ReadinessCheck{"postgres": srv.db.PingContext}
	if srv.statsCache != nil {
		readiness["redis"] = srv.statsCache.Ping
	}
	router.Get("/healthz", handlers.Healthz)
	router.Get("/readyz", handlers.Readyz(logger, readiness))
	router.Method(http.MethodGet, "/metrics", m.Handler())
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(authService, userService, logger), authn)
		})
		r.Route("/orders", func(r chi.Router) {
			handlers.OrderRouter(r, handlers.NewOrderHandler(orderService, logger), authn)
		})
		r.Route("/guest-info", func(r chi.Router) {
			handlers.GuestRouter(r, handlers.NewGuestHandler(guestService, logger))
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, handlers.NewAdminHandler(orderService, userService, statsService, logger), authn)
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 5000
	}

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.closeBackends()
		return err
	})
	return g.Wait()
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the listener immediately and releases the backends.
func (s *Server) Shutdown() error {
	err := s.httpServer.Close()
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.logger.Warn("close mq", zap.Error(err))
		}
		s.broker = nil
	}
	if s.statsCache != nil {
		if err := s.statsCache.Close(); err != nil {
			s.logger.Warn("close redis", zap.Error(err))
		}
		s.statsCache = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
