package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"jam3a/internal/authz"
	"jam3a/internal/config"
	"jam3a/internal/database"
	"jam3a/internal/metrics"
	custommiddleware "jam3a/internal/middleware"
	"jam3a/internal/notify"
	"jam3a/internal/repository"
	"jam3a/internal/service"
	"jam3a/internal/transport"
	"jam3a/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

type Server struct {
	*http.Server
	config     *config.Config
	logger     *zap.Logger
	db         *database.Service
	redis      *redis.Client
	dispatcher notify.Dispatcher
	sweeper    *worker.Sweeper
}

// NewServer wires repositories, services and handlers onto a chi router.
// redisClient may be nil, which disables rate limiting and pub/sub.
func NewServer(cfg *config.Config, logger *zap.Logger, db *database.Service, redisClient *redis.Client, m *metrics.Metrics) *Server {
	router := chi.NewRouter()

	router.Use(custommiddleware.DefaultMiddlewareStack(requestTimeout)...)
	router.Use(middleware.Recoverer)
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.MetricsMiddleware(m))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsProduction()))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"database": db.Health(r.Context())}
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				health["redis"] = "down"
			} else {
				health["redis"] = "up"
			}
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, health)
	})
	router.Handle("/metrics", m.Handler())

	dispatcher := newDispatcher(cfg.Notification, redisClient, logger, m)
	policy := authz.DefaultPolicy()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db.DB())
	categoryRepo := repository.NewCategoryRepository(db.DB())
	productRepo := repository.NewProductRepository(db.DB())
	dealRepo := repository.NewDealRepository(db.DB(), logger, cfg.Database.RetryAttempts)

	// Initialize services
	userService := service.NewUserService(userRepo, cfg.JWT.Secret, time.Duration(cfg.JWT.AccessExpiry)*time.Minute)
	catalogService := service.NewCatalogService(categoryRepo, productRepo, policy, logger)
	dealService := service.NewDealService(dealRepo, categoryRepo, policy, dispatcher, m, logger)

	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	var joinLimiter func(http.Handler) http.Handler
	if redisClient != nil {
		joinLimiter = custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.JoinRequests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "rate_limit:join",
		}, logger)
	}

	// Register routes
	transport.NewUserHandler(userService, logger).RegisterRoutes(router, authMiddleware)
	transport.NewCatalogHandler(catalogService, policy, logger).RegisterRoutes(router, authMiddleware)
	transport.NewDealHandler(dealService, policy, logger).RegisterRoutes(router, authMiddleware, joinLimiter)

	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: requestTimeout + 5*time.Second,
		},
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		dispatcher: dispatcher,
		sweeper:    worker.NewSweeper(dealRepo, cfg.Sweep.Interval, logger, m),
	}
}

// newDispatcher builds the notification fan-out from configuration
func newDispatcher(cfg config.NotificationConfig, redisClient *redis.Client, logger *zap.Logger, m *metrics.Metrics) notify.Dispatcher {
	var sinks notify.Multi
	if len(cfg.WebhookURLs) > 0 {
		sinks = append(sinks, notify.NewWebhookDispatcher(notify.WebhookConfig{
			URLs:      cfg.WebhookURLs,
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			Timeout:   cfg.Timeout,
		}, logger, m))
	}
	if redisClient != nil && cfg.RedisChannel != "" {
		sinks = append(sinks, notify.NewRedisPublisher(redisClient, notify.RedisConfig{
			Channel:   cfg.RedisChannel,
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			Timeout:   cfg.Timeout,
		}, logger, m))
	}

	switch len(sinks) {
	case 0:
		logger.Info("No notification sinks configured")
		return notify.Nop{}
	case 1:
		return sinks[0]
	}
	return sinks
}

// RunBackground starts the expiry sweeper until ctx is cancelled
func (s *Server) RunBackground(ctx context.Context) {
	go s.sweeper.Run(ctx)
}

// Close drains pending notifications and releases connections
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Closing server resources")

	closeDispatcher(ctx, s.dispatcher, s.logger)

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}

func closeDispatcher(ctx context.Context, d notify.Dispatcher, logger *zap.Logger) {
	switch d := d.(type) {
	case interface{ Close(context.Context) error }:
		if err := d.Close(ctx); err != nil {
			logger.Warn("Notification queue not drained", zap.Error(err))
		}
	case notify.Multi:
		for _, inner := range d {
			closeDispatcher(ctx, inner, logger)
		}
	}
}
