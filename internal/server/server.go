package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inkwell-app/authserver/config"
	"github.com/inkwell-app/authserver/internal/audit"
	"github.com/inkwell-app/authserver/internal/db"
	"github.com/inkwell-app/authserver/internal/handlers"
	"github.com/inkwell-app/authserver/internal/mq"
	"github.com/inkwell-app/authserver/internal/password"
	"github.com/inkwell-app/authserver/internal/rate"
	"github.com/inkwell-app/authserver/internal/services"
	"github.com/inkwell-app/authserver/internal/storage"
	"github.com/inkwell-app/authserver/internal/store"
	"github.com/inkwell-app/authserver/internal/token"
	"github.com/redis/go-redis/v9"
)

// Server wraps the HTTP server, router, and backing clients.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	bus        *mq.Bus
	archiver   *audit.Archiver
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := slog.Default()

	codec, err := token.NewCodec(token.Config{
		AccessSecret:  []byte(cfg.Auth.AccessTokenSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshTokenSecret),
		AccessTTL:     cfg.Auth.AccessTokenTTL,
		RefreshTTL:    cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token config: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var limiter services.LoginLimiter
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		limiter = rate.New(redisClient, rate.Config{
			MaxAttempts: cfg.Redis.MaxAttempts,
			Cooldown:    cfg.Redis.AttemptCooldown,
		})
	}

	bus, err := openEventBus(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)

	var events services.EventPublisher
	if bus != nil {
		events = bus
	}
	authService := services.NewAuthService(
		userRepo,
		password.NewHasher(),
		codec,
		limiter,
		events,
		cfg.Events.Channel,
		logger,
	)

	authHandler := handlers.NewAuthHandler(authService, userRepo, codec, handlers.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
		MaxAge: cfg.Auth.RefreshTokenTTL,
	})

	var archiver *audit.Archiver
	if cfg.Audit.Backend != "" {
		if bus == nil {
			_ = dbConn.Close()
			return nil, errors.New("audit archiving requires an events backend")
		}
		auditStore, err := openAuditStore(ctx, cfg.Audit)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		archiver = audit.NewArchiver(auditStore, bus, cfg.Events.Channel, cfg.Audit.Prefix, logger)
	}

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
		handlers.AuthRouter(r, authHandler)
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
		redis:      redisClient,
		bus:        bus,
		archiver:   archiver,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the audit archiver, if configured, and the HTTP server.
func (s *Server) Start() error {
	if s.archiver != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go func() {
			if err := s.archiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("audit archiver stopped", "error", err)
			}
		}()
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}

func openEventBus(ctx context.Context, cfg config.EventsConfig) (*mq.Bus, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		backend, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return mq.NewBus(backend), nil
	case "pubsub":
		backend, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("pubsub: %w", err)
		}
		return mq.NewBus(backend), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}

func openAuditStore(ctx context.Context, cfg config.AuditConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "minio":
		return storage.NewMinioStore(cfg.Minio)
	case "gcs":
		return storage.NewGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown audit backend %q", cfg.Backend)
	}
}
