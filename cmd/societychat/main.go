package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/societynet/societychat/internal/chat"
	"github.com/societynet/societychat/internal/common/config"
	"github.com/societynet/societychat/internal/common/logging"
	"github.com/societynet/societychat/internal/events"
	"github.com/societynet/societychat/internal/gateway"
	"github.com/societynet/societychat/internal/identity"
	"github.com/societynet/societychat/internal/infra/cache"
	"github.com/societynet/societychat/internal/infra/db"
	"github.com/societynet/societychat/internal/infra/migrations"
	"github.com/societynet/societychat/internal/messages"
	"github.com/societynet/societychat/internal/moderation"
	"github.com/societynet/societychat/internal/observability"
	"github.com/societynet/societychat/internal/ratelimit"
	"github.com/societynet/societychat/internal/retry"
	"github.com/societynet/societychat/internal/storage"
	"github.com/societynet/societychat/internal/users"
	"github.com/societynet/societychat/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.Init(
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.EnableFile,
		cfg.Logging.FilePath,
	)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting societychat",
		zap.String("version", version.String()),
		zap.Int("port", cfg.Server.Port),
		zap.String("room", cfg.Chat.Room),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The database is usually racing us up in the same compose file, so give
	// it a few attempts before failing.
	var database *db.DB
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), func() error {
		var connErr error
		database, connErr = db.New(ctx, cfg.Database)
		return connErr
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("connected to database")

	if err := migrations.Run(ctx, database.Pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("migrations applied")

	var cacheClient *cache.Cache
	if cfg.Redis.Enabled {
		cacheClient, err = cache.New(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without cache", zap.Error(err))
		} else {
			defer func() {
				if err := cacheClient.Close(); err != nil {
					logger.Error("failed to close cache", zap.Error(err))
				}
			}()
			logger.Info("connected to Redis")
		}
	}

	metrics := observability.NewMetrics(logger)
	healthChecker := observability.NewHealthChecker(logger, version.String())

	healthChecker.RegisterCheck("database", func(ctx context.Context) (observability.HealthStatus, string, error) {
		if err := database.Health(ctx); err != nil {
			return observability.StatusUnhealthy, "database connection failed", err
		}
		return observability.StatusHealthy, "database connection ok", nil
	})

	if cacheClient != nil {
		healthChecker.RegisterCheck("redis", func(ctx context.Context) (observability.HealthStatus, string, error) {
			if err := cacheClient.Ping(ctx); err != nil {
				return observability.StatusDegraded, "redis connection failed", err
			}
			return observability.StatusHealthy, "redis connection ok", nil
		})
	}

	idm := identity.NewManager(cfg.Auth.JWTSecret)

	limiter := ratelimit.NewLimiter(
		cacheClient,
		cfg.RateLimit.MessagesPerMinute,
		cfg.RateLimit.Burst,
		cfg.RateLimit.Enabled,
	)
	defer limiter.Close()

	var usersRepo *users.Repository
	if cacheClient != nil {
		usersRepo = users.NewRepositoryWithCache(database.Pool, cacheClient)
	} else {
		usersRepo = users.NewRepository(database.Pool)
	}

	messagesRepo := messages.NewRepository(database.Pool)

	reaper := messages.NewReaper(messagesRepo, cfg.Chat.ReaperInterval, logger)
	reaper.OnReaped = metrics.AddReaped
	reaper.Start(ctx)
	defer reaper.Stop()

	hub := events.NewHub(logger, cfg.Chat.SendBuffer)
	hub.OnBroadcast = metrics.ObserveFanout

	settings := moderation.NewState()

	coordinator := chat.NewService(
		messagesRepo,
		usersRepo,
		hub,
		settings,
		limiter,
		cfg.Chat.DeleteWindow,
		logger,
	)

	blobStore, err := storage.New(cfg.Storage.Path, cfg.Storage.URL, cfg.Storage.MaxFileSize, logger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	router := mux.NewRouter()
	chat.NewHandler(coordinator, idm, logger).Register(router)
	storage.NewHandler(blobStore, idm, logger).Register(router)
	gateway.New(coordinator, hub, idm, metrics, logger).Register(router)
	healthChecker.Register(router)

	// No server-wide read/write timeouts: websocket connections are
	// long-lived and the gateway manages its own deadlines.
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Start(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("hub shutdown failed", zap.Error(err))
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
