package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skymarket/internal/config"
	"skymarket/internal/delivery/router"
	"skymarket/internal/infrastructure/auth"
	"skymarket/internal/infrastructure/cache"
	"skymarket/internal/infrastructure/metrics"
	"skymarket/internal/infrastructure/storage"
	"skymarket/internal/permission"
	"skymarket/internal/repository"
	"skymarket/internal/service"
	"skymarket/pkg/database"
	"skymarket/pkg/logger"
	"skymarket/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	cfg := config.MustLoadConfig()

	loggers, err := logger.SetupLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	loggers.InfoLogger.Info("Logger initialized")

	db, cleanupDB := setupDatabase(cfg, loggers)
	defer cleanupDB()

	adCache, cleanupCache := setupCache(cfg, loggers)
	defer cleanupCache()

	tracerProvider := setupTracer(cfg, loggers)
	defer shutdownTracer(tracerProvider, loggers)

	handlerMetrics := metrics.NewHandlerMetrics(prometheus.DefaultRegisterer)
	serviceMetrics := metrics.NewServiceMetrics(prometheus.DefaultRegisterer)
	repositoryMetrics := metrics.NewRepositoryMetrics(prometheus.DefaultRegisterer)
	loggers.InfoLogger.Info("Prometheus metrics initialized")

	adPolicy, err := permission.AdPolicyByName(cfg.Permissions.AdPolicy)
	if err != nil {
		loggers.ErrorLogger.Error("Invalid ad policy", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Permission policies loaded", "ad_policy", adPolicy.Name())

	jwtManager, err := auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to set up token verification", utils.Err(err))
		os.Exit(1)
	}

	adRepo := repository.NewMysqlAdRepository(db, adCache, cfg.Redis.TTL, repositoryMetrics)
	commentRepo := repository.NewMysqlCommentRepository(db, repositoryMetrics)

	adService := service.NewAdService(adRepo, adPolicy, serviceMetrics, service.AdServiceOptions{
		PageSize:     cfg.Pagination.PageSize,
		MaxImageSize: cfg.Storage.MaxImageSize,
		Images:       setupImageStorage(cfg, loggers),
	})
	commentService := service.NewCommentService(commentRepo, adRepo, permission.CommentPolicy(), serviceMetrics)
	loggers.InfoLogger.Info("Service and repository layers initialized")

	handler := router.NewRouter(router.Dependencies{
		AdService:      adService,
		CommentService: commentService,
		Verifier:       jwtManager,
		Loggers:        loggers,
		Metrics:        handlerMetrics,
		MaxImageSize:   cfg.Storage.MaxImageSize,
		CORS:           cfg.CORS,
	})
	loggers.InfoLogger.Info("Router and routes initialized")

	server := startServer(cfg, handler, loggers)

	waitForShutdown(server, loggers)
}

func setupDatabase(cfg *config.Config, loggers *logger.Loggers) (*sql.DB, func()) {
	db, err := database.NewDatabase(cfg.Database.DSN())
	if err != nil {
		loggers.ErrorLogger.Error("Failed to connect to database", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to database")

	cleanup := func() {
		if err := db.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close database connection", utils.Err(err))
		}
	}

	return db, cleanup
}

// setupCache connects to Redis, or falls back to an in-process cache when no
// Redis address is configured.
func setupCache(cfg *config.Config, loggers *logger.Loggers) (cache.Cache, func()) {
	if cfg.Redis.Addr == "" {
		memory, err := cache.NewMemoryCache(cfg.Redis.LocalMaxEntries)
		if err != nil {
			loggers.ErrorLogger.Error("Failed to set up in-memory cache", utils.Err(err))
			os.Exit(1)
		}
		loggers.InfoLogger.Info("Redis address not set, using in-memory cache", "max_entries", cfg.Redis.LocalMaxEntries)
		return memory, memory.Close
	}

	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		loggers.ErrorLogger.Error("Failed to connect to Redis", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to Redis")

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close Redis client", utils.Err(err))
		}
	}

	return cache.NewRedisCache(rdb), cleanup
}

// setupImageStorage returns nil when no bucket is configured, which disables uploads.
func setupImageStorage(cfg *config.Config, loggers *logger.Loggers) service.ImageStorage {
	if cfg.Storage.Bucket == "" {
		loggers.InfoLogger.Info("Storage bucket not set, image upload disabled")
		return nil
	}

	store, err := storage.NewS3ImageStore(cfg.Storage)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to set up image storage", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Image storage initialized", "bucket", cfg.Storage.Bucket)
	return store
}

func setupTracer(cfg *config.Config, loggers *logger.Loggers) *sdktrace.TracerProvider {
	tracerProvider, err := metrics.InitTracer(
		cfg.Tracing.ServiceName,
		cfg.Tracing.Environment,
		cfg.Tracing.Version,
		cfg.Tracing.Endpoint,
	)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to initialize tracer", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("OpenTelemetry Tracer initialized", "endpoint", cfg.Tracing.Endpoint)
	return tracerProvider
}

func shutdownTracer(tp *sdktrace.TracerProvider, loggers *logger.Loggers) {
	if err := tp.Shutdown(context.Background()); err != nil {
		loggers.ErrorLogger.Error("Failed to shut down tracer provider", utils.Err(err))
	}
}

func startServer(cfg *config.Config, handler http.Handler, loggers *logger.Loggers) *http.Server {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
		IdleTimeout:  time.Minute,
	}

	go func() {
		loggers.InfoLogger.Info("Starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.ErrorLogger.Error("Failed to start server", utils.Err(err))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, loggers *logger.Loggers) {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	<-shutdownCh
	loggers.InfoLogger.Info("Shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		loggers.ErrorLogger.Error("Server forced to shutdown", utils.Err(err))
	} else {
		loggers.InfoLogger.Info("Server shutdown gracefully")
	}
}
