package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"estate/amenity-service/internal/catalog"
	"estate/amenity-service/internal/config"
	"estate/amenity-service/internal/engine"
	"estate/amenity-service/internal/httpapi"
	"estate/amenity-service/internal/relay"
	"estate/amenity-service/internal/store/postgres"
	"estate/amenity-service/internal/telemetry"
	"estate/amenity-service/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "amenity-service"

func main() {
	envFile := pflag.String("env-file", "", "load environment variables from this file (default: .env if present)")
	migrate := pflag.Bool("migrate", false, "apply database migrations before serving")
	catalogPath := pflag.String("catalog", "", "seed buildings and amenities from this YAML file")
	pflag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := config.LoadEnvFile(*envFile); err != nil {
		bootLogger.Error("load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).With("service", serviceName)
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	location, err := cfg.Location()
	if err != nil {
		logger.Error("invalid BUILDING_TIMEZONE", "timezone", cfg.BuildingTimezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, serviceName, logger)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if *migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	st := postgres.NewStore(pool, postgres.Options{Logger: logger})

	if *catalogPath != "" {
		amenities, err := catalog.LoadFile(*catalogPath)
		if err != nil {
			logger.Error("load catalog", "error", err)
			os.Exit(1)
		}
		if err := catalog.Seed(ctx, st, amenities, logger); err != nil {
			logger.Error("seed catalog", "error", err)
			os.Exit(1)
		}
	}

	eng := engine.New(st, engine.Options{
		Location:       location,
		PassValidity:   cfg.PassValidity,
		SweepBatchSize: cfg.PassSweepBatchSize,
		Logger:         logger,
	})

	handler := httpapi.NewHandler(eng, httpapi.Options{
		Location: location,
		Logger:   logger,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		CallerPerMinute: cfg.CallerRateLimitPerMinute,
		CallerBurst:     cfg.CallerRateLimitBurst,
	})

	var root http.Handler = httpapi.AuthMiddleware([]byte(cfg.JWTSecret), limiter.Middleware(handler.Routes()))
	root = httpapi.LoggingMiddleware(logger, root)
	root = otelhttp.NewHandler(root, serviceName)
	root = cors.New(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}).Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("amenity-service listening", "addr", server.Addr, "timezone", location.String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	go runSweeper(ctx, cfg.PassSweepInterval, eng, logger)

	if cfg.RedisAddr != "" && cfg.RelayInterval > 0 {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, relay will retry", "addr", cfg.RedisAddr, "error", err)
		}
		outbox := relay.New(st, relay.NewRedisPublisher(client, cfg.RedisStream, 0), relay.Config{
			BatchSize: cfg.RelayBatchSize,
			Logger:    logger,
		})
		go relay.Start(ctx, cfg.RelayInterval, outbox)
		logger.Info("event relay started", "stream", cfg.RedisStream)
	} else {
		logger.Info("event relay disabled")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "error", err)
	}
}

func runSweeper(ctx context.Context, interval time.Duration, eng *engine.Engine, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			count, err := eng.SweepExpiredPasses(sweepCtx)
			cancel()
			if err != nil {
				logger.Error("pass expiry sweep failed", "error", err)
				continue
			}
			if count > 0 {
				logger.Info("expired passes swept", "count", count)
			}
		}
	}
}
