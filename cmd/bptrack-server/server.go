package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/config"
	"github.com/bptrack/bptrack/internal/domain/measurement"
	"github.com/bptrack/bptrack/internal/domain/profile"
	"github.com/bptrack/bptrack/internal/platform/apierror"
	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/db"
	"github.com/bptrack/bptrack/internal/platform/middleware"
	"github.com/bptrack/bptrack/internal/platform/telemetry"
	"github.com/bptrack/bptrack/internal/platform/validate"
)

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	zerolog.DefaultContextLogger = &logger

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsDev() {
		logger.Warn().Str("dev_user_id", cfg.DevUserID).
			Msg("development mode: requests without a bearer token are served as the dev user")
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}

	pool, err := db.NewPool(ctx, db.PoolConfig{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Schema:      cfg.DBSchema,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	limiter, closeLimiter := newLimiterStore(ctx, cfg, logger)
	defer closeLimiter()

	measurements, profiles := newServices(pool, logger)
	measurementHandler := measurement.NewHandler(measurements)
	measurementHandler.SetLocationResolver(profiles.Location)
	profileHandler := profile.NewHandler(profiles)

	e := newEcho(cfg, logger, pool, limiter, measurementHandler, profileHandler)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newEcho assembles the HTTP server: global middleware, public health
// endpoints and the authenticated /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger, health db.Pinger, limiter middleware.LimiterStore, handlers ...routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.HTTPErrorHandler(logger)
	e.Validator = validate.New()

	e.Use(middleware.RequestID())
	e.Use(telemetry.Middleware(nil))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader, "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	healthHandler := db.HealthHandler(health, version)
	e.GET("/health", healthHandler)
	e.GET("/health/db", healthHandler)

	strict := auth.JWTMiddleware(auth.JWTConfig{
		Secret:   []byte(cfg.AuthJWTSecret),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		Skipper:  auth.AuthSkipper,
	})
	authn := strict
	if cfg.IsDev() {
		authn = auth.DevAuthMiddleware(cfg.DevUserID, strict)
	}

	api := e.Group("/api/v1")
	api.Use(middleware.Audit(logger))
	api.Use(authn)
	api.Use(auth.RequireUser())
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Store:             limiter,
		Logger:            logger,
	}))
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return e
}

// newLimiterStore returns the Redis-backed limiter when REDIS_URL is set
// and reachable, and nil (in-process buckets) otherwise.
func newLimiterStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (middleware.LimiterStore, func()) {
	if cfg.RedisURL == "" {
		return nil, func() {}
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid REDIS_URL, using in-process rate limiting")
		return nil, func() {}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, using in-process rate limiting")
		_ = client.Close()
		return nil, func() {}
	}
	logger.Info().Str("addr", opts.Addr).Msg("rate limiting via redis")
	return middleware.NewRedisStore(client, cfg.RateLimitRPS, cfg.RateLimitBurst), func() { _ = client.Close() }
}
