package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"distributed-rate-limiter/internal/config"
	"distributed-rate-limiter/internal/handler"
	"distributed-rate-limiter/internal/limiter"
	"distributed-rate-limiter/internal/metrics"
	ratelimitMiddleware "distributed-rate-limiter/internal/middleware"
	"distributed-rate-limiter/internal/storage"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	tokenConfigs, err := config.LoadTokenConfigs("configs/tokens.json")
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logrus.Fatalf("Failed to load token configurations: %v", err)
		}
		logrus.Warn("No token configuration file found, all callers use the default limit")
		tokenConfigs = config.TokenConfigs{}
	}

	registry := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(registry)

	store := storage.NewRedisStorage(storage.RedisOptions{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !store.Available(ctx) {
		logrus.Fatalf("Failed to connect to Redis at %s", cfg.Redis.GetRedisAddr())
	}

	limiters, err := buildLimiters(cfg, tokenConfigs, store, sink)
	if err != nil {
		logrus.Fatalf("Failed to build rate limiters: %v", err)
	}

	healthHandler := handler.NewHealthHandler(store)

	router := setupRouter(limiters, healthHandler, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", cfg.Server.Port)
		logrus.Infof("Environment: %s", cfg.Server.AppEnv)
		logrus.Infof("Algorithm: %s", cfg.RateLimit.Algorithm)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := store.Close(); err != nil {
		logrus.Errorf("Error closing Redis connection: %v", err)
	}

	logrus.Info("Server exited")
}

// Monta o limiter padrão e um limiter dedicado por token configurado
func buildLimiters(cfg *config.Config, tokenConfigs config.TokenConfigs, store storage.Storage, sink metrics.Sink) (*ratelimitMiddleware.LimiterSet, error) {
	algorithm, err := cfg.RateLimit.GetAlgorithm()
	if err != nil {
		return nil, err
	}

	defaultLimiter, err := limiter.New(algorithm, store, cfg.RateLimit.GetLimiterConfig(), sink)
	if err != nil {
		return nil, err
	}

	limiters := ratelimitMiddleware.NewLimiterSet(defaultLimiter, cfg.RateLimit.MaxPermits)

	for token, tokenCfg := range tokenConfigs {
		tokenAlgorithm, err := tokenCfg.GetAlgorithm()
		if err != nil {
			return nil, err
		}
		tokenLimiter, err := limiter.New(tokenAlgorithm, store, tokenCfg.GetLimiterConfig(), sink)
		if err != nil {
			return nil, err
		}
		limiters.AddToken(token, tokenLimiter, tokenCfg.MaxPermits)
	}

	return limiters, nil
}

func setupRouter(limiters *ratelimitMiddleware.LimiterSet, healthHandler *handler.HealthHandler, registry *prometheus.Registry) *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "API_KEY"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", healthHandler.Health)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(ratelimitMiddleware.RateLimitMiddleware(limiters))
		r.Get("/resource", healthHandler.Resource)
	})

	return router
}
