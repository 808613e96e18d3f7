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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"threatAnalyzer/api/config"
	"threatAnalyzer/api/database"
	"threatAnalyzer/api/handlers"
	"threatAnalyzer/api/middleware"
	"threatAnalyzer/api/service"
	"threatAnalyzer/worker/cache"
	"threatAnalyzer/worker/queue"
	"threatAnalyzer/worker/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Error("API Service failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("API Service starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))

	client, err := database.ConnectRedis(ctx, cfg.Shared.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	var records repository.RecordLister
	repo, err := repository.Open(ctx, cfg.Shared.Storage, logger)
	if err != nil {
		logger.Warn("Result store unavailable, /records disabled", zap.Error(err))
	} else {
		defer repo.Close()
		if lister, ok := repo.(repository.RecordLister); ok {
			records = lister
		}
	}

	svc := service.NewTaskService(
		queue.NewRedisQueue(client, cfg.Shared.Redis.QueueName),
		cache.NewStatusCache(client, cfg.Shared.Redis.StatusTTL.Duration),
		records,
		cfg.Shared.Worker.DefaultScheme,
	)
	taskHandler := handlers.NewTaskHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.TraceID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))

	r.Get("/health", healthHandler(client))
	r.Handle("/metrics", promhttp.Handler())
	taskHandler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("API Service shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func healthHandler(client *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("redis: " + err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}
}
