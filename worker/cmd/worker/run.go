package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"threatAnalyzer/worker/cache"
	"threatAnalyzer/worker/capture"
	"threatAnalyzer/worker/config"
	"threatAnalyzer/worker/converter"
	"threatAnalyzer/worker/feedback"
	"threatAnalyzer/worker/judge"
	"threatAnalyzer/worker/ocr"
	"threatAnalyzer/worker/pool"
	"threatAnalyzer/worker/queue"
	"threatAnalyzer/worker/repository"
	"threatAnalyzer/worker/server"
	"threatAnalyzer/worker/service"
)

var runInstances int

func init() {
	runCmd.Flags().IntVarP(&runInstances, "instances", "n", 0, "Number of orchestrator instances (overrides config)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start processing tasks from the queue",
	RunE:  runWorker,
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if runInstances > 0 {
		cfg.Worker.Instances = runInstances
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Worker Service starting",
		zap.Int("instances", cfg.Worker.Instances),
		zap.String("queue", cfg.Redis.QueueName),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("feedback", cfg.Feedback.Mode),
	)

	client, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	repo, err := repository.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	emitter, err := feedback.New(cfg, logger)
	if err != nil {
		return err
	}
	defer emitter.Close()

	q := queue.NewRedisQueue(client, cfg.Redis.QueueName)
	status := cache.NewStatusCache(client, cfg.Redis.StatusTTL.Duration)
	conv := converter.NewConverter(logger, cfg.VLM.MaxImageWidth, cfg.VLM.MaxImageHeight)

	group := pool.NewGroup(cfg.Worker.Instances, logger)
	err = group.Start(ctx, func(ctx context.Context, id int) (*pool.Instance, error) {
		return newInstance(ctx, id, cfg, service.Deps{
			Queue:     q,
			Converter: conv,
			Repo:      repo,
			Status:    status,
			Feedback:  emitter,
		}, logger)
	})
	if err != nil {
		return err
	}

	srv := server.New(cfg.Metrics.Addr, map[string]server.HealthCheck{
		"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}, logger)
	go func() {
		if err := srv.Run(ctx); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	err = group.Wait()
	logger.Info("Worker Service stopped")
	return err
}

// newInstance gives each orchestrator its own browser, OCR engine and
// model client.
func newInstance(ctx context.Context, id int, cfg *config.Config, shared service.Deps, logger *zap.Logger) (*pool.Instance, error) {
	ilog := logger.With(zap.Int("instance", id))

	browser, err := capture.NewBrowser(ctx, cfg.Browser, ilog)
	if err != nil {
		return nil, err
	}
	extractor, err := ocr.New(cfg.OCR)
	if err != nil {
		browser.Close()
		return nil, err
	}
	vlm := judge.NewClient(cfg.VLM, ilog)

	deps := shared
	deps.Capturer = browser
	deps.OCR = extractor
	deps.Judge = vlm

	return &pool.Instance{
		Runner: service.NewProcessor(deps, cfg, ilog),
		Close: func() error {
			vlm.Close()
			return errors.Join(extractor.Close(), browser.Close())
		},
	}, nil
}
