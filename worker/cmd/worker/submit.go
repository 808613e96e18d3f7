package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"threatAnalyzer/worker/cache"
	"threatAnalyzer/worker/models"
	"threatAnalyzer/worker/queue"
)

var (
	submitURL        string
	submitDecisionID string
)

func init() {
	submitCmd.Flags().StringVar(&submitURL, "url", "", "Target URL (defaults to scheme://domain)")
	submitCmd.Flags().StringVar(&submitDecisionID, "decision-id", "", "Decision id (random if empty)")
	rootCmd.AddCommand(submitCmd)
}

var submitCmd = &cobra.Command{
	Use:   "submit <domain>",
	Short: "Enqueue a domain for analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	task := &models.AnalysisTask{
		DecisionID: submitDecisionID,
		Domain:     args[0],
		URL:        submitURL,
	}
	if task.DecisionID == "" {
		task.DecisionID = uuid.NewString()
	}
	task.Normalize(cfg.Worker.DefaultScheme)
	if err := task.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	client, err := connectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := cache.NewStatusCache(client, cfg.Redis.StatusTTL.Duration).Set(ctx, task.DecisionID, models.StatusPending); err != nil {
		return fmt.Errorf("set pending status: %w", err)
	}
	if err := queue.NewRedisQueue(client, cfg.Redis.QueueName).Push(ctx, task); err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}

	logger.Info("Task submitted",
		zap.String("decision_id", task.DecisionID),
		zap.String("url", task.URL),
	)
	fmt.Fprintln(cmd.OutOrStdout(), task.DecisionID)
	return nil
}
