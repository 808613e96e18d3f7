package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"threatAnalyzer/worker/repository"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(recordsCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the result store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		repo, err := repository.Open(cmd.Context(), cfg.Storage, logger)
		if err != nil {
			return err
		}
		logger.Info("Result store schema is up to date", zap.String("driver", cfg.Storage.Driver))
		return repo.Close()
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records <decision_id>",
	Short: "Print stored analysis records for a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		repo, err := repository.Open(cmd.Context(), cfg.Storage, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		lister, ok := repo.(repository.RecordLister)
		if !ok {
			return fmt.Errorf("storage driver %s cannot list records", cfg.Storage.Driver)
		}
		records, err := lister.ListByDecisionID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	},
}
