package main

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

func main() {
	// a missing .env is fine, provider keys may come from the environment
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scribe",
		Short: "rulebook question answering over ingested collections",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.AddCommand(newRunCmd(), newQueryCmd(), newIndexCmd())

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}
