package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cellarid",
	Short: "Wine bottle identification service",
	Long:  "Identifies wine bottles from descriptions, label photos, or barcodes via tiered Claude models, streaming fields as they resolve and escalating to costlier tiers only when confidence stays low.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
