package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mintmark",
	Short: "Catalog reference resolution for ancient coin collections",
	Long:  "Parses catalog citations, reconciles them against online references, audits specimen records against auction observations, and applies trusted corrections.",
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
