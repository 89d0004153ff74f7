package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/catalog"
)

var (
	lookupIssuer string
	lookupMint   string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <citation>",
	Short: "Reconcile a citation against its online catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := catalog.NewRegistry(newCoordinator(), cfg.Catalog.TTLDays)

		raw := args[0]
		system := registry.DetectSystem(raw)

		var hints *catalog.QueryContext
		if lookupIssuer != "" || lookupMint != "" {
			hints = &catalog.QueryContext{Issuer: lookupIssuer, Mint: lookupMint}
		}

		result := registry.Lookup(cmd.Context(), system, raw, hints)
		zap.L().Info("lookup finished",
			zap.String("citation", raw),
			zap.String("system", system),
			zap.String("status", string(result.Status)),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupIssuer, "issuer", "", "issuer hint to sharpen the query")
	lookupCmd.Flags().StringVar(&lookupMint, "mint", "", "mint hint to sharpen the query")
	rootCmd.AddCommand(lookupCmd)
}
