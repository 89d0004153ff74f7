package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx>",
	Short: "Import specimens from a collection spreadsheet",
	Long:  "Reads a CSV or XLSX export, creates specimen records, and links any cited references. Rows that fail are reported and skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := importer.New(st).ImportFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		zap.L().Info("import finished",
			zap.String("file", args[0]),
			zap.Int("rows", summary.Rows),
			zap.Int("created", summary.Created),
			zap.Int("linked", summary.Linked),
			zap.Int("skipped", len(summary.Skipped)),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
