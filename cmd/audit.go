package main

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/audit"
	"github.com/mintmark-dev/mintmark/internal/model"
)

var auditLotFile string

var auditCmd = &cobra.Command{
	Use:   "audit <specimen-id>",
	Short: "Check a specimen record against an observed auction lot",
	Long:  "Reads an observed lot as JSON (from --lot or stdin) and reports field-level discrepancies against the stored specimen record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specimenID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("cmd: invalid specimen id %q", args[0])
		}

		var lotReader = cmd.InOrStdin()
		if auditLotFile != "" {
			f, err := os.Open(auditLotFile)
			if err != nil {
				return eris.Wrap(err, "cmd: open lot file")
			}
			defer f.Close()
			lotReader = f
		}

		var lot model.ObservedLot
		if err := json.NewDecoder(lotReader).Decode(&lot); err != nil {
			return eris.Wrap(err, "cmd: decode observed lot")
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		sp, err := st.GetSpecimen(cmd.Context(), specimenID)
		if err != nil {
			return err
		}
		if sp == nil {
			return eris.Errorf("cmd: specimen %d not found", specimenID)
		}

		report := audit.NewEngine().Run(sp, lot)
		zap.L().Info("audit finished",
			zap.Int64("specimen", specimenID),
			zap.Int("discrepancies", len(report.Discrepancies)),
			zap.Int("skipped_strategies", len(report.Skipped)),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditLotFile, "lot", "", "path to observed lot JSON (defaults to stdin)")
	rootCmd.AddCommand(auditCmd)
}
