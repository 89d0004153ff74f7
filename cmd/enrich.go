package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mintmark-dev/mintmark/internal/enrich"
)

var (
	enrichDryRun  bool
	enrichIDs     string
	enrichMissing string
	enrichLimit   int
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Apply corrections and run catalog-backed enrichment",
}

var enrichApplyCmd = &cobra.Command{
	Use:   "apply <specimen-id> <field> <value>",
	Short: "Apply one field correction to a specimen",
	Long:  "Writes a single field through the enrichment allow-list. Run 'mintmark enrich fields' for the writable fields.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		specimenID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("cmd: invalid specimen id %q", args[0])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		result := enrich.NewApplier(st).Apply(cmd.Context(), enrich.Application{
			TargetID: specimenID,
			Field:    args[1],
			NewValue: args[2],
			Source:   "user",
		})

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var enrichFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the fields enrichment may write",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, f := range enrich.AllowedFields() {
			cmd.Println(f)
		}
		return nil
	},
}

var enrichBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Enrich specimens from their linked catalog references",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("enrich"); err != nil {
			return err
		}

		var targets []int64
		if enrichIDs != "" {
			for _, tok := range strings.Split(enrichIDs, ",") {
				id, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
				if err != nil {
					return eris.Errorf("cmd: invalid specimen id %q", tok)
				}
				targets = append(targets, id)
			}
		}

		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		job, err := e.Enrich.RunBulk(cmd.Context(), enrich.BulkRequest{
			TargetIDs:    targets,
			MissingField: enrichMissing,
			DryRun:       enrichDryRun,
			Limit:        enrichLimit,
		})
		if err != nil {
			return err
		}

		zap.L().Info("bulk enrichment finished",
			zap.String("job", job.ID),
			zap.String("status", string(job.Status)),
			zap.Int("processed", job.Progress.Processed),
			zap.Int("updated", job.Progress.Updated),
			zap.Int("conflicts", job.Progress.Conflicts),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	enrichBulkCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "report what would change without writing")
	enrichBulkCmd.Flags().StringVar(&enrichIDs, "ids", "", "comma-separated specimen ids (default: all)")
	enrichBulkCmd.Flags().StringVar(&enrichMissing, "missing", "", "only specimens lacking this field (see 'enrich fields')")
	enrichBulkCmd.Flags().IntVar(&enrichLimit, "limit", 0, "cap on specimens when --ids is empty")
	enrichCmd.AddCommand(enrichApplyCmd)
	enrichCmd.AddCommand(enrichFieldsCmd)
	enrichCmd.AddCommand(enrichBulkCmd)
	rootCmd.AddCommand(enrichCmd)
}
