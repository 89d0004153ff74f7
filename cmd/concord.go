package main

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mintmark-dev/mintmark/internal/concordance"
	"github.com/mintmark-dev/mintmark/internal/model"
)

var (
	concordConfidence float64
	concordSource     string
)

var concordCmd = &cobra.Command{
	Use:   "concord",
	Short: "Manage cross-catalog concordance groups",
}

var concordCreateCmd = &cobra.Command{
	Use:   "create <ref-type-id,ref-type-id,...>",
	Short: "Assert that two or more reference types describe the same coin type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var members []model.ConcordanceMember
		for _, tok := range strings.Split(args[0], ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 64)
			if err != nil {
				return eris.Errorf("cmd: invalid reference type id %q", tok)
			}
			members = append(members, model.ConcordanceMember{
				ReferenceTypeID: id,
				Confidence:      concordConfidence,
				Source:          model.RefSource(concordSource),
			})
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		group, err := concordance.NewService(st).CreateGroup(cmd.Context(), members)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(group)
	},
}

var concordShowCmd = &cobra.Command{
	Use:   "show <ref-type-id>",
	Short: "List the reference types equivalent to the given one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("cmd: invalid reference type id %q", args[0])
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		equivalents, err := concordance.NewService(st).FindEquivalent(cmd.Context(), id)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(equivalents)
	},
}

func init() {
	concordCreateCmd.Flags().Float64Var(&concordConfidence, "confidence", 1.0, "confidence in the equivalence")
	concordCreateCmd.Flags().StringVar(&concordSource, "source", string(model.SourceUser), "provenance tag for the assertion")
	concordCmd.AddCommand(concordCreateCmd)
	concordCmd.AddCommand(concordShowCmd)
	rootCmd.AddCommand(concordCmd)
}
