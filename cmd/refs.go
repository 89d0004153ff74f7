package main

import (
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/mintmark-dev/mintmark/internal/model"
	"github.com/mintmark-dev/mintmark/internal/refsync"
)

var (
	refsMerge  bool
	refsSide   string
	refsSource string
)

var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage specimen-to-reference links",
}

var refsSyncCmd = &cobra.Command{
	Use:   "sync <specimen-id> <citation>...",
	Short: "Link citations to a specimen, creating reference types as needed",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specimenID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("cmd: invalid specimen id %q", args[0])
		}

		inputs := make([]refsync.Input, 0, len(args)-1)
		for _, raw := range args[1:] {
			inputs = append(inputs, refsync.Input{
				Raw:    raw,
				Side:   refsSide,
				Source: model.RefSource(refsSource),
			})
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		links, err := refsync.NewService(st).Sync(cmd.Context(), specimenID, inputs, refsync.Options{Merge: refsMerge})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(links)
	},
}

var refsListCmd = &cobra.Command{
	Use:   "list <specimen-id>",
	Short: "List the references linked to a specimen",
	Args:  cobra.ExactArgs(1),
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

		links, err := st.ListSpecimenReferences(cmd.Context(), specimenID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(links)
	},
}

func init() {
	refsSyncCmd.Flags().BoolVar(&refsMerge, "merge", false, "keep existing links not present in this batch")
	refsSyncCmd.Flags().StringVar(&refsSide, "side", "", "obverse/reverse for countermark references")
	refsSyncCmd.Flags().StringVar(&refsSource, "source", string(model.SourceUser), "provenance tag for the links")
	refsCmd.AddCommand(refsSyncCmd)
	refsCmd.AddCommand(refsListCmd)
	rootCmd.AddCommand(refsCmd)
}
