package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mintmark-dev/mintmark/internal/refparse"
)

var parseAlternatives bool

var parseCmd = &cobra.Command{
	Use:   "parse <citation>...",
	Short: "Parse catalog citations into structured form",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		for _, raw := range args {
			p := refparse.Parse(raw)
			if err := enc.Encode(p); err != nil {
				return err
			}
			fmt.Fprintf(out, "canonical: %s\n", refparse.Canonical(p))

			if parseAlternatives {
				for _, alt := range refparse.Alternatives(p) {
					fmt.Fprintf(out, "alternative: %s\n", refparse.Canonical(alt))
				}
			}
		}
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseAlternatives, "alternatives", false, "also print alternative readings for ambiguous citations")
	rootCmd.AddCommand(parseCmd)
}
