package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/mintmark-dev/mintmark/internal/vocab"
)

var (
	vocabCategory  string
	vocabUseLLM    bool
	vocabThreshold float64
)

var vocabCmd = &cobra.Command{
	Use:   "vocab <term>",
	Short: "Resolve a legend or description term against the numismatic vocabulary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var provider vocab.Lookup
		if vocabUseLLM {
			if err := cfg.Validate("vocab-llm"); err != nil {
				return err
			}
			provider = vocab.NewLLMProvider(cfg.Anthropic.Key, cfg.Anthropic.Model)
		} else {
			provider = vocab.NewFuzzyProvider(vocabThreshold)
		}

		matches, err := provider.Lookup(cmd.Context(), args[0], vocabCategory)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	},
}

func init() {
	vocabCmd.Flags().StringVar(&vocabCategory, "category", vocab.CategoryDeity, "term category: deity, denomination, or mint")
	vocabCmd.Flags().BoolVar(&vocabUseLLM, "llm", false, "use the LLM provider instead of fuzzy matching")
	vocabCmd.Flags().Float64Var(&vocabThreshold, "threshold", 0, "fuzzy similarity threshold (0 = default)")
	rootCmd.AddCommand(vocabCmd)
}
