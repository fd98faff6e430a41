package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/pkg/diff"
	"github.com/qspcompliance/engine/pkg/impact"
	"github.com/qspcompliance/engine/pkg/report"
)

var analyzeTopK int

var analyzeCmd = &cobra.Command{
	Use:   "analyze <deltas-file>",
	Short: "Run change-impact analysis for a set of regulatory deltas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		var deltas []diff.Delta
		if err := json.Unmarshal(raw, &deltas); err != nil {
			return fmt.Errorf("parsing deltas: %w", err)
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := impact.DetectImpacts(ctx, s, newEmbedder(), cfg, tenantID, deltas, analyzeTopK)
		if err != nil {
			return fmt.Errorf("detecting impacts: %w", err)
		}

		if result.GuidanceMessage != "" {
			fmt.Println(result.GuidanceMessage)
			return nil
		}

		summary, err := report.BuildRunSummary(ctx, s, tenantID, result.RunID, cfg.ImpactSimThreshold)
		if err != nil {
			return fmt.Errorf("building run summary: %w", err)
		}
		summary.TotalChangesAnalyzed = len(deltas)

		encoded, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		fmt.Println(string(encoded))

		if len(result.Skipped) > 0 {
			fmt.Fprintf(os.Stderr, "skipped %d delta(s):\n", len(result.Skipped))
			for _, skip := range result.Skipped {
				fmt.Fprintf(os.Stderr, "  clause %s: %s\n", skip.ClauseID, skip.Reason)
			}
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeTopK, "top-k", 5, "maximum QSP matches per delta")
}
