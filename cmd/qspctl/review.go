package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/pkg/report"
)

var (
	reviewRunID           string
	reviewImpactID        string
	reviewReviewed        bool
	reviewCustomRationale string
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Record a reviewer's disposition on an impact",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reviewRunID == "" || reviewImpactID == "" {
			return fmt.Errorf("--run and --impact are required")
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := report.ReviewImpact(ctx, s, tenantID, reviewRunID, reviewImpactID, reviewReviewed, reviewCustomRationale); err != nil {
			return fmt.Errorf("recording review: %w", err)
		}
		fmt.Printf("impact %s marked reviewed=%t\n", reviewImpactID, reviewReviewed)
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewRunID, "run", "", "analysis run id (required)")
	reviewCmd.Flags().StringVar(&reviewImpactID, "impact", "", "impact id (required)")
	reviewCmd.Flags().BoolVar(&reviewReviewed, "reviewed", true, "mark as reviewed")
	reviewCmd.Flags().StringVar(&reviewCustomRationale, "rationale", "", "optional override rationale")
}
