package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/pkg/coverage"
	"github.com/qspcompliance/engine/pkg/report"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's impacts or a coverage report as JSON/CSV",
}

var exportImpactsRunID string

var exportImpactsCmd = &cobra.Command{
	Use:   "impacts",
	Short: "Export an analysis run's ImpactRecords",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportImpactsRunID == "" {
			return fmt.Errorf("--run is required")
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		switch exportFormat {
		case "json":
			return report.ExportImpactsJSON(ctx, s, tenantID, exportImpactsRunID, os.Stdout)
		case "csv":
			return report.ExportImpactsCSV(ctx, s, tenantID, exportImpactsRunID, os.Stdout)
		default:
			return fmt.Errorf("--format must be json or csv, got %q", exportFormat)
		}
	},
}

var exportCoverageFramework string

var exportCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Export a coverage analysis result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCoverageFramework == "" {
			return fmt.Errorf("--framework is required")
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err := coverage.Analyze(ctx, s, tenantID, exportCoverageFramework)
		if err != nil {
			return fmt.Errorf("analyzing coverage: %w", err)
		}

		switch exportFormat {
		case "json":
			return report.ExportCoverageJSON(result, os.Stdout)
		case "csv":
			return report.ExportCoverageCSV(result, os.Stdout)
		default:
			return fmt.Errorf("--format must be json or csv, got %q", exportFormat)
		}
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportFormat, "format", "json", "output format: json or csv")

	exportImpactsCmd.Flags().StringVar(&exportImpactsRunID, "run", "", "analysis run id (required)")
	exportCoverageCmd.Flags().StringVar(&exportCoverageFramework, "framework", "", "framework tag (required)")

	exportCmd.AddCommand(exportImpactsCmd, exportCoverageCmd)
}
