// Command qspctl is the operator CLI for the compliance engine: ingest
// documents, diff regulatory revisions, run change-impact analysis,
// check coverage, and export reports. Structured the way the donor's
// cmd/sqvect/main.go lays out cobra commands and global flags, but split
// one command family per file as the command surface grew past a single
// file's worth (mirroring amanmcp's cmd/amanmcp/cmd package).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/internal/config"
	"github.com/qspcompliance/engine/internal/logging"
)

var (
	dbPath    string
	tenantID  string
	verbose   bool
	cfg       config.Config
	appLogger logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "qspctl",
	Short: "Operate the QSP regulatory compliance engine",
	Long: `qspctl ingests QSP and regulatory documents, diffs regulatory
revisions at clause granularity, runs change-impact analysis against a
tenant's QSP corpus, checks framework coverage, and exports reports.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded

		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		appLogger = logging.NewStderr(level)

		if tenantID == "" {
			return fmt.Errorf("--tenant is required")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "qsp.db", "SQLite database file path")
	rootCmd.PersistentFlags().StringVarP(&tenantID, "tenant", "t", "", "tenant id (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(ingestCmd, diffCmd, analyzeCmd, coverageCmd, exportCmd, reviewCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
