package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/pkg/diff"
	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/standardid"
)

var (
	diffFramework string
	diffOut       string
)

var diffCmd = &cobra.Command{
	Use:   "diff <old-file> <new-file>",
	Short: "Classify clause-level changes between two regulatory document revisions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if diffFramework == "" {
			return fmt.Errorf("--framework is required")
		}

		oldRaw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading old revision: %w", err)
		}
		newRaw, err := os.ReadFile(args[1])
		if err != nil {
			return fmt.Errorf("reading new revision: %w", err)
		}

		oldIdentity, oldOK := standardid.Identify(string(oldRaw))
		newIdentity, newOK := standardid.Identify(string(newRaw))
		var oldIDPtr, newIDPtr *standardid.Identity
		if oldOK {
			oldIDPtr = &oldIdentity
		}
		if newOK {
			newIDPtr = &newIdentity
		}

		decision := standardid.Classify(oldIDPtr, newIDPtr)
		if decision.Mode != standardid.ModeVersionDiff {
			appLogger.Warn("diff: standard identity gate", "mode", decision.Mode, "reason", decision.Reason)
			if cfg.StandardGateEnforced {
				return fmt.Errorf("refusing diff: %s (%s)", decision.Reason, decision.Guidance)
			}
			fmt.Fprintf(os.Stderr, "warning: %s — %s\n", decision.Reason, decision.Guidance)
		}

		oldClauses := clauseMap(section.Parse(string(oldRaw), section.KindRegulatory, section.Hints{}))
		newClauses := clauseMap(section.Parse(string(newRaw), section.KindRegulatory, section.Hints{}))

		deltas := diff.Diff(oldClauses, newClauses, diffFramework)

		encoded, err := json.MarshalIndent(deltas, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding deltas: %w", err)
		}

		if diffOut == "" {
			fmt.Println(string(encoded))
			return nil
		}
		if err := os.WriteFile(diffOut, encoded, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", diffOut, err)
		}
		fmt.Printf("wrote %d deltas to %s\n", len(deltas), diffOut)
		return nil
	},
}

// clauseMap builds a clause_id -> text mapping from parsed sections;
// sections without a recognized clause number are excluded since Diff
// operates at clause granularity.
func clauseMap(sections []section.Section) map[string]string {
	out := make(map[string]string, len(sections))
	for _, sec := range sections {
		if sec.HasClauseID() {
			out[sec.ClauseID] = sec.Text
		}
	}
	return out
}

func init() {
	diffCmd.Flags().StringVar(&diffFramework, "framework", "", "regulatory framework tag, e.g. ISO_13485")
	diffCmd.Flags().StringVar(&diffOut, "out", "", "write deltas JSON to this file instead of stdout")
}
