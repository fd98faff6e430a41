package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/standardid"
)

var (
	ingestKind        string
	ingestFramework   string
	ingestDisplayName string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Parse and index a QSP or regulatory document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		kind := section.DocKind(ingestKind)
		if kind != section.KindQSP && kind != section.KindRegulatory {
			return fmt.Errorf("--kind must be QSP or REGULATORY, got %q", ingestKind)
		}

		displayName := ingestDisplayName
		if displayName == "" {
			displayName = args[0]
		}

		doc := section.Document{
			DocID:       uuid.NewString(),
			TenantID:    tenantID,
			DocKind:     kind,
			Framework:   ingestFramework,
			DisplayName: displayName,
		}
		if kind == section.KindRegulatory {
			if identity, ok := standardid.Identify(string(raw)); ok {
				doc.StandardIdentity = &section.StandardIdentity{Series: identity.Series, Part: identity.Part, Year: identity.Year}
			}
		}

		sections := section.Parse(string(raw), kind, section.Hints{})
		for i := range sections {
			sections[i].SectionID = uuid.NewString()
			sections[i].DocID = doc.DocID
			sections[i].TenantID = tenantID
		}

		ctx := context.Background()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.CreateDocument(ctx, doc); err != nil {
			return fmt.Errorf("creating document: %w", err)
		}

		vectors, err := embedSections(ctx, sections)
		if err != nil {
			appLogger.Warn("ingest: embedding unavailable, indexing without vectors", "doc_id", doc.DocID, "error", err)
			vectors = nil
		}

		if err := s.UpsertSections(ctx, tenantID, doc.DocID, sections, vectors); err != nil {
			return fmt.Errorf("upserting sections: %w", err)
		}

		fmt.Printf("ingested %s: doc_id=%s sections=%d\n", displayName, doc.DocID, len(sections))
		return nil
	},
}

// embedSections embeds every section's text in one batch call; an empty
// section slice short-circuits to an empty map.
func embedSections(ctx context.Context, sections []section.Section) (map[string][]float32, error) {
	if len(sections) == 0 {
		return nil, nil
	}
	texts := make([]string, len(sections))
	for i, sec := range sections {
		texts[i] = sec.Heading + ": " + sec.Text
	}

	client := newEmbedder()
	vecs, err := client.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(sections))
	for i, sec := range sections {
		out[sec.SectionID] = vecs[i]
	}
	return out, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKind, "kind", "QSP", "document kind: QSP or REGULATORY")
	ingestCmd.Flags().StringVar(&ingestFramework, "framework", "", "regulatory framework tag, e.g. ISO_13485")
	ingestCmd.Flags().StringVar(&ingestDisplayName, "display-name", "", "display name (defaults to file path)")
}
