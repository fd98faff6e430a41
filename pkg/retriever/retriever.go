// Package retriever implements the Hybrid Retriever (C6): lexical and
// dense candidate fetch run in parallel, merged by section_id, reranked by
// an optional cross-encoder, and calibrated into a single confidence score.
// Fan-out is adapted from amanmcp's pkg/searcher.FusionSearcher
// (errgroup-parallel search with graceful single-source degradation); the
// rerank/confidence-calibration step has no donor analog and is built
// fresh against spec.md §4.6.
package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/qspcompliance/engine/pkg/section"
	"github.com/qspcompliance/engine/pkg/store"
)

// TopKBM25 and TopKVector are the default candidate pool sizes fed into
// fusion before reranking, per spec.md §4.6.
const (
	TopKBM25        = 50
	TopKVector      = 50
	rerankTextLimit = 500
)

// Embedder is implemented by the Embedding Client (C4) adapter used to
// vectorize the query text for dense retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores each (query, candidate text) pair with a cross-encoder,
// returning one raw score per candidate in the same order. Implementations
// may call out-of-process; the retriever treats any error as "reranker
// unavailable" and degrades gracefully rather than failing the request.
type Reranker interface {
	Score(ctx context.Context, query string, candidateTexts []string) ([]float64, error)
}

// Match is one ranked result of HybridSearch, spec.md §4.6's public
// operation return type.
type Match struct {
	Section    section.Section
	BM25Score  float64
	VectorSim  float64
	RerankRaw  float64
	Confidence float64
	// Degraded is set when the cross-encoder reranker was unavailable and
	// ranking fell back to vector similarity alone (spec.md §4.6 failure
	// policy: "the retriever never fails the whole request on ranker
	// faults").
	Degraded bool
}

// Retriever runs the Hybrid Retriever pipeline against a Section Store.
type Retriever struct {
	store    *store.Store
	embedder Embedder
	reranker Reranker
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithReranker attaches a cross-encoder reranker. Without one, ranking
// falls back to vector similarity alone for every request.
func WithReranker(r Reranker) Option {
	return func(ret *Retriever) { ret.reranker = r }
}

// New builds a Retriever over store using embedder to vectorize queries.
func New(s *store.Store, embedder Embedder, opts ...Option) *Retriever {
	r := &Retriever{store: s, embedder: embedder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HybridSearch is spec.md §4.6's public operation:
// hybrid_search(tenant_id, query_text, doc_kind?, top_k) -> [Match].
func (r *Retriever) HybridSearch(ctx context.Context, tenantID, queryText string, docKind section.DocKind, topK int) ([]Match, error) {
	if tenantID == "" {
		return nil, store.ErrTenantRequired
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, store.ErrInputInvalid
	}
	if topK <= 0 {
		topK = 10
	}

	var (
		lexical []store.LexicalMatch
		vector  []store.VectorMatch
		lexErr, vecErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexical, lexErr = r.store.LexicalSearch(gctx, tenantID, queryText, docKind, TopKBM25)
		return nil // errors handled below, not propagated: graceful degradation
	})
	g.Go(func() error {
		queryVec, err := r.embedder.Embed(gctx, queryText)
		if err != nil {
			vecErr = err
			return nil
		}
		vector, vecErr = r.store.VectorSearch(gctx, tenantID, queryVec, docKind, TopKVector, 0)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if lexErr != nil && vecErr != nil {
		return nil, fmt.Errorf("hybrid_search: both candidate sources failed: lexical: %v, vector: %v", lexErr, vecErr)
	}

	merged := mergeCandidates(lexical, vector)
	if len(merged) == 0 {
		return nil, nil
	}

	sectionIDs := make([]string, 0, len(merged))
	for id := range merged {
		sectionIDs = append(sectionIDs, id)
	}
	sections, err := r.store.GetSectionsByIDs(ctx, tenantID, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("hybrid_search: loading candidate sections: %w", err)
	}

	bySectionID := make(map[string]section.Section, len(sections))
	for _, sec := range sections {
		bySectionID[sec.SectionID] = sec
	}

	matches := make([]Match, 0, len(sections))
	for id, cand := range merged {
		sec, ok := bySectionID[id]
		if !ok {
			continue // section vanished (deleted) between search and fetch
		}
		matches = append(matches, Match{Section: sec, BM25Score: cand.bm25, VectorSim: cand.vectorSim})
	}

	degraded := false
	if r.reranker != nil {
		texts := make([]string, len(matches))
		for i, m := range matches {
			texts[i] = rerankText(m.Section)
		}
		scores, err := r.reranker.Score(ctx, queryText, texts)
		if err != nil || len(scores) != len(matches) {
			degraded = true
		} else {
			for i := range matches {
				matches[i].RerankRaw = scores[i]
			}
		}
	} else {
		degraded = true
	}

	for i := range matches {
		matches[i].Degraded = degraded
		matches[i].Confidence = confidence(matches[i], degraded, queryText)
	}

	// Failure policy (spec.md §4.6): with no reranker, order by vector_sim
	// alone rather than the calibrated confidence, since confidence's
	// dominant 0.45 rerank term is meaningless without a rerank score.
	sort.Slice(matches, func(i, j int) bool {
		if degraded {
			if matches[i].VectorSim != matches[j].VectorSim {
				return matches[i].VectorSim > matches[j].VectorSim
			}
			return matches[i].Section.SectionID < matches[j].Section.SectionID
		}
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Section.SectionID < matches[j].Section.SectionID
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

type candidate struct {
	bm25      float64
	vectorSim float64
}

// mergeCandidates merges lexical and dense results by section_id, keeping
// both scores with an absent side defaulting to 0 (spec.md §4.6 step 3).
func mergeCandidates(lexical []store.LexicalMatch, vector []store.VectorMatch) map[string]candidate {
	merged := make(map[string]candidate, len(lexical)+len(vector))
	for _, l := range lexical {
		c := merged[l.SectionID]
		c.bm25 = l.Score
		merged[l.SectionID] = c
	}
	for _, v := range vector {
		c := merged[v.SectionID]
		c.vectorSim = v.Similarity
		merged[v.SectionID] = c
	}
	return merged
}

// rerankText builds the (query, candidate) pairing text per spec.md §4.6
// step 4: "heading + \": \" + text[:500]".
func rerankText(sec section.Section) string {
	text := sec.Text
	if len(text) > rerankTextLimit {
		text = text[:rerankTextLimit]
	}
	return sec.Heading + ": " + text
}

// confidence implements spec.md §4.6 step 5's calibration formula. When the
// reranker was unavailable (degraded), the rerank term is dropped and the
// remaining weights are not renormalized: the failure policy ("fall back
// to ordering by vector_sim alone") only needs ordering to be governed by
// vector_sim, which holds since it remains the single largest surviving
// term once rerank's 0.45 weight collapses to zero.
func confidence(m Match, degraded bool, queryText string) float64 {
	normBM25 := math.Min(m.BM25Score/6.0, 1.0)
	if normBM25 < 0 {
		normBM25 = 0
	}

	rerankTerm := 0.0
	if !degraded {
		rerankTerm = 0.45 * sigmoid(m.RerankRaw)
	}

	clauseBonus := 0.0
	if m.Section.ClauseID != "" && strings.Contains(strings.ToLower(queryText), strings.ToLower(m.Section.ClauseID)) {
		clauseBonus = 0.05
	}

	raw := 0.20*normBM25 + 0.30*m.VectorSim + rerankTerm + clauseBonus
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	return math.Round(raw*1000) / 1000
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

