// Package index provides the in-memory vector index backing the Section
// Store's per-tenant cache (spec.md §4.5). It is a brute-force cosine
// index, adapted from the teacher's FlatIndex: tenant-scoped instead of
// collection-scoped, and reporting similarity directly in [0, 1] instead
// of a raw distance, per spec.md §3's cosine-similarity convention.
package index

import (
	"container/heap"
	"math"
	"sync"
)

// TenantCosineIndex is a brute-force exact nearest-neighbor index over
// unit-normalized vectors, partitioned by tenant. It guarantees exact
// results (no approximation error) at O(n) search cost, which is
// appropriate for the per-tenant QSP/regulatory corpora this system
// targets (hundreds to low thousands of sections per tenant).
type TenantCosineIndex struct {
	mu  sync.RWMutex
	dim int
	// vectors[tenantID][sectionID] = normalized vector
	vectors map[string]map[string][]float32
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) *TenantCosineIndex {
	return &TenantCosineIndex{
		dim:     dimension,
		vectors: make(map[string]map[string][]float32),
	}
}

// Upsert inserts or replaces a tenant's vector for sectionID.
func (idx *TenantCosineIndex) Upsert(tenantID, sectionID string, vector []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tenantVecs, ok := idx.vectors[tenantID]
	if !ok {
		tenantVecs = make(map[string][]float32)
		idx.vectors[tenantID] = tenantVecs
	}
	tenantVecs[sectionID] = normalizeVec(vector)
}

// Delete removes a single section's vector from a tenant's partition.
func (idx *TenantCosineIndex) Delete(tenantID, sectionID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if tenantVecs, ok := idx.vectors[tenantID]; ok {
		delete(tenantVecs, sectionID)
	}
}

// InvalidateTenant drops an entire tenant's cached vectors, used when the
// Section Store writes and must keep the cache coherent (spec.md §4.5).
func (idx *TenantCosineIndex) InvalidateTenant(tenantID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.vectors, tenantID)
}

// Size reports how many vectors are cached for a tenant.
func (idx *TenantCosineIndex) Size(tenantID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors[tenantID])
}

// Match is one scored result from Search.
type Match struct {
	SectionID  string
	Similarity float64 // cosine similarity normalized to [0, 1], higher is more similar
}

// Search returns the top-k sections for tenantID by cosine similarity to
// query. Returns (nil, false) if the tenant has no cached vectors at all,
// signaling the caller should fall back to the persistent store.
func (idx *TenantCosineIndex) Search(tenantID string, query []float32, k int) ([]Match, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tenantVecs, ok := idx.vectors[tenantID]
	if !ok || len(tenantVecs) == 0 {
		return nil, false
	}

	q := normalizeVec(query)

	h := &maxHeap{}
	heap.Init(h)
	for id, v := range tenantVecs {
		sim := cosineSimilarity01(q, v)
		if h.Len() < k {
			heap.Push(h, heapItem{id: id, sim: sim})
		} else if sim > (*h)[0].sim {
			heap.Pop(h)
			heap.Push(h, heapItem{id: id, sim: sim})
		}
	}

	out := make([]Match, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		item := heap.Pop(h).(heapItem)
		out[i] = Match{SectionID: item.id, Similarity: item.sim}
	}
	return out, true
}

// cosineSimilarity01 maps raw cosine similarity [-1,1] to [0,1] per
// spec.md §3's "1 - cos_dist" normalization.
func cosineSimilarity01(a, b []float32) float64 {
	var dot, magA, magB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2
}

func normalizeVec(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	norm := math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / norm)
	}
	return out
}

type heapItem struct {
	id  string
	sim float64
}

// maxHeap is actually a min-heap on similarity so the smallest of the
// current top-k sits at the root and gets evicted first — the naming
// matches the teacher's flatMaxHeap, which plays the same role for
// distance (evict the largest distance first).
type maxHeap []heapItem

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].sim < h[j].sim }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxHeap) Push(x interface{}) {
	*h = append(*h, x.(heapItem))
}

func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
