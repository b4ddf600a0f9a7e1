// Package flatindex implements a brute-force nearest-neighbour index with
// true O(1) swap-with-last removal, grounded directly on original_source's
// hnsw_index.rs (despite the name, that file is a flat cosine-similarity
// scan, not an actual HNSW graph). Useful as a lower-complexity fallback to
// internal/ann/hnsw for small corpora or for tests that want exact rather
// than approximate nearest neighbours.
package flatindex

import (
	"container/heap"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/storage"
)

// Index is a flat slice of vectors searched by exhaustive cosine similarity,
// bounded to the top-k via a min-heap rather than a full sort.
type Index struct {
	mu         sync.RWMutex
	vectors    [][]float32
	records    []storage.FileRecord
	pathToIdx  map[string]int
	dimensions int
}

// New creates an empty flat index.
func New() *Index {
	return &Index{pathToIdx: make(map[string]int)}
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}

// Add appends vector under record, replacing any existing entry for the
// same path in place.
func (idx *Index) Add(vector []float32, record storage.FileRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if i, ok := idx.pathToIdx[record.FilePath]; ok {
		idx.vectors[i] = vector
		idx.records[i] = record
		return nil
	}

	if idx.dimensions == 0 {
		idx.dimensions = len(vector)
	}

	i := len(idx.vectors)
	idx.vectors = append(idx.vectors, vector)
	idx.records = append(idx.records, record)
	idx.pathToIdx[record.FilePath] = i
	return nil
}

// RemoveByPath removes the entry for path via swap-with-last, so removal is
// O(1) at the cost of reordering the slice.
func (idx *Index) RemoveByPath(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(path)
	return nil
}

// RemoveWithSections removes path plus any "path#sectionK" entries sharing
// it, mirroring Storage.DeleteWithSections.
func (idx *Index) RemoveWithSections(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	prefix := path + "#section"
	for {
		match := ""
		for p := range idx.pathToIdx {
			if p == path || strings.HasPrefix(p, prefix) {
				match = p
				break
			}
		}
		if match == "" {
			break
		}
		idx.removeLocked(match)
	}
	return nil
}

// removeLocked removes the entry for path via swap-with-last. Callers must
// hold idx.mu.
func (idx *Index) removeLocked(path string) {
	i, ok := idx.pathToIdx[path]
	if !ok {
		return
	}

	last := len(idx.vectors) - 1
	if i != last {
		idx.vectors[i] = idx.vectors[last]
		idx.records[i] = idx.records[last]
		idx.pathToIdx[idx.records[i].FilePath] = i
	}
	idx.vectors = idx.vectors[:last]
	idx.records = idx.records[:last]
	delete(idx.pathToIdx, path)
}

func (idx *Index) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors = nil
	idx.records = nil
	idx.pathToIdx = make(map[string]int)
	return nil
}

// Rebuild discards all entries and repopulates from pairs. If the first
// pair's dimension differs from the index's configured dimension, the
// dimension is updated rather than rejected.
func (idx *Index) Rebuild(pairs []ann.Pair) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors = make([][]float32, 0, len(pairs))
	idx.records = make([]storage.FileRecord, 0, len(pairs))
	idx.pathToIdx = make(map[string]int, len(pairs))

	if len(pairs) > 0 {
		idx.dimensions = len(pairs[0].Vector)
	}

	for i, p := range pairs {
		idx.vectors = append(idx.vectors, p.Vector)
		idx.records = append(idx.records, p.Record)
		idx.pathToIdx[p.Record.FilePath] = i
	}
	return nil
}

type simItem struct {
	similarity float32
	index      int
}

// simHeap is a min-heap on similarity, so the smallest of the current top-k
// sits at the root and gets evicted first when a better candidate arrives.
type simHeap []simItem

func (h simHeap) Len() int            { return len(h) }
func (h simHeap) Less(i, j int) bool  { return h[i].similarity < h[j].similarity }
func (h simHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *simHeap) Push(x interface{}) { *h = append(*h, x.(simItem)) }
func (h *simHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search performs an exhaustive scan, maintaining only the top-k via a
// bounded min-heap so large corpora never pay for a full sort.
func (idx *Index) Search(query []float32, k int) ([]ann.Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.vectors) == 0 {
		return nil, nil
	}

	h := &simHeap{}
	heap.Init(h)

	for i, vec := range idx.vectors {
		s := cosineSimilarity(query, vec)
		if h.Len() < k {
			heap.Push(h, simItem{similarity: s, index: i})
		} else if s > (*h)[0].similarity {
			(*h)[0] = simItem{similarity: s, index: i}
			heap.Fix(h, 0)
		}
	}

	items := make([]simItem, len(*h))
	copy(items, *h)
	sort.Slice(items, func(i, j int) bool { return items[i].similarity > items[j].similarity })

	out := make([]ann.Result, len(items))
	for i, it := range items {
		out[i] = ann.Result{Record: idx.records[it.index], Score: it.similarity}
	}
	return out, nil
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}
