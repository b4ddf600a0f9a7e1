package hnsw

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/storage"
)

// Index wraps the low-level append-only graph with the bookkeeping needed
// to satisfy ann.Index: a path->id map for lookup/removal, a tombstone set
// since HNSW graphs have no native node deletion, and the FileRecord
// payload associated with each vector. RemoveByPath only tombstones; the
// node's edges remain in the graph (dead weight that Rebuild clears) but
// Search filters tombstoned ids out of its results.
type Index struct {
	mu       sync.RWMutex
	g        *graph
	records  []storage.FileRecord // indexed by graph node id
	pathToID map[string]uint32
	removed  map[uint32]bool
	liveN    int
}

// New creates an empty index using the default HNSW parameters.
func New() *Index {
	return &Index{
		g:        newGraph(DefaultM, DefaultEfConstruction, DefaultEfSearch),
		pathToID: make(map[string]uint32),
		removed:  make(map[uint32]bool),
	}
}

// normalize returns an L2-normalized copy of v; a zero vector is returned
// unchanged since it cannot be normalized and would otherwise divide by zero.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func (idx *Index) Add(vector []float32, record storage.FileRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if oldID, ok := idx.pathToID[record.FilePath]; ok && !idx.removed[oldID] {
		idx.removed[oldID] = true
		idx.liveN--
	}

	id := idx.g.insert(normalize(vector))
	idx.records = append(idx.records, record)
	idx.pathToID[record.FilePath] = id
	idx.liveN++
	return nil
}

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
	for p := range idx.pathToID {
		if p == path || strings.HasPrefix(p, prefix) {
			idx.removeLocked(p)
		}
	}
	return nil
}

// removeLocked tombstones the entry for path, if any. Callers must hold idx.mu.
func (idx *Index) removeLocked(path string) {
	id, ok := idx.pathToID[path]
	if !ok || idx.removed[id] {
		return
	}
	idx.removed[id] = true
	idx.liveN--
	delete(idx.pathToID, path)
}

func (idx *Index) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.g = newGraph(DefaultM, DefaultEfConstruction, DefaultEfSearch)
	idx.records = nil
	idx.pathToID = make(map[string]uint32)
	idx.removed = make(map[uint32]bool)
	idx.liveN = 0
	return nil
}

// Rebuild discards tombstoned entries and re-inserts pairs from scratch,
// the only way to reclaim the graph edges a RemoveByPath left dangling.
func (idx *Index) Rebuild(pairs []ann.Pair) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.g = newGraph(DefaultM, DefaultEfConstruction, DefaultEfSearch)
	idx.records = make([]storage.FileRecord, 0, len(pairs))
	idx.pathToID = make(map[string]uint32, len(pairs))
	idx.removed = make(map[uint32]bool)

	for _, p := range pairs {
		id := idx.g.insert(normalize(p.Vector))
		idx.records = append(idx.records, p.Record)
		idx.pathToID[p.Record.FilePath] = id
	}
	idx.liveN = len(pairs)
	return nil
}

func (idx *Index) Search(query []float32, k int) ([]ann.Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || idx.g.Len() == 0 {
		return nil, nil
	}

	// Overfetch to survive tombstone filtering; graphResult does not know
	// about removed ids, so widen ef until we have enough live hits or have
	// exhausted the graph.
	want := k
	normQuery := normalize(query)
	for attempt := 0; attempt < 5; attempt++ {
		raw := idx.g.search(normQuery, want)
		out := make([]ann.Result, 0, k)
		for _, r := range raw {
			if idx.removed[r.ID] {
				continue
			}
			out = append(out, ann.Result{Record: idx.records[r.ID], Score: r.Score})
			if len(out) == k {
				return out, nil
			}
		}
		if want >= idx.g.Len() {
			return out, nil
		}
		want *= 4
		if want > idx.g.Len() {
			want = idx.g.Len()
		}
	}
	return nil, nil
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.liveN
}

// sidecar is the JSON-persisted state that complements the binary graph
// file: it carries the record payload and path bookkeeping the low-level
// graph format knows nothing about.
type sidecar struct {
	Records  []storage.FileRecord `json:"records"`
	PathToID map[string]uint32    `json:"path_to_id"`
	Removed  []uint32             `json:"removed"`
}

// Save persists the index to two files: graphPath (binary graph.save
// format) and sidecarPath (JSON records/bookkeeping).
func (idx *Index) Save(graphPath, sidecarPath string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := idx.g.save(graphPath); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}

	removed := make([]uint32, 0, len(idx.removed))
	for id := range idx.removed {
		removed = append(removed, id)
	}
	sc := sidecar{Records: idx.records, PathToID: idx.pathToID, Removed: removed}

	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	if err := os.WriteFile(sidecarPath, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// Load reads an index previously written by Save. If either file is
// missing it returns a fresh empty Index, since the ANN index is always
// rebuildable from Storage and its absence is not an error condition.
func Load(graphPath, sidecarPath string) (*Index, error) {
	if _, err := os.Stat(graphPath); os.IsNotExist(err) {
		return New(), nil
	}

	g, err := load(graphPath)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}

	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}

	removed := make(map[uint32]bool, len(sc.Removed))
	for _, id := range sc.Removed {
		removed[id] = true
	}

	return &Index{
		g:        g,
		records:  sc.Records,
		pathToID: sc.PathToID,
		removed:  removed,
		liveN:    len(sc.Records) - len(removed),
	}, nil
}
