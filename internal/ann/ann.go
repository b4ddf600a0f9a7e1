// Package ann defines the ANNIndex contract (spec §4.4): an in-memory
// nearest-neighbor structure rebuilt from Storage, supporting add/remove/
// search with a bounded top-k result. Two implementations satisfy it: a
// graph-based HNSW index (internal/ann/hnsw, adapted from the teacher's
// internal/hnsw package) and a brute-force bounded-heap flat index
// (internal/ann/flatindex, grounded on original_source's hnsw_index.rs).
package ann

import "github.com/Saurav-kan/gist/internal/storage"

// Result is one nearest-neighbor hit: the stored record and its cosine
// similarity score in [-1, 1].
type Result struct {
	Record storage.FileRecord
	Score  float32
}

// Pair bundles a record with its embedding vector, the shape Rebuild and
// Storage.BulkLoadAllVectors exchange.
type Pair struct {
	Record storage.FileRecord
	Vector []float32
}

// Index is the ANNIndex contract. Implementations must tolerate an empty
// index (Search returns no results, no error) and must reinitialize their
// configured dimension from the first vector seen by Rebuild if it differs.
type Index interface {
	// Add inserts vector under record. vector need not be pre-normalized.
	Add(vector []float32, record storage.FileRecord) error
	// RemoveByPath removes the entry for path, if any.
	RemoveByPath(path string) error
	// RemoveWithSections removes the entry for path plus any large-file
	// section entries sharing it ("path#sectionK"), mirroring
	// Storage.DeleteWithSections. Used before reindexing a file so a file
	// whose section count shrinks across runs doesn't leave stale
	// "path#sectionK" entries alive in the index indefinitely.
	RemoveWithSections(path string) error
	// Clear empties the index.
	Clear() error
	// Rebuild discards all entries and repopulates from pairs.
	Rebuild(pairs []Pair) error
	// Search returns up to k nearest neighbors to query, sorted descending
	// by similarity score.
	Search(query []float32, k int) ([]Result, error)
	// Len reports the number of live (non-removed) entries.
	Len() int
}
