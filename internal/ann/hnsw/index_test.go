package hnsw

import (
	"path/filepath"
	"testing"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/storage"
)

var _ ann.Index = (*Index)(nil)

func TestAddAndSearch(t *testing.T) {
	idx := New()
	vecs := map[string][]float32{
		"/a.txt": {1, 0, 0},
		"/b.txt": {0, 1, 0},
		"/c.txt": {0.9, 0.1, 0},
	}
	for path, v := range vecs {
		rec := storage.FileRecord{FilePath: path, FileName: filepath.Base(path)}
		if err := idx.Add(v, rec); err != nil {
			t.Fatalf("Add %s: %v", path, err)
		}
	}

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Record.FilePath != "/a.txt" {
		t.Fatalf("expected /a.txt as top result, got %s", results[0].Record.FilePath)
	}
}

func TestRemoveByPathExcludesFromSearch(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/a.txt"})
	idx.Add([]float32{0.9, 0.1, 0}, storage.FileRecord{FilePath: "/c.txt"})

	if err := idx.RemoveByPath("/a.txt"); err != nil {
		t.Fatalf("RemoveByPath: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected Len 1 after removal, got %d", idx.Len())
	}

	results, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Record.FilePath == "/a.txt" {
			t.Fatalf("removed path /a.txt still present in results")
		}
	}
}

func TestRemoveWithSectionsRemovesPathAndSections(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/big.txt"})
	idx.Add([]float32{0, 1, 0}, storage.FileRecord{FilePath: "/big.txt#section2"})
	idx.Add([]float32{0, 0, 1}, storage.FileRecord{FilePath: "/big.txt#section3"})
	idx.Add([]float32{0.9, 0.1, 0}, storage.FileRecord{FilePath: "/unrelated.txt"})

	if err := idx.RemoveWithSections("/big.txt"); err != nil {
		t.Fatalf("RemoveWithSections: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected only the unrelated entry to survive, got Len %d", idx.Len())
	}

	results, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Record.FilePath != "/unrelated.txt" {
			t.Fatalf("expected only /unrelated.txt to remain, found %s", r.Record.FilePath)
		}
	}
}

func TestRebuildClearsTombstones(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/a.txt"})
	idx.RemoveByPath("/a.txt")

	if err := idx.Rebuild([]ann.Pair{
		{Record: storage.FileRecord{FilePath: "/b.txt"}, Vector: []float32{0, 1, 0}},
	}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected Len 1 after rebuild, got %d", idx.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/a.txt"})
	idx.Add([]float32{0, 1, 0}, storage.FileRecord{FilePath: "/b.txt"})

	dir := t.TempDir()
	graphPath := filepath.Join(dir, "graph.bin")
	sidecarPath := filepath.Join(dir, "sidecar.json")
	if err := idx.Save(graphPath, sidecarPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(graphPath, sidecarPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected Len 2 after load, got %d", loaded.Len())
	}

	results, err := loaded.Search([]float32{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Record.FilePath != "/a.txt" {
		t.Fatalf("unexpected search result after load: %+v", results)
	}
}

func TestLoadMissingReturnsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := Load(filepath.Join(dir, "missing.bin"), filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got Len %d", idx.Len())
	}
}
