package flatindex

import (
	"testing"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/storage"
)

var _ ann.Index = (*Index)(nil)

func TestAddAndSearch(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/a.txt"})
	idx.Add([]float32{0, 1, 0}, storage.FileRecord{FilePath: "/b.txt"})
	idx.Add([]float32{0.9, 0.1, 0}, storage.FileRecord{FilePath: "/c.txt"})

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
	if results[0].Score < results[1].Score {
		t.Fatalf("results not sorted descending: %+v", results)
	}
}

func TestRemoveByPathSwapsWithLast(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0, 0}, storage.FileRecord{FilePath: "/a.txt"})
	idx.Add([]float32{0, 1, 0}, storage.FileRecord{FilePath: "/b.txt"})
	idx.Add([]float32{0, 0, 1}, storage.FileRecord{FilePath: "/c.txt"})

	if err := idx.RemoveByPath("/a.txt"); err != nil {
		t.Fatalf("RemoveByPath: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", idx.Len())
	}

	results, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Record.FilePath == "/a.txt" {
			t.Fatalf("removed path still present")
		}
	}

	// path-to-index bookkeeping for the swapped element must still resolve.
	if err := idx.RemoveByPath("/c.txt"); err != nil {
		t.Fatalf("RemoveByPath /c.txt: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected Len 1, got %d", idx.Len())
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

func TestRebuild(t *testing.T) {
	idx := New()
	idx.Add([]float32{1, 0}, storage.FileRecord{FilePath: "/old.txt"})

	if err := idx.Rebuild([]ann.Pair{
		{Record: storage.FileRecord{FilePath: "/new.txt"}, Vector: []float32{0, 1}},
	}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected Len 1 after rebuild, got %d", idx.Len())
	}
	results, _ := idx.Search([]float32{0, 1}, 1)
	if len(results) != 1 || results[0].Record.FilePath != "/new.txt" {
		t.Fatalf("unexpected rebuild result: %+v", results)
	}
}

func TestEmptyIndexSearch(t *testing.T) {
	idx := New()
	results, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results on empty index, got %+v", results)
	}
}
