package storage

import (
	"path/filepath"
	"testing"

	"github.com/Saurav-kan/gist/internal/giserr"
)

func open(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "data"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAndGet(t *testing.T) {
	s := open(t)

	rec := &FileRecord{FilePath: "/a/b.txt", FileName: "b.txt", FileSize: 10, ModifiedTime: 100, FileType: "txt"}
	vec := []float32{1, 2, 3}
	if err := s.Upsert(rec, vec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get("/a/b.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.EmbeddingLength != 12 {
		t.Fatalf("expected embedding length 12, got %d", got.EmbeddingLength)
	}

	loaded, err := s.LoadVector(*got)
	if err != nil {
		t.Fatalf("LoadVector: %v", err)
	}
	if len(loaded) != 3 || loaded[0] != 1 || loaded[2] != 3 {
		t.Fatalf("unexpected vector: %v", loaded)
	}
}

func TestUpsertReusesUnchangedSlice(t *testing.T) {
	s := open(t)

	rec := &FileRecord{FilePath: "/a/b.txt", FileName: "b.txt", FileSize: 10, ModifiedTime: 100, FileType: "txt"}
	vec := []float32{1, 2, 3}
	if err := s.Upsert(rec, vec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	firstOffset := rec.EmbeddingOffset

	rec2 := &FileRecord{FilePath: "/a/b.txt", FileName: "b.txt", FileSize: 10, ModifiedTime: 100, FileType: "txt"}
	if err := s.Upsert(rec2, vec); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if rec2.EmbeddingOffset != firstOffset {
		t.Fatalf("expected slice reuse at offset %d, got %d", firstOffset, rec2.EmbeddingOffset)
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := open(t)
	_, err := s.Get("/nope")
	if giserr.KindOf(err) != giserr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDeleteByPrefix(t *testing.T) {
	s := open(t)
	for _, p := range []string{"/dir/a.txt", "/dir/sub/b.txt", "/other/c.txt"} {
		rec := &FileRecord{FilePath: p, FileName: filepath.Base(p), FileSize: 1, ModifiedTime: 1, FileType: "txt"}
		if err := s.Upsert(rec, nil); err != nil {
			t.Fatalf("Upsert %s: %v", p, err)
		}
	}

	if err := s.DeleteByPrefix("/dir"); err != nil {
		t.Fatalf("DeleteByPrefix: %v", err)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].FilePath != "/other/c.txt" {
		t.Fatalf("unexpected remaining records: %+v", all)
	}
}

func TestClearAll(t *testing.T) {
	s := open(t)
	rec := &FileRecord{FilePath: "/a.txt", FileName: "a.txt", FileSize: 1, ModifiedTime: 1, FileType: "txt"}
	if err := s.Upsert(rec, []float32{1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d records", len(all))
	}
}
