package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Saurav-kan/gist/internal/ann/flatindex"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/storage"
)

// fakeEmbedder returns a deterministic vector derived from the text so that
// similar strings produce similar vectors without any real model.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, c := range []byte(text) {
		v[i%4] += float32(c)
	}
	return v, nil
}

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.EmbedSingle(ctx, t)
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Name() string   { return "fake" }

func newTestEngine(t *testing.T) (*Engine, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx := flatindex.New()
	cfg := config.Default()
	return New(s, idx, fakeEmbedder{}, cfg), s
}

func upsertWithVector(t *testing.T, s *storage.Storage, idx interface {
	Add(vector []float32, record storage.FileRecord) error
}, path, name string, size int64, modified int64, text string) {
	t.Helper()
	vec, _ := fakeEmbedder{}.EmbedSingle(context.Background(), text)
	rec := &storage.FileRecord{FilePath: path, FileName: name, FileSize: size, ModifiedTime: modified, FileType: filepath.Ext(path)}
	if err := s.Upsert(rec, vec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if idx != nil {
		if err := idx.Add(vec, *rec); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
}

func TestSearchEmptyQueryIsBadRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Search(context.Background(), Request{Query: "   "})
	if err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearchFindsVectorMatch(t *testing.T) {
	e, s := newTestEngine(t)
	idx := e.index

	upsertWithVector(t, s, idx, "/docs/calculus_notes.txt", "calculus_notes.txt", 4096, time.Now().Unix(), "derivative integral limit calculus theory")
	upsertWithVector(t, s, idx, "/docs/shopping_list.txt", "shopping_list.txt", 256, time.Now().Unix(), "milk eggs bread butter")

	results, err := e.Search(context.Background(), Request{Query: "calculus", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].FilePath != "/docs/calculus_notes.txt" {
		t.Fatalf("expected calculus_notes.txt to rank first, got %v", results)
	}
}

func TestSearchFiltersByFileType(t *testing.T) {
	e, s := newTestEngine(t)
	idx := e.index

	upsertWithVector(t, s, idx, "/a/report.pdf", "report.pdf", 4096, time.Now().Unix(), "quarterly financial report")
	upsertWithVector(t, s, idx, "/a/report.txt", "report.txt", 4096, time.Now().Unix(), "quarterly financial report")

	results, err := e.Search(context.Background(), Request{
		Query:   "report",
		Limit:   10,
		Filters: &FilterOptions{FileTypes: []string{"pdf"}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if filepath.Ext(r.FilePath) != ".pdf" {
			t.Fatalf("expected only .pdf results, got %v", r.FilePath)
		}
	}
	if len(results) == 0 {
		t.Fatal("expected at least the pdf result")
	}
}

func TestSearchKeywordSweepIncludesVectorlessRecords(t *testing.T) {
	e, s := newTestEngine(t)

	rec := &storage.FileRecord{FilePath: "/a/invoice_march.pdf", FileName: "invoice_march.pdf", FileSize: 1024, ModifiedTime: time.Now().Unix(), FileType: ".pdf"}
	if err := s.Upsert(rec, nil); err != nil {
		t.Fatalf("Upsert metadata-only: %v", err)
	}

	results, err := e.Search(context.Background(), Request{Query: "invoice_march", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, r := range results {
		if r.FilePath == "/a/invoice_march.pdf" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected keyword sweep to surface the vectorless record, got %v", results)
	}
}

func TestSearchDeduplicatesIdenticalEmbeddings(t *testing.T) {
	e, s := newTestEngine(t)
	idx := e.index

	upsertWithVector(t, s, idx, "/a/fileB.txt", "fileB.txt", 4096, time.Now().Unix(), "identical content")
	upsertWithVector(t, s, idx, "/a/fileA.txt", "fileA.txt", 4096, time.Now().Unix(), "identical content")

	results, err := e.Search(context.Background(), Request{Query: "identical content", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	count := 0
	for _, r := range results {
		if r.FilePath == "/a/fileA.txt" || r.FilePath == "/a/fileB.txt" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one of the duplicate-embedding files to survive, got %d", count)
	}
	for _, r := range results {
		if r.FilePath == "/a/fileB.txt" {
			t.Fatalf("expected lexicographically smaller path fileA.txt to be kept, got fileB.txt")
		}
	}
}

func TestFilenameSimilarityExactAndSubstring(t *testing.T) {
	if s := filenameSimilarity("report.pdf", "report.pdf"); s != 1.0 {
		t.Fatalf("expected exact match 1.0, got %v", s)
	}
	if s := filenameSimilarity("report", "quarterly_report_final.pdf"); s <= 0.8 {
		t.Fatalf("expected substring match >0.8, got %v", s)
	}
}

func TestCosineSimilarityZeroOnMismatch(t *testing.T) {
	if s := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); s != 0 {
		t.Fatalf("expected 0 on dimension mismatch, got %v", s)
	}
	if s := cosineSimilarity([]float32{0, 0}, []float32{1, 1}); s != 0 {
		t.Fatalf("expected 0 on zero norm, got %v", s)
	}
}
