package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Saurav-kan/gist/internal/ann/flatindex"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/storage"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i := range v {
		v[i] = float32(len(text)%97) + float32(i)
	}
	return v, nil
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.EmbedSingle(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Name() string   { return "fake" }

func newTestIndexer(t *testing.T, cfg *config.AppConfig) (*Indexer, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx := flatindex.New()
	return New(s, idx, &fakeEmbedder{dim: 8}, cfg, nil), s
}

func defaultCfg() *config.AppConfig {
	cfg := config.Default()
	cfg.ChunkSize = 50
	cfg.MaxContextTokens = 1500
	return cfg
}

func TestIndexDirectoryClassifiesContentAndMetadataOnly(t *testing.T) {
	ix, s := newTestIndexer(t, defaultCfg())
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world this is indexed content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.png"), []byte{0x89, 0x50, 0x4E, 0x47}, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexDirectory(context.Background(), dir); err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}

	a, err := s.Get(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("Get a.txt: %v", err)
	}
	if !a.HasVector() {
		t.Fatal("expected a.txt to have an embedding")
	}

	b, err := s.Get(filepath.Join(dir, "b.png"))
	if err != nil {
		t.Fatalf("Get b.png: %v", err)
	}
	if b.HasVector() {
		t.Fatal("expected b.png to be metadata-only")
	}
}

func TestIndexDirectoryExcludesIncompleteDownloads(t *testing.T) {
	ix, s := newTestIndexer(t, defaultCfg())
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "movie.mp4.crdownload"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexDirectory(context.Background(), dir); err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}

	all, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected excluded file to produce no record, got %d", len(all))
	}
}

func TestIndexDirectoryRejectsReentrancy(t *testing.T) {
	ix, _ := newTestIndexer(t, defaultCfg())
	if err := ix.tryAcquire(); err != nil {
		t.Fatalf("tryAcquire: %v", err)
	}
	defer ix.release()

	err := ix.IndexDirectory(context.Background(), t.TempDir())
	if giserr.KindOf(err) != giserr.Busy {
		t.Fatalf("expected Busy, got %v", err)
	}
}

func TestEmbedAndPersistGeneratesMultipleSections(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 20
	cfg.MaxContextTokens = 500 // clamp floor

	ix, s := newTestIndexer(t, cfg)
	dir := t.TempDir()

	// ~500 tokens * 4 chars/token = 2000 chars per C; need > 4C tokens, so
	// build well past 8000 chars of distinct words.
	var b strings.Builder
	for i := 0; i < 3000; i++ {
		b.WriteString("word ")
	}
	path := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ix.IndexDirectory(context.Background(), dir); err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}

	primary, err := s.Get(path)
	if err != nil {
		t.Fatalf("Get primary: %v", err)
	}
	if !primary.HasVector() {
		t.Fatal("expected primary record to carry an embedding")
	}

	_, err = s.Get(path + "#section2")
	if err != nil {
		t.Fatalf("expected a #section2 record, got error: %v", err)
	}
}

func TestReindexShrinkingSectionsClearsStaleANNEntries(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 20
	cfg.MaxContextTokens = 500

	ix, s := newTestIndexer(t, cfg)
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")

	var b strings.Builder
	for i := 0; i < 3000; i++ {
		b.WriteString("word ")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("IndexFile (large): %v", err)
	}
	if _, err := s.Get(path + "#section2"); err != nil {
		t.Fatalf("expected a #section2 record before shrinking, got: %v", err)
	}
	sectionedLen := ix.index.Len()
	if sectionedLen < 2 {
		t.Fatalf("expected multiple ANN entries for the sectioned file, got %d", sectionedLen)
	}

	// Shrink the file so it no longer needs sectioning, then reindex.
	if err := os.WriteFile(path, []byte("a much shorter document"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("IndexFile (shrunk): %v", err)
	}

	if _, err := s.Get(path + "#section2"); err == nil {
		t.Fatal("expected the stale #section2 storage record to be gone")
	}
	if got := ix.index.Len(); got != 1 {
		t.Fatalf("expected exactly one live ANN entry after shrinking, got %d (stale sections not cleared)", got)
	}
}

func TestPerformStartupScanDeletesOrphansAndSchedulesNew(t *testing.T) {
	ix, s := newTestIndexer(t, defaultCfg())
	dir := t.TempDir()

	keep := filepath.Join(dir, "keep.txt")
	gone := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(keep, []byte("keep this content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(gone, []byte("will be deleted"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ix.IndexDirectory(context.Background(), dir); err != nil {
		t.Fatalf("initial IndexDirectory: %v", err)
	}

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	newFile := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(newFile, []byte("brand new content"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ix.PerformStartupScan(context.Background(), []string{dir}); err != nil {
		t.Fatalf("PerformStartupScan: %v", err)
	}

	if _, err := s.Get(gone); giserr.KindOf(err) != giserr.NotFound {
		t.Fatalf("expected gone.txt record to be deleted, got %v", err)
	}
	if _, err := s.Get(keep); err != nil {
		t.Fatalf("expected keep.txt record to survive: %v", err)
	}
	if _, err := s.Get(newFile); err != nil {
		t.Fatalf("expected new.txt to be scheduled and indexed: %v", err)
	}
}

func TestIntelligentSampleKeepsFirstAndLast(t *testing.T) {
	chunks := make([]string, 20)
	for i := range chunks {
		chunks[i] = string(rune('a' + i))
	}
	sampled := intelligentSample(chunks)
	if sampled[0] != chunks[0] {
		t.Fatalf("expected first chunk kept, got %v", sampled[0])
	}
	if sampled[len(sampled)-1] != chunks[len(chunks)-1] {
		t.Fatalf("expected last chunk kept, got %v", sampled[len(sampled)-1])
	}
	if len(sampled) > 5 {
		t.Fatalf("expected at most 5 sampled chunks, got %d", len(sampled))
	}
}

func TestPartitionSectionsOverlap(t *testing.T) {
	chunks := make([]string, 10)
	for i := range chunks {
		chunks[i] = string(rune('a' + i))
	}
	sections := partitionSections(chunks, 3)
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	// Consecutive sections must overlap: the last element of one section
	// should reappear near the start of the next.
	for i := 0; i < len(sections)-1; i++ {
		overlap := false
		for _, a := range sections[i] {
			for _, b := range sections[i+1] {
				if a == b {
					overlap = true
				}
			}
		}
		if !overlap {
			t.Fatalf("expected sections %d and %d to overlap", i, i+1)
		}
	}
}

func TestSectionPathNaming(t *testing.T) {
	fp, fn := sectionPath("/a/b.txt", 0)
	if fp != "/a/b.txt" || fn != "b.txt" {
		t.Fatalf("unexpected primary section naming: %q %q", fp, fn)
	}
	fp, fn = sectionPath("/a/b.txt", 1)
	if fp != "/a/b.txt#section2" || fn != "b.txt (section 2)" {
		t.Fatalf("unexpected section naming: %q %q", fp, fn)
	}
}
