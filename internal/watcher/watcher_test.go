package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Saurav-kan/gist/internal/ann/flatindex"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/indexer"
	"github.com/Saurav-kan/gist/internal/storage"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 2}, nil
}
func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.EmbedSingle(ctx, t)
	}
	return out, nil
}
func (fakeEmbedder) Dimension() int { return 3 }
func (fakeEmbedder) Name() string   { return "fake" }

func newTestWatcher(t *testing.T) (*Watcher, *storage.Storage) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	idx := flatindex.New()
	cfg := config.Default()
	ix := indexer.New(s, idx, fakeEmbedder{}, cfg, slog.Default())

	w, err := New(ix, s, idx, slog.Default())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, s
}

func TestWatcherReindexesOnWrite(t *testing.T) {
	w, s := newTestWatcher(t)
	dir := t.TempDir()
	if err := w.AddDirectory(dir); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello from the watcher"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Get(path); err == nil {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("expected %s to be indexed after a write event", path)
}

func TestWatcherRemovesOnDelete(t *testing.T) {
	w, s := newTestWatcher(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("will be removed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.ix.IndexFile(context.Background(), path); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if _, err := s.Get(path); err != nil {
		t.Fatalf("expected record before delete: %v", err)
	}

	if err := w.AddDirectory(dir); err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.Get(path); err != nil {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatalf("expected %s record to be removed after a delete event", path)
}
