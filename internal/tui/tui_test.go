package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Saurav-kan/gist/internal/ann/flatindex"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/search"
	"github.com/Saurav-kan/gist/internal/storage"
)

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

func newTestModel(t *testing.T) (Model, *storage.Storage) {
	t.Helper()
	st, err := storage.Open(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx := flatindex.New()
	engine := search.New(st, idx, fakeEmbedder{}, config.Default())
	return New(st, engine), st
}

func TestComputeStatsCountsFilesAndVectors(t *testing.T) {
	m, st := newTestModel(t)

	rec := &storage.FileRecord{FilePath: "/a/b.txt", FileName: "b.txt", FileSize: 100, ModifiedTime: time.Now().Unix(), FileType: ".txt"}
	vec, _ := fakeEmbedder{}.EmbedSingle(context.Background(), "hello")
	if err := st.Upsert(rec, vec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	rec2 := &storage.FileRecord{FilePath: "/a/c.log", FileName: "c.log", FileSize: 50, ModifiedTime: time.Now().Unix(), FileType: ".log"}
	if err := st.Upsert(rec2, nil); err != nil {
		t.Fatalf("Upsert metadata-only: %v", err)
	}

	s := m.computeStats()
	if s.totalFiles != 2 {
		t.Fatalf("expected 2 files, got %d", s.totalFiles)
	}
	if s.withVector != 1 {
		t.Fatalf("expected 1 file with a vector, got %d", s.withVector)
	}
	if s.totalBytes != 150 {
		t.Fatalf("expected 150 total bytes, got %d", s.totalBytes)
	}
}

func TestUpdateCtrlQQuits(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlQ})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
}

func TestUpdateToggleStatsMode(t *testing.T) {
	m, _ := newTestModel(t)
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlI})
	nm := next.(Model)
	if nm.mode != modeStats {
		t.Fatalf("expected modeStats after ctrl+i, got %v", nm.mode)
	}
	if nm.stats == nil {
		t.Fatal("expected stats to be populated")
	}

	back, _ := nm.Update(tea.KeyMsg{Type: tea.KeyEsc})
	bm := back.(Model)
	if bm.mode != modeSearch {
		t.Fatalf("expected modeSearch after esc, got %v", bm.mode)
	}
}

func TestFileIconKnownAndUnknownExtensions(t *testing.T) {
	if fileIcon("report.pdf") == " " {
		t.Fatal("expected a specific icon for .pdf")
	}
	if fileIcon("mystery.xyz") != " " {
		t.Fatal("expected fallback icon for unknown extensions")
	}
}

func TestClamp(t *testing.T) {
	if clamp(5, 10, 20) != 10 {
		t.Fatal("expected clamp to raise below-range values to lo")
	}
	if clamp(25, 10, 20) != 20 {
		t.Fatal("expected clamp to lower above-range values to hi")
	}
	if clamp(15, 10, 20) != 15 {
		t.Fatal("expected clamp to leave in-range values untouched")
	}
}

func TestPadBetweenFillsWidth(t *testing.T) {
	got := padBetween("left", "right", 20)
	if len(got) < 20 {
		t.Fatalf("expected padded string to fill width 20, got %q (%d)", got, len(got))
	}
}
