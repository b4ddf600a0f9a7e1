// Package indexer implements the Indexer contract (spec §4.5): walk a
// directory, extract text per file through the parser registry, chunk and
// size that text against the configured context budget, embed it, and
// persist the result through Storage. Grounded on original_source's
// indexer.rs for the overall shape (busy-flag re-entrancy guard, walk →
// extract → chunk → embed → persist per file) and on the teacher's
// internal/index/index.go for the Go-native realization of that shape:
// batched concurrent processing, a ProgressFunc-style callback, and a
// mutex-guarded state struct.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/chunker"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/embedding"
	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/parsers"
	"github.com/Saurav-kan/gist/internal/storage"
)

// batchSize is B from spec §4.5 step 3: the number of files processed
// concurrently within one batch.
const batchSize = 5

// exclusionSuffixes are the boilerplate/incomplete-download markers spec
// §4.5 step 1 names; a file matching any of these is dropped before
// classification regardless of extension.
var exclusionSuffixes = []string{
	".tmp", ".crdownload", ".part", ".download", ".partial", ".lock", ".swp", "~",
}

// metadataOnlyExtensions are the config/binary/log-style extensions spec
// §4.5 step 1 classifies as metadata-only: never parsed for content, only
// their filename and filesystem stats are stored. Image extensions are
// metadata-only too but are classified via parsers.IsImageExtension, since
// that set already lives in the parsers package.
var metadataOnlyExtensions = map[string]bool{
	".log": true, ".ini": true, ".env": true, ".conf": true,
	".bin": true, ".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".db": true, ".sqlite": true,
	".zip": true, ".tar": true, ".gz": true, ".7z": true, ".rar": true,
}

// IsExcluded reports whether path matches spec §4.5 step 1's exclusion
// rules, exported so FileWatcher can apply the same rule to Create/Modify
// events before enqueuing a reindex (spec §4.6).
func IsExcluded(path string) bool {
	return isExcluded(path)
}

func isExcluded(path string) bool {
	lower := strings.ToLower(path)
	for _, sfx := range exclusionSuffixes {
		if strings.HasSuffix(lower, sfx) {
			return true
		}
	}
	return false
}

func isMetadataOnlyExtension(path string) bool {
	if parsers.IsImageExtension(path) {
		return true
	}
	return metadataOnlyExtensions[strings.ToLower(filepath.Ext(path))]
}

// Progress is a snapshot of IndexingProgress (spec §4.5 step 7 / §5).
type Progress struct {
	Running     bool
	Done        int
	Total       int
	CurrentPath string
	StartedAt   time.Time
	FinishedAt  time.Time
	LastError   string
}

// Indexer owns the busy flag, progress snapshot, and the collaborators
// needed to turn a directory into Storage rows plus an ANNIndex.
type Indexer struct {
	store    *storage.Storage
	index    ann.Index
	embedder embedding.Provider
	parsers  *parsers.Registry
	cfg      *config.AppConfig
	log      *slog.Logger

	mu       sync.Mutex // guards indexing, the re-entrancy flag
	indexing bool

	progMu   sync.RWMutex
	progress Progress
}

// New builds an Indexer. embedder may be nil only in tests that never call
// a content-classified path.
func New(store *storage.Storage, index ann.Index, embedder embedding.Provider, cfg *config.AppConfig, log *slog.Logger) *Indexer {
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{
		store:    store,
		index:    index,
		embedder: embedder,
		parsers:  parsers.NewRegistry(cfg.FileTypeFilters),
		cfg:      cfg,
		log:      log,
	}
}

// Progress returns the current IndexingProgress snapshot.
func (ix *Indexer) Progress() Progress {
	ix.progMu.RLock()
	defer ix.progMu.RUnlock()
	return ix.progress
}

func (ix *Indexer) setProgress(mutate func(*Progress)) {
	ix.progMu.Lock()
	defer ix.progMu.Unlock()
	mutate(&ix.progress)
}

// IsIndexing reports whether an IndexDirectory call currently holds the
// re-entrancy flag.
func (ix *Indexer) IsIndexing() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.indexing
}

func (ix *Indexer) tryAcquire() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.indexing {
		return giserr.New(giserr.Busy, "indexing already in progress")
	}
	ix.indexing = true
	return nil
}

func (ix *Indexer) release() {
	ix.mu.Lock()
	ix.indexing = false
	ix.mu.Unlock()
}

// IndexDirectory walks root, processes every admissible file in batches of
// batchSize, and returns once every file has been classified, extracted
// (or downgraded), chunked, embedded, and persisted. A second call while
// one is already running fails immediately with a giserr.Busy error.
func (ix *Indexer) IndexDirectory(ctx context.Context, root string) error {
	if err := ix.tryAcquire(); err != nil {
		return err
	}
	defer ix.release()

	paths, err := enumerate(root)
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", root, err)
	}

	ix.setProgress(func(p *Progress) {
		*p = Progress{Running: true, Total: len(paths), StartedAt: time.Now()}
	})

	for start := 0; start < len(paths); start += batchSize {
		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}
		batch := paths[start:end]

		var wg sync.WaitGroup
		for _, path := range batch {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				ix.setProgress(func(p *Progress) { p.CurrentPath = path })
				if err := ix.indexFile(ctx, path); err != nil {
					ix.log.Warn("index file failed", "path", path, "error", err)
					ix.setProgress(func(p *Progress) { p.LastError = err.Error() })
				}
				ix.setProgress(func(p *Progress) { p.Done++ })
			}(path)
		}
		wg.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	ix.setProgress(func(p *Progress) {
		p.Running = false
		p.CurrentPath = ""
		p.FinishedAt = time.Now()
	})
	return ctx.Err()
}

// enumerate walks root, dropping excluded files (spec §4.5 step 1) and
// hidden directories, carrying over the teacher's walkDir convention.
func enumerate(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if isExcluded(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

// IndexFile processes a single file outside of a directory run — the
// FileWatcher's Create/Modify handler (spec §4.6) calls this directly; it
// is not gated by the IndexDirectory busy flag since it targets one path,
// not the whole tree.
func (ix *Indexer) IndexFile(ctx context.Context, path string) error {
	return ix.indexFile(ctx, path)
}

// indexFile classifies, extracts, chunks/sizes, embeds, and persists one
// file (spec §4.5 steps 1, 3, 4, 5, 6).
func (ix *Indexer) indexFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	if isMetadataOnlyExtension(path) || !ix.parsers.CanParse(path) {
		return ix.persistMetadataOnly(path, info)
	}

	text, err := ix.parsers.ExtractText(path)
	if err != nil || strings.TrimSpace(text) == "" {
		return ix.persistMetadataOnly(path, info)
	}

	return ix.embedAndPersist(ctx, path, info, text)
}

func baseRecord(path string, info os.FileInfo) storage.FileRecord {
	return storage.FileRecord{
		FilePath:     path,
		FileName:     filepath.Base(path),
		FileSize:     info.Size(),
		ModifiedTime: info.ModTime().Unix(),
		FileType:     strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
	}
}

func (ix *Indexer) persistMetadataOnly(path string, info os.FileInfo) error {
	rec := baseRecord(path, info)
	if err := ix.store.DeleteWithSections(path); err != nil {
		return err
	}
	if err := ix.store.Upsert(&rec, nil); err != nil {
		return err
	}
	if ix.index != nil {
		if err := ix.index.RemoveWithSections(path); err != nil {
			ix.log.Warn("ann remove failed", "path", path, "error", err)
		}
	}
	return nil
}

// embedAndPersist implements spec §4.5 step 4's chunking/sizing/sampling/
// sectioning decision tree, step 5's retry-on-oversize embed, and step 6's
// persistence, including the multi-section fan-out spec §3 describes for
// files whose text exceeds 4·C tokens.
func (ix *Indexer) embedAndPersist(ctx context.Context, path string, info os.FileInfo, text string) error {
	chunkWords := ix.cfg.ChunkSize
	chunks := chunker.WordChunks(text, chunkWords)
	if len(chunks) == 0 {
		return ix.persistMetadataOnly(path, info)
	}

	contextTokens := config.ClampMaxContextTokens(ix.cfg.MaxContextTokens)
	totalTokens := chunker.EstimateTokens(text)
	ratio := float64(totalTokens) / float64(contextTokens)

	// Always clear any prior section records before writing fresh ones —
	// a file that shrinks across runs must not leave stale #sectionK rows
	// behind (DESIGN.md's Open Question decision). The ANN index has no
	// notion of a path prefix scan of its own, so it is cleared the same
	// way, otherwise stale "path#sectionK" vectors would linger in the
	// in-memory graph indefinitely (RemoveByPath alone only ever matches
	// the exact path, never a shrunk file's now-orphaned section entries).
	if err := ix.store.DeleteWithSections(path); err != nil {
		return err
	}
	if ix.index != nil {
		if err := ix.index.RemoveWithSections(path); err != nil {
			ix.log.Warn("ann remove failed", "path", path, "error", err)
		}
	}

	switch {
	case totalTokens <= contextTokens:
		combined := capToTokenBudget(strings.Join(chunks, "\n\n"), contextTokens)
		return ix.embedSection(ctx, path, info, combined, 0)

	case totalTokens <= 4*contextTokens:
		sampled := intelligentSample(chunks)
		combined := strings.Join(sampled, "\n\n")
		combined = capToTokenBudget(combined, int(0.75*float64(contextTokens)))
		return ix.embedSection(ctx, path, info, combined, 0)

	default:
		numSections := int(math.Ceil(math.Log2(ratio + 1)))
		if numSections < 1 {
			numSections = 1
		}
		sections := partitionSections(chunks, numSections)
		for i, group := range sections {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			combined := capToTokenBudget(strings.Join(group, "\n\n"), contextTokens)
			if err := ix.embedSection(ctx, path, info, combined, i); err != nil {
				return err
			}
		}
		return nil
	}
}

// sectionPath returns the real path for section 0 (the primary record) and
// "path#sectionK" (k = index+1) for every following section, per spec §3.
func sectionPath(path string, sectionIndex int) (filePath, fileName string) {
	if sectionIndex == 0 {
		return path, filepath.Base(path)
	}
	k := sectionIndex + 1
	suffix := fmt.Sprintf("#section%d", k)
	return path + suffix, fmt.Sprintf("%s (section %d)", filepath.Base(path), k)
}

func (ix *Indexer) embedSection(ctx context.Context, path string, info os.FileInfo, text string, sectionIndex int) error {
	vec, err := embedding.EmbedWithRetry(ctx, ix.embedder, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	fp, fn := sectionPath(path, sectionIndex)
	rec := baseRecord(path, info)
	rec.FilePath = fp
	rec.FileName = fn

	if err := ix.store.Upsert(&rec, vec); err != nil {
		return err
	}
	if ix.index != nil {
		if err := ix.index.Add(vec, rec); err != nil {
			ix.log.Warn("ann add failed", "path", fp, "error", err)
		}
	}
	return nil
}

// capToTokenBudget truncates text at a character boundary so it fits
// within tokenBudget tokens, using the chars/4 estimate spec §4.5 step 4
// specifies (a "conservative char cap").
func capToTokenBudget(text string, tokenBudget int) string {
	safeChars := tokenBudget * 4
	if safeChars <= 0 || len(text) <= safeChars {
		return text
	}
	return text[:safeChars]
}

// intelligentSample keeps the first and last chunk and samples ~3 chunks
// evenly from the middle two quartiles ([N/4, 3N/4]), per spec §4.5 step 4.
func intelligentSample(chunks []string) []string {
	n := len(chunks)
	if n <= 2 {
		return chunks
	}

	lo := n / 4
	hi := (3 * n) / 4
	if hi <= lo {
		hi = lo + 1
	}
	if hi >= n {
		hi = n - 1
	}
	span := hi - lo

	const middleSamples = 3
	sampled := make([]string, 0, middleSamples+2)
	sampled = append(sampled, chunks[0])

	seen := map[int]bool{0: true, n - 1: true}
	for i := 0; i < middleSamples; i++ {
		idx := lo
		if span > 0 && middleSamples > 1 {
			idx = lo + (i*span)/(middleSamples-1)
		}
		if idx >= n {
			idx = n - 1
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		sampled = append(sampled, chunks[idx])
	}
	sampled = append(sampled, chunks[n-1])
	return sampled
}

// partitionSections splits chunks into numSections contiguous, 20%-overlapping
// groups, per spec §4.5 step 4's multi-section sizing rule.
func partitionSections(chunks []string, numSections int) [][]string {
	n := len(chunks)
	if numSections < 1 {
		numSections = 1
	}
	if numSections > n {
		numSections = n
	}

	groupSize := (n + numSections - 1) / numSections
	overlap := int(float64(groupSize) * 0.2)
	if overlap < 1 && numSections > 1 {
		overlap = 1
	}

	var sections [][]string
	start := 0
	for len(sections) < numSections && start < n {
		end := start + groupSize
		// The last group runs to the end so no trailing chunk is dropped.
		if end > n || len(sections) == numSections-1 {
			end = n
		}
		sections = append(sections, chunks[start:end])
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return sections
}
