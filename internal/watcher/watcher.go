// Package watcher implements the FileWatcher contract (spec §4.6):
// recursive filesystem notifications for a set of roots, translated into
// Indexer/Storage updates. Grounded on the teacher's fsnotify-based
// watcher.go for the Go mechanics (recursive Add, debounced re-index
// timers, single consumer loop) and on original_source's file_watcher.rs
// for the event-to-action mapping (Create/Modify → index_file,
// Remove → delete from storage) and its add_directory/remove_directory
// surface.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/indexer"
	"github.com/Saurav-kan/gist/internal/storage"
)

// debounceWindow coalesces rapid-fire Write events (e.g. editors that save
// via multiple small writes) into one reindex, mirroring the teacher's
// 500ms debounce timer.
const debounceWindow = 500 * time.Millisecond

// Watcher owns a single fsnotify handle shared across every watched root,
// and serializes all filesystem events onto one consumer goroutine (Run)
// so that concurrent churn for the same path can never race (spec §4.6/§5).
type Watcher struct {
	fw    *fsnotify.Watcher
	ix    *indexer.Indexer
	store *storage.Storage
	index ann.Index // may be nil
	log   *slog.Logger

	mu    sync.Mutex // guards roots; the watcher handle itself is single-consumer
	roots map[string]bool
}

// New builds a Watcher backed by ix for reindexing and store/index for
// removal bookkeeping. index may be nil if the caller doesn't maintain an
// in-memory ANNIndex (e.g. always rebuilding from Storage before search).
func New(ix *indexer.Indexer, store *storage.Storage, index ann.Index, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{fw: fw, ix: ix, store: store, index: index, log: log, roots: make(map[string]bool)}, nil
}

// AddDirectory starts watching root and every non-hidden subdirectory,
// recursively. A failure to watch one root is warned, not fatal (spec
// §4.6), so the caller can keep adding the remaining configured roots.
func (w *Watcher) AddDirectory(root string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.addDirRecursive(root); err != nil {
		w.log.Warn("watch root failed", "root", root, "error", err)
		return err
	}
	w.roots[root] = true
	return nil
}

// RemoveDirectory stops watching root. Storage rows are left untouched —
// removing a watch is a config change, not a filesystem delete.
func (w *Watcher) RemoveDirectory(root string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.roots, root)
	if err := w.fw.Remove(root); err != nil {
		w.log.Warn("unwatch root failed", "root", root, "error", err)
	}
}

// Run drains events on a single consumer loop until ctx is cancelled.
// Blocks; call it in its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return w.fw.Close()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event, pending)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, pending map[string]*time.Timer) {
	path := event.Name

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.handleRemove(path)
		return
	}

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			w.mu.Lock()
			err := w.addDirRecursive(path)
			w.mu.Unlock()
			if err != nil {
				w.log.Warn("watch new directory failed", "path", path, "error", err)
			}
			return
		}
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if indexer.IsExcluded(path) {
		return
	}

	if t, ok := pending[path]; ok {
		t.Stop()
	}
	pending[path] = time.AfterFunc(debounceWindow, func() {
		if err := w.ix.IndexFile(ctx, path); err != nil {
			w.log.Warn("watch reindex failed", "path", path, "error", err)
		}
	})
}

// handleRemove implements spec §4.6's Remove handling. fsnotify reports a
// removed path without telling us whether it was a file or a directory (it
// no longer exists to stat), so this deletes every shape a removal could
// take: the exact record, its large-file section siblings, and anything
// nested under it as a directory prefix.
func (w *Watcher) handleRemove(path string) {
	if err := w.store.DeleteWithSections(path); err != nil {
		w.log.Warn("delete on remove failed", "path", path, "error", err)
	}
	if err := w.store.DeleteByPrefix(path); err != nil {
		w.log.Warn("delete-by-prefix on remove failed", "path", path, "error", err)
	}
	if w.index != nil {
		if err := w.index.RemoveWithSections(path); err != nil {
			w.log.Warn("ann remove on watcher delete failed", "path", path, "error", err)
		}
	}
}

// addDirRecursive adds dir and all non-hidden subdirectories to the
// watcher. Caller must hold w.mu.
func (w *Watcher) addDirRecursive(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			if err := w.addDirRecursive(filepath.Join(dir, e.Name())); err != nil {
				w.log.Warn("skip subdirectory", "path", filepath.Join(dir, e.Name()), "error", err)
			}
		}
	}
	return nil
}
