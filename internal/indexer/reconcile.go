package indexer

import (
	"context"
	"os"
	"strings"
)

// PerformStartupScan implements spec §4.5's perform_startup_scan: walk each
// configured directory, diff against Storage by modified_time/file_size,
// delete orphaned records whose path was never seen on disk, then process
// the scheduled new/changed files sequentially. Shares the same re-entrancy
// guard as IndexDirectory.
func (ix *Indexer) PerformStartupScan(ctx context.Context, directories []string) error {
	if err := ix.tryAcquire(); err != nil {
		return err
	}
	defer ix.release()

	seen := make(map[string]bool)
	var scheduled []string

	for _, dir := range directories {
		paths, err := enumerate(dir)
		if err != nil {
			ix.log.Warn("startup scan: enumerate failed", "dir", dir, "error", err)
			continue
		}

		for _, path := range paths {
			seen[path] = true

			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			existing, err := ix.store.Get(path)
			switch {
			case err != nil:
				// Not found (or unreadable) — schedule for indexing.
				scheduled = append(scheduled, path)
			case existing.ModifiedTime != info.ModTime().Unix() || existing.FileSize != info.Size():
				scheduled = append(scheduled, path)
			}
		}
	}

	if err := ix.deleteOrphans(seen); err != nil {
		return err
	}

	for _, path := range scheduled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := ix.indexFile(ctx, path); err != nil {
			ix.log.Warn("startup scan: index file failed", "path", path, "error", err)
		}
	}
	return nil
}

// deleteOrphans removes every Storage record (including large-file section
// records) whose primary path was not observed during the walk.
func (ix *Indexer) deleteOrphans(seen map[string]bool) error {
	records, err := ix.store.ListAll()
	if err != nil {
		return err
	}

	deleted := make(map[string]bool)
	for _, rec := range records {
		primary := primaryPathOf(rec.FilePath)
		if seen[primary] || deleted[primary] {
			continue
		}
		if err := ix.store.DeleteWithSections(primary); err != nil {
			return err
		}
		if ix.index != nil {
			if err := ix.index.RemoveByPath(primary); err != nil {
				ix.log.Warn("ann remove orphan failed", "path", primary, "error", err)
			}
		}
		deleted[primary] = true
	}
	return nil
}

// primaryPathOf strips a "#sectionK" suffix, recovering the real on-disk
// path a section record was derived from.
func primaryPathOf(recordPath string) string {
	if idx := strings.Index(recordPath, "#section"); idx >= 0 {
		return recordPath[:idx]
	}
	return recordPath
}
