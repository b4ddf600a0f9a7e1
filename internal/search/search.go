package search

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Saurav-kan/gist/internal/ann"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/embedding"
	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/storage"
)

// Request is one search call: the raw natural-language-or-plain query, an
// optional result cap, and optional pre-extracted filters (as would come
// from QueryParser.Parse).
type Request struct {
	Query   string
	Limit   int
	Filters *FilterOptions
}

// Result is one ranked hit.
type Result struct {
	FilePath   string
	FileName   string
	Similarity float32
}

// Engine implements the SearchEngine contract (spec §4.8): embed the query,
// retrieve candidates from the ANNIndex (or a linear scan), rescore with a
// hybrid filename+vector similarity, filter, deduplicate and rank.
// Grounded on api/search.rs's search_files handler.
type Engine struct {
	store    *storage.Storage
	index    ann.Index // may be nil
	embedder embedding.Provider
	cfg      *config.AppConfig
}

// New builds a search Engine. index may be nil, in which case every search
// uses the linear fallback path.
func New(store *storage.Storage, index ann.Index, embedder embedding.Provider, cfg *config.AppConfig) *Engine {
	return &Engine{store: store, index: index, embedder: embedder, cfg: cfg}
}

type scoredCandidate struct {
	record storage.FileRecord
	score  float32
}

// Search runs the full SearchEngine pipeline and returns up to req.Limit
// ranked results.
func (e *Engine) Search(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, giserr.New(giserr.BadRequest, "search query must not be empty")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.MaxSearchResults
	}
	limit = config.ClampMaxSearchResults(limit)

	queryVector, err := e.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, err
	}

	queryWords := strings.Fields(query)
	candidates, err := e.retrieveCandidates(queryVector, limit)
	if err != nil {
		return nil, err
	}

	scored := make([]scoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		filenameSim := filenameSimilarity(query, c.record.FileName)
		vectorWeight, filenameWeight := hybridWeights(query, filenameSim)
		hybrid := hybridSimilarity(c.vectorSim, filenameSim, vectorWeight, filenameWeight)
		hybrid = falsePositiveDampers(hybrid, c.vectorSim, filenameSim, len(queryWords))
		hybrid = lengthSizePenalty(hybrid, c.record.FileName, c.record.FileSize, len(queryWords))
		scored = append(scored, scoredCandidate{record: c.record, score: hybrid})
	}

	vectorless, err := e.store.ListWithoutVector()
	if err != nil {
		return nil, err
	}
	for _, rec := range vectorless {
		filenameSim := filenameSimilarity(query, rec.FileName)
		if filenameSim <= 0.1 {
			continue
		}
		adjusted := lengthSizePenalty(filenameSim, rec.FileName, rec.FileSize, len(queryWords))
		scored = append(scored, scoredCandidate{record: rec, score: adjusted})
	}

	scored = e.applyFilters(scored, req.Filters)

	if e.cfg.FilterDuplicateFiles {
		scored = e.deduplicateByEmbedding(scored)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > limit {
		scored = scored[:limit]
	}

	results := make([]Result, len(scored))
	for i, c := range scored {
		results[i] = Result{FilePath: c.record.FilePath, FileName: c.record.FileName, Similarity: c.score}
	}
	return results, nil
}

type retrievedCandidate struct {
	record    storage.FileRecord
	vectorSim float32
}

// retrieveCandidates implements spec §4.8 step 4: ANNIndex first (with its
// own top-k overfetch), falling through to a linear cosine scan if the
// index is empty or errors (spec §4.9's ANN-search-failure row).
func (e *Engine) retrieveCandidates(queryVector []float32, limit int) ([]retrievedCandidate, error) {
	if e.index != nil && e.index.Len() > 0 {
		hits, err := e.index.Search(queryVector, limit*2)
		if err == nil {
			out := make([]retrievedCandidate, len(hits))
			for i, h := range hits {
				out[i] = retrievedCandidate{record: h.Record, vectorSim: h.Score}
			}
			return out, nil
		}
	}
	return e.linearScan(queryVector)
}

func (e *Engine) linearScan(queryVector []float32) ([]retrievedCandidate, error) {
	pairs, err := e.store.BulkLoadAllVectors()
	if err != nil {
		return nil, err
	}
	out := make([]retrievedCandidate, len(pairs))
	for i, p := range pairs {
		out[i] = retrievedCandidate{record: p.Record, vectorSim: cosineSimilarity(queryVector, p.Vector)}
	}
	return out, nil
}

// applyFilters implements spec §4.8 step 8: per-filter predicates plus an
// unconditional global extension exclusion list.
func (e *Engine) applyFilters(candidates []scoredCandidate, filters *FilterOptions) []scoredCandidate {
	excluded := e.cfg.FileTypeFilters.ExcludedExtensions

	out := candidates[:0:0]
	for _, c := range candidates {
		if !filters.isEmpty() {
			if filters.DateRange != nil && !matchesDateRange(c.record.ModifiedTime, filters.DateRange) {
				continue
			}
			if len(filters.FileTypes) > 0 && !matchesFileType(c.record.FilePath, filters.FileTypes) {
				continue
			}
			if len(filters.FolderPaths) > 0 && !matchesFolderPaths(c.record.FilePath, filters.FolderPaths) {
				continue
			}
		}
		if isExcludedExtension(c.record.FilePath, excluded) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesDateRange(modifiedTime int64, dr *DateRange) bool {
	if dr.Start != nil && modifiedTime < *dr.Start {
		return false
	}
	if dr.End != nil && modifiedTime > *dr.End {
		return false
	}
	if dr.Month != nil || dr.Year != nil {
		t := time.Unix(modifiedTime, 0)
		if dr.Month != nil && int(t.Month()) != *dr.Month {
			return false
		}
		if dr.Year != nil && t.Year() != *dr.Year {
			return false
		}
	}
	return true
}

func matchesFileType(path string, fileTypes []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, ft := range fileTypes {
		if ext == strings.ToLower(strings.TrimPrefix(ft, ".")) {
			return true
		}
	}
	return false
}

func matchesFolderPaths(path string, folders []string) bool {
	lowerPath := strings.ToLower(path)
	for _, folder := range folders {
		if strings.Contains(lowerPath, strings.ToLower(folder)) {
			return true
		}
	}
	return false
}

func isExcludedExtension(path string, excluded []string) bool {
	if len(excluded) == 0 {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, e := range excluded {
		if ext == strings.ToLower(strings.TrimPrefix(e, ".")) {
			return true
		}
	}
	return false
}

// deduplicateByEmbedding implements spec §4.8 step 9: group candidates with
// a stored, byte-identical embedding and keep only the lexicographically
// smallest file_path per group. Vectorless candidates pass through
// untouched.
func (e *Engine) deduplicateByEmbedding(candidates []scoredCandidate) []scoredCandidate {
	type kept struct {
		idx int
		cnd scoredCandidate
	}
	seen := make(map[string]kept)
	var vectorless []scoredCandidate

	for _, c := range candidates {
		if !c.record.HasVector() {
			vectorless = append(vectorless, c)
			continue
		}
		vec, err := e.store.LoadVector(c.record)
		if err != nil {
			vectorless = append(vectorless, c)
			continue
		}
		key := vectorKey(vec)
		if existing, ok := seen[key]; ok {
			if c.record.FilePath < existing.cnd.record.FilePath {
				seen[key] = kept{cnd: c}
			}
			continue
		}
		seen[key] = kept{cnd: c}
	}

	out := make([]scoredCandidate, 0, len(seen)+len(vectorless))
	for _, k := range seen {
		out = append(out, k.cnd)
	}
	out = append(out, vectorless...)
	return out
}

// vectorKey builds a deterministic string key from a vector's exact bit
// pattern, so byte-identical embeddings collide and near-identical ones do
// not.
func vectorKey(v []float32) string {
	var b strings.Builder
	for _, f := range v {
		b.WriteString(strconv.FormatUint(uint64(math.Float32bits(f)), 36))
		b.WriteByte(',')
	}
	return b.String()
}
