// Package search implements the QueryParser and SearchEngine contracts
// (spec §4.7/§4.8): turning a natural-language query into a clean search
// string plus structured filters, then turning that into ranked results.
// Grounded on original_source's search.rs (similarity primitives),
// api/search.rs (weighting, penalties, filtering, deduplication) and
// query_parser.rs (pattern extraction, LLM fallback, safety guards).
package search

// DateRange filters records by modified time, either as an explicit
// {start,end} UNIX-second span, a month/year pair, or both.
type DateRange struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
	Month *int   `json:"month,omitempty"`
	Year  *int   `json:"year,omitempty"`
}

// FilterOptions is the structured filter set a query can carry, extracted
// by QueryParser or supplied directly by an API caller.
type FilterOptions struct {
	DateRange   *DateRange `json:"date_range,omitempty"`
	FileTypes   []string   `json:"file_types,omitempty"`
	FolderPaths []string   `json:"folder_paths,omitempty"`
}

// isEmpty reports whether no filter is actually set, handling both a nil
// FilterOptions and one whose fields are all zero-valued.
func (f *FilterOptions) isEmpty() bool {
	return f == nil || (f.DateRange == nil && len(f.FileTypes) == 0 && len(f.FolderPaths) == 0)
}

// ParsedQuery is QueryParser's output: the residual search text plus any
// filters extracted from the original natural-language query.
type ParsedQuery struct {
	Query   string        `json:"query"`
	Filters FilterOptions `json:"filters"`
}
