package search

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Saurav-kan/gist/internal/aichat"
)

// cacheTTL is how long a QueryParser LLM result is reused for an identical
// normalized query, per spec §4.7.
const cacheTTL = 300 * time.Second

// complexityThreshold gates Stage B: pattern matching found nothing, and the
// query must look complex enough to be worth an LLM round trip.
const complexityThreshold = 0.3

type cacheEntry struct {
	result ParsedQuery
	stored time.Time
}

// QueryParser turns a natural-language query into clean search text plus
// structured filters: deterministic pattern extraction first (Stage A).
// Stage B (LLM fallback) runs only when pattern extraction found nothing,
// an LLM is configured, and the query's complexity score clears the
// threshold. Grounded on query_parser.rs's QueryParser.
type QueryParser struct {
	chat  aichat.Provider // nil disables Stage B entirely
	model string
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewQueryParser builds a parser. chat may be nil (Stage B is then always
// skipped, matching the original's `llm_model.is_empty()` guard).
func NewQueryParser(chat aichat.Provider, model string) *QueryParser {
	return &QueryParser{chat: chat, model: model, cache: make(map[string]cacheEntry)}
}

// Parse runs Stage A then, if nothing was found and the query warrants it,
// Stage B.
func (p *QueryParser) Parse(ctx context.Context, query string) ParsedQuery {
	parsed := p.ParsePatternOnly(query)
	if !parsed.Filters.isEmpty() {
		return parsed
	}

	if p.chat == nil || !shouldTryLLM(query) {
		return parsed
	}

	cacheKey := strings.TrimSpace(strings.ToLower(query))
	if cached, ok := p.lookupCache(cacheKey); ok {
		return cached
	}

	llmResult, err := p.parseWithLLM(ctx, query)
	if err != nil {
		return parsed
	}
	p.storeCache(cacheKey, llmResult)
	return llmResult
}

// ParsePatternOnly runs only Stage A (deterministic, synchronous), for
// callers that never want an LLM round trip.
func (p *QueryParser) ParsePatternOnly(query string) ParsedQuery {
	remaining := query
	var filters FilterOptions

	if dr, cleaned, ok := extractDateFilters(remaining); ok {
		filters.DateRange = dr
		remaining = cleaned
	}
	if types, cleaned, ok := extractFileTypes(remaining); ok {
		filters.FileTypes = types
		remaining = cleaned
	}
	if folders, cleaned, ok := extractFolderPaths(remaining); ok {
		filters.FolderPaths = folders
		remaining = cleaned
	}

	return ParsedQuery{Query: strings.TrimSpace(remaining), Filters: filters}
}

func (p *QueryParser) lookupCache(key string) (ParsedQuery, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[key]
	if !ok || time.Since(entry.stored) >= cacheTTL {
		return ParsedQuery{}, false
	}
	return entry.result, true
}

func (p *QueryParser) storeCache(key string, result ParsedQuery) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cacheEntry{result: result, stored: time.Now()}
	for k, e := range p.cache {
		if time.Since(e.stored) >= cacheTTL {
			delete(p.cache, k)
		}
	}
}

// shouldTryLLM computes the complexity score described in spec §4.7 and
// compares it against complexityThreshold.
func shouldTryLLM(query string) bool {
	return complexityScore(query) >= complexityThreshold
}

var connectiveWords = []string{"and", "or", "with", "containing", "before", "after", "since"}
var ambiguityWords = []string{"homework", "assignment", "project", "report"}
var filterIndicatorWords = []string{
	"from", "in", "last", "this", "yesterday", "week", "month", "year",
	"pdf", "word", "excel", "image", "video", "document",
	"downloads", "desktop", "documents", "folder",
}

// complexityScore is a capped sum of independent signals, each suggesting
// the query might carry an implicit filter worth an LLM parse.
func complexityScore(query string) float64 {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)

	if len(words) <= 2 {
		return 0
	}

	var score float64

	// Length factor: grows with word count, capped at 0.75.
	length := float64(len(words)-2) * 0.08
	if length > 0.75 {
		length = 0.75
	}
	score += length

	// Filter-indicator keywords: capped ~0.35, boosted for several hits.
	hits := 0
	for _, w := range filterIndicatorWords {
		if strings.Contains(lower, w) {
			hits++
		}
	}
	indicator := float64(hits) * 0.12
	if indicator > 0.35 {
		indicator = 0.35
	}
	score += indicator

	// Semantic connectives, capped 0.2.
	connectives := 0
	for _, w := range connectiveWords {
		if strings.Contains(lower, w) {
			connectives++
		}
	}
	connective := float64(connectives) * 0.1
	if connective > 0.2 {
		connective = 0.2
	}
	score += connective

	// Ambiguity markers, capped 0.15.
	ambiguous := 0
	for _, w := range ambiguityWords {
		if strings.Contains(lower, w) {
			ambiguous++
		}
	}
	ambiguity := float64(ambiguous) * 0.15
	if ambiguity > 0.15 {
		ambiguity = 0.15
	}
	score += ambiguity

	// Structural cues, capped 0.05.
	var structural float64
	if strings.Contains(query, "?") {
		structural += 0.02
	}
	if strings.Contains(query, ",") {
		structural += 0.02
	}
	if strings.Contains(query, `"`) {
		structural += 0.02
	}
	if structural > 0.05 {
		structural = 0.05
	}
	score += structural

	return score
}

// explicitDateWordRe and standaloneYearRe back hasExplicitDateToken, the
// safety-guard check: does the raw query contain an explicit date token at
// all, independent of what the LLM claims?
var explicitDateWordRe = regexp.MustCompile(`(?i)\b(yesterday|today|last week|last month|last year|since|from|between|during|recently|ago)\b`)
var standaloneYearRe = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)

func hasExplicitDateToken(query string) bool {
	lower := strings.ToLower(query)
	if explicitDateWordRe.MatchString(lower) {
		return true
	}
	if standaloneYearRe.MatchString(lower) {
		return true
	}
	for name := range monthNumbers {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

// parseWithLLM asks the configured chat provider to parse query into
// strict JSON, per spec §4.7's LLM interaction contract.
func (p *QueryParser) parseWithLLM(ctx context.Context, query string) (ParsedQuery, error) {
	prompt := buildLLMPrompt(query)
	raw, err := p.chat.Generate(ctx, []aichat.Message{
		{Role: aichat.RoleUser, Content: prompt},
	})
	if err != nil {
		return ParsedQuery{}, err
	}

	jsonText := stripCodeFence(strings.TrimSpace(raw))

	var llmOut struct {
		SearchQuery string `json:"search_query"`
		DateFilter  *struct {
			Month *int `json:"month"`
			Year  *int `json:"year"`
		} `json:"date_filter"`
		FileTypes   []string `json:"file_types"`
		FolderPaths []string `json:"folder_paths"`
	}
	if err := json.Unmarshal([]byte(jsonText), &llmOut); err != nil {
		return ParsedQuery{}, err
	}

	result := ParsedQuery{Query: strings.TrimSpace(llmOut.SearchQuery)}
	if len(llmOut.FileTypes) > 0 {
		result.Filters.FileTypes = llmOut.FileTypes
	}
	if len(llmOut.FolderPaths) > 0 {
		result.Filters.FolderPaths = llmOut.FolderPaths
	}

	if llmOut.DateFilter != nil && (llmOut.DateFilter.Month != nil || llmOut.DateFilter.Year != nil) {
		if dr, ok := applyDateSafetyGuards(query, llmOut.DateFilter.Month, llmOut.DateFilter.Year); ok {
			result.Filters.DateRange = dr
		}
	}

	return result, nil
}

// applyDateSafetyGuards implements spec §4.7's guards against hallucinated
// or future-dated filters: discard a date_filter the raw query gives no
// textual basis for, and discard (or clamp) one that claims a future date
// the query doesn't literally name.
func applyDateSafetyGuards(query string, month, year *int) (*DateRange, bool) {
	if !hasExplicitDateToken(query) {
		return nil, false
	}

	now := time.Now()
	resolvedYear := now.Year()
	if year != nil {
		resolvedYear = *year
	}

	queryNamesYear := year != nil && strings.Contains(query, strconv.Itoa(*year))
	queryNamesMonth := month != nil && queryNamesMonthLiteral(query, *month)

	isFuture := false
	if year != nil && *year > now.Year() {
		isFuture = true
	}
	if month != nil && resolvedYear == now.Year() && *month > int(now.Month()) {
		isFuture = true
	}
	if isFuture && !queryNamesYear && !queryNamesMonth {
		return nil, false
	}

	dr := materializeDateRange(month, &resolvedYear)
	if dr.End != nil && *dr.End > now.Unix() {
		nowUnix := now.Unix()
		dr.End = &nowUnix
	}
	return dr, true
}

func queryNamesMonthLiteral(query string, month int) bool {
	lower := strings.ToLower(query)
	for name, num := range monthNumbers {
		if num == month && strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

func stripCodeFence(text string) string {
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimPrefix(text, "```json")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimPrefix(text, "```")
	default:
		return text
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func buildLLMPrompt(query string) string {
	var b strings.Builder
	b.WriteString("Parse this search query into JSON format. Extract filters and remove filter words from the search query.\n\n")
	b.WriteString("Query: \"")
	b.WriteString(query)
	b.WriteString("\"\n\n")
	b.WriteString("Extract:\n")
	b.WriteString("- search_query: main search terms (remove filter words like dates, file types, folder names)\n")
	b.WriteString("- date_filter: {\"month\": number 1-12 or null, \"year\": number or null} if date mentioned, null otherwise\n")
	b.WriteString("- file_types: array of file extensions like [\"pdf\", \"docx\"] or null if none mentioned\n")
	b.WriteString("- folder_paths: array of folder names like [\"Downloads\", \"Desktop\"] or null if none mentioned\n\n")
	b.WriteString("Return ONLY valid JSON, no other text:\n")
	b.WriteString(`{"search_query": "...", "date_filter": {"month": null, "year": null}, "file_types": null, "folder_paths": null}`)
	return b.String()
}

// --- Stage A: pattern extraction ---

var monthNumbers = map[string]int{
	"january": 1, "jan": 1, "february": 2, "feb": 2, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "may": 5, "june": 6, "jun": 6, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sept": 9, "sep": 9,
	"october": 10, "oct": 10, "november": 11, "nov": 11, "december": 12, "dec": 12,
}

var dateRangePhraseRe = regexp.MustCompile(
	`(?i)(?:from|between)\s+(\w+\s+\d{1,2},?\s+\d{4}|\w+\s+\d{4}|\d{1,2}/\d{1,2}/\d{4})\s+(?:to|and)\s+(\w+\s+\d{1,2},?\s+\d{4}|\w+\s+\d{4}|\d{1,2}/\d{1,2}/\d{4})`,
)
var yearPattern = regexp.MustCompile(`\b(?:from|in|during)\s+(\d{4})\b|\b(19\d{2}|20\d{2})\b`)
var relativeLastNRe = regexp.MustCompile(`(?i)last\s+(\d+)\s+(day|days|week|weeks|month|months)`)

// extractDateFilters implements spec §4.7's date cue stage, grounded on
// query_parser.rs's extract_date_filters.
func extractDateFilters(query string) (*DateRange, string, bool) {
	lower := strings.ToLower(query)
	cleaned := query
	var dr DateRange
	found := false
	now := time.Now()

	if loc := dateRangePhraseRe.FindStringIndex(lower); loc != nil {
		cleaned = strings.TrimSpace(dateRangePhraseRe.ReplaceAllString(cleaned, ""))
		found = true
	}

	for name, num := range monthNumbers {
		for _, prefix := range []string{"from " + name, "in " + name, "during " + name, name} {
			if !strings.Contains(lower, prefix) {
				continue
			}
			month := num
			dr.Month = &month
			year := now.Year()
			if m := regexp.MustCompile(regexp.QuoteMeta(name) + `\s+(\d{4})`).FindStringSubmatch(lower); m != nil {
				if y, err := strconv.Atoi(m[1]); err == nil && y >= 2000 && y <= 2100 {
					year = y
				}
			}
			dr.Year = &year
			start, end := monthBounds(year, month)
			dr.Start, dr.End = &start, &end
			cleaned = strings.TrimSpace(replaceFirst(cleaned, prefix, ""))
			found = true
			lower = strings.ToLower(cleaned)
			break
		}
		if dr.Month != nil {
			break
		}
	}

	if m := yearPattern.FindStringSubmatch(lower); m != nil {
		yearStr := m[1]
		if yearStr == "" {
			yearStr = m[2]
		}
		if y, err := strconv.Atoi(yearStr); err == nil && y >= 2000 && y <= 2100 {
			dr.Year = &y
			if dr.Month == nil {
				start, end := yearBounds(y)
				dr.Start, dr.End = &start, &end
			}
			cleaned = strings.TrimSpace(yearPattern.ReplaceAllString(cleaned, ""))
			found = true
			lower = strings.ToLower(cleaned)
		}
	}

	switch {
	case strings.Contains(lower, "today"):
		start := startOfDay(now).Unix()
		end := now.Unix()
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "today", ""))
		found = true
	case strings.Contains(lower, "yesterday"):
		y := now.AddDate(0, 0, -1)
		start := startOfDay(y).Unix()
		end := endOfDay(y).Unix()
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "yesterday", ""))
		found = true
	case strings.Contains(lower, "this week"):
		start := startOfWeek(now).Unix()
		end := now.Unix()
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "this week", ""))
		found = true
	case strings.Contains(lower, "last week"):
		weekStart := startOfWeek(now)
		lastWeekStart := weekStart.AddDate(0, 0, -7)
		lastWeekEnd := weekStart.AddDate(0, 0, -1)
		start := startOfDay(lastWeekStart).Unix()
		end := endOfDay(lastWeekEnd).Unix()
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "last week", ""))
		found = true
	case strings.Contains(lower, "this month"):
		month := int(now.Month())
		year := now.Year()
		start, _ := monthBounds(year, month)
		end := now.Unix()
		dr.Month, dr.Year = &month, &year
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "this month", ""))
		found = true
	case strings.Contains(lower, "last month"):
		lastMonth := int(now.Month()) - 1
		lastYear := now.Year()
		if lastMonth == 0 {
			lastMonth = 12
			lastYear--
		}
		start, end := monthBounds(lastYear, lastMonth)
		dr.Month, dr.Year = &lastMonth, &lastYear
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "last month", ""))
		found = true
	case strings.Contains(lower, "last year"):
		lastYear := now.Year() - 1
		start, end := yearBounds(lastYear)
		dr.Year = &lastYear
		dr.Start, dr.End = &start, &end
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, "last year", ""))
		found = true
	}

	if m := relativeLastNRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			var d time.Duration
			switch {
			case strings.HasPrefix(m[2], "day"):
				d = time.Duration(n) * 24 * time.Hour
			case strings.HasPrefix(m[2], "week"):
				d = time.Duration(n) * 7 * 24 * time.Hour
			case strings.HasPrefix(m[2], "month"):
				d = time.Duration(n) * 30 * 24 * time.Hour
			}
			start := now.Add(-d).Unix()
			end := now.Unix()
			dr.Start, dr.End = &start, &end
			cleaned = strings.TrimSpace(relativeLastNRe.ReplaceAllString(cleaned, ""))
			found = true
		}
	}

	if !found {
		return nil, query, false
	}
	return &dr, cleaned, true
}

func replaceFirst(s, old, new string) string {
	idx := strings.Index(strings.ToLower(s), strings.ToLower(old))
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday -> 7, so Monday-based week start matches original.
	}
	daysFromMonday := weekday - 1
	return startOfDay(t.AddDate(0, 0, -daysFromMonday))
}

func monthBounds(year, month int) (start, end int64) {
	s := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	e := s.AddDate(0, 1, 0).Add(-time.Second)
	return s.Unix(), e.Unix()
}

func yearBounds(year int) (start, end int64) {
	s := time.Date(year, 1, 1, 0, 0, 0, 0, time.Local)
	e := time.Date(year, 12, 31, 23, 59, 59, 0, time.Local)
	return s.Unix(), e.Unix()
}

// materializeDateRange builds a DateRange from an LLM-provided month/year,
// per spec §4.7's materialization rule.
func materializeDateRange(month, year *int) *DateRange {
	dr := &DateRange{Month: month, Year: year}
	if month != nil {
		y := now().Year()
		if year != nil {
			y = *year
		}
		start, end := monthBounds(y, *month)
		dr.Start, dr.End = &start, &end
	} else if year != nil {
		start, end := yearBounds(*year)
		dr.Start, dr.End = &start, &end
	}
	return dr
}

func now() time.Time { return time.Now() }

var fileTypePatterns = []struct {
	ext      string
	patterns []string
}{
	{"pdf", []string{"pdf", "pdf files", "pdf documents", "pdfs", ".pdf"}},
	{"docx", []string{"word", "word documents", "docx", "doc files", "documents", "microsoft word", "ms word", ".docx", ".doc"}},
	{"xlsx", []string{"excel", "spreadsheet", "spreadsheets", "xlsx", "xls files", "microsoft excel", "ms excel", ".xlsx", ".xls"}},
	{"txt", []string{"text files", "text", "txt files", "plain text", ".txt"}},
	{"jpg", []string{"images", "image", "pictures", "photos", "jpg", "jpeg", "png", "gif", "bmp", ".jpg", ".jpeg", ".png"}},
	{"mp4", []string{"videos", "video", "mp4", "movie", "movies", "avi", "mov", ".mp4", ".avi", ".mov"}},
	{"zip", []string{"zip", "zip files", "archives", "compressed", ".zip", ".rar", ".7z"}},
	{"mp3", []string{"audio", "music", "songs", "mp3", "sound", ".mp3", ".wav", ".flac"}},
	{"pptx", []string{"powerpoint", "presentation", "ppt", "pptx", ".pptx", ".ppt"}},
	{"csv", []string{"csv", "csv files", "comma separated", ".csv"}},
}

var explicitExtRe = regexp.MustCompile(`\.([a-z0-9]{2,4})\b`)

// extractFileTypes implements spec §4.7's file-type cue stage, grounded on
// query_parser.rs's extract_file_types.
func extractFileTypes(query string) ([]string, string, bool) {
	lower := strings.ToLower(query)
	cleaned := query
	var types []string

	for _, m := range explicitExtRe.FindAllStringSubmatch(lower, -1) {
		if !containsStr(types, m[1]) {
			types = append(types, m[1])
		}
	}

	for _, tp := range fileTypePatterns {
		for _, pattern := range tp.patterns {
			re := wordBoundaryRe(pattern)
			if !re.MatchString(lower) {
				continue
			}
			if !containsStr(types, tp.ext) {
				types = append(types, tp.ext)
			}
			cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
			lower = strings.ToLower(cleaned)
			break
		}
	}

	if len(types) == 0 {
		return nil, query, false
	}
	return types, cleaned, true
}

var folderPatterns = []struct {
	name     string
	patterns []string
}{
	{"Downloads", []string{"downloads", "download", "from downloads", "in downloads", "downloads folder", "download folder"}},
	{"Desktop", []string{"desktop", "from desktop", "in desktop", "desktop folder", "on desktop"}},
	{"Documents", []string{"documents", "document", "from documents", "in documents", "documents folder", "document folder", "my documents"}},
	{"Pictures", []string{"pictures", "picture", "photos", "images", "from pictures", "in pictures", "pictures folder"}},
	{"Music", []string{"music", "songs", "from music", "in music", "music folder"}},
	{"Videos", []string{"videos", "video", "from videos", "in videos", "videos folder"}},
}

var absolutePathRe = regexp.MustCompile(`([A-Z]:\\[^\s]+|/[^\s]+|~/[^\s]+)`)

// extractFolderPaths implements spec §4.7's folder cue stage, grounded on
// query_parser.rs's extract_folder_paths.
func extractFolderPaths(query string) ([]string, string, bool) {
	lower := strings.ToLower(query)
	cleaned := query
	var folders []string

	for _, m := range absolutePathRe.FindAllString(query, -1) {
		path := strings.TrimRight(m, `/\`)
		if !containsStr(folders, path) {
			folders = append(folders, path)
		}
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, m, ""))
	}

	for _, fp := range folderPatterns {
		for _, pattern := range fp.patterns {
			re := wordBoundaryRe(pattern)
			if !re.MatchString(lower) {
				continue
			}
			if !containsStr(folders, fp.name) {
				folders = append(folders, fp.name)
			}
			cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
			lower = strings.ToLower(cleaned)
			break
		}
	}

	if len(folders) == 0 {
		return nil, query, false
	}
	return folders, cleaned, true
}

func wordBoundaryRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(pattern) + `\b`)
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
