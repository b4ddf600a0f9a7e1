package search

import (
	"context"
	"testing"

	"github.com/Saurav-kan/gist/internal/aichat"
)

func TestParsePatternOnlyExtractsFileType(t *testing.T) {
	p := NewQueryParser(nil, "")
	parsed := p.ParsePatternOnly("find my pdf files about taxes")
	if len(parsed.Filters.FileTypes) != 1 || parsed.Filters.FileTypes[0] != "pdf" {
		t.Fatalf("expected pdf file type extracted, got %v", parsed.Filters.FileTypes)
	}
	if parsed.Query == "" {
		t.Fatal("expected residual query text to survive")
	}
}

func TestParsePatternOnlyExtractsFolder(t *testing.T) {
	p := NewQueryParser(nil, "")
	parsed := p.ParsePatternOnly("budget spreadsheet in downloads")
	if len(parsed.Filters.FolderPaths) != 1 || parsed.Filters.FolderPaths[0] != "Downloads" {
		t.Fatalf("expected Downloads folder extracted, got %v", parsed.Filters.FolderPaths)
	}
}

func TestParsePatternOnlyExtractsMonth(t *testing.T) {
	p := NewQueryParser(nil, "")
	parsed := p.ParsePatternOnly("invoices from december 2023")
	if parsed.Filters.DateRange == nil {
		t.Fatal("expected a date range to be extracted")
	}
	if parsed.Filters.DateRange.Month == nil || *parsed.Filters.DateRange.Month != 12 {
		t.Fatalf("expected month=12, got %v", parsed.Filters.DateRange.Month)
	}
	if parsed.Filters.DateRange.Year == nil || *parsed.Filters.DateRange.Year != 2023 {
		t.Fatalf("expected year=2023, got %v", parsed.Filters.DateRange.Year)
	}
}

func TestParseNoFiltersLeavesQueryUntouched(t *testing.T) {
	p := NewQueryParser(nil, "")
	parsed := p.Parse(context.Background(), "machine learning")
	if !parsed.Filters.isEmpty() {
		t.Fatalf("expected no filters, got %+v", parsed.Filters)
	}
	if parsed.Query != "machine learning" {
		t.Fatalf("expected query unchanged, got %q", parsed.Query)
	}
}

func TestShouldTryLLMSkipsShortQueries(t *testing.T) {
	if shouldTryLLM("pdf") {
		t.Fatal("expected single-word query to skip LLM")
	}
	if shouldTryLLM("tax pdf") {
		t.Fatal("expected two-word query to skip LLM")
	}
}

func TestShouldTryLLMAcceptsComplexQuery(t *testing.T) {
	q := "find documents with tax information from last month containing receipts"
	if !shouldTryLLM(q) {
		t.Fatalf("expected complex query to clear threshold, score=%v", complexityScore(q))
	}
}

type fakeChatProvider struct {
	response string
	err      error
}

func (f *fakeChatProvider) Generate(ctx context.Context, messages []aichat.Message, opts ...aichat.Option) (string, error) {
	return f.response, f.err
}

func (f *fakeChatProvider) Stream(ctx context.Context, messages []aichat.Message, opts ...aichat.Option) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func (f *fakeChatProvider) Name() string { return "fake" }

func TestParseLLMFallbackOnComplexQuery(t *testing.T) {
	chat := &fakeChatProvider{response: `{"search_query": "grading criteria", "date_filter": null, "file_types": ["xlsx"], "folder_paths": null}`}
	p := NewQueryParser(chat, "fake-model")

	query := "explain the assignment requirements and grading criteria thoroughly"
	if shouldTryLLM(query) == false {
		t.Fatalf("expected complexity score to clear threshold, got %v", complexityScore(query))
	}

	parsed := p.Parse(context.Background(), query)
	if parsed.Query != "grading criteria" {
		t.Fatalf("expected LLM search_query to win, got %q", parsed.Query)
	}
	if len(parsed.Filters.FileTypes) != 1 || parsed.Filters.FileTypes[0] != "xlsx" {
		t.Fatalf("expected xlsx file type from LLM, got %v", parsed.Filters.FileTypes)
	}
}

func TestParseLLMDateSafetyGuardDiscardsHallucination(t *testing.T) {
	chat := &fakeChatProvider{response: `{"search_query": "budget notes", "date_filter": {"month": 6, "year": 2024}, "file_types": null, "folder_paths": null}`}
	p := NewQueryParser(chat, "fake-model")

	// Query has no date token at all, so the LLM's date_filter must be discarded.
	parsed, err := p.parseWithLLM(context.Background(), "budget notes with important criteria thoroughly explained")
	if err != nil {
		t.Fatalf("parseWithLLM: %v", err)
	}
	if parsed.Filters.DateRange != nil {
		t.Fatalf("expected hallucinated date filter to be discarded, got %+v", parsed.Filters.DateRange)
	}
}
