package chunker

import (
	"strings"
	"testing"
)

func TestWordChunksSplitsOnWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 450) // 450 words
	chunks := WordChunks(text, 200)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks (200+200+50), got %d", len(chunks))
	}
	for i, c := range chunks[:2] {
		if got := len(strings.Fields(c)); got != 200 {
			t.Errorf("chunk %d: expected 200 words, got %d", i, got)
		}
	}
	if got := len(strings.Fields(chunks[2])); got != 50 {
		t.Errorf("final chunk: expected 50 words, got %d", got)
	}
}

func TestWordChunksEmptyText(t *testing.T) {
	if chunks := WordChunks("   \n\t  ", 200); chunks != nil {
		t.Fatalf("expected nil for whitespace-only text, got %v", chunks)
	}
}

func TestWordChunksDefaultsWhenSizeNonPositive(t *testing.T) {
	text := strings.Repeat("word ", 10)
	chunks := WordChunks(text, 0)
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk under default size, got %d", len(chunks))
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Fatalf("expected 2 tokens for 8 chars, got %d", got)
	}
}
