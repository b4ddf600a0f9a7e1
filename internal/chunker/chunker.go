// Package chunker implements spec §4.5 step 4's word-chunking primitive:
// splitting extracted file text into fixed-size word groups that the
// indexer then samples or sections according to how large the file is
// relative to the configured context budget. Grounded on original_source's
// indexer.rs chunk_text (split on whitespace, group into chunk_size-word
// slices, join with a single space) rather than the teacher's byte-offset
// paragraph/line/space splitter, since the spec's chunking unit is words,
// not semantic byte boundaries.
package chunker

import "strings"

// WordChunks splits text on whitespace and groups the resulting words into
// chunks of wordsPerChunk words each, joined back with single spaces. The
// final chunk may be shorter than wordsPerChunk. An empty or all-whitespace
// text yields no chunks.
func WordChunks(text string, wordsPerChunk int) []string {
	if wordsPerChunk <= 0 {
		wordsPerChunk = 200
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	chunks := make([]string, 0, (len(words)+wordsPerChunk-1)/wordsPerChunk)
	for start := 0; start < len(words); start += wordsPerChunk {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// EstimateTokens approximates a token count from character length, the
// chars/4 heuristic spec §4.5 step 4 specifies.
func EstimateTokens(text string) int {
	return len(text) / 4
}
