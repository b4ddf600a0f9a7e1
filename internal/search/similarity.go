package search

import (
	"math"
	"strings"
)

// cosineSimilarity implements spec §4.8's cosine metric, grounded on
// search.rs's cosine_similarity: dot/(‖a‖·‖b‖), 0 on mismatch or zero norm.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// filenameSimilarity implements spec §4.8's filename scoring tiers,
// grounded on search.rs's filename_similarity: exact match, prefix/substring
// match, then a word-level match ratio blended with a character similarity.
func filenameSimilarity(query, filename string) float32 {
	q := strings.ToLower(strings.TrimSpace(query))
	f := strings.ToLower(strings.TrimSpace(filename))
	if q == "" || f == "" {
		return 0
	}
	if q == f {
		return 1.0
	}
	if len(q) >= 4 && strings.Contains(f, q) {
		if strings.HasPrefix(f, q) {
			return 0.95
		}
		return 0.85
	}

	queryWords := strings.Fields(q)
	fileWords := strings.FieldsFunc(f, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})

	matched := 0
	total := 0
	for _, qw := range queryWords {
		if len(qw) < 3 {
			continue
		}
		total++
		for _, fw := range fileWords {
			if fw == qw {
				matched++
				break
			}
			if len(fw) <= len(qw)+2 && strings.Contains(fw, qw) {
				if strings.HasPrefix(fw, qw) || float64(len(qw))/float64(len(fw)) > 0.6 {
					matched++
					break
				}
			}
		}
	}

	if total == 0 || matched == 0 {
		return 0
	}

	wordRatio := float64(matched) / float64(total)
	charRatio := charSimilarity(q, f)
	return float32(wordRatio*0.8 + charRatio*0.2)
}

// charSimilarity approximates how much of query appears, in order, inside
// filename via a longest-common-subsequence approximation, normalized by
// the longer string's length. Grounded on search.rs's
// calculate_char_similarity: when the current query rune isn't at the
// current filename position, scan ahead in filename for it; if it never
// occurs again, give up on that one query rune and advance past it anyway
// so later query runes still get a chance to match.
func charSimilarity(query, filename string) float64 {
	qr := []rune(query)
	fr := []rune(filename)
	if len(qr) == 0 || len(fr) == 0 {
		return 0
	}

	matched := 0
	qi, fi := 0, 0
	for qi < len(qr) && fi < len(fr) {
		if qr[qi] == fr[fi] {
			matched++
			qi++
			fi++
			continue
		}

		found := false
		for i := fi; i < len(fr); i++ {
			if qr[qi] == fr[i] {
				matched++
				qi++
				fi = i + 1
				found = true
				break
			}
		}
		if !found {
			qi++
		}
	}

	longer := len(qr)
	if len(fr) > longer {
		longer = len(fr)
	}
	ratio := float64(matched) / float64(longer)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}

// hybridSimilarity combines vector and filename similarity with the
// query-shape-dependent weights SearchEngine computes.
func hybridSimilarity(vectorSim, filenameSim float32, vectorWeight, filenameWeight float64) float32 {
	return float32(float64(vectorSim)*vectorWeight + float64(filenameSim)*filenameWeight)
}

var semanticKeywords = []string{
	"calculus", "algebra", "geometry", "physics", "chemistry", "biology",
	"history", "literature", "philosophy", "psychology", "sociology",
	"programming", "algorithm", "database", "network", "security",
	"homework", "assignment", "project", "report", "essay", "thesis",
	"mathematics", "math", "science", "engineering", "computer",
}

func isSemanticKeyword(word string) bool {
	for _, kw := range semanticKeywords {
		if word == kw || strings.HasPrefix(word, kw) {
			return true
		}
	}
	return false
}

// hybridWeights determines (vectorWeight, filenameWeight) from query shape,
// per spec §4.8 step 5.
func hybridWeights(query string, filenameSim float32) (vectorWeight, filenameWeight float64) {
	lower := strings.ToLower(query)
	words := strings.Fields(lower)
	wordCount := len(words)
	hasExtension := strings.Contains(query, ".")
	isShort := len(query) < 20

	isFilenameQuery := hasExtension ||
		(wordCount > 1 && isShort && filenameSim > 0.7) ||
		(wordCount == 1 && !isSemanticKeyword(lower) && filenameSim > 0.8)

	if isFilenameQuery {
		return 0.3, 0.7
	}
	return 0.8, 0.2
}

// falsePositiveDampers applies spec §4.8 step 5's extra penalties that run
// after the weighted hybrid sum.
func falsePositiveDampers(hybrid, vectorSim, filenameSim float32, wordCount int) float32 {
	if filenameSim < 0.1 && vectorSim > 0.6 {
		hybrid *= 0.8
	}
	if wordCount == 1 && filenameSim < 0.3 {
		hybrid *= 0.85
	}
	return hybrid
}

// lengthSizePenalty implements spec §4.8 step 6.
func lengthSizePenalty(score float32, fileName string, fileSize int64, queryWordCount int) float32 {
	fileWords := strings.FieldsFunc(fileName, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	})
	fileWordCount := len(fileWords)

	switch fileWordCount {
	case 1:
		score *= 0.75
	case 2:
		score *= 0.85
	}

	switch {
	case fileSize < 100:
		score *= 0.85
	case fileSize < 500:
		score *= 0.92
	}

	if queryWordCount <= 2 && fileWordCount <= 2 {
		score *= 0.90
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
