// Package embedding implements the EmbeddingClient contract (spec §4.2):
// turn a string into a fixed-dim vector via an external embedding service.
// Grounded on gavlooth-codeloom's internal/embedding package (Provider
// interface + factory), adapted to gist's error taxonomy and multi-provider
// set.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
)

// Provider is the EmbeddingClient contract. EmbedSingle fails with a
// giserr.Error whose Kind is Transient (network), BadRequest (the service
// refuses the input's size — spec's OversizeContext), or Upstream (other
// backend failure).
type Provider interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// NewProvider builds the configured provider. cfg.AIProvider selects among
// the four backends spec §6 exposes; embedding always runs over HTTP (no
// chat involved), so ollama/openai/greenpt all share the OpenAI-compatible
// and Ollama-native shapes, and gemini gets its own client.
func NewProvider(cfg *config.AppConfig) (Provider, error) {
	model := cfg.EmbeddingModel
	switch cfg.AIProvider {
	case config.ProviderOllama:
		return NewOllamaProvider(model, ""), nil
	case config.ProviderOpenAI:
		apiKey := ""
		if cfg.APIKey != nil {
			apiKey = *cfg.APIKey
		}
		return NewOpenAICompatProvider("openai", "https://api.openai.com/v1", apiKey, model, 1536), nil
	case config.ProviderGreenPT:
		apiKey := ""
		if cfg.APIKey != nil {
			apiKey = *cfg.APIKey
		}
		return NewOpenAICompatProvider("greenpt", "https://api.greenpt.ai/v1", apiKey, model, 1536), nil
	case config.ProviderGemini:
		apiKey := ""
		if cfg.APIKey != nil {
			apiKey = *cfg.APIKey
		}
		return NewGeminiProvider(apiKey, model), nil
	default:
		return nil, giserr.Newf(giserr.BadRequest, "unknown embedding provider: %s", cfg.AIProvider)
	}
}

// requireNonEmpty rejects blank input the same way every provider must,
// since an empty prompt is never a valid embedding request regardless of
// backend.
func requireNonEmpty(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", giserr.New(giserr.BadRequest, "cannot embed empty text")
	}
	return trimmed, nil
}

// embedConcurrently fans out EmbedSingle across texts with bounded
// concurrency, mirroring gavlooth-codeloom's Ollama Embed: partial results
// are returned alongside the first error unless every call failed.
func embedConcurrently(ctx context.Context, texts []string, maxConcurrency int, one func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, giserr.New(giserr.BadRequest, "cannot embed empty text list")
	}

	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, maxConcurrency)
	done := make(chan struct{}, len(texts))

	for i, text := range texts {
		go func(idx int, txt string) {
			defer func() { done <- struct{}{} }()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			default:
			}

			v, err := one(ctx, txt)
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = v
		}(i, text)
	}
	for range texts {
		<-done
	}

	var firstErr error
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("embed text %d: %w", i, err)
			}
		}
	}
	if failed == len(texts) {
		return nil, firstErr
	}
	if failed > 0 {
		return results, firstErr
	}
	return results, nil
}
