// Package aichat implements the AIChatClient contract (spec §4.9/§31):
// an abstraction over multi-provider chat completion used by the optional
// /api/ai/{summarize,chat} answer-synthesis endpoints and nothing else in
// the core search path — a chat failure must never propagate into a
// search request. Grounded on gavlooth-codeloom's internal/llm package.
package aichat

import (
	"context"

	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
)

// Role mirrors gavlooth-codeloom's llm.Role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a chat completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions tunes a single Generate/Stream call.
type GenerateOptions struct {
	Temperature float32
	MaxTokens   int
}

// Option mutates GenerateOptions, following the functional-options pattern
// gavlooth-codeloom's llm package uses.
type Option func(*GenerateOptions)

func WithTemperature(t float32) Option { return func(o *GenerateOptions) { o.Temperature = t } }
func WithMaxTokens(n int) Option       { return func(o *GenerateOptions) { o.MaxTokens = n } }

// Provider is the AIChatClient contract: a single-shot Generate and a
// streaming variant for the answer-synthesis endpoints.
type Provider interface {
	Generate(ctx context.Context, messages []Message, opts ...Option) (string, error)
	Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan string, error)
	Name() string
}

// NewProvider builds the configured chat provider. Unlike embedding.NewProvider
// this is only constructed when cfg.AIFeaturesEnabled is true — callers must
// check that flag before wiring a Provider into the HTTP API or CLI.
func NewProvider(cfg *config.AppConfig) (Provider, error) {
	apiKey := ""
	if cfg.APIKey != nil {
		apiKey = *cfg.APIKey
	}

	switch cfg.AIProvider {
	case config.ProviderOllama:
		model := ""
		if cfg.OllamaModel != nil {
			model = *cfg.OllamaModel
		}
		return NewOllamaProvider(model, ""), nil
	case config.ProviderOpenAI:
		return NewOpenAICompatProvider("openai", "https://api.openai.com/v1", apiKey, "gpt-4o-mini"), nil
	case config.ProviderGreenPT:
		return NewOpenAICompatProvider("greenpt", "https://api.greenpt.ai/v1", apiKey, "greenpt-chat"), nil
	case config.ProviderGemini:
		model := ""
		if cfg.GeminiModel != nil {
			model = *cfg.GeminiModel
		}
		return NewGeminiProvider(apiKey, model), nil
	default:
		return nil, giserr.Newf(giserr.BadRequest, "unknown chat provider: %s", cfg.AIProvider)
	}
}

func resolveOptions(opts []Option) GenerateOptions {
	o := GenerateOptions{Temperature: 0.3, MaxTokens: 1024}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
