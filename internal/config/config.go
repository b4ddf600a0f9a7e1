// Package config loads and persists gist's AppConfig, the single
// process-wide settings object exposed through /api/settings and read at
// startup by the CLI and the HTTP server alike.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PerformanceMode selects the default embedding model tier.
type PerformanceMode string

const (
	Lightweight PerformanceMode = "lightweight"
	Normal      PerformanceMode = "normal"
)

// AIProvider selects the backend used for optional chat/synthesis features.
type AIProvider string

const (
	ProviderOllama  AIProvider = "ollama"
	ProviderOpenAI  AIProvider = "openai"
	ProviderGreenPT AIProvider = "greenpt"
	ProviderGemini  AIProvider = "gemini"
)

// FileTypeFilters controls which parsers the indexer exercises and a global
// extension blacklist applied regardless of search filters.
type FileTypeFilters struct {
	IncludePDF          bool     `json:"include_pdf"`
	IncludeDocx         bool     `json:"include_docx"`
	IncludeText         bool     `json:"include_text"`
	IncludeXlsx         bool     `json:"include_xlsx"`
	ExcludedExtensions  []string `json:"excluded_extensions"`
}

// AppConfig is the full persisted settings object, per spec §6.
type AppConfig struct {
	PerformanceMode      PerformanceMode `json:"performance_mode"`
	EmbeddingModel       string          `json:"embedding_model"`
	IndexedDirectories   []string        `json:"indexed_directories"`
	FileTypeFilters      FileTypeFilters `json:"file_type_filters"`
	ChunkSize            int             `json:"chunk_size"`
	MaxContextTokens     int             `json:"max_context_tokens"`
	AutoIndex            bool            `json:"auto_index"`
	MaxSearchResults     int             `json:"max_search_results"`
	FilterDuplicateFiles bool            `json:"filter_duplicate_files"`
	AIFeaturesEnabled    bool            `json:"ai_features_enabled"`
	AIProvider           AIProvider      `json:"ai_provider"`
	OllamaModel          *string         `json:"ollama_model,omitempty"`
	GeminiModel          *string         `json:"gemini_model,omitempty"`
	APIKey               *string         `json:"api_key,omitempty"`
}

// Default returns the out-of-the-box configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		PerformanceMode:    Lightweight,
		IndexedDirectories: []string{},
		FileTypeFilters: FileTypeFilters{
			IncludePDF:         true,
			IncludeDocx:        true,
			IncludeText:        true,
			IncludeXlsx:        true,
			ExcludedExtensions: []string{},
		},
		ChunkSize:            200,
		MaxContextTokens:     1500,
		AutoIndex:            true,
		MaxSearchResults:     50,
		FilterDuplicateFiles: true,
		AIFeaturesEnabled:    false,
		AIProvider:           ProviderOllama,
	}
	cfg.updateModelForMode()
	return cfg
}

// updateModelForMode sets the embedding model name from performance mode,
// mirroring original_source's update_model_for_mode. It always overwrites
// EmbeddingModel: a model name stored in config.json is kept as loaded
// (LoadOrDefault does not call this), but every SetPerformanceMode call
// replaces it with the mode's model.
func (c *AppConfig) updateModelForMode() {
	switch c.PerformanceMode {
	case Normal:
		c.EmbeddingModel = "embeddinggemma"
	default:
		c.EmbeddingModel = "all-minilm"
	}
}

// SetPerformanceMode changes the mode and re-derives the embedding model.
func (c *AppConfig) SetPerformanceMode(mode PerformanceMode) {
	c.PerformanceMode = mode
	c.updateModelForMode()
}

// Dir returns the per-user gist config directory, ~/.gist.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".gist"), nil
}

func path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadOrDefault reads config.json, falling back to Default() if it does not
// yet exist.
func LoadOrDefault() (*AppConfig, error) {
	p, err := path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes config.json as pretty-printed JSON, creating the config
// directory if needed.
func (c *AppConfig) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ClampMaxContextTokens enforces the 500-8000 bound from spec §6.
func ClampMaxContextTokens(v int) int {
	if v < 500 {
		return 500
	}
	if v > 8000 {
		return 8000
	}
	return v
}

// ClampMaxSearchResults enforces the 10-200 bound from spec §6.
func ClampMaxSearchResults(v int) int {
	if v < 10 {
		return 10
	}
	if v > 200 {
		return 200
	}
	return v
}

// DataDir returns ~/.gist/data, where the metadata DB and embeddings blob live.
func DataDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}
