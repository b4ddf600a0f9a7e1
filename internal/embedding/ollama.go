package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/httpclient"
)

const ollamaMaxConcurrency = 10

// OllamaProvider talks to a local Ollama daemon's /api/embeddings endpoint,
// grounded on gavlooth-codeloom's internal/embedding/ollama.go.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
	// dim is learned from the first successful response, since Ollama's
	// embedding endpoint does not advertise a fixed dimension up front.
	dim int
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// NewOllamaProvider builds a provider against baseURL (defaulting to the
// local daemon if empty) for the given model.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "all-minilm"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client:  httpclient.GetSharedClient(60 * time.Second),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Dimension() int { return p.dim }

func (p *OllamaProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	text, err := requireNonEmpty(text)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal ollama request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "ollama embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.BadRequest, "ollama rejected input: %s: %s", resp.Status, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.Upstream, "ollama embedding error: %s: %s", resp.Status, string(raw))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, giserr.Wrap(giserr.Upstream, "decode ollama response", err)
	}
	if p.dim == 0 {
		p.dim = len(out.Embedding)
	}
	return out.Embedding, nil
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return embedConcurrently(ctx, texts, ollamaMaxConcurrency, p.EmbedSingle)
}
