package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/httpclient"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider speaks Google's embedContent REST endpoint. Modeled after
// the same request/response shape gavlooth-codeloom's llm package uses for
// Gemini chat, adapted here for the embedding-specific route.
type GeminiProvider struct {
	apiKey string
	model  string
	dim    int
	client *http.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		dim:    768,
		client: httpclient.GetSharedClient(60 * time.Second),
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Dimension() int { return p.dim }

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

func (p *GeminiProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	text, err := requireNonEmpty(text)
	if err != nil {
		return nil, err
	}

	reqBody := geminiEmbedRequest{Content: geminiContent{Parts: []geminiPart{{Text: text}}}}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal gemini request", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", geminiBaseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build gemini request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "gemini embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.BadRequest, "gemini rejected input: %s: %s", resp.Status, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.Upstream, "gemini embedding error: %s: %s", resp.Status, string(raw))
	}

	var out geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, giserr.Wrap(giserr.Upstream, "decode gemini response", err)
	}
	p.dim = len(out.Embedding.Values)
	return out.Embedding.Values, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const geminiMaxConcurrency = 5
	return embedConcurrently(ctx, texts, geminiMaxConcurrency, p.EmbedSingle)
}
