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

// OpenAICompatProvider speaks the OpenAI /v1/embeddings wire format, which
// GreenPT and a self-hosted OpenAI-compatible gateway both implement. Kept
// as plain net/http rather than the go-openai SDK gavlooth-codeloom uses,
// since gist's chat/embedding surface is narrow enough that one small HTTP
// client covers every OpenAI-shaped backend without an extra dependency.
type OpenAICompatProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewOpenAICompatProvider builds a provider named name (used for logging
// and Provider.Name()) against baseURL with the given default dimension
// hint (overwritten once a real response is seen).
func NewOpenAICompatProvider(name, baseURL, apiKey, model string, defaultDim int) *OpenAICompatProvider {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAICompatProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dim:     defaultDim,
		client:  httpclient.GetSharedClient(60 * time.Second),
	}
}

func (p *OpenAICompatProvider) Name() string { return p.name }

func (p *OpenAICompatProvider) Dimension() int { return p.dim }

func (p *OpenAICompatProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *OpenAICompatProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, giserr.New(giserr.BadRequest, "cannot embed empty text list")
	}
	for i, t := range texts {
		trimmed, err := requireNonEmpty(t)
		if err != nil {
			return nil, err
		}
		texts[i] = trimmed
	}

	body, err := json.Marshal(openAIEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, p.name+" embedding request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge || resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.BadRequest, "%s rejected input: %s: %s", p.name, resp.Status, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, giserr.Newf(giserr.Upstream, "%s embedding error: %s: %s", p.name, resp.Status, string(raw))
	}

	var out openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, giserr.Wrap(giserr.Upstream, "decode "+p.name+" response", err)
	}

	vecs := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vecs[i] = d.Embedding
	}
	if len(vecs) > 0 {
		p.dim = len(vecs[0])
	}
	return vecs, nil
}
