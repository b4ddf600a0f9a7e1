package aichat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/httpclient"
)

// OllamaProvider talks to a local Ollama daemon's /api/chat endpoint,
// grounded on gavlooth-codeloom's internal/llm/ollama.go.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		client:  httpclient.GetSharedClient(120 * time.Second),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaChatOptions   `json:"options,omitempty"`
}

type ollamaChatOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

func toOllamaMessages(messages []Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, len(messages))
	for i, m := range messages {
		out[i] = ollamaChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	o := resolveOptions(opts)

	req := ollamaChatRequest{
		Model:    p.model,
		Messages: toOllamaMessages(messages),
		Stream:   false,
		Options:  ollamaChatOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", giserr.Wrap(giserr.Internal, "marshal ollama chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", giserr.Wrap(giserr.Internal, "build ollama chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", giserr.Wrap(giserr.Transient, "ollama chat request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", giserr.Newf(giserr.Upstream, "ollama chat error: %s: %s", resp.Status, string(raw))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", giserr.Wrap(giserr.Upstream, "decode ollama chat response", err)
	}
	return out.Message.Content, nil
}

func (p *OllamaProvider) Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan string, error) {
	o := resolveOptions(opts)

	req := ollamaChatRequest{
		Model:    p.model,
		Messages: toOllamaMessages(messages),
		Stream:   true,
		Options:  ollamaChatOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal ollama stream request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build ollama stream request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "ollama stream request", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, giserr.Newf(giserr.Upstream, "ollama stream error: %s: %s", resp.Status, string(raw))
	}

	ch := make(chan string, 100)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				select {
				case ch <- chunk.Message.Content:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()
	return ch, nil
}
