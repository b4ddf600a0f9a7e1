package aichat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/httpclient"
)

// OpenAICompatProvider speaks the OpenAI /v1/chat/completions wire format
// (including its text/event-stream SSE variant), which GreenPT and a
// self-hosted OpenAI-compatible gateway both implement. Plain net/http
// rather than the go-openai SDK, for the same reason as embedding's
// OpenAICompatProvider — see DESIGN.md.
type OpenAICompatProvider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAICompatProvider(name, baseURL, apiKey, model string) *OpenAICompatProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAICompatProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  httpclient.GetSharedClient(120 * time.Second),
	}
}

func (p *OpenAICompatProvider) Name() string { return p.name }

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float32             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Stream      bool                `json:"stream"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
		Delta   openAIChatMessage `json:"delta"`
	} `json:"choices"`
}

func toOpenAIMessages(messages []Message) []openAIChatMessage {
	out := make([]openAIChatMessage, len(messages))
	for i, m := range messages {
		out[i] = openAIChatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func (p *OpenAICompatProvider) newRequest(ctx context.Context, stream bool, messages []Message, o GenerateOptions) (*http.Request, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}

func (p *OpenAICompatProvider) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	req, err := p.newRequest(ctx, false, messages, resolveOptions(opts))
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", giserr.Wrap(giserr.Transient, p.name+" chat request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", giserr.Newf(giserr.Upstream, "%s chat error: %s: %s", p.name, resp.Status, string(raw))
	}

	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", giserr.Wrap(giserr.Upstream, "decode "+p.name+" chat response", err)
	}
	if len(out.Choices) == 0 {
		return "", giserr.New(giserr.Upstream, "no chat completion choices returned")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream issues a server-sent-events chat completion and forwards each
// delta's content fragment, stopping at the "[DONE]" sentinel the OpenAI
// wire format uses to mark stream end.
func (p *OpenAICompatProvider) Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan string, error) {
	req, err := p.newRequest(ctx, true, messages, resolveOptions(opts))
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, p.name+" stream request", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, giserr.Newf(giserr.Upstream, "%s stream error: %s: %s", p.name, resp.Status, string(raw))
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

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var chunk openAIChatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- chunk.Choices[0].Delta.Content:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
