package aichat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/httpclient"
)

const geminiChatBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider speaks Google's generateContent/streamGenerateContent REST
// routes, following the same request/response shape as
// gavlooth-codeloom's internal/llm/google.go (trimmed to text-only turns,
// no function calling — gist's answer synthesis is plain text).
type GeminiProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{apiKey: apiKey, model: model, client: httpclient.GetSharedClient(120 * time.Second)}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiChatPart struct {
	Text string `json:"text"`
}

type geminiChatContent struct {
	Role  string           `json:"role"`
	Parts []geminiChatPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents         []geminiChatContent   `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiChatContent `json:"content"`
	} `json:"candidates"`
}

// toGeminiContents maps system/user/assistant turns onto Gemini's
// user/model role pair, folding any system message into the first user
// turn since the REST API has no first-class system role for this model
// generation.
func toGeminiContents(messages []Message) []geminiChatContent {
	var system string
	var contents []geminiChatContent
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system += m.Content + "\n"
		case RoleAssistant:
			contents = append(contents, geminiChatContent{Role: "model", Parts: []geminiChatPart{{Text: m.Content}}})
		default:
			text := m.Content
			if system != "" {
				text = system + text
				system = ""
			}
			contents = append(contents, geminiChatContent{Role: "user", Parts: []geminiChatPart{{Text: text}}})
		}
	}
	return contents
}

func (p *GeminiProvider) Generate(ctx context.Context, messages []Message, opts ...Option) (string, error) {
	o := resolveOptions(opts)

	body, err := json.Marshal(geminiGenerateRequest{
		Contents:         toGeminiContents(messages),
		GenerationConfig: geminiGenerationConfig{Temperature: o.Temperature, MaxOutputTokens: o.MaxTokens},
	})
	if err != nil {
		return "", giserr.Wrap(giserr.Internal, "marshal gemini chat request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiChatBaseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", giserr.Wrap(giserr.Internal, "build gemini chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", giserr.Wrap(giserr.Transient, "gemini chat request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", giserr.Newf(giserr.Upstream, "gemini chat error: %s: %s", resp.Status, string(raw))
	}

	var out geminiGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", giserr.Wrap(giserr.Upstream, "decode gemini chat response", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", giserr.New(giserr.Upstream, "no chat candidates returned")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

func (p *GeminiProvider) Stream(ctx context.Context, messages []Message, opts ...Option) (<-chan string, error) {
	o := resolveOptions(opts)

	body, err := json.Marshal(geminiGenerateRequest{
		Contents:         toGeminiContents(messages),
		GenerationConfig: geminiGenerationConfig{Temperature: o.Temperature, MaxOutputTokens: o.MaxTokens},
	})
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "marshal gemini stream request", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", geminiChatBaseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, giserr.Wrap(giserr.Internal, "build gemini stream request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, giserr.Wrap(giserr.Transient, "gemini stream request", err)
	}

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, giserr.Newf(giserr.Upstream, "gemini stream error: %s: %s", resp.Status, string(raw))
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
			var chunk geminiGenerateResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
				continue
			}
			if len(chunk.Candidates) == 0 || len(chunk.Candidates[0].Content.Parts) == 0 {
				continue
			}
			select {
			case ch <- chunk.Candidates[0].Content.Parts[0].Text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
