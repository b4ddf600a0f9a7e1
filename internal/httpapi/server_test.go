package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Saurav-kan/gist/internal/ann/flatindex"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/indexer"
	"github.com/Saurav-kan/gist/internal/search"
	"github.com/Saurav-kan/gist/internal/storage"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, 4)
	for i, c := range []byte(text) {
		v[i%4] += float32(c)
	}
	return v, nil
}

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.EmbedSingle(ctx, t)
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 4 }
func (fakeEmbedder) Name() string   { return "fake" }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := storage.Open(filepath.Join(t.TempDir(), "data"), nil)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx := flatindex.New()
	cfg := config.Default()
	engine := search.New(st, idx, fakeEmbedder{}, cfg)
	parser := search.NewQueryParser(nil, "")
	ix := indexer.New(st, idx, fakeEmbedder{}, cfg, nil)

	return New(st, engine, parser, ix, nil, nil, cfg, nil)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleSearchEmptyQueryIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/search", map[string]any{"query": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["message"] == "" {
		t.Fatal("expected a message field on the error envelope")
	}
}

func TestHandleSearchParseExtractsFileType(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/search/parse", map[string]any{"query": "find my pdf files about taxes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var parsed search.ParsedQuery
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(parsed.Filters.FileTypes) != 1 || parsed.Filters.FileTypes[0] != "pdf" {
		t.Fatalf("expected pdf file type extracted, got %v", parsed.Filters.FileTypes)
	}
}

func TestHandleGetSettingsRedactsAPIKey(t *testing.T) {
	s := newTestServer(t)
	key := "super-secret"
	s.cfg.APIKey = &key

	rec := doRequest(t, s, http.MethodGet, "/api/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("super-secret")) {
		t.Fatal("expected api_key to never be echoed back")
	}
	var view settingsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !view.HasAPIKey {
		t.Fatal("expected has_api_key to reflect that a key is configured")
	}
}

func TestHandlePutSettingsUpdatesMaxSearchResultsClamped(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/api/settings", map[string]any{"max_search_results": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if s.cfg.MaxSearchResults != 10 {
		t.Fatalf("expected clamp to the 10-200 bound, got %d", s.cfg.MaxSearchResults)
	}
}

func TestHandleIndexStatusReportsIdleByDefault(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/index/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status indexStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if status.Running {
		t.Fatal("expected idle indexer to report running=false")
	}
}

func TestHandleIndexStartRejectsMissingPath(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/index/start", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleAISummarizeReportsDisabledWithoutError(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/ai/summarize", map[string]any{"file_path": "/tmp/doesnotmatter.txt"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (AI failures are reported in-body, not via status), got %d", rec.Code)
	}
	var result summarizeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.Success {
		t.Fatal("expected success=false when AI features are disabled")
	}
}
