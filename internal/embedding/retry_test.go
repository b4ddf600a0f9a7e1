package embedding

import (
	"context"
	"testing"

	"github.com/Saurav-kan/gist/internal/giserr"
)

type fakeProvider struct {
	// minLen is the longest input this provider accepts; anything longer
	// returns OversizeContext (giserr.BadRequest).
	minLen int
	calls  []string
}

func (f *fakeProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	f.calls = append(f.calls, text)
	if len(text) > f.minLen {
		return nil, giserr.New(giserr.BadRequest, "oversize context")
	}
	return []float32{1, 2, 3}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	panic("unused")
}
func (f *fakeProvider) Dimension() int { return 3 }
func (f *fakeProvider) Name() string   { return "fake" }

func TestEmbedWithRetryShrinksOnOversize(t *testing.T) {
	text := make([]byte, 1000)
	for i := range text {
		text[i] = 'a'
	}
	p := &fakeProvider{minLen: 300} // accepts only the 25% shrink (250 chars... wait 1000*0.25=250<300)
	_, err := EmbedWithRetry(context.Background(), p, string(text))
	if err != nil {
		t.Fatalf("expected success after shrink, got %v", err)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 calls (full, 50%%, 25%%), got %d", len(p.calls))
	}
}

func TestEmbedWithRetryGivesUpAfterBothShrinks(t *testing.T) {
	text := make([]byte, 1000)
	for i := range text {
		text[i] = 'a'
	}
	p := &fakeProvider{minLen: 10}
	_, err := EmbedWithRetry(context.Background(), p, string(text))
	if giserr.KindOf(err) != giserr.BadRequest {
		t.Fatalf("expected BadRequest after exhausting retries, got %v", err)
	}
	if len(p.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(p.calls))
	}
}

func TestEmbedWithRetryNonOversizeFailsImmediately(t *testing.T) {
	p := &transientProvider{}
	_, err := EmbedWithRetry(context.Background(), p, "hello")
	if giserr.KindOf(err) != giserr.Transient {
		t.Fatalf("expected Transient error passed through, got %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", p.calls)
	}
}

type transientProvider struct{ calls int }

func (p *transientProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return nil, giserr.New(giserr.Transient, "network down")
}
func (p *transientProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	panic("unused")
}
func (p *transientProvider) Dimension() int { return 3 }
func (p *transientProvider) Name() string   { return "transient" }
