package embedding

import (
	"context"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// EmbedWithRetry implements spec §4.5 step 5: on an oversize-context
// rejection (giserr.BadRequest from a provider) the call is retried with
// the input shrunk to 50% then 25% of its original character length before
// giving up. Any other error kind is returned immediately — shrinking
// input never helps a transport or backend failure.
func EmbedWithRetry(ctx context.Context, p Provider, text string) ([]float32, error) {
	v, err := p.EmbedSingle(ctx, text)
	if err == nil {
		return v, nil
	}
	if giserr.KindOf(err) != giserr.BadRequest {
		return nil, err
	}

	for _, fraction := range []float64{0.5, 0.25} {
		shrunk := shrinkToFraction(text, fraction)
		if shrunk == "" {
			continue
		}
		v, retryErr := p.EmbedSingle(ctx, shrunk)
		if retryErr == nil {
			return v, nil
		}
		if giserr.KindOf(retryErr) != giserr.BadRequest {
			return nil, retryErr
		}
		err = retryErr
	}
	return nil, err
}

func shrinkToFraction(text string, fraction float64) string {
	n := int(float64(len(text)) * fraction)
	if n <= 0 {
		return ""
	}
	if n > len(text) {
		n = len(text)
	}
	return text[:n]
}
