// Package mock provides a test double for the embeddings.Provider interface.
//
// Provider is deterministic by default: unless a canned result is set, each
// text hashes to a stable unit vector, so retrieval tests get consistent
// similarities without a live model (identical texts embed identically).
//
// Example:
//
//	p := mock.NewProvider(8)
//	vec, _ := p.Embed(ctx, "the tomb door opens")
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/loremaster-ai/loremaster/pkg/provider/embeddings"
)

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Text is the string passed to Embed.
	Text string
}

// EmbedBatchCall records a single invocation of EmbedBatch.
type EmbedBatchCall struct {
	// Texts is a copy of the string slice passed to EmbedBatch.
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// ── Configurable responses ───────────────────────────────────────────

	// EmbedResult, when non-nil, is returned by Embed instead of the
	// deterministic hash vector.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedBatchErr, if non-nil, is returned as the error from EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions and sizes hash vectors.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// ── Call records ─────────────────────────────────────────────────────

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every call to EmbedBatch in order.
	EmbedBatchCalls []EmbedBatchCall
}

// NewProvider returns a deterministic mock producing vectors of the given
// dimension.
func NewProvider(dimensions int) *Provider {
	return &Provider{
		DimensionsValue: dimensions,
		ModelIDValue:    "mock-embed",
	}
}

// Embed records the call and returns EmbedResult or a hash vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedResult != nil {
		return p.EmbedResult, nil
	}
	return hashVector(text, p.DimensionsValue), nil
}

// EmbedBatch records the call and returns one vector per input text.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Texts: cp})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		if p.EmbedResult != nil {
			result[i] = p.EmbedResult
			continue
		}
		result[i] = hashVector(text, p.DimensionsValue)
	}
	return result, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.EmbedBatchCalls = nil
}

// hashVector maps text to a stable unit vector of the given dimension.
func hashVector(text string, dims int) []float32 {
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	var norm float64
	for i := range vec {
		// xorshift keeps the sequence deterministic per seed.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
