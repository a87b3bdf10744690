package resilience

import (
	"context"

	"github.com/loremaster-ai/loremaster/pkg/provider/embeddings"
	"github.com/loremaster-ai/loremaster/pkg/provider/llm"
)

// Generator is an [llm.Provider] with failover across multiple backends.
type Generator struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*Generator)(nil)

// NewGenerator wraps primary as the preferred generator backend.
func NewGenerator(primaryName string, primary llm.Provider, cfg BreakerConfig) *Generator {
	return &Generator{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback registers an additional generator backend.
func (g *Generator) AddFallback(name string, provider llm.Provider) {
	g.chain.Add(name, provider)
}

// Complete asks the first healthy backend for a full response.
func (g *Generator) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Try(g.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a stream on the first healthy backend. Failover
// covers only the initial connection; once chunks flow, mid-stream errors
// belong to the caller.
func (g *Generator) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Try(g.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens counts on the first healthy backend.
func (g *Generator) CountTokens(messages []llm.Message) (int, error) {
	return Try(g.chain, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary's capabilities. Static metadata does
// not fail over: the prompt budget must stay stable across a turn.
func (g *Generator) Capabilities() llm.ModelCapabilities {
	return g.chain.Primary().Capabilities()
}

// Embedder is an [embeddings.Provider] with failover. All backends must
// produce vectors of the same dimension, or retrieval similarity becomes
// meaningless.
type Embedder struct {
	chain *Chain[embeddings.Provider]
}

var _ embeddings.Provider = (*Embedder)(nil)

// NewEmbedder wraps primary as the preferred embedding backend.
func NewEmbedder(primaryName string, primary embeddings.Provider, cfg BreakerConfig) *Embedder {
	return &Embedder{chain: NewChain(primaryName, primary, cfg)}
}

// AddFallback registers an additional embedding backend.
func (e *Embedder) AddFallback(name string, provider embeddings.Provider) {
	e.chain.Add(name, provider)
}

// Embed embeds text on the first healthy backend.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return Try(e.chain, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch embeds texts on the first healthy backend.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return Try(e.chain, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions reports the primary's vector dimension.
func (e *Embedder) Dimensions() int {
	return e.chain.Primary().Dimensions()
}

// ModelID reports the primary's model identifier.
func (e *Embedder) ModelID() string {
	return e.chain.Primary().ModelID()
}
