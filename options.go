package auditrag

import (
	"log/slog"

	"github.com/brunobiangulo/auditrag/llm"
	"github.com/brunobiangulo/auditrag/retrieval"
)

// Option configures the Engine at construction time.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEmbedder sets the embedding provider. Required.
func WithEmbedder(p llm.EmbeddingProvider) Option {
	return func(e *Engine) { e.embedder = p }
}

// WithReranker sets the rerank provider. Without one, plans that request
// reranking fail.
func WithReranker(p llm.RerankProvider) Option {
	return func(e *Engine) { e.reranker = p }
}

// WithIntentClassifier sets the query intent classifier. Without one,
// every query routes to the default plan.
func WithIntentClassifier(p llm.IntentClassifier) Option {
	return func(e *Engine) { e.classifier = p }
}

// WithAnswerGenerator sets the generation capability used by Answer.
func WithAnswerGenerator(p llm.AnswerGenerator) Option {
	return func(e *Engine) { e.generator = p }
}

// ---------------------------------------------------------------------------
// Per-call options
// ---------------------------------------------------------------------------

// IngestOption configures one Ingest call.
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	rebuildGraph bool
}

func defaultIngestOptions() ingestOptions {
	return ingestOptions{rebuildGraph: true}
}

// WithoutGraphRebuild skips the automatic graph rebuild after the batch.
// Use it when ingesting several batches back to back, then call
// RebuildGraph once.
func WithoutGraphRebuild() IngestOption {
	return func(o *ingestOptions) { o.rebuildGraph = false }
}

// SearchOption overrides one routed retrieval parameter. Overrides always
// win over the intent classifier's suggestions.
type SearchOption func(*retrieval.Overrides)

// WithTopK overrides the number of results.
func WithTopK(k int) SearchOption {
	return func(o *retrieval.Overrides) { o.TopK = k }
}

// WithDocTypes restricts results to the given document types.
func WithDocTypes(types ...string) SearchOption {
	return func(o *retrieval.Overrides) { o.DocTypes = types }
}

// WithMode forces the retrieval mode: vector, graph or hybrid.
func WithMode(mode string) SearchOption {
	return func(o *retrieval.Overrides) { o.Mode = mode }
}

// WithGraphHops overrides the graph traversal depth.
func WithGraphHops(hops int) SearchOption {
	return func(o *retrieval.Overrides) { o.GraphHops = hops }
}

// WithGraphTopK overrides the graph result breadth.
func WithGraphTopK(k int) SearchOption {
	return func(o *retrieval.Overrides) { o.GraphTopK = k }
}

// WithHybridAlpha overrides the vector/graph fusion weight. 1 is pure
// vector, 0 is pure graph.
func WithHybridAlpha(alpha float64) SearchOption {
	return func(o *retrieval.Overrides) { o.HybridAlpha = &alpha }
}

// WithRerank toggles reranking for this query.
func WithRerank(enabled bool) SearchOption {
	return func(o *retrieval.Overrides) { o.UseRerank = &enabled }
}
