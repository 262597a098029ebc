// Package llm defines the model-facing capability interfaces the engine
// depends on: embedding, reranking, intent classification, and answer
// generation. Implementations talk to an OpenAI-compatible HTTP endpoint;
// callers may substitute their own.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/brunobiangulo/auditrag/chunker"
)

var (
	// ErrEmptyInput means the caller passed no texts or documents.
	ErrEmptyInput = errors.New("llm: empty input")

	// ErrBadResponse means the provider answered with a payload we could
	// not map back onto the request.
	ErrBadResponse = errors.New("llm: malformed provider response")
)

// EmbeddingProvider turns texts into dense vectors. Implementations must
// return one vector per input text, in input order, and are expected to
// batch internally when the provider caps request sizes.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankResult is one scored document from a rerank call. Index refers to
// the position in the documents slice passed to Rerank.
type RerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// RerankProvider re-scores candidate documents against a query. Results
// come back sorted by Score descending, at most topN of them.
type RerankProvider interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}

// Intent is the classifier's reading of a user query. Zero values mean
// the classifier expressed no preference and the router's defaults apply;
// the two pointer fields distinguish "unset" from a deliberate zero.
type Intent struct {
	Intent        string   `json:"intent"`
	Reason        string   `json:"reason,omitempty"`
	DocTypes      []string `json:"doc_types,omitempty"`
	RetrievalMode string   `json:"retrieval_mode,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	GraphHops     int      `json:"graph_hops,omitempty"`
	GraphTopK     int      `json:"graph_top_k,omitempty"`
	UseGraph      *bool    `json:"use_graph,omitempty"`
	UseRerank     *bool    `json:"use_rerank,omitempty"`
	HybridAlpha   *float64 `json:"hybrid_alpha,omitempty"`
}

// IntentClassifier maps a free-form query to an Intent. A nil Intent with
// a nil error is not allowed; classification failures surface as errors
// and the caller falls back to defaults.
type IntentClassifier interface {
	DetectIntent(ctx context.Context, query string) (*Intent, error)
}

// SourceContext is one retrieved passage handed to the answer generator.
// SourceID is the citation marker the generated text should reference.
type SourceContext struct {
	SourceID string
	Title    string
	Text     string
}

// GeneratedAnswer is a completed generation with token accounting when
// the provider reports it.
type GeneratedAnswer struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AnswerGenerator produces a grounded answer from retrieved contexts.
type AnswerGenerator interface {
	Generate(ctx context.Context, query string, contexts []SourceContext) (*GeneratedAnswer, error)
}

// StreamFunc receives incremental answer text. Returning an error aborts
// the stream and propagates out of GenerateStream.
type StreamFunc func(delta string) error

// AnswerStreamer is implemented by generators that can stream tokens as
// they arrive. The final GeneratedAnswer carries the assembled text.
type AnswerStreamer interface {
	GenerateStream(ctx context.Context, query string, contexts []SourceContext, fn StreamFunc) (*GeneratedAnswer, error)
}

// DocumentLoader turns a source file into normalized documents: text
// extracted, page markers inserted, tabular pages rendered as tagged
// rows. Implementations live outside this module.
type DocumentLoader interface {
	Load(ctx context.Context, path string) ([]chunker.Document, error)
}

// Config carries connection settings for the OpenAI-compatible client.
type Config struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	APIKey      string        `json:"api_key" yaml:"api_key"`
	EmbedModel  string        `json:"embed_model" yaml:"embed_model"`
	RerankModel string        `json:"rerank_model" yaml:"rerank_model"`
	ChatModel   string        `json:"chat_model" yaml:"chat_model"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return c
}
