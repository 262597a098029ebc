package auditrag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/brunobiangulo/auditrag/llm"
	"github.com/brunobiangulo/auditrag/retrieval"
	"github.com/brunobiangulo/auditrag/store"
)

// Search routes the query through the intent router, executes the
// resolved plan over the vector and graph stores, and returns at most
// top_k ranked chunks.
func (e *Engine) Search(ctx context.Context, query string, opts ...SearchOption) ([]SearchResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}

	var overrides retrieval.Overrides
	for _, opt := range opts {
		opt(&overrides)
	}
	plan := e.router.Route(ctx, query, overrides)

	e.vecMu.RLock()
	e.graphMu.RLock()
	results, err := e.orchestrator.Execute(ctx, query, plan)
	e.graphMu.RUnlock()
	e.vecMu.RUnlock()
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmpty):
			return nil, fmt.Errorf("%w: ingest documents first", ErrEmptyStore)
		case errors.Is(err, retrieval.ErrEmbedding):
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		case errors.Is(err, retrieval.ErrRerank):
			return nil, fmt.Errorf("%w: %v", ErrRerankFailed, err)
		case errors.Is(err, store.ErrCorrupt):
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		return nil, err
	}
	return results, nil
}

// Answer is a generated response with the retrieved chunks it cites.
// Source ids are stable S1..Sn markers matching the [S n] citations in
// the text.
type Answer struct {
	Text    string         `json:"text"`
	Sources []SearchResult `json:"sources"`
	Model   string         `json:"model,omitempty"`
	Tokens  int            `json:"tokens,omitempty"`
}

// Answer retrieves for query and asks the generation capability to
// compose a grounded response over the results.
func (e *Engine) Answer(ctx context.Context, query string, opts ...SearchOption) (*Answer, error) {
	if e.generator == nil {
		return nil, fmt.Errorf("%w: no answer generator configured", ErrInvalidConfig)
	}
	results, err := e.Search(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	generated, err := e.generator.Generate(ctx, query, sourceContexts(results))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &Answer{
		Text:    generated.Text,
		Sources: results,
		Model:   generated.Model,
		Tokens:  generated.TotalTokens,
	}, nil
}

// AnswerStream is Answer with incremental delivery when the generator
// supports streaming; otherwise it degrades to one callback with the full
// text. Cancelling the stream does not roll back the completed retrieval.
func (e *Engine) AnswerStream(ctx context.Context, query string, fn llm.StreamFunc, opts ...SearchOption) (*Answer, error) {
	if e.generator == nil {
		return nil, fmt.Errorf("%w: no answer generator configured", ErrInvalidConfig)
	}
	results, err := e.Search(ctx, query, opts...)
	if err != nil {
		return nil, err
	}

	contexts := sourceContexts(results)
	var generated *llm.GeneratedAnswer
	if streamer, ok := e.generator.(llm.AnswerStreamer); ok {
		generated, err = streamer.GenerateStream(ctx, query, contexts, fn)
	} else {
		generated, err = e.generator.Generate(ctx, query, contexts)
		if err == nil && fn != nil {
			err = fn(generated.Text)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &Answer{
		Text:    generated.Text,
		Sources: results,
		Model:   generated.Model,
		Tokens:  generated.TotalTokens,
	}, nil
}

// sourceContexts assigns each result its stable citation id, in rank
// order.
func sourceContexts(results []SearchResult) []llm.SourceContext {
	out := make([]llm.SourceContext, len(results))
	for i, r := range results {
		out[i] = llm.SourceContext{
			SourceID: fmt.Sprintf("S%d", i+1),
			Title:    r.Title,
			Text:     r.Text,
		}
	}
	return out
}
