package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/auditrag/graph"
	"github.com/brunobiangulo/auditrag/llm"
	"github.com/brunobiangulo/auditrag/store"
)

var (
	// ErrEmbedding means the query embedding call failed; nothing was
	// retrieved.
	ErrEmbedding = errors.New("retrieval: query embedding failed")

	// ErrRerank means the rerank call failed. Relevance correctness
	// outranks availability, so the whole request fails.
	ErrRerank = errors.New("retrieval: rerank failed")
)

const (
	maxRerankDocs  = 10
	rerankDocChars = 1000
)

// VectorSearcher is the vector-store surface the orchestrator needs.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, topK int, docTypes, titles []string) ([]store.Result, error)
}

// GraphSearcher is the graph-retriever surface the orchestrator needs.
type GraphSearcher interface {
	Search(query string, topK int, docTypes []string, hops int) []graph.Result
}

// Result is one ranked chunk from a search. Metadata carries per-modality
// scores and, after a rerank, the pre-rerank fused score as
// original_score.
type Result struct {
	ChunkID  string         `json:"chunk_id"`
	DocID    string         `json:"doc_id"`
	Text     string         `json:"text"`
	DocType  string         `json:"doc_type"`
	Title    string         `json:"title"`
	Filename string         `json:"filename"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Orchestrator runs a resolved Plan over the vector and graph stores and
// fuses the two score spaces.
type Orchestrator struct {
	vectors       VectorSearcher
	graphs        GraphSearcher
	embedder      llm.EmbeddingProvider
	reranker      llm.RerankProvider
	rerankTimeout time.Duration
	logger        *slog.Logger
}

// NewOrchestrator wires the retrieval legs together. reranker may be nil
// when no plan will request reranking; rerankTimeout bounds each rerank
// call, zero means no extra bound beyond the caller's context.
func NewOrchestrator(vectors VectorSearcher, graphs GraphSearcher, embedder llm.EmbeddingProvider, reranker llm.RerankProvider, rerankTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		vectors:       vectors,
		graphs:        graphs,
		embedder:      embedder,
		reranker:      reranker,
		rerankTimeout: rerankTimeout,
		logger:        logger,
	}
}

// candidate accumulates per-modality scores for one chunk before fusion.
type candidate struct {
	result     Result
	vecScore   float64
	graphScore float64
	hasVec     bool
	hasGraph   bool
	order      int
}

// Execute runs query under plan and returns at most plan.TopK results.
func (o *Orchestrator) Execute(ctx context.Context, query string, plan Plan) ([]Result, error) {
	initialTopK := plan.TopK
	if plan.UseRerank {
		initialTopK = plan.TopK * 2
		if plan.RerankTopK > initialTopK {
			initialTopK = plan.RerankTopK
		}
	}

	var vecResults []store.Result
	var graphResults []graph.Result

	// Single-mode searches ignore the plan's alpha so scores stay the
	// normalized similarity of the one modality that produced them.
	alpha := plan.HybridAlpha

	switch plan.Mode {
	case ModeVector:
		alpha = 1
		var err error
		if vecResults, err = o.vectorLeg(ctx, query, plan, initialTopK); err != nil {
			return nil, err
		}
	case ModeGraph:
		alpha = 0
		graphResults = o.graphs.Search(query, plan.GraphTopK, plan.DocTypes, plan.GraphHops)
	default:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			vecResults, err = o.vectorLeg(gctx, query, plan, initialTopK)
			return err
		})
		g.Go(func() error {
			graphResults = o.graphs.Search(query, plan.GraphTopK, plan.DocTypes, plan.GraphHops)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	fused := fuse(vecResults, graphResults, alpha)
	if len(fused) > initialTopK {
		fused = fused[:initialTopK]
	}

	if plan.UseRerank && len(fused) > 0 {
		reranked, err := o.rerank(ctx, query, fused, plan.RerankTopK)
		if err != nil {
			return nil, err
		}
		fused = reranked
	}
	if len(fused) > plan.TopK {
		fused = fused[:plan.TopK]
	}

	o.logger.Debug("search executed",
		slog.String("mode", plan.Mode),
		slog.Int("vector_results", len(vecResults)),
		slog.Int("graph_results", len(graphResults)),
		slog.Int("returned", len(fused)))
	return fused, nil
}

func (o *Orchestrator) vectorLeg(ctx context.Context, query string, plan Plan, topK int) ([]store.Result, error) {
	vecs, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one query", ErrEmbedding, len(vecs))
	}
	return o.vectors.Search(ctx, vecs[0], topK, plan.DocTypes, nil)
}

// fuse merges the two result sets into one ranking. Each modality is
// min-max normalized over the candidate union, then combined as
// alpha*vector + (1-alpha)*graph; a candidate missing a modality
// contributes 0 on that side. Ties break by first-encounter order,
// vector leg first.
func fuse(vecResults []store.Result, graphResults []graph.Result, alpha float64) []Result {
	byKey := make(map[string]*candidate)
	var keys []string
	order := 0

	add := func(key string, r Result) *candidate {
		c, ok := byKey[key]
		if !ok {
			c = &candidate{result: r, order: order}
			order++
			byKey[key] = c
			keys = append(keys, key)
		}
		return c
	}

	for _, vr := range vecResults {
		ch := vr.Chunk
		key := candidateKey(ch.ChunkID, ch.DocID, ch.Filename, ch.Text)
		c := add(key, Result{
			ChunkID:  ch.ChunkID,
			DocID:    ch.DocID,
			Text:     ch.Text,
			DocType:  ch.DocType,
			Title:    ch.Title,
			Filename: ch.Filename,
		})
		c.vecScore = vr.Score
		c.hasVec = true
	}
	for _, gr := range graphResults {
		key := candidateKey(gr.ChunkID, gr.DocID, gr.Filename, gr.Text)
		c := add(key, Result{
			ChunkID:  gr.ChunkID,
			DocID:    gr.DocID,
			Text:     gr.Text,
			DocType:  gr.DocType,
			Title:    gr.Title,
			Filename: gr.Filename,
		})
		c.graphScore = gr.Score
		c.hasGraph = true
	}

	normVec := minMax(byKey, keys, func(c *candidate) (float64, bool) { return c.vecScore, c.hasVec })
	normGraph := minMax(byKey, keys, func(c *candidate) (float64, bool) { return c.graphScore, c.hasGraph })

	type ranked struct {
		res   Result
		order int
	}
	items := make([]ranked, 0, len(keys))
	for _, key := range keys {
		c := byKey[key]
		v := normVec[key]
		g := normGraph[key]
		r := c.result
		r.Score = alpha*v + (1-alpha)*g
		r.Metadata = map[string]any{
			"vector_score": v,
			"graph_score":  g,
		}
		items = append(items, ranked{res: r, order: c.order})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].res.Score != items[j].res.Score {
			return items[i].res.Score > items[j].res.Score
		}
		return items[i].order < items[j].order
	})
	out := make([]Result, len(items))
	for i, it := range items {
		out[i] = it.res
	}
	return out
}

// minMax normalizes one modality's scores over every candidate that has
// it. All scores equal (including a single candidate) map to 1.0 so a
// lone result is not zeroed out.
func minMax(byKey map[string]*candidate, keys []string, get func(*candidate) (float64, bool)) map[string]float64 {
	lo, hi := 0.0, 0.0
	first := true
	for _, key := range keys {
		s, ok := get(byKey[key])
		if !ok {
			continue
		}
		if first {
			lo, hi = s, s
			first = false
			continue
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make(map[string]float64, len(keys))
	for _, key := range keys {
		s, ok := get(byKey[key])
		if !ok {
			continue
		}
		if hi == lo {
			out[key] = 1.0
		} else {
			out[key] = (s - lo) / (hi - lo)
		}
	}
	return out
}

// rerank re-scores the top candidates with the rerank capability. The
// returned score replaces the fused one; the fused value is kept in
// metadata as original_score. Failures fail the request.
func (o *Orchestrator) rerank(ctx context.Context, query string, results []Result, topN int) ([]Result, error) {
	if o.reranker == nil {
		return nil, fmt.Errorf("%w: no rerank capability configured", ErrRerank)
	}
	n := len(results)
	if n > maxRerankDocs {
		n = maxRerankDocs
	}
	docs := make([]string, n)
	for i := 0; i < n; i++ {
		docs[i] = truncateRunes(results[i].Text, rerankDocChars)
	}
	if o.rerankTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.rerankTimeout)
		defer cancel()
	}
	scored, err := o.reranker.Rerank(ctx, query, docs, topN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerank, err)
	}
	out := make([]Result, 0, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= n {
			return nil, fmt.Errorf("%w: index %d out of range", ErrRerank, s.Index)
		}
		r := results[s.Index]
		meta := make(map[string]any, len(r.Metadata)+1)
		for k, v := range r.Metadata {
			meta[k] = v
		}
		meta["original_score"] = r.Score
		r.Metadata = meta
		r.Score = s.Score
		out = append(out, r)
	}
	return out, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func candidateKey(chunkID, docID, filename, text string) string {
	if chunkID != "" {
		return chunkID
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{docID, filename, text}, "\x00")))
	return hex.EncodeToString(sum[:8])
}
