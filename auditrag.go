// Package auditrag is a retrieval engine for audit and regulation
// documents. It combines approximate-nearest-neighbor vector search over
// structure-aware chunks with a knowledge graph derived from the same
// chunks, fuses the two score spaces per query, and hands ranked results
// to an external generation capability.
package auditrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brunobiangulo/auditrag/chunker"
	"github.com/brunobiangulo/auditrag/graph"
	"github.com/brunobiangulo/auditrag/llm"
	"github.com/brunobiangulo/auditrag/retrieval"
	"github.com/brunobiangulo/auditrag/store"
)

const (
	vectorFile   = "vectors.db"
	graphFile    = "graph.json"
	metadataFile = "metadata.json"
)

// SearchResult is one ranked chunk returned from Search.
type SearchResult = retrieval.Result

// Engine owns the three stores and the retrieval pipeline. All methods
// are safe for concurrent use; mutations (ingest, delete, rebuild, reset)
// exclude concurrent reads on the affected store.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	embedder   llm.EmbeddingProvider
	reranker   llm.RerankProvider
	classifier llm.IntentClassifier
	generator  llm.AnswerGenerator

	splitter *chunker.Smart
	vectors  *store.VectorStore
	metadata *store.MetadataStore
	graph    *graph.Store
	builder  *graph.Builder

	router       *retrieval.Router
	orchestrator *retrieval.Orchestrator

	graphPath string

	// vecMu guards vector-store mutations against reads; graphMu does the
	// same for the graph. The rebuild-and-replace mutation model makes one
	// read-write lock per store sufficient.
	vecMu   sync.RWMutex
	graphMu sync.RWMutex

	closeMu sync.Mutex
	closed  bool
}

// New opens or creates the engine's stores under cfg's data directory.
// An embedding provider is required; everything else is optional and
// disables the corresponding capability when absent.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg = cfg.withDefaults()
	e := &Engine{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", ErrInvalidConfig)
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}

	dataDir := cfg.resolveDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("auditrag: create data dir: %w", err)
	}

	vectors, err := store.NewVectorStore(filepath.Join(dataDir, vectorFile), cfg.EmbeddingDim)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
		}
		return nil, err
	}
	metadata, err := store.NewMetadataStore(filepath.Join(dataDir, metadataFile))
	if err != nil {
		vectors.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	graphStore := graph.NewStore()
	graphPath := filepath.Join(dataDir, graphFile)
	if err := graphStore.Load(graphPath); err != nil {
		vectors.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	e.splitter = chunker.NewSmart(chunker.Config{
		ChunkSize: cfg.ChunkSize,
		Overlap:   cfg.ChunkOverlap,
	})
	e.vectors = vectors
	e.metadata = metadata
	e.graph = graphStore
	e.graphPath = graphPath
	e.builder = graph.NewBuilder(e.logger, cfg.GraphConcurrency)

	e.router = retrieval.NewRouter(e.classifier, retrieval.Defaults{
		TopK:        cfg.TopK,
		GraphTopK:   cfg.GraphTopK,
		GraphHops:   cfg.GraphHops,
		HybridAlpha: cfg.HybridAlpha,
		UseRerank:   cfg.UseRerank && e.reranker != nil,
		RerankTopK:  cfg.RerankTopK,
	}, time.Duration(cfg.IntentTimeout)*time.Second, e.logger)
	e.orchestrator = retrieval.NewOrchestrator(
		vectors,
		graph.NewRetriever(graphStore, e.logger),
		e.embedder,
		e.reranker,
		time.Duration(cfg.RerankTimeout)*time.Second,
		e.logger,
	)

	e.logger.Info("engine opened",
		slog.String("data_dir", dataDir),
		slog.Int("documents", len(metadata.List())),
		slog.Int("graph_nodes", graphStore.NodeCount()))
	return e, nil
}

// withDefaults fills zero-valued config fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = def.EmbeddingDim
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = def.ChunkOverlap
	}
	if c.TopK == 0 {
		c.TopK = def.TopK
	}
	if c.GraphTopK == 0 {
		c.GraphTopK = def.GraphTopK
	}
	if c.GraphHops == 0 {
		c.GraphHops = def.GraphHops
	}
	if c.HybridAlpha == 0 {
		c.HybridAlpha = def.HybridAlpha
	}
	if c.RerankTopK == 0 {
		c.RerankTopK = def.RerankTopK
	}
	if c.GraphConcurrency == 0 {
		c.GraphConcurrency = def.GraphConcurrency
	}
	if c.EmbedTimeout == 0 {
		c.EmbedTimeout = def.EmbedTimeout
	}
	if c.RerankTimeout == 0 {
		c.RerankTimeout = def.RerankTimeout
	}
	if c.IntentTimeout == 0 {
		c.IntentTimeout = def.IntentTimeout
	}
	return c
}

func (e *Engine) checkOpen() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stats summarizes the engine's stores.
type Stats struct {
	Documents    store.MetadataStats `json:"documents"`
	ActiveChunks int                 `json:"active_chunks"`
	TotalChunks  int                 `json:"total_chunks"`
	Graph        graph.Overview      `json:"graph"`
}

// Stats reports document, chunk and graph counts. Soft-deleted documents
// are excluded from the active totals.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	e.vecMu.RLock()
	active, err := e.vectors.Count(ctx)
	if err != nil {
		e.vecMu.RUnlock()
		return nil, err
	}
	total, err := e.vectors.TotalCount(ctx)
	e.vecMu.RUnlock()
	if err != nil {
		return nil, err
	}

	e.graphMu.RLock()
	overview := e.graph.Overview()
	e.graphMu.RUnlock()

	return &Stats{
		Documents:    e.metadata.Stats(),
		ActiveChunks: active,
		TotalChunks:  total,
		Graph:        overview,
	}, nil
}

// ListDocuments returns every document record, including soft-deleted
// ones, sorted by upload time.
func (e *Engine) ListDocuments(ctx context.Context) ([]store.DocumentRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.metadata.List(), nil
}

// GraphOverview reports node and edge counts by type.
func (e *Engine) GraphOverview(ctx context.Context) (graph.Overview, error) {
	if err := e.checkOpen(); err != nil {
		return graph.Overview{}, err
	}
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	return e.graph.Overview(), nil
}

// GraphSubgraph extracts the neighborhood of nodeID out to depth edges.
func (e *Engine) GraphSubgraph(ctx context.Context, nodeID string, depth int) (graph.Subgraph, error) {
	if err := e.checkOpen(); err != nil {
		return graph.Subgraph{}, err
	}
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	sub, ok := e.graph.SubgraphAround(nodeID, depth)
	if !ok {
		return graph.Subgraph{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return sub, nil
}

// GraphPath returns the shortest undirected path between two nodes.
func (e *Engine) GraphPath(ctx context.Context, from, to string) ([]string, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	path, ok := e.graph.ShortestPath(from, to)
	if !ok {
		return nil, fmt.Errorf("%w: no path between %s and %s", ErrNodeNotFound, from, to)
	}
	return path, nil
}

// Reset drops every chunk, document record and graph node. The vector
// index is physically compacted; this is the only operation that is.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	e.vecMu.Lock()
	defer e.vecMu.Unlock()
	e.graphMu.Lock()
	defer e.graphMu.Unlock()

	if err := e.vectors.Reset(ctx); err != nil {
		return err
	}
	if err := e.metadata.Clear(); err != nil {
		return err
	}
	e.graph.Clear()
	if err := e.graph.Save(e.graphPath); err != nil {
		return err
	}
	e.logger.Info("engine reset")
	return nil
}

// Close releases the vector store. Further calls return ErrStoreClosed.
func (e *Engine) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.vectors.Close()
}
