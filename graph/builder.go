package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/auditrag/chunker"
)

// NodeID derives the stable node id for a (type, canonical value)
// pair: the type prefix plus the first 16 hex characters of the
// pair's digest. Identical values always map to the same node.
func NodeID(nodeType, value string) string {
	sum := sha256.Sum256([]byte(nodeType + ":" + value))
	return nodeType + ":" + hex.EncodeToString(sum[:])[:16]
}

// mentionConfidence is attached to chunk-mentions-entity edges; the
// mention itself is certain, the entity boundary is not.
const mentionConfidence = 0.7

// Builder derives a knowledge graph from chunks: document and chunk
// nodes, mention edges to every normalized entity, and one edge per
// extractor relation record. Build produces a fresh store; the caller
// replaces the live graph wholesale. Incremental merge across rebuilds
// is deliberately not supported.
type Builder struct {
	linker      *Linker
	logger      *slog.Logger
	concurrency int
}

// NewBuilder returns a Builder. concurrency bounds the parallel
// extraction workers; zero or negative selects a CPU-based default.
func NewBuilder(logger *slog.Logger, concurrency int) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Builder{linker: NewLinker(), logger: logger, concurrency: concurrency}
}

// chunkExtraction is one worker's output for a single chunk.
type chunkExtraction struct {
	chunk     chunker.Chunk
	extractor string
	entities  []Entity
	relations []RelationRecord
}

// Build runs extraction over all chunks and assembles the graph.
// Extraction fans out across workers; graph assembly is sequential so
// insertion order, and with it tie-breaking downstream, stays
// deterministic.
func (b *Builder) Build(ctx context.Context, chunks []chunker.Chunk) (*Store, error) {
	results := make([]chunkExtraction, len(chunks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ex := ExtractorFor(ch.DocType)
			results[i] = chunkExtraction{
				chunk:     ch,
				extractor: ex.Name(),
				entities:  ex.ExtractEntities(ch),
				relations: ex.ExtractRelations(ch),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("graph extraction: %w", err)
	}

	store := NewStore()
	for _, res := range results {
		b.assemble(store, res)
	}

	b.logger.Info("graph build complete",
		"chunks", len(chunks),
		"nodes", store.NodeCount(),
		"edges", store.EdgeCount())
	return store, nil
}

// assemble writes one chunk's extraction into the store.
func (b *Builder) assemble(store *Store, res chunkExtraction) {
	ch := res.chunk

	docNodeID := NodeID(NodeDocument, ch.DocID)
	docName := ch.Title
	if docName == "" {
		docName = ch.Filename
	}
	store.AddNode(docNodeID, NodeDocument, docName, map[string]any{
		"doc_id":   ch.DocID,
		"doc_type": ch.DocType,
		"filename": ch.Filename,
	})

	chunkNodeID := NodeID(NodeChunk, ch.ChunkID)
	store.AddNode(chunkNodeID, NodeChunk, ch.ChunkID, map[string]any{
		"chunk_id": ch.ChunkID,
		"doc_id":   ch.DocID,
		"doc_type": ch.DocType,
		"title":    ch.Title,
		"filename": ch.Filename,
		"text":     ch.Text,
		"boundary": ch.SemanticBoundary,
	})
	store.AddEdge(docNodeID, chunkNodeID, RelContains, RelationWeight(RelContains), nil)

	if ch.DocType != "" && ch.DocType != chunker.DocTypeUnknown {
		dtID := NodeID(NodeDocType, ch.DocType)
		store.AddNode(dtID, NodeDocType, ch.DocType, nil)
		store.AddEdge(docNodeID, dtID, RelHasDocType, RelationWeight(RelHasDocType), nil)
	}

	for _, ent := range res.entities {
		canonical, ok := b.linker.Normalize(ent.Type, ent.Value)
		if !ok {
			continue
		}
		entID := NodeID(ent.Type, canonical)
		store.AddNode(entID, ent.Type, canonical, nil)
		store.AddEdge(chunkNodeID, entID, RelMentions, RelationWeight(RelMentions), map[string]any{
			"confidence":          mentionConfidence,
			"provenance_chunk_id": ch.ChunkID,
			"extractor":           res.extractor,
		})
	}

	for _, rec := range res.relations {
		src, ok := b.linker.Normalize(rec.SourceType, rec.SourceValue)
		if !ok {
			continue
		}
		dst, ok := b.linker.Normalize(rec.TargetType, rec.TargetValue)
		if !ok {
			continue
		}
		srcID := NodeID(rec.SourceType, src)
		dstID := NodeID(rec.TargetType, dst)
		// Relation endpoints may not have been seen as entities;
		// create them on demand.
		store.AddNode(srcID, rec.SourceType, src, nil)
		store.AddNode(dstID, rec.TargetType, dst, nil)
		store.AddEdge(srcID, dstID, rec.Relation, RelationWeight(rec.Relation), map[string]any{
			"confidence":          rec.Confidence,
			"provenance_chunk_id": ch.ChunkID,
			"extractor":           rec.Extractor,
		})
	}
}
