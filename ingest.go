package auditrag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/auditrag/chunker"
	"github.com/brunobiangulo/auditrag/store"
)

// IngestReport summarizes one Ingest batch.
type IngestReport struct {
	Ingested    int `json:"ingested"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	ChunksAdded int `json:"chunks_added"`
}

// Ingest chunks, embeds and stores each document. Failures are
// per-document: a bad document is logged and skipped, never aborting the
// batch. Re-ingesting unchanged content bumps the record version and the
// skip counter without re-chunking. Unless WithoutGraphRebuild is given,
// a successful batch triggers a graph rebuild.
func (e *Engine) Ingest(ctx context.Context, docs []chunker.Document, opts ...IngestOption) (*IngestReport, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", ErrValidation)
	}
	options := defaultIngestOptions()
	for _, opt := range opts {
		opt(&options)
	}

	report := &IngestReport{}
	for _, doc := range docs {
		added, err := e.ingestOne(ctx, doc)
		switch {
		case err != nil:
			report.Failed++
			e.logger.Error("document ingest failed, skipping",
				slog.String("doc_id", doc.DocID),
				slog.String("filename", doc.Filename),
				slog.Any("error", err))
		case added == 0:
			report.Skipped++
		default:
			report.Ingested++
			report.ChunksAdded += added
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	if options.rebuildGraph && report.Ingested > 0 {
		if err := e.RebuildGraph(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ingestOne processes a single document. It returns the number of chunks
// written, 0 when the content was already present.
func (e *Engine) ingestOne(ctx context.Context, doc chunker.Document) (int, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return 0, fmt.Errorf("%w: empty document text", ErrValidation)
	}
	hash := chunker.ContentHash(doc.Text)
	if doc.DocID == "" {
		// Identical content is the same document.
		doc.DocID = hash
	}

	if rec, ok := e.metadata.Get(doc.DocID); ok && rec.Status == store.StatusActive {
		if rec.ContentHash == hash {
			if _, err := e.metadata.Add(record(doc, hash)); err != nil {
				return 0, err
			}
			e.logger.Info("duplicate content, skipping",
				slog.String("doc_id", doc.DocID),
				slog.Int("version", rec.Version+1))
			return 0, nil
		}
		// Changed content under the same id: retire the old chunks so the
		// new ones do not compete with them.
		e.vecMu.Lock()
		_, err := e.vectors.RemoveDocumentChunks(ctx, doc.DocID)
		e.vecMu.Unlock()
		if err != nil {
			return 0, err
		}
	}

	if doc.DocType == "" || doc.DocType == chunker.DocTypeUnknown {
		doc.DocType = e.splitter.DetectDocType(doc)
	}
	chunks := e.splitter.ChunkDocuments([]chunker.Document{doc})
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: document produced no chunks", ErrValidation)
	}

	// Embeddings run outside the store lock so concurrent ingests only
	// serialize on the write itself.
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	ectx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.EmbedTimeout)*time.Second)
	vectors, err := e.embedder.Embed(ectx, texts)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	e.vecMu.Lock()
	err = e.vectors.AddEmbeddings(ctx, vectors, chunks)
	e.vecMu.Unlock()
	if err != nil {
		return 0, err
	}

	// Metadata turns active only after the vectors are durably stored.
	if _, err := e.metadata.Add(record(doc, hash)); err != nil {
		return 0, err
	}
	if err := e.metadata.SetChunkCount(doc.DocID, len(chunks)); err != nil {
		return 0, err
	}
	e.logger.Info("document ingested",
		slog.String("doc_id", doc.DocID),
		slog.String("doc_type", doc.DocType),
		slog.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func record(doc chunker.Document, hash string) store.DocumentRecord {
	return store.DocumentRecord{
		DocID:       doc.DocID,
		Filename:    doc.Filename,
		ContentHash: hash,
		FileSize:    int64(len(doc.Text)),
		DocType:     doc.DocType,
		Title:       doc.Title,
	}
}

// Delete soft-deletes a document: its chunks are blanked and excluded
// from search and from future graph rebuilds. Physical compaction only
// happens on Reset.
func (e *Engine) Delete(ctx context.Context, docID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	rec, ok := e.metadata.Get(docID)
	if !ok || rec.Status == store.StatusDeleted {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}

	e.vecMu.Lock()
	removed, err := e.vectors.RemoveDocumentChunks(ctx, docID)
	e.vecMu.Unlock()
	if err != nil {
		return err
	}
	if _, err := e.metadata.SoftDelete(docID); err != nil {
		return err
	}
	e.logger.Info("document deleted",
		slog.String("doc_id", docID),
		slog.Int("chunks_removed", removed))
	return nil
}

// Restore re-activates a soft-deleted document record. The blanked chunks
// do not come back; re-ingest the document to make its content searchable
// again.
func (e *Engine) Restore(ctx context.Context, docID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	ok, err := e.metadata.Restore(docID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	return nil
}

// RebuildGraph re-derives the knowledge graph from every active chunk and
// replaces the current graph wholesale. It holds the graph write lock for
// the swap only; extraction runs on a snapshot of the chunks and honors
// ctx cancellation.
func (e *Engine) RebuildGraph(ctx context.Context) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	e.vecMu.RLock()
	chunks, err := e.vectors.ActiveChunks(ctx)
	e.vecMu.RUnlock()
	if err != nil {
		return err
	}

	built, err := e.builder.Build(ctx, chunks)
	if err != nil {
		return err
	}

	e.graphMu.Lock()
	e.graph.Replace(built)
	err = e.graph.Save(e.graphPath)
	e.graphMu.Unlock()
	if err != nil {
		return err
	}
	e.logger.Info("graph rebuilt",
		slog.Int("chunks", len(chunks)),
		slog.Int("nodes", e.graph.NodeCount()),
		slog.Int("edges", e.graph.EdgeCount()))
	return nil
}
