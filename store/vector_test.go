//go:build cgo

package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/auditrag/chunker"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewVectorStore(path, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating vector store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testChunk(chunkID, docID, docType, title, text string) chunker.Chunk {
	return chunker.Chunk{
		ChunkID:          chunkID,
		DocID:            docID,
		DocType:          docType,
		Title:            title,
		Text:             text,
		SemanticBoundary: chunker.BoundaryFullText,
		CharCount:        len([]rune(text)),
	}
}

func TestAddEmbeddingsLengthMismatch(t *testing.T) {
	s := newTestVectorStore(t)
	err := s.AddEmbeddings(context.Background(),
		[][]float32{{1, 0, 0, 0}},
		[]chunker.Chunk{
			testChunk("c1", "d1", "report", "t", "a"),
			testChunk("c2", "d1", "report", "t", "b"),
		})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestAddEmbeddingsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t)
	err := s.AddEmbeddings(context.Background(),
		[][]float32{{1, 0}},
		[]chunker.Chunk{testChunk("c1", "d1", "report", "t", "a")})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := newTestVectorStore(t)
	_, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5, nil, nil)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v, want ErrEmpty", err)
	}
}

func TestSearchRanking(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0.9, 0.1, 0, 0},
	}
	chunks := []chunker.Chunk{
		testChunk("c1", "d1", "report", "t1", "精确匹配内容"),
		testChunk("c2", "d1", "report", "t1", "无关内容"),
		testChunk("c3", "d1", "report", "t1", "相近内容"),
	}
	if err := s.AddEmbeddings(ctx, vectors, chunks); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, nil, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Chunk.ChunkID != "c1" {
		t.Errorf("results[0] = %s, want c1", results[0].Chunk.ChunkID)
	}
	if results[1].Chunk.ChunkID != "c3" {
		t.Errorf("results[1] = %s, want c3", results[1].Chunk.ChunkID)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores not descending")
	}
	if math.Abs(results[0].Score-1.0) > 1e-5 {
		t.Errorf("exact match score = %f, want ~1.0", results[0].Score)
	}
}

func TestSearchDocTypeFilterExact(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	// Two regulation chunks among three report chunks; a filtered
	// search returns exactly the two regulation chunks.
	vectors := [][]float32{
		{1, 0, 0, 0}, {0.9, 0.1, 0, 0},
		{0.8, 0.2, 0, 0}, {0.7, 0.3, 0, 0}, {0.6, 0.4, 0, 0},
	}
	chunks := []chunker.Chunk{
		testChunk("r1", "d1", "regulation", "办法", "第一条"),
		testChunk("r2", "d1", "regulation", "办法", "第二条"),
		testChunk("p1", "d2", "report", "报告", "情况一"),
		testChunk("p2", "d2", "report", "报告", "情况二"),
		testChunk("p3", "d2", "report", "报告", "情况三"),
	}
	if err := s.AddEmbeddings(ctx, vectors, chunks); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, []string{"regulation"}, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want exactly the 2 regulation chunks", len(results))
	}
	for _, r := range results {
		if r.Chunk.DocType != "regulation" {
			t.Errorf("chunk %s has doc type %q", r.Chunk.ChunkID, r.Chunk.DocType)
		}
	}
}

func TestSearchTitleFilter(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	vectors := [][]float32{{1, 0, 0, 0}, {0.9, 0.1, 0, 0}}
	chunks := []chunker.Chunk{
		testChunk("c1", "d1", "report", "甲报告", "内容一"),
		testChunk("c2", "d2", "report", "乙报告", "内容二"),
	}
	if err := s.AddEmbeddings(ctx, vectors, chunks); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil, []string{"乙报告"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Title != "乙报告" {
		t.Errorf("results = %+v, want only 乙报告", results)
	}
}

func TestRemoveDocumentChunksSoftDelete(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	chunks := []chunker.Chunk{
		testChunk("c1", "d1", "report", "t", "待删除内容"),
		testChunk("c2", "d2", "report", "t", "保留内容"),
	}
	if err := s.AddEmbeddings(ctx, vectors, chunks); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}

	n, err := s.RemoveDocumentChunks(ctx, "d1")
	if err != nil {
		t.Fatalf("RemoveDocumentChunks: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}

	// Soft-deleted chunks never surface in search results.
	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 5, nil, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Chunk.DocID == "d1" {
			t.Errorf("soft-deleted chunk surfaced: %+v", r.Chunk)
		}
	}

	// And they are excluded from the graph rebuild feed.
	active, err := s.ActiveChunks(ctx)
	if err != nil {
		t.Fatalf("ActiveChunks: %v", err)
	}
	if len(active) != 1 || active[0].DocID != "d2" {
		t.Errorf("active = %+v, want only d2", active)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
	total, err := s.TotalCount(ctx)
	if err != nil {
		t.Fatalf("TotalCount: %v", err)
	}
	if total != 2 {
		t.Errorf("TotalCount = %d, want 2 (soft delete keeps the row)", total)
	}
}

func TestRoundTripPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewVectorStore(path, 4)
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	ctx := context.Background()

	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	chunks := []chunker.Chunk{
		testChunk("c1", "d1", "report", "t", "第一块"),
		testChunk("c2", "d1", "report", "t", "第二块"),
		testChunk("c3", "d1", "report", "t", "第三块"),
	}
	if err := s.AddEmbeddings(ctx, vectors, chunks); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewVectorStore(path, 4)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	active, err := reopened.ActiveChunks(ctx)
	if err != nil {
		t.Fatalf("ActiveChunks: %v", err)
	}
	if len(active) != len(chunks) {
		t.Fatalf("len(active) = %d, want %d", len(active), len(chunks))
	}
	for i, ch := range active {
		if ch.ChunkID != chunks[i].ChunkID {
			t.Errorf("chunk %d = %s, want %s (order must survive reload)", i, ch.ChunkID, chunks[i].ChunkID)
		}
	}
}

func TestReset(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	if err := s.AddEmbeddings(ctx,
		[][]float32{{1, 0, 0, 0}},
		[]chunker.Chunk{testChunk("c1", "d1", "report", "t", "内容")}); err != nil {
		t.Fatalf("AddEmbeddings: %v", err)
	}
	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	total, err := s.TotalCount(ctx)
	if err != nil {
		t.Fatalf("TotalCount: %v", err)
	}
	if total != 0 {
		t.Errorf("TotalCount = %d, want 0 after reset", total)
	}
}
