// Package store owns the persisted state of the engine: the vector
// index with its row-aligned chunk records, and the document metadata
// file. The mutation model is batch-rebuild, not OLTP.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/auditrag/chunker"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrLengthMismatch is returned when vectors and chunks differ in
	// length.
	ErrLengthMismatch = errors.New("store: vectors and chunks length mismatch")

	// ErrDimensionMismatch is returned when a vector does not match the
	// configured embedding dimension.
	ErrDimensionMismatch = errors.New("store: embedding dimension mismatch")

	// ErrEmpty is returned when searching a store with no active chunks.
	ErrEmpty = errors.New("store: no chunks indexed")

	// ErrCorrupt is returned when the index and its chunk records
	// disagree. The store must not be used past this error.
	ErrCorrupt = errors.New("store: index/sidecar mismatch")
)

// oversampleFactor controls how many candidates a search fetches
// before post-filtering. Oversample-then-filter is an approximation,
// not an exact top-k-under-filter guarantee.
const oversampleFactor = 10

// Result is one scored chunk from a vector search.
type Result struct {
	Chunk chunker.Chunk
	Score float64
}

func vectorSchemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY,
    chunk_id TEXT NOT NULL,
    doc_id TEXT NOT NULL,
    text TEXT NOT NULL,
    doc_type TEXT,
    title TEXT,
    filename TEXT,
    boundary TEXT,
    section_path JSON,
    page_nos JSON,
    char_count INTEGER,
    status TEXT DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks(status);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_row INTEGER PRIMARY KEY,
    embedding float[%d] distance_metric=cosine
);
`, embeddingDim)
}

// VectorStore is the ANN index over normalized chunk embeddings. One
// SQLite file holds both the vec0 index and the row-aligned chunk
// records, so they cannot drift apart across copies. Deletes are soft;
// the flat index has no physical delete short of a full reset.
type VectorStore struct {
	db           *sql.DB
	embeddingDim int
}

// NewVectorStore opens (or creates) the index file at path and
// verifies that index and chunk records agree.
func NewVectorStore(path string, embeddingDim int) (*VectorStore, error) {
	if embeddingDim <= 0 {
		return nil, fmt.Errorf("store: embedding dim must be positive, got %d", embeddingDim)
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging index: %w", err)
	}
	if _, err := db.Exec(vectorSchemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &VectorStore{db: db, embeddingDim: embeddingDim}
	if err := s.checkIntegrity(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkIntegrity confirms every chunk row has its embedding and vice
// versa. A mismatch means a partially written or truncated file.
func (s *VectorStore) checkIntegrity(ctx context.Context) error {
	var chunkRows, vecRows int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&chunkRows); err != nil {
		return fmt.Errorf("counting chunks: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_chunks").Scan(&vecRows); err != nil {
		return fmt.Errorf("counting embeddings: %w", err)
	}
	if chunkRows != vecRows {
		return fmt.Errorf("%w: %d chunk rows, %d embeddings", ErrCorrupt, chunkRows, vecRows)
	}
	return nil
}

// Close closes the underlying database.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// EmbeddingDim returns the configured embedding dimension.
func (s *VectorStore) EmbeddingDim() int {
	return s.embeddingDim
}

// AddEmbeddings stores chunks with their embeddings, one vector per
// chunk. Vectors are L2-normalized before insertion so that inner
// product over the index equals cosine similarity. The whole batch
// commits in one transaction.
func (s *VectorStore) AddEmbeddings(ctx context.Context, vectors [][]float32, chunks []chunker.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: %d vectors, %d chunks", ErrLengthMismatch, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != s.embeddingDim {
			return fmt.Errorf("%w: vector %d has dim %d, want %d", ErrDimensionMismatch, i, len(v), s.embeddingDim)
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for i, ch := range chunks {
			sectionPath, _ := json.Marshal(ch.SectionPath)
			pageNos, _ := json.Marshal(ch.PageNos)
			res, err := tx.ExecContext(ctx, `
				INSERT INTO chunks (chunk_id, doc_id, text, doc_type, title, filename,
					boundary, section_path, page_nos, char_count, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active')`,
				ch.ChunkID, ch.DocID, ch.Text, ch.DocType, ch.Title, ch.Filename,
				ch.SemanticBoundary, string(sectionPath), string(pageNos), ch.CharCount)
			if err != nil {
				return fmt.Errorf("inserting chunk %s: %w", ch.ChunkID, err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO vec_chunks (chunk_row, embedding) VALUES (?, ?)",
				rowID, serializeFloat32(normalizeL2(vectors[i]))); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", ch.ChunkID, err)
			}
		}
		return nil
	})
}

// Search runs KNN over the index and post-filters by doc types and
// titles. It oversamples the candidate set (oversampleFactor times
// topK, capped at the index size) so enough candidates survive the
// filter, then returns the first topK survivors.
func (s *VectorStore) Search(ctx context.Context, queryVector []float32, topK int, docTypes, titles []string) ([]Result, error) {
	if len(queryVector) != s.embeddingDim {
		return nil, fmt.Errorf("%w: query has dim %d, want %d", ErrDimensionMismatch, len(queryVector), s.embeddingDim)
	}
	if topK <= 0 {
		return nil, nil
	}
	total, err := s.TotalCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrEmpty
	}

	k := topK * oversampleFactor
	if k > total {
		k = total
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.chunk_id, c.doc_id, c.text, c.doc_type, c.title, c.filename,
			c.boundary, c.section_path, c.page_nos, c.char_count, c.status,
			v.distance
		FROM vec_chunks v
		JOIN chunks c ON c.id = v.chunk_row
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		serializeFloat32(normalizeL2(queryVector)), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	allowedType := stringSet(docTypes)
	allowedTitle := stringSet(titles)

	var results []Result
	for rows.Next() {
		var (
			ch          chunker.Chunk
			sectionPath string
			pageNos     string
			status      string
			distance    float64
		)
		if err := rows.Scan(&ch.ChunkID, &ch.DocID, &ch.Text, &ch.DocType, &ch.Title,
			&ch.Filename, &ch.SemanticBoundary, &sectionPath, &pageNos,
			&ch.CharCount, &status, &distance); err != nil {
			return nil, err
		}
		if status != "active" {
			continue
		}
		if len(allowedType) > 0 && !allowedType[ch.DocType] {
			continue
		}
		if len(allowedTitle) > 0 && !allowedTitle[ch.Title] {
			continue
		}
		json.Unmarshal([]byte(sectionPath), &ch.SectionPath)
		json.Unmarshal([]byte(pageNos), &ch.PageNos)

		// Cosine distance to similarity.
		results = append(results, Result{Chunk: ch, Score: 1.0 - distance})
		if len(results) == topK {
			break
		}
	}
	return results, rows.Err()
}

// RemoveDocumentChunks soft-deletes all chunks of a document: text is
// blanked and status set to deleted, which excludes them from search
// and future graph rebuilds. Returns the number of chunks affected.
func (s *VectorStore) RemoveDocumentChunks(ctx context.Context, docID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chunks SET text = '', status = 'deleted' WHERE doc_id = ? AND status = 'active'",
		docID)
	if err != nil {
		return 0, fmt.Errorf("removing chunks for %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ActiveChunks returns all active chunks in insertion order. This is
// the graph rebuild feed and the round-trip surface.
func (s *VectorStore) ActiveChunks(ctx context.Context) ([]chunker.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, doc_id, text, doc_type, title, filename,
			boundary, section_path, page_nos, char_count
		FROM chunks WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []chunker.Chunk
	for rows.Next() {
		var ch chunker.Chunk
		var sectionPath, pageNos string
		if err := rows.Scan(&ch.ChunkID, &ch.DocID, &ch.Text, &ch.DocType, &ch.Title,
			&ch.Filename, &ch.SemanticBoundary, &sectionPath, &pageNos, &ch.CharCount); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(sectionPath), &ch.SectionPath)
		json.Unmarshal([]byte(pageNos), &ch.PageNos)
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// Count returns the number of active chunks.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE status = 'active'").Scan(&n)
	return n, err
}

// TotalCount returns all chunk rows including soft-deleted ones.
func (s *VectorStore) TotalCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Reset drops all chunks and embeddings. This is the only physical
// compaction the flat index supports.
func (s *VectorStore) Reset(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM vec_chunks")
		return err
	})
}

// --- helpers ---

func (s *VectorStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func stringSet(vals []string) map[string]bool {
	if len(vals) == 0 {
		return nil
	}
	set := make(map[string]bool, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = true
		}
	}
	return set
}

// normalizeL2 returns a unit-length copy of v. Zero vectors pass
// through unchanged.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / norm)
	}
	return out
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
