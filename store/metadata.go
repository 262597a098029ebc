package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Document statuses.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// DocumentRecord is the metadata entry for one ingested document.
type DocumentRecord struct {
	DocID          string `json:"doc_id"`
	Filename       string `json:"filename"`
	ContentHash    string `json:"content_hash"`
	FileSize       int64  `json:"file_size"`
	DocType        string `json:"doc_type"`
	Title          string `json:"title"`
	UploadTime     string `json:"upload_time"`
	ChunkCount     int    `json:"chunk_count"`
	Status         string `json:"status"`
	Version        int    `json:"version"`
	SkippedIngests int    `json:"skipped_ingests"`
}

// MetadataStats summarizes the metadata store.
type MetadataStats struct {
	TotalDocuments   int            `json:"total_documents"`
	ActiveDocuments  int            `json:"active_documents"`
	DeletedDocuments int            `json:"deleted_documents"`
	TotalChunks      int            `json:"total_chunks"`
	ByType           map[string]int `json:"by_type"`
}

// MetadataStore tracks DocumentRecords in one JSON file, keyed by
// doc_id and rewritten wholesale on every mutation.
type MetadataStore struct {
	mu      sync.RWMutex
	path    string
	records map[string]*DocumentRecord
}

// NewMetadataStore loads (or initializes) the metadata file at path.
// A corrupt file fails the load; a partially decoded map is never
// installed.
func NewMetadataStore(path string) (*MetadataStore, error) {
	m := &MetadataStore{path: path, records: make(map[string]*DocumentRecord)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &m.records); err != nil {
		return nil, fmt.Errorf("decoding metadata file %s: %w", path, err)
	}
	return m, nil
}

// Add registers a document. When the content hash is already known the
// record's version and skip counter increment instead, chunk count
// untouched, and isNew is false.
func (m *MetadataStore) Add(rec DocumentRecord) (isNew bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[rec.DocID]; ok && existing.ContentHash == rec.ContentHash {
		existing.Version++
		existing.SkippedIngests++
		existing.Status = StatusActive
		return false, m.saveLocked()
	}

	rec.Version = 1
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	if rec.UploadTime == "" {
		rec.UploadTime = time.Now().UTC().Format(time.RFC3339)
	}
	m.records[rec.DocID] = &rec
	return true, m.saveLocked()
}

// Get returns a record by doc id.
func (m *MetadataStore) Get(docID string) (DocumentRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[docID]
	if !ok {
		return DocumentRecord{}, false
	}
	return *rec, true
}

// SetChunkCount updates a record's chunk count. Used once chunks are
// durably stored, so metadata never claims chunks that were not
// written.
func (m *MetadataStore) SetChunkCount(docID string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docID]
	if !ok {
		return fmt.Errorf("store: unknown document %s", docID)
	}
	rec.ChunkCount = n
	return m.saveLocked()
}

// SoftDelete marks a document deleted. Reports whether the document
// existed and was active.
func (m *MetadataStore) SoftDelete(docID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docID]
	if !ok || rec.Status == StatusDeleted {
		return false, nil
	}
	rec.Status = StatusDeleted
	return true, m.saveLocked()
}

// Restore reactivates a soft-deleted document record. The chunks
// themselves come back only with a re-ingest; restore is metadata
// level.
func (m *MetadataStore) Restore(docID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[docID]
	if !ok || rec.Status != StatusDeleted {
		return false, nil
	}
	rec.Status = StatusActive
	return true, m.saveLocked()
}

// List returns all records, active and deleted.
func (m *MetadataStore) List() []DocumentRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DocumentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, *rec)
	}
	return out
}

// Stats aggregates totals. Deleted documents count toward totals but
// not toward chunk totals or the by-type breakdown.
func (m *MetadataStore) Stats() MetadataStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MetadataStats{ByType: make(map[string]int)}
	for _, rec := range m.records {
		stats.TotalDocuments++
		if rec.Status == StatusDeleted {
			stats.DeletedDocuments++
			continue
		}
		stats.ActiveDocuments++
		stats.TotalChunks += rec.ChunkCount
		stats.ByType[rec.DocType]++
	}
	return stats
}

// Clear drops all records and rewrites the file.
func (m *MetadataStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*DocumentRecord)
	return m.saveLocked()
}

// saveLocked rewrites the whole file. Callers hold the write lock.
func (m *MetadataStore) saveLocked() error {
	data, err := json.MarshalIndent(m.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	dir := filepath.Dir(m.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating metadata dir: %w", err)
		}
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing metadata: %w", err)
	}
	return nil
}
