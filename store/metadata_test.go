package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func newTestMetadataStore(t *testing.T) *MetadataStore {
	t.Helper()
	m, err := NewMetadataStore(filepath.Join(t.TempDir(), "documents.json"))
	if err != nil {
		t.Fatalf("creating metadata store: %v", err)
	}
	return m
}

func sampleRecord(docID string) DocumentRecord {
	return DocumentRecord{
		DocID:       docID,
		Filename:    "report.txt",
		ContentHash: docID,
		DocType:     "report",
		Title:       "年度报告",
		ChunkCount:  0,
	}
}

func TestMetadataAddNew(t *testing.T) {
	m := newTestMetadataStore(t)

	isNew, err := m.Add(sampleRecord("abc"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !isNew {
		t.Error("first Add should report isNew")
	}
	rec, ok := m.Get("abc")
	if !ok {
		t.Fatal("record missing after Add")
	}
	if rec.Version != 1 || rec.Status != StatusActive {
		t.Errorf("record = %+v, want version 1, active", rec)
	}
	if rec.UploadTime == "" {
		t.Error("upload time not defaulted")
	}
}

func TestMetadataDuplicateHashSkips(t *testing.T) {
	m := newTestMetadataStore(t)

	if _, err := m.Add(sampleRecord("abc")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.SetChunkCount("abc", 7); err != nil {
		t.Fatalf("SetChunkCount: %v", err)
	}

	isNew, err := m.Add(sampleRecord("abc"))
	if err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	if isNew {
		t.Error("re-adding the same hash should not be new")
	}
	rec, _ := m.Get("abc")
	if rec.Version != 2 {
		t.Errorf("Version = %d, want 2", rec.Version)
	}
	if rec.SkippedIngests != 1 {
		t.Errorf("SkippedIngests = %d, want 1", rec.SkippedIngests)
	}
	if rec.ChunkCount != 7 {
		t.Errorf("ChunkCount = %d, want 7 unchanged", rec.ChunkCount)
	}
}

func TestMetadataSoftDeleteAndRestore(t *testing.T) {
	m := newTestMetadataStore(t)
	if _, err := m.Add(sampleRecord("abc")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.SetChunkCount("abc", 5); err != nil {
		t.Fatalf("SetChunkCount: %v", err)
	}

	ok, err := m.SoftDelete("abc")
	if err != nil || !ok {
		t.Fatalf("SoftDelete = %v, %v", ok, err)
	}

	// Deleted documents drop out of chunk totals and the by-type
	// breakdown.
	stats := m.Stats()
	if stats.ActiveDocuments != 0 || stats.DeletedDocuments != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalChunks != 0 {
		t.Errorf("TotalChunks = %d, want 0 after delete", stats.TotalChunks)
	}
	if stats.ByType["report"] != 0 {
		t.Errorf("ByType[report] = %d, want 0", stats.ByType["report"])
	}

	ok, err = m.Restore("abc")
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v", ok, err)
	}
	stats = m.Stats()
	if stats.ActiveDocuments != 1 || stats.TotalChunks != 5 {
		t.Errorf("stats after restore = %+v", stats)
	}

	if ok, _ := m.SoftDelete("missing"); ok {
		t.Error("deleting an unknown document should report false")
	}
}

func TestMetadataPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")
	m, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	if _, err := m.Add(sampleRecord("abc")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.SetChunkCount("abc", 3); err != nil {
		t.Fatalf("SetChunkCount: %v", err)
	}

	reloaded, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	rec, ok := reloaded.Get("abc")
	if !ok {
		t.Fatal("record lost across reload")
	}
	if rec.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", rec.ChunkCount)
	}
}

func TestMetadataCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "documents.json")
	if err := writeTestFile(path, "{broken"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewMetadataStore(path); err == nil {
		t.Fatal("corrupt metadata file should fail to load")
	}
}
