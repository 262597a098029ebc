package auditrag

import "errors"

var (
	// ErrValidation is returned for malformed requests: length mismatches,
	// missing required fields, empty query text. Rejected before any write.
	ErrValidation = errors.New("auditrag: invalid request")

	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("auditrag: document not found")

	// ErrEmptyStore is returned when searching an empty or absent store.
	ErrEmptyStore = errors.New("auditrag: store is empty")

	// ErrNodeNotFound is returned when a graph inspection names an
	// unknown node.
	ErrNodeNotFound = errors.New("auditrag: graph node not found")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("auditrag: embedding generation failed")

	// ErrRerankFailed is returned when the rerank capability fails.
	// Rerank failures fail the whole request; relevance correctness
	// outranks availability.
	ErrRerankFailed = errors.New("auditrag: rerank failed")

	// ErrUpstream is returned when an external capability is unreachable
	// and no documented degradation applies.
	ErrUpstream = errors.New("auditrag: upstream service failed")

	// ErrStoreCorrupt is returned when a persisted store cannot be decoded
	// or its index and sidecar disagree. Fatal for the affected store; a
	// partially loaded store is never returned.
	ErrStoreCorrupt = errors.New("auditrag: store corrupt")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("auditrag: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("auditrag: invalid configuration")
)
