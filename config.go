package auditrag

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	// DataDir is the directory holding the vector index, the graph file
	// and the document metadata file. If empty, defaults to
	// ~/.auditrag/ (or the working directory when StorageDir is "local").
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// StorageDir controls where DataDir is resolved when it is not set.
	// Options: "home" (default) uses ~/.auditrag/, "local" uses the
	// current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// EmbeddingDim is the embedding dimension; must match the embedding
	// provider's model.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// Chunking
	ChunkSize    int `json:"chunk_size" yaml:"chunk_size"`       // target chunk size in characters
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"` // overlap between fixed-length splits

	// Retrieval defaults. Per-query values come from the intent router;
	// these seed the default plan.
	TopK        int     `json:"top_k" yaml:"top_k"`
	GraphTopK   int     `json:"graph_top_k" yaml:"graph_top_k"`
	GraphHops   int     `json:"graph_hops" yaml:"graph_hops"`
	HybridAlpha float64 `json:"hybrid_alpha" yaml:"hybrid_alpha"`
	UseRerank   bool    `json:"use_rerank" yaml:"use_rerank"`
	RerankTopK  int     `json:"rerank_top_k" yaml:"rerank_top_k"`

	// Graph building
	GraphConcurrency int `json:"graph_concurrency" yaml:"graph_concurrency"` // parallel workers during rebuild (default 8)

	// Timeouts, in seconds, for outbound capability calls.
	EmbedTimeout  int `json:"embed_timeout" yaml:"embed_timeout"`
	RerankTimeout int `json:"rerank_timeout" yaml:"rerank_timeout"`
	IntentTimeout int `json:"intent_timeout" yaml:"intent_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
// Stores live in ~/.auditrag/ by default.
func DefaultConfig() Config {
	return Config{
		StorageDir:       "home",
		EmbeddingDim:     1024,
		ChunkSize:        800,
		ChunkOverlap:     80,
		TopK:             10,
		GraphTopK:        15,
		GraphHops:        2,
		HybridAlpha:      0.65,
		UseRerank:        true,
		RerankTopK:       10,
		GraphConcurrency: 8,
		EmbedTimeout:     60,
		RerankTimeout:    30,
		IntentTimeout:    15,
	}
}

// resolveDataDir computes the final data directory from config fields.
func (c *Config) resolveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}

	switch c.StorageDir {
	case "local", "cwd":
		return "."
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return "." // fallback to cwd
		}
		return filepath.Join(home, ".auditrag")
	}
}
