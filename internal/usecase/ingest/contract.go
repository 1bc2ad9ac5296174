package ingest

import (
	"context"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
)

// Chunker splits document text into retrieval-sized passages.
type Chunker interface {
	Chunk(text string) []domain.Chunk
}

// Embedder vectorizes chunk texts in bulk, best-effort per item.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Indexer is the storage contract for embedding records.
type Indexer interface {
	Add(ctx context.Context, batch index.Batch) (bool, error)
	HasContent(ctx context.Context, contentHash string) (bool, error)
	RemoveContent(ctx context.Context, contentHash string) error
}

// StatusStore persists per-document embedding status for external pollers.
type StatusStore interface {
	Set(ctx context.Context, documentID string, entry domain.StatusEntry) error
	Get(ctx context.Context, documentID string) (domain.StatusEntry, error)
	Delete(ctx context.Context, documentID string) error
}
