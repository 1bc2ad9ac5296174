// Package index defines the vector index contract shared by the per-document
// and centralized deployment shapes. The hybrid retriever and the embedding
// orchestrator are backend-agnostic: they see only this interface.
package index

import (
	"context"

	"github.com/docsift/docsift/internal/domain"
)

// Batch is one document's chunk set: vectors and records stored as a single
// ordered unit under the document's content hash.
type Batch struct {
	ContentHash string
	Vectors     [][]float32
	Records     []domain.Record
}

// Hit is a single nearest-neighbor result. Distance is squared Euclidean;
// results are ordered ascending by it.
type Hit struct {
	Record   domain.Record
	Distance float64
}

// Index stores (vector, record) pairs and answers nearest-neighbor queries.
//
// Add returns false without mutating state when the batch's content hash is
// already present (idempotent dedup). The vector dimension is fixed by the
// first Add; a later Add with a different dimension fails loudly with
// domain.ErrDimensionMismatch.
//
// Search returns up to k hits; an empty index yields an empty slice, never an
// error. The filter, when non-nil, is pushed down as a pre-filter: records
// failing it are never candidates and cannot starve the k budget. Backends
// without cross-document filtering ignore the filter.
type Index interface {
	Add(ctx context.Context, batch Batch) (bool, error)
	Search(ctx context.Context, vector []float32, k int, filter *domain.AccessFilter) ([]Hit, error)
	HasContent(ctx context.Context, contentHash string) (bool, error)
	RemoveContent(ctx context.Context, contentHash string) error
	Dimension() int
	Len() int
}
