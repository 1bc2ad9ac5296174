package retrieve

import (
	"context"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
)

// Searcher answers nearest-neighbor queries over stored embedding records.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int, filter *domain.AccessFilter) ([]index.Hit, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// LexicalScorer scores candidate texts against the query by term overlap.
type LexicalScorer interface {
	Scores(query string, candidates []string) []float64
}
