package domain

import "context"

// KeyPrefix namespaces all keys the module writes to the shared KV store.
const KeyPrefix = "docsift:"

// DefaultDimensions is the standard vector length across the index.
// Shorter native embeddings are zero-padded to this length, never truncated.
const DefaultDimensions = 1024

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts, best-effort per item: a single
// item's failure fills its slot with a zero vector instead of aborting the
// batch, so index alignment with the input ordering is preserved.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the
// decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries one vector per input text plus a per-item
// error slice aligned with the inputs. ItemErrs[i] != nil means slot i
// degraded to a zero vector; callers decide whether to store or retry it.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	ItemErrs     []error
	PromptTokens int
	TotalTokens  int
}

// Degraded counts the slots that fell back to a zero vector.
func (r BatchEmbeddingResult) Degraded() int {
	n := 0
	for _, err := range r.ItemErrs {
		if err != nil {
			n++
		}
	}
	return n
}

// ZeroVector returns a zero-filled vector of the given dimension.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// PadVector right-pads a vector with zeros up to dim. Vectors already at or
// above dim are returned unchanged; the index rejects overlong ones loudly.
func PadVector(vec []float32, dim int) []float32 {
	if len(vec) >= dim {
		return vec
	}
	padded := make([]float32, dim)
	copy(padded, vec)
	return padded
}
