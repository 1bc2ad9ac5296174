package domain

import "time"

// EmbeddingStatus tracks where a document stands in the embedding lifecycle.
// Legal transitions: NotEmbedded -> Pending -> Embedded, and Pending -> Error.
// Error is terminal until a caller re-triggers embedding.
type EmbeddingStatus string

const (
	StatusNotEmbedded EmbeddingStatus = "not_embedded"
	StatusPending     EmbeddingStatus = "pending"
	StatusEmbedded    EmbeddingStatus = "embedded"
	StatusError       EmbeddingStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s EmbeddingStatus) Valid() bool {
	switch s {
	case StatusNotEmbedded, StatusPending, StatusEmbedded, StatusError:
		return true
	}
	return false
}

// StatusEntry is the persisted embedding state of one document. ContentHash
// records the last text version whose chunk set reached the index, so a
// changed document can have that set replaced even across failed attempts.
type StatusEntry struct {
	Status      EmbeddingStatus `json:"status"`
	ContentHash string          `json:"content_hash,omitempty"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
