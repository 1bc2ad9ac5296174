// Package status persists per-document embedding status so high-traffic
// callers can ask "is document X embedded" without re-running orchestration.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/domain"
)

var keyPrefix = domain.KeyPrefix + "doc_status:"

// store is the consumer interface for status persistence.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// Store persists document embedding status in a KV store.
type Store struct {
	store store
}

// New creates a status store.
func New(s store) *Store {
	return &Store{store: s}
}

// Set writes the document's status entry, stamping the update time.
func (s *Store) Set(ctx context.Context, documentID string, entry domain.StatusEntry) error {
	if !entry.Status.Valid() {
		return fmt.Errorf("invalid status %q for document %s", entry.Status, documentID)
	}
	entry.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := s.store.Set(ctx, keyPrefix+documentID, data); err != nil {
		return fmt.Errorf("set status %s: %w", documentID, err)
	}
	return nil
}

// Get reads the document's status entry. A document never seen by the
// orchestrator reports StatusNotEmbedded.
func (s *Store) Get(ctx context.Context, documentID string) (domain.StatusEntry, error) {
	data, err := s.store.Get(ctx, keyPrefix+documentID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.StatusEntry{Status: domain.StatusNotEmbedded}, nil
		}
		return domain.StatusEntry{}, fmt.Errorf("get status %s: %w", documentID, err)
	}

	var entry domain.StatusEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.StatusEntry{}, fmt.Errorf("unmarshal status %s: %w", documentID, err)
	}
	return entry, nil
}

// Delete removes the document's status entry.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	if err := s.store.Del(ctx, keyPrefix+documentID); err != nil {
		return fmt.Errorf("delete status %s: %w", documentID, err)
	}
	return nil
}
