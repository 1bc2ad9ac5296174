package flat

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DirStore manages the per-document deployment shape: one independent index
// per document, stored under root keyed by document id. A per-document index
// only ever holds one document's chunks, so it needs no cross-document
// filtering.
type DirStore struct {
	mu     sync.Mutex
	root   string
	open   map[string]*Index
	logger *zap.Logger
}

// NewDirStore creates a per-document index store rooted at dir.
func NewDirStore(root string, logger *zap.Logger) *DirStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirStore{
		root:   root,
		open:   make(map[string]*Index),
		logger: logger,
	}
}

// Open returns the index for the document, loading its snapshot on first use.
// Instances are cached so all writers for one document share a single lock.
func (s *DirStore) Open(documentID string) (*Index, error) {
	if documentID == "" {
		return nil, fmt.Errorf("open: empty document id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.open[documentID]; ok {
		return idx, nil
	}

	path := filepath.Join(s.root, sanitize(documentID)+".idx")
	idx, err := Open(path, s.logger)
	if err != nil {
		return nil, fmt.Errorf("open document index %s: %w", documentID, err)
	}
	s.open[documentID] = idx
	return idx, nil
}

// sanitize maps a document id to a safe filename component.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
