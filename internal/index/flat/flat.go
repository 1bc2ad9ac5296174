// Package flat implements the index contract with a brute-force scan over an
// in-memory record set, persisted as a single snapshot file. Suitable for a
// few hundred thousand chunks; both deployment shapes share this backend.
package flat

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
)

// Compile-time check: Index implements the shared contract.
var _ index.Index = (*Index)(nil)

type entry struct {
	hash   string
	vector []float32
	record domain.Record
}

// Index is a flat vector index. All mutations hold the writer lock and
// re-persist the snapshot before reporting success, so concurrent writers to
// the same file serialize through one instance (single-writer discipline).
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	hashes  map[string]int // content hash -> number of entries under it
	path    string         // empty = in-memory only
	logger  *zap.Logger
}

// Open loads the index snapshot at path, or starts an empty index when the
// file does not exist. An empty path keeps the index in memory only.
func Open(path string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Index{
		hashes: make(map[string]int),
		path:   path,
		logger: logger,
	}
	if path != "" {
		if err := idx.load(); err != nil {
			return nil, fmt.Errorf("load index %s: %w", path, err)
		}
	}
	return idx, nil
}

// Add appends one document's chunk set as a single ordered unit. It returns
// (false, nil) when the content hash is already stored, leaving state
// untouched. The first Add fixes the index dimension.
func (x *Index) Add(_ context.Context, batch index.Batch) (bool, error) {
	if len(batch.Vectors) != len(batch.Records) {
		return false, fmt.Errorf("add: %d vectors for %d records", len(batch.Vectors), len(batch.Records))
	}
	if len(batch.Vectors) == 0 {
		return false, fmt.Errorf("add: empty batch")
	}
	if batch.ContentHash == "" {
		return false, fmt.Errorf("add: missing content hash")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.hashes[batch.ContentHash] > 0 {
		return false, nil
	}

	dim := x.dim
	if dim == 0 {
		dim = len(batch.Vectors[0])
	}
	for i, vec := range batch.Vectors {
		if len(vec) != dim {
			return false, fmt.Errorf("add: vector %d has dimension %d, index has %d: %w",
				i, len(vec), dim, domain.ErrDimensionMismatch)
		}
	}

	prev := len(x.entries)
	for i, vec := range batch.Vectors {
		x.entries = append(x.entries, entry{
			hash:   batch.ContentHash,
			vector: vec,
			record: batch.Records[i],
		})
	}
	prevDim := x.dim
	x.dim = dim
	x.hashes[batch.ContentHash] = len(batch.Vectors)

	if err := x.persist(); err != nil {
		// Roll back so in-memory state never claims what storage rejected.
		x.entries = x.entries[:prev]
		x.dim = prevDim
		delete(x.hashes, batch.ContentHash)
		return false, fmt.Errorf("persist: %w", err)
	}
	return true, nil
}

// Search scans all entries satisfying the filter and returns up to k hits,
// ascending by squared Euclidean distance. An empty index returns an empty
// slice.
func (x *Index) Search(_ context.Context, vector []float32, k int, filter *domain.AccessFilter) ([]index.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(vector) != x.dim {
		return nil, fmt.Errorf("search: query dimension %d, index has %d: %w",
			len(vector), x.dim, domain.ErrDimensionMismatch)
	}

	hits := make([]index.Hit, 0, len(x.entries))
	for _, e := range x.entries {
		if !filter.Match(e.record.Access) {
			continue
		}
		hits = append(hits, index.Hit{Record: e.record, Distance: sqDist(vector, e.vector)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// HasContent reports whether any entries are stored under the content hash.
func (x *Index) HasContent(_ context.Context, contentHash string) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.hashes[contentHash] > 0, nil
}

// RemoveContent drops every entry stored under the content hash. Removing an
// absent hash is a no-op. Re-embedding replaces a document's whole chunk set:
// RemoveContent under the old hash, Add under the new one.
func (x *Index) RemoveContent(_ context.Context, contentHash string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.hashes[contentHash] == 0 {
		return nil
	}

	kept := make([]entry, 0, len(x.entries)-x.hashes[contentHash])
	for _, e := range x.entries {
		if e.hash != contentHash {
			kept = append(kept, e)
		}
	}
	old := x.entries
	count := x.hashes[contentHash]
	x.entries = kept
	delete(x.hashes, contentHash)

	if err := x.persist(); err != nil {
		x.entries = old
		x.hashes[contentHash] = count
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// Dimension returns the fixed vector dimension, 0 before the first Add.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
