// Package ingest is the lazy embedding orchestrator: it defers vector
// generation until a document is actually needed, deduplicates by content
// hash, and tracks per-document embedding state for external pollers.
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/metrics"
)

// Document is the orchestrator's input: identity, raw text, and the access
// attributes to snapshot onto every embedding record.
type Document struct {
	ID       string
	Filename string
	Text     string
	Access   domain.AccessSnapshot
}

// Report summarizes one orchestration run.
type Report struct {
	DocumentID   string
	Status       domain.EmbeddingStatus
	Chunks       int
	Embeddings   int
	Degraded     int // batch slots stored as zero vectors
	Deduplicated bool
}

// Service orchestrates chunking, embedding, and indexing for one document at
// a time. Workers never share a document's in-flight state: each call owns
// its document end to end.
type Service struct {
	chunker  Chunker
	embedder Embedder
	index    Indexer
	statuses StatusStore
	logger   *zap.Logger
}

// New creates an ingest service.
func New(chunker Chunker, embedder Embedder, idx Indexer, statuses StatusStore, logger *zap.Logger) *Service {
	return &Service{
		chunker:  chunker,
		embedder: embedder,
		index:    idx,
		statuses: statuses,
		logger:   logger,
	}
}

// EmbedDocument runs the full pipeline for one document. The status
// transitions not_embedded -> pending -> embedded, or pending -> error on
// any unrecoverable failure; the status never advances to embedded unless
// the index confirmed the write.
//
// Dedup checks content identity, not document identity: a document whose
// text hash is already stored returns success with zero new work.
func (s *Service) EmbedDocument(ctx context.Context, doc Document) (Report, error) {
	if doc.ID == "" {
		return Report{}, fmt.Errorf("embed document: empty document id")
	}
	report := Report{DocumentID: doc.ID}

	hash := domain.ContentHash(doc.Text)

	prior, err := s.statuses.Get(ctx, doc.ID)
	if err != nil {
		return s.fail(ctx, doc.ID, "", report, fmt.Errorf("read prior status: %w", err))
	}

	exists, err := s.index.HasContent(ctx, hash)
	if err != nil {
		return s.fail(ctx, doc.ID, prior.ContentHash, report, fmt.Errorf("check content hash: %w", err))
	}
	if exists {
		// Dedup short-circuit: a successful no-op, not an error. The
		// document may still have changed, so its old chunk set goes.
		if err := s.removeStale(ctx, prior.ContentHash, hash); err != nil {
			return s.fail(ctx, doc.ID, prior.ContentHash, report, fmt.Errorf("remove stale chunk set: %w", err))
		}
		report.Status = domain.StatusEmbedded
		report.Deduplicated = true
		s.setStatus(ctx, doc.ID, domain.StatusEmbedded, hash, "")
		metrics.IngestDocumentsTotal.WithLabelValues("deduplicated").Inc()
		s.logger.Info("Document already embedded, skipping",
			zap.String("document_id", doc.ID),
			zap.String("content_hash", hash),
		)
		return report, nil
	}

	// Pending keeps the prior hash: until the new chunk set is indexed, the
	// old one is still the document's live set, and a retry after a failure
	// must know it to replace it.
	s.setStatus(ctx, doc.ID, domain.StatusPending, prior.ContentHash, "")

	chunks := s.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		err := fmt.Errorf("document %s produced no chunks: %w", doc.ID, domain.ErrEmptyDocument)
		return s.fail(ctx, doc.ID, prior.ContentHash, report, err)
	}
	report.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedded, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return s.fail(ctx, doc.ID, prior.ContentHash, report, fmt.Errorf("embed chunks: %w", err))
	}
	report.Embeddings = len(embedded.Embeddings)
	report.Degraded = embedded.Degraded()

	records := make([]domain.Record, len(chunks))
	for i, c := range chunks {
		records[i] = domain.Record{
			DocumentID:    doc.ID,
			Filename:      doc.Filename,
			Text:          c.Text,
			ChunkIndex:    c.Meta.Index,
			StartChar:     c.Meta.StartChar,
			EndChar:       c.Meta.EndChar,
			SectionHeader: c.Meta.SectionHeader,
			HasSection:    c.Meta.HasSection,
			Access:        doc.Access,
		}
	}

	// The document's text changed: replace its whole chunk set rather than
	// patching entries, keeping the dedup-by-hash invariant simple.
	if err := s.removeStale(ctx, prior.ContentHash, hash); err != nil {
		return s.fail(ctx, doc.ID, prior.ContentHash, report, fmt.Errorf("remove stale chunk set: %w", err))
	}

	added, err := s.index.Add(ctx, index.Batch{
		ContentHash: hash,
		Vectors:     embedded.Embeddings,
		Records:     records,
	})
	if err != nil {
		return s.fail(ctx, doc.ID, prior.ContentHash, report, fmt.Errorf("store embeddings: %w", err))
	}
	if !added {
		// Another writer stored the same content between the hash check and
		// the add. Same outcome as the dedup short-circuit.
		report.Status = domain.StatusEmbedded
		report.Deduplicated = true
		s.setStatus(ctx, doc.ID, domain.StatusEmbedded, hash, "")
		metrics.IngestDocumentsTotal.WithLabelValues("deduplicated").Inc()
		return report, nil
	}

	report.Status = domain.StatusEmbedded
	s.setStatus(ctx, doc.ID, domain.StatusEmbedded, hash, "")
	metrics.IngestDocumentsTotal.WithLabelValues("embedded").Inc()
	metrics.IngestChunksTotal.Add(float64(len(chunks)))

	s.logger.Info("Document embedded",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int("chunks", report.Chunks),
		zap.Int("degraded", report.Degraded),
	)
	return report, nil
}

// Remove drops a document's chunk set from the index and clears its status
// entry. Removing a document that was never embedded is a no-op.
func (s *Service) Remove(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("remove document: empty document id")
	}
	entry, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("read prior status: %w", err)
	}
	if entry.ContentHash != "" {
		if err := s.index.RemoveContent(ctx, entry.ContentHash); err != nil {
			return fmt.Errorf("remove chunk set: %w", err)
		}
	}
	if err := s.statuses.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete status: %w", err)
	}
	s.logger.Info("Document removed", zap.String("document_id", documentID))
	return nil
}

// Status answers "is document X embedded" from persisted state, without
// re-deriving it.
func (s *Service) Status(ctx context.Context, documentID string) (domain.StatusEntry, error) {
	entry, err := s.statuses.Get(ctx, documentID)
	if err != nil {
		return domain.StatusEntry{}, fmt.Errorf("document status: %w", err)
	}
	return entry, nil
}

// removeStale drops the chunk set of the document's previous text version.
// No-op when the document was never embedded or its text is unchanged.
func (s *Service) removeStale(ctx context.Context, priorHash, hash string) error {
	if priorHash == "" || priorHash == hash {
		return nil
	}
	return s.index.RemoveContent(ctx, priorHash)
}

// fail marks the document errored and returns the failure. The error status
// is reported, not swallowed; the document stays eligible for a retry.
// lastHash is the hash of the chunk set still live in the index, carried
// forward so a later retry can replace it.
func (s *Service) fail(ctx context.Context, documentID, lastHash string, report Report, err error) (Report, error) {
	report.Status = domain.StatusError
	s.setStatus(ctx, documentID, domain.StatusError, lastHash, err.Error())
	metrics.IngestDocumentsTotal.WithLabelValues("error").Inc()
	return report, err
}

// setStatus persists a status transition. Persistence failures are logged,
// not fatal: the orchestration outcome is already decided by this point.
func (s *Service) setStatus(ctx context.Context, documentID string, st domain.EmbeddingStatus, hash, msg string) {
	entry := domain.StatusEntry{Status: st, ContentHash: hash, Error: msg}
	if err := s.statuses.Set(ctx, documentID, entry); err != nil {
		s.logger.Warn("Failed to persist document status",
			zap.String("document_id", documentID),
			zap.String("status", string(st)),
			zap.Error(err),
		)
	}
}
