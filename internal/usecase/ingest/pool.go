package ingest

import (
	"context"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DefaultWorkers bounds concurrent document pipelines. Embedding providers
// rate-limit aggressively, so the ceiling stays low by default.
const DefaultWorkers = 5

// Pool runs EmbedDocument for many documents concurrently over a bounded
// worker pool. Documents are independent: one failure never stops the rest.
type Pool struct {
	service *Service
	workers *ants.Pool
	logger  *zap.Logger
}

// NewPool creates a pool with the given worker count; values below one fall
// back to DefaultWorkers.
func NewPool(service *Service, workers int, logger *zap.Logger) (*Pool, error) {
	if workers < 1 {
		workers = DefaultWorkers
	}
	p, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}
	return &Pool{service: service, workers: p, logger: logger}, nil
}

// EmbedAll processes every document and returns a report per input, in input
// order. Per-document failures are recorded in the matching report's error
// slot and logged; EmbedAll itself only fails on pool submission errors.
func (p *Pool) EmbedAll(ctx context.Context, docs []Document) ([]Report, []error) {
	reports := make([]Report, len(docs))
	errs := make([]error, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		i, doc := i, doc
		wg.Add(1)
		if err := p.workers.Submit(func() {
			defer wg.Done()
			report, err := p.service.EmbedDocument(ctx, doc)
			reports[i] = report
			errs[i] = err
			if err != nil {
				p.logger.Error("Document embedding failed",
					zap.String("document_id", doc.ID),
					zap.Error(err),
				)
			}
		}); err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	return reports, errs
}

// Release tears down the worker pool. The pool cannot be reused after.
func (p *Pool) Release() {
	p.workers.Release()
}
