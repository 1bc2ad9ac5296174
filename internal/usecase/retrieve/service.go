// Package retrieve fuses semantic and lexical relevance signals into one
// ranked result set. Vector search produces the candidate pool; BM25 rescoring
// runs over that pool only, never the whole collection.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/metrics"
)

// Default fusion weights. They should sum to 1 by convention, though the
// service does not enforce it.
const (
	DefaultVectorWeight  = 0.7
	DefaultLexicalWeight = 0.3
)

// Result is a single ranked hit. Score, VectorScore, and LexicalScore all
// lie in [0, 1]; results are ordered descending by Score.
type Result struct {
	Record       domain.Record
	Score        float64
	VectorScore  float64
	LexicalScore float64
}

// Request carries one retrieval query. TopK defaults to 5 when unset;
// MinScore at zero keeps everything. Filter, when non-nil, is pushed down to
// the index as an access pre-filter.
type Request struct {
	Query    string
	TopK     int
	MinScore float64
	Filter   *domain.AccessFilter
}

// Service is the hybrid retriever.
type Service struct {
	searcher      Searcher
	embedder      Embedder
	lexical       LexicalScorer
	vectorWeight  float64
	lexicalWeight float64
	logger        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWeights overrides the fusion weights.
func WithWeights(vector, lexical float64) Option {
	return func(s *Service) {
		s.vectorWeight = vector
		s.lexicalWeight = lexical
	}
}

// New creates a hybrid retriever with default 0.7/0.3 fusion weights.
func New(searcher Searcher, embedder Embedder, lexical LexicalScorer, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		searcher:      searcher,
		embedder:      embedder,
		lexical:       lexical,
		vectorWeight:  DefaultVectorWeight,
		lexicalWeight: DefaultLexicalWeight,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve embeds the query once, oversamples 2x top-k candidates from the
// vector index, rescores them lexically, and fuses both signals.
//
// Degenerate inputs degrade, they do not fail: an empty index or a candidate
// set with no usable text yields an empty result set and a nil error. Only
// embedding and index failures propagate.
func (s *Service) Retrieve(ctx context.Context, req Request) ([]Result, error) {
	start := time.Now()
	results, err := s.retrieve(ctx, req)
	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if len(results) == 0 {
		metrics.RetrievalRequestsTotal.WithLabelValues("empty").Inc()
	} else {
		metrics.RetrievalRequestsTotal.WithLabelValues("ok").Inc()
	}
	return results, nil
}

func (s *Service) retrieve(ctx context.Context, req Request) ([]Result, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}

	embedded, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}

	// Oversample: the vector and lexical rankings disagree, and fusion needs
	// slack beyond top-k to let lexical evidence promote candidates.
	hits, err := s.searcher.Search(ctx, embedded.Embedding, 2*topK, req.Filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(hits))
	kept := make([]int, 0, len(hits))
	for i, h := range hits {
		if h.Record.Text == "" {
			continue
		}
		texts = append(texts, h.Record.Text)
		kept = append(kept, i)
	}
	if len(kept) == 0 {
		s.logger.Warn("Vector candidates carry no usable text",
			zap.Int("candidates", len(hits)),
		)
		return nil, nil
	}

	vectorScores := make([]float64, len(kept))
	for i, idx := range kept {
		vectorScores[i] = 1 / (1 + hits[idx].Distance)
	}
	lexicalScores := s.lexical.Scores(req.Query, texts)

	normVector := minMaxNormalize(vectorScores)
	normLexical := minMaxNormalize(lexicalScores)

	results := make([]Result, 0, len(kept))
	for i, idx := range kept {
		combined := s.vectorWeight*normVector[i] + s.lexicalWeight*normLexical[i]
		if combined < req.MinScore {
			continue
		}
		results = append(results, Result{
			Record:       hits[idx].Record,
			Score:        combined,
			VectorScore:  normVector[i],
			LexicalScore: normLexical[i],
		})
	}

	// Stable: ties keep the original candidate order (ascending distance).
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// minMaxNormalize maps scores to [0, 1]. A constant list normalizes to
// all-zero rather than dividing by zero.
func minMaxNormalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, v := range scores[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	for i, v := range scores {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
