package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEmbedder wraps an embedder with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) live in transport/openai;
// this layer owns budget tracking and budget metrics only.
type InstrumentedEmbedder struct {
	inner    domain.Embedder
	batch    domain.BatchEmbedder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder with budget and observability.
// A nil budget disables enforcement.
func NewInstrumentedEmbedder(
	inner domain.Embedder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEmbedder {
	batch, _ := inner.(domain.BatchEmbedder)
	return &InstrumentedEmbedder{
		inner:    inner,
		batch:    batch,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Embed checks the budget, delegates, and records usage.
func (p *InstrumentedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := p.checkBudget(ctx, 1); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.inner.Embed(ctx, text)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.recordUsage(result.TotalTokens)
	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// EmbedBatch checks the budget once for the batch, delegates, and records the
// aggregate usage. Providers without native batch fall back to per-item calls.
func (p *InstrumentedEmbedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	if err := p.checkBudget(ctx, len(texts)); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	start := time.Now()
	result, err := p.embedBatch(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Batch embedding failed",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("batch_size", len(texts)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}

	p.recordUsage(result.TotalTokens)
	if degraded := result.Degraded(); degraded > 0 {
		p.logger.Warn("Batch embedding degraded slots to zero vectors",
			zap.String("provider", p.provider),
			zap.Int("batch_size", len(texts)),
			zap.Int("degraded", degraded),
		)
	}
	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.provider),
		zap.String("model", p.model),
		zap.Int("batch_size", len(texts)),
		zap.Duration("duration", duration),
		zap.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

func (p *InstrumentedEmbedder) embedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if p.batch != nil {
		return p.batch.EmbedBatch(ctx, texts)
	}

	out := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		ItemErrs:   make([]error, len(texts)),
	}
	for i, text := range texts {
		res, err := p.inner.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck forwards to the wrapped provider when it supports one.
func (p *InstrumentedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := p.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (p *InstrumentedEmbedder) checkBudget(ctx context.Context, batchSize int) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Int("batch_size", batchSize),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedEmbedder) recordUsage(totalTokens int) {
	if p.budget == nil || totalTokens <= 0 {
		return
	}
	p.budget.Record(int64(totalTokens))
	remaining := metrics.EmbeddingBudgetTokensRemaining
	remaining.WithLabelValues(p.provider, "daily").Set(float64(p.budget.RemainingDaily()))
	remaining.WithLabelValues(p.provider, "monthly").Set(float64(p.budget.RemainingMonthly()))
}
