// Package openai is the embedding provider transport for OpenAI-compatible
// APIs. It normalizes every vector to the standard index dimension and keeps
// batch output aligned with batch input even when individual items fail.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/metrics"
)

// Embedder is an embedding provider using the OpenAI-compatible API.
type Embedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	provider   string
	logger     *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Provider   string
	Logger     *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = domain.DefaultDimensions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: dims,
		provider:   cfg.Provider,
		logger:     logger,
	}
}

// Embed implements domain.Embedder. The returned vector is zero-padded on the
// right to the standard dimension when the native output is shorter.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})

	duration := time.Since(start)

	if err != nil {
		e.countError("api_error")
		return domain.EmbeddingResult{}, e.parseAPIError(err)
	}
	if len(resp.Data) == 0 {
		e.countError("empty_response")
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProvider)
	}

	e.countSuccess(duration, resp.Usage.PromptTokens, resp.Usage.TotalTokens)

	return domain.EmbeddingResult{
		Embedding:    domain.PadVector(resp.Data[0].Embedding, e.dimensions),
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}, nil
}

// EmbedBatch implements domain.BatchEmbedder. One API call embeds all texts;
// if the call fails for a non-quota reason, items are retried one by one and
// any item that still fails degrades to a zero vector with its error recorded
// in the aligned ItemErrs slot. Quota refusal aborts the whole batch: it is a
// caller-visible "try again later" condition, not a degradable one.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		parsed := e.parseAPIError(err)
		if errors.Is(parsed, domain.ErrQuotaExceeded) || errors.Is(parsed, domain.ErrRateLimited) {
			e.countError("quota")
			return domain.BatchEmbeddingResult{}, parsed
		}
		e.countError("batch_error")
		e.logger.Warn("Batch embedding call failed, retrying per item",
			zap.String("provider", e.provider),
			zap.Int("batch_size", len(texts)),
			zap.Error(parsed),
		)
		return e.embedPerItem(ctx, texts)
	}

	result := domain.BatchEmbeddingResult{
		Embeddings:   make([][]float32, len(texts)),
		ItemErrs:     make([]error, len(texts)),
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			continue
		}
		result.Embeddings[d.Index] = domain.PadVector(d.Embedding, e.dimensions)
	}
	// Missing slots keep index alignment with a zero vector.
	for i, vec := range result.Embeddings {
		if vec == nil {
			result.Embeddings[i] = domain.ZeroVector(e.dimensions)
			result.ItemErrs[i] = fmt.Errorf("no embedding in response: %w", domain.ErrEmbeddingProvider)
			metrics.EmbeddingDegradedTotal.WithLabelValues(e.provider, string(e.model)).Inc()
		}
	}

	e.countSuccess(time.Since(start), resp.Usage.PromptTokens, resp.Usage.TotalTokens)
	return result, nil
}

// embedPerItem is the degrade path after a failed batch call: each item is
// embedded independently and failures become zero-vector slots.
func (e *Embedder) embedPerItem(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	result := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		ItemErrs:   make([]error, len(texts)),
	}
	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) || errors.Is(err, domain.ErrRateLimited) {
				return domain.BatchEmbeddingResult{}, err
			}
			result.Embeddings[i] = domain.ZeroVector(e.dimensions)
			result.ItemErrs[i] = err
			metrics.EmbeddingDegradedTotal.WithLabelValues(e.provider, string(e.model)).Inc()
			continue
		}
		result.Embeddings[i] = res.Embedding
		result.PromptTokens += res.PromptTokens
		result.TotalTokens += res.TotalTokens
	}
	return result, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (e *Embedder) countSuccess(duration time.Duration, promptTokens, totalTokens int) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(e.provider, string(e.model)).Observe(duration.Seconds())
	if totalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "prompt").Add(float64(promptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(e.provider, string(e.model), "total").Add(float64(totalTokens))
	}
}

func (e *Embedder) countError(kind string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, string(e.model), "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(e.provider, string(e.model), kind).Inc()
}

// parseAPIError maps provider failures onto the domain error taxonomy.
// HTTP 429 with an insufficient_quota code is a quota refusal; any other 429
// is a rate limit; the rest wrap ErrEmbeddingProvider.
func (e *Embedder) parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "insufficient_quota") {
				return fmt.Errorf("embedding API: %s: %w", apiErr.Message, domain.ErrQuotaExceeded)
			}
			return fmt.Errorf("embedding API: %s: %w", apiErr.Message, domain.ErrRateLimited)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrEmbeddingProvider)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("embedding API error 429: %w", domain.ErrRateLimited)
		}
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, detail, domain.ErrEmbeddingProvider)
	}

	return fmt.Errorf("embedding request failed: %w", domain.ErrEmbeddingProvider)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
