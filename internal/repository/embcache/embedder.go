// Package embcache caches embeddings in a key-value store, keyed by the
// SHA-256 of the input text, so repeated chunk or query text never pays for
// a second provider call.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/db"
	"github.com/docsift/docsift/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the embedding cache.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// CachedEmbedder is a caching decorator around an embedding provider. It
// never caches degraded (zero-vector) batch slots, so a transient provider
// failure cannot poison the cache.
type CachedEmbedder struct {
	inner      domain.Embedder
	batch      domain.BatchEmbedder
	store      store
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator. inner must also implement
// domain.BatchEmbedder for EmbedBatch to pass through misses in one call;
// otherwise misses fall back to per-item Embed.
// cacheTotal is a counter vec with label "result" ("hit"/"miss").
func New(
	inner domain.Embedder,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	batch, _ := inner.(domain.BatchEmbedder)
	return &CachedEmbedder{
		inner:      inner,
		batch:      batch,
		store:      s,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.incCache("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// EmbedBatch serves cached slots from the store and embeds only the misses,
// preserving input ordering in the merged result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	result := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		ItemErrs:   make([]error, len(texts)),
	}

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, cacheKey(text)); ok {
			c.incCache("hit")
			result.Embeddings[i] = vec
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return result, nil
	}

	missed, err := c.embedMisses(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed batch: %w", err)
	}

	result.PromptTokens = missed.PromptTokens
	result.TotalTokens = missed.TotalTokens
	for j, i := range missIdx {
		result.Embeddings[i] = missed.Embeddings[j]
		if j < len(missed.ItemErrs) {
			result.ItemErrs[i] = missed.ItemErrs[j]
		}
		if result.ItemErrs[i] == nil {
			c.putToCache(ctx, cacheKey(texts[i]), result.Embeddings[i])
		}
	}
	return result, nil
}

func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if c.batch != nil {
		return c.batch.EmbedBatch(ctx, texts)
	}

	out := domain.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		ItemErrs:   make([]error, len(texts)),
	}
	for i, text := range texts {
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return domain.BatchEmbeddingResult{}, err
		}
		out.Embeddings[i] = res.Embedding
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}
	return out, nil
}

// HealthCheck forwards to the wrapped provider when it supports one.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) putToCache(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
