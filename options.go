package docsift

import (
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/chunker"
	"github.com/docsift/docsift/internal/domain"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs    []string
	username string
	password string
	redisDB  int

	embedder   domain.Embedder
	provider   string
	model      string
	apiKey     string
	baseURL    string
	dimensions int
	cache      bool

	dailyTokenLimit   int64
	monthlyTokenLimit int64
	rejectOnBudget    bool

	dataDir   string
	sizeRules []chunker.SizeRule

	vectorWeight  float64
	lexicalWeight float64

	logger *zap.Logger
}

// WithRedis stores document status, quota counters, and the embedding cache
// in Redis instead of process memory.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithRedisCluster is WithRedis for multiple seed addresses.
func WithRedisCluster(addrs []string, username, password string) Option {
	return func(c *clientConfig) {
		c.addrs = addrs
		c.username = username
		c.password = password
	}
}

// WithOpenAI embeds through an OpenAI-compatible API. Model and dimensions
// fall back to text-embedding-3-small at the standard index dimension.
func WithOpenAI(apiKey, model string, dimensions int) Option {
	return func(c *clientConfig) {
		c.apiKey = apiKey
		if model != "" {
			c.model = model
		}
		if dimensions > 0 {
			c.dimensions = dimensions
		}
	}
}

// WithBaseURL points the OpenAI-compatible client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithEmbedder supplies a custom embedding provider instead of OpenAI.
func WithEmbedder(e domain.Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithEmbeddingCache caches embeddings in the configured store, keyed by
// text hash, so repeated chunk or query text never pays twice.
func WithEmbeddingCache() Option {
	return func(c *clientConfig) { c.cache = true }
}

// WithTokenBudget caps embedding token consumption per day and per month.
// A zero limit leaves that window unlimited. When reject is true, requests
// over the cap fail with domain.ErrQuotaExceeded; otherwise they are logged
// and allowed through.
func WithTokenBudget(daily, monthly int64, reject bool) Option {
	return func(c *clientConfig) {
		c.dailyTokenLimit = daily
		c.monthlyTokenLimit = monthly
		c.rejectOnBudget = reject
	}
}

// WithDataDir persists the vector index under dir. Without it the index
// lives only in process memory.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) { c.dataDir = dir }
}

// WithChunkSizeRules overrides the adaptive chunk size table.
func WithChunkSizeRules(rules []chunker.SizeRule) Option {
	return func(c *clientConfig) { c.sizeRules = rules }
}

// WithWeights sets the vector/lexical fusion weights for search.
func WithWeights(vector, lexical float64) Option {
	return func(c *clientConfig) {
		c.vectorWeight = vector
		c.lexicalWeight = lexical
	}
}

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}
