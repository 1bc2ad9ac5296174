package docsift

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/chunker"
	"github.com/docsift/docsift/internal/db"
	dbMemory "github.com/docsift/docsift/internal/db/memory"
	dbRedis "github.com/docsift/docsift/internal/db/redis"
	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index/flat"
	"github.com/docsift/docsift/internal/lexical"
	"github.com/docsift/docsift/internal/metrics"
	"github.com/docsift/docsift/internal/repository/embcache"
	"github.com/docsift/docsift/internal/repository/quota"
	statusrepo "github.com/docsift/docsift/internal/repository/status"
	openaitr "github.com/docsift/docsift/internal/transport/openai"
	embeddinguc "github.com/docsift/docsift/internal/usecase/embedding"
	ingestuc "github.com/docsift/docsift/internal/usecase/ingest"
	retrieveuc "github.com/docsift/docsift/internal/usecase/retrieve"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the embeddable entry point: one centralized index with the
// ingestion and retrieval services wired over it.
type Client struct {
	store    db.Store
	ingest   *ingestuc.Service
	retrieve *retrieveuc.Service
	statuses *statusrepo.Store
	logger   *zap.Logger
}

// New creates a Client. An embedding provider is required: either
// WithOpenAI or WithEmbedder.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		provider:   "openai",
		model:      "text-embedding-3-small",
		dimensions: domain.DefaultDimensions,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.embedder == nil && cfg.apiKey == "" {
		return nil, errors.New("docsift: embedding provider required (use WithOpenAI or WithEmbedder)")
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if len(cfg.addrs) > 0 {
		if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("docsift: database not ready: %w", err)
		}
	}

	embedder := buildEmbedder(ctx, cfg, store)

	var indexPath string
	if cfg.dataDir != "" {
		indexPath = filepath.Join(cfg.dataDir, "index.idx")
	}
	idx, err := flat.Open(indexPath, cfg.logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("docsift: open index: %w", err)
	}

	var chunkerOpts []chunker.Option
	if len(cfg.sizeRules) > 0 {
		chunkerOpts = append(chunkerOpts, chunker.WithSizeRules(cfg.sizeRules))
	}
	ck := chunker.New(chunkerOpts...)

	var retrieveOpts []retrieveuc.Option
	if cfg.vectorWeight != 0 || cfg.lexicalWeight != 0 {
		retrieveOpts = append(retrieveOpts, retrieveuc.WithWeights(cfg.vectorWeight, cfg.lexicalWeight))
	}

	statuses := statusrepo.New(store)
	return &Client{
		store:    store,
		ingest:   ingestuc.New(ck, embedder, idx, statuses, cfg.logger),
		retrieve: retrieveuc.New(idx, embedder, lexical.NewScorer(), cfg.logger, retrieveOpts...),
		statuses: statuses,
		logger:   cfg.logger,
	}, nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	if len(cfg.addrs) == 0 {
		return dbMemory.NewStore(), nil
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
		DB:       cfg.redisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("docsift: create redis store: %w", err)
	}
	return store, nil
}

// buildEmbedder assembles the decorator chain: provider -> cache -> budget.
func buildEmbedder(ctx context.Context, cfg *clientConfig, store db.Store) *embeddinguc.InstrumentedEmbedder {
	embedder := cfg.embedder
	if embedder == nil {
		embedder = openaitr.NewEmbedder(&openaitr.Config{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.model,
			Dimensions: cfg.dimensions,
			Provider:   cfg.provider,
			Logger:     cfg.logger,
		})
	}
	if cfg.cache {
		embedder = embcache.New(embedder, store, metrics.EmbeddingCacheTotal, cfg.logger)
	}

	var budgetChecker embeddinguc.BudgetChecker
	if cfg.dailyTokenLimit > 0 || cfg.monthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if cfg.rejectOnBudget {
			action = embeddinguc.BudgetActionReject
		}
		budget := embeddinguc.NewBudgetTracker(
			cfg.provider, cfg.dailyTokenLimit, cfg.monthlyTokenLimit, action, cfg.logger,
		)
		budget.WithStore(ctx, quota.New(store, 48*time.Hour, 62*24*time.Hour))
		budgetChecker = budget
	}

	return embeddinguc.NewInstrumentedEmbedder(embedder, cfg.provider, cfg.model, budgetChecker, cfg.logger)
}

// Access carries the access-control attributes snapshotted onto every
// embedding record of a document.
type Access struct {
	Visibility     string
	InstitutionID  string
	ApprovalStatus string
}

// Document is a document handed to Ingest.
type Document struct {
	ID       string
	Filename string
	Text     string
	Access   Access
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	DocumentID   string
	Status       string
	Chunks       int
	Embeddings   int
	Degraded     int
	Deduplicated bool
}

// Ingest chunks, embeds, and indexes one document. Unchanged text is
// detected by content hash and skipped without an embedding call.
func (c *Client) Ingest(ctx context.Context, doc Document) (IngestReport, error) {
	report, err := c.ingest.EmbedDocument(ctx, toInternalDocument(doc))
	return fromInternalReport(report), err
}

// IngestAll embeds documents concurrently on a bounded worker pool.
// Reports and errors are aligned with the input order; a failed document
// never stops the others.
func (c *Client) IngestAll(ctx context.Context, docs []Document, workers int) ([]IngestReport, []error, error) {
	pool, err := ingestuc.NewPool(c.ingest, workers, c.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("docsift: create worker pool: %w", err)
	}
	defer pool.Release()

	internal := make([]ingestuc.Document, len(docs))
	for i, d := range docs {
		internal[i] = toInternalDocument(d)
	}
	reports, errs := pool.EmbedAll(ctx, internal)

	out := make([]IngestReport, len(reports))
	for i, r := range reports {
		out[i] = fromInternalReport(r)
	}
	return out, errs, nil
}

// SearchOptions configures a search. Zero filter fields match everything.
type SearchOptions struct {
	TopK           int
	MinScore       float64
	Visibilities   []string
	InstitutionID  string
	ApprovalStatus string
}

// SearchResult is one retrieved chunk with its fused relevance score.
type SearchResult struct {
	DocumentID    string
	Filename      string
	Text          string
	ChunkIndex    int
	StartChar     int
	EndChar       int
	SectionHeader string
	Score         float64
	VectorScore   float64
	LexicalScore  float64
}

// Search runs a hybrid vector + lexical query over the index.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	if opts == nil {
		opts = &SearchOptions{}
	}

	req := retrieveuc.Request{
		Query:    query,
		TopK:     opts.TopK,
		MinScore: opts.MinScore,
	}
	if len(opts.Visibilities) > 0 || opts.InstitutionID != "" || opts.ApprovalStatus != "" {
		req.Filter = &domain.AccessFilter{
			Visibilities:   opts.Visibilities,
			InstitutionID:  opts.InstitutionID,
			ApprovalStatus: opts.ApprovalStatus,
		}
	}

	results, err := c.retrieve.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{
			DocumentID:    r.Record.DocumentID,
			Filename:      r.Record.Filename,
			Text:          r.Record.Text,
			ChunkIndex:    r.Record.ChunkIndex,
			StartChar:     r.Record.StartChar,
			EndChar:       r.Record.EndChar,
			SectionHeader: r.Record.SectionHeader,
			Score:         r.Score,
			VectorScore:   r.VectorScore,
			LexicalScore:  r.LexicalScore,
		}
	}
	return out, nil
}

// StatusReport is the embedding state of one document.
type StatusReport struct {
	Status      string
	ContentHash string
	Error       string
	UpdatedAt   time.Time
}

// Status reports where a document stands in the embedding lifecycle.
// Documents never ingested report "not_embedded".
func (c *Client) Status(ctx context.Context, documentID string) (StatusReport, error) {
	entry, err := c.ingest.Status(ctx, documentID)
	if err != nil {
		return StatusReport{}, err
	}
	return StatusReport{
		Status:      string(entry.Status),
		ContentHash: entry.ContentHash,
		Error:       entry.Error,
		UpdatedAt:   entry.UpdatedAt,
	}, nil
}

// Delete removes a document's chunks from the index and clears its status.
// Deleting a document that was never ingested is a no-op.
func (c *Client) Delete(ctx context.Context, documentID string) error {
	return c.ingest.Remove(ctx, documentID)
}

// Close releases the database connection.
func (c *Client) Close() {
	c.store.Close()
}

func toInternalDocument(d Document) ingestuc.Document {
	return ingestuc.Document{
		ID:       d.ID,
		Filename: d.Filename,
		Text:     d.Text,
		Access: domain.AccessSnapshot{
			Visibility:     d.Access.Visibility,
			InstitutionID:  d.Access.InstitutionID,
			ApprovalStatus: d.Access.ApprovalStatus,
		},
	}
}

func fromInternalReport(r ingestuc.Report) IngestReport {
	return IngestReport{
		DocumentID:   r.DocumentID,
		Status:       string(r.Status),
		Chunks:       r.Chunks,
		Embeddings:   r.Embeddings,
		Degraded:     r.Degraded,
		Deduplicated: r.Deduplicated,
	}
}
