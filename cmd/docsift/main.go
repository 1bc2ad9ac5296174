package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/docsift/docsift/internal/chunker"
	"github.com/docsift/docsift/internal/config"
	"github.com/docsift/docsift/internal/db"
	dbMemory "github.com/docsift/docsift/internal/db/memory"
	dbRedis "github.com/docsift/docsift/internal/db/redis"
	"github.com/docsift/docsift/internal/domain"
	"github.com/docsift/docsift/internal/index"
	"github.com/docsift/docsift/internal/index/flat"
	"github.com/docsift/docsift/internal/lexical"
	logpkg "github.com/docsift/docsift/internal/logger"
	"github.com/docsift/docsift/internal/metrics"
	"github.com/docsift/docsift/internal/repository/embcache"
	"github.com/docsift/docsift/internal/repository/quota"
	statusrepo "github.com/docsift/docsift/internal/repository/status"
	"github.com/docsift/docsift/internal/transport/openai"
	"github.com/docsift/docsift/internal/transport/ops"
	embeddinguc "github.com/docsift/docsift/internal/usecase/embedding"
	healthuc "github.com/docsift/docsift/internal/usecase/health"
	ingestuc "github.com/docsift/docsift/internal/usecase/ingest"
	retrieveuc "github.com/docsift/docsift/internal/usecase/retrieve"
	"github.com/docsift/docsift/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "docsift",
		Usage:   "policy document retrieval: chunk, embed, and search",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ops HTTP server (health and metrics)",
				Action: serveCommand,
			},
			{
				Name:      "ingest",
				Usage:     "Chunk and embed documents into the vector index",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "visibility",
						Usage: "Access visibility snapshot for the documents",
						Value: "public",
					},
					&cli.StringFlag{
						Name:  "institution",
						Usage: "Owning institution id",
					},
					&cli.StringFlag{
						Name:  "approval",
						Usage: "Approval status snapshot",
						Value: "approved",
					},
				},
				Action: ingestCommand,
			},
			{
				Name:      "search",
				Usage:     "Hybrid search over embedded documents",
				ArgsUsage: "QUERY",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results to return",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Drop results scoring below this threshold",
					},
					&cli.StringFlag{
						Name:  "doc",
						Usage: "Search a single document's index (per_document backend)",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "status",
				Usage:     "Show a document's embedding status",
				ArgsUsage: "DOCUMENT_ID",
				Action:    statusCommand,
			},
			{
				Name:      "delete",
				Usage:     "Remove a document's chunks and status",
				ArgsUsage: "DOCUMENT_ID",
				Action:    deleteCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// runtime bundles the wired components every command needs.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	chunker  *chunker.Chunker
	embedder domain.Embedder
	batch    domain.BatchEmbedder
	statuses *statusrepo.Store
}

func setup(ctx context.Context) (*runtime, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting docsift",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("index_backend", cfg.Index.Backend),
	)

	var store db.Store
	switch cfg.Database.Driver {
	case "redis":
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			store.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
	case "memory":
		store = dbMemory.NewStore()
	}

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterIngestMetrics()

	var chunkOpts []chunker.Option
	if len(cfg.Chunker.SizeRules) > 0 {
		chunkOpts = append(chunkOpts, chunker.WithSizeRules(cfg.Chunker.SizeRules))
	}

	embedder := buildEmbedder(ctx, cfg, store, logger)
	batch, _ := embedder.(domain.BatchEmbedder)

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		chunker:  chunker.New(chunkOpts...),
		embedder: embedder,
		batch:    batch,
		statuses: statusrepo.New(store),
	}, nil
}

func (r *runtime) close() {
	if r.store != nil {
		r.store.Close()
	}
	_ = r.logger.Sync()
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented.
func buildEmbedder(ctx context.Context, cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	base := openai.NewEmbedder(&openai.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if cfg.Embedding.Cache && store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}

	// Single BudgetTracker shared by both embed paths.
	var budget *embeddinguc.BudgetTracker
	budgetCfg := cfg.Embedding.Budget
	if budgetCfg.DailyTokenLimit > 0 || budgetCfg.MonthlyTokenLimit > 0 {
		action := embeddinguc.BudgetActionWarn
		if budgetCfg.Action == "reject" {
			action = embeddinguc.BudgetActionReject
		}
		budget = embeddinguc.NewBudgetTracker(
			cfg.Embedding.Provider, budgetCfg.DailyTokenLimit, budgetCfg.MonthlyTokenLimit, action, logger,
		)
		quotaStore := quota.New(store, 48*time.Hour, 62*24*time.Hour)
		budget.WithStore(ctx, quotaStore)
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var budgetChecker embeddinguc.BudgetChecker
	if budget != nil {
		budgetChecker = budget
	}

	return embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, budgetChecker, logger,
	)
}

// openIndex opens the index for a given document id under the configured
// backend. The centralized backend ignores the document id.
func (r *runtime) openIndex(documentID string) (index.Index, error) {
	switch r.cfg.Index.Backend {
	case "per_document":
		if documentID == "" {
			return nil, fmt.Errorf("the per_document backend needs a document id")
		}
		return flat.NewDirStore(r.cfg.Index.DataDir, r.logger).Open(documentID)
	default:
		return flat.Open(filepath.Join(r.cfg.Index.DataDir, "index.idx"), r.logger)
	}
}

func serveCommand(c *cli.Context) error {
	ctx := c.Context

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	var embCheck healthuc.EmbeddingChecker
	if hc, ok := rt.embedder.(domain.HealthChecker); ok {
		embCheck = hc
	}
	healthSvc := healthuc.New(rt.store, embCheck)
	server := ops.NewServer(healthSvc, rt.logger)

	addr := fmt.Sprintf(":%d", rt.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(rt.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(rt.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		rt.logger.Info("Starting ops HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	rt.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), time.Duration(rt.cfg.HTTP.ShutdownSec)*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		rt.logger.Error("Error during shutdown", zap.Error(err))
	}
	rt.logger.Info("Server stopped gracefully")
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("ingest needs at least one file argument")
	}

	ctx := c.Context
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	access := domain.AccessSnapshot{
		Visibility:     c.String("visibility"),
		InstitutionID:  c.String("institution"),
		ApprovalStatus: c.String("approval"),
	}

	docs := make([]ingestuc.Document, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		name := filepath.Base(path)
		docs = append(docs, ingestuc.Document{
			ID:       name,
			Filename: name,
			Text:     string(data),
			Access:   access,
		})
	}

	// Per-document shape: each document owns an index, so each gets its own
	// service. Centralized: one shared service and index for the batch.
	if rt.cfg.Index.Backend == "per_document" {
		for _, doc := range docs {
			idx, err := rt.openIndex(doc.ID)
			if err != nil {
				return fmt.Errorf("open index for %s: %w", doc.ID, err)
			}
			svc := ingestuc.New(rt.chunker, rt.batch, idx, rt.statuses, rt.logger)
			report, err := svc.EmbedDocument(ctx, doc)
			printReport(report, err)
		}
		return nil
	}

	idx, err := rt.openIndex("")
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	svc := ingestuc.New(rt.chunker, rt.batch, idx, rt.statuses, rt.logger)

	pool, err := ingestuc.NewPool(svc, rt.cfg.Ingest.Workers, rt.logger)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	reports, errs := pool.EmbedAll(ctx, docs)
	failed := 0
	for i, report := range reports {
		printReport(report, errs[i])
		if errs[i] != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(docs))
	}
	return nil
}

func printReport(report ingestuc.Report, err error) {
	switch {
	case err != nil:
		fmt.Printf("%-40s error: %v\n", report.DocumentID, err)
	case report.Deduplicated:
		fmt.Printf("%-40s already embedded (content match)\n", report.DocumentID)
	default:
		fmt.Printf("%-40s embedded: %d chunks", report.DocumentID, report.Chunks)
		if report.Degraded > 0 {
			fmt.Printf(" (%d degraded)", report.Degraded)
		}
		fmt.Println()
	}
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("search needs a query argument")
	}
	query := c.Args().First()

	ctx := c.Context
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	idx, err := rt.openIndex(c.String("doc"))
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}

	var svcOpts []retrieveuc.Option
	if rt.cfg.Retrieval.VectorWeight > 0 || rt.cfg.Retrieval.LexicalWeight > 0 {
		svcOpts = append(svcOpts,
			retrieveuc.WithWeights(rt.cfg.Retrieval.VectorWeight, rt.cfg.Retrieval.LexicalWeight))
	}
	svc := retrieveuc.New(idx, rt.embedder, lexical.NewScorer(), rt.logger, svcOpts...)

	topK := c.Int("top-k")
	if topK <= 0 {
		topK = rt.cfg.Retrieval.TopK
	}
	minScore := resolveMinScore(c, rt.cfg.Retrieval.MinScore)

	results, err := svc.Retrieve(ctx, retrieveuc.Request{
		Query:    query,
		TopK:     topK,
		MinScore: minScore,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No relevant results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (chunk %d", i+1, r.Score, r.Record.DocumentID, r.Record.ChunkIndex)
		if r.Record.SectionHeader != "" {
			fmt.Printf(", %s", r.Record.SectionHeader)
		}
		fmt.Printf(")\n   vector=%.3f lexical=%.3f\n", r.VectorScore, r.LexicalScore)
		fmt.Printf("   %s\n", snippet(r.Record.Text, 200))
	}
	return nil
}

func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func statusCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("status needs a document id argument")
	}
	documentID := c.Args().First()

	ctx := c.Context
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	entry, err := rt.statuses.Get(ctx, documentID)
	if err != nil {
		return fmt.Errorf("document status: %w", err)
	}

	fmt.Printf("%s: %s\n", documentID, entry.Status)
	if entry.ContentHash != "" {
		fmt.Printf("  content hash: %s\n", entry.ContentHash)
	}
	if entry.Error != "" {
		fmt.Printf("  error: %s\n", entry.Error)
	}
	if !entry.UpdatedAt.IsZero() {
		fmt.Printf("  updated: %s\n", entry.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// resolveMinScore prefers an explicitly passed flag over the configured
// threshold, so --min-score 0 can disable a configured cutoff.
func resolveMinScore(c *cli.Context, fallback float64) float64 {
	if c.IsSet("min-score") {
		return c.Float64("min-score")
	}
	return fallback
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("delete needs a document id argument")
	}
	documentID := c.Args().First()

	ctx := c.Context
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	doc := ""
	if rt.cfg.Index.Backend == "per_document" {
		doc = documentID
	}
	idx, err := rt.openIndex(doc)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}

	svc := ingestuc.New(rt.chunker, rt.batch, idx, rt.statuses, rt.logger)
	if err := svc.Remove(ctx, documentID); err != nil {
		return err
	}
	fmt.Printf("%s: deleted\n", documentID)
	return nil
}
