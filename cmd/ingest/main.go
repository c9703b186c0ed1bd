package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalogsync/internal/cache"
	"catalogsync/internal/config"
	"catalogsync/internal/crawler"
	"catalogsync/internal/db"
	"catalogsync/internal/embeddings"
	"catalogsync/internal/observability"
	"catalogsync/internal/pipeline"
	"catalogsync/internal/repository"
)

// go run ./cmd/ingest -categories=all
// go run ./cmd/ingest -categories="men_jeans,1030207045" -limit=100 -dry-run
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	scope := flag.String("categories", "all", "'all' or comma separated category ids/names")
	limit := flag.Int("limit", 0, "maximum products fetched across all categories (0 = no limit)")
	catalogPath := flag.String("catalog", cfg.CatalogFile, "catalog YAML file")
	dryRun := flag.Bool("dry-run", false, "fetch, transform and embed without writing to the database")
	flag.Parse()

	log, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	observability.Start(cfg.MetricsPort, log)

	catalog, err := config.LoadCatalog(*catalogPath)
	if err != nil {
		log.Error("invalid catalog", zap.String("path", *catalogPath), zap.Error(err))
		return 1
	}
	site := catalog.Site
	cats := config.Select(catalog.CategoryList(), *scope)
	if len(cats) == 0 {
		log.Error("no categories selected", zap.String("scope", *scope))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := crawler.NewSession(crawler.SessionOptions{Timeout: cfg.HTTPTimeout, Headers: site.Headers}, log)
	session.Prewarm(ctx, site.Prewarm)

	var idCache crawler.IDCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("identifier cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			idCache = cache.NewIDCache(client, site.Source, cfg.IDCacheTTL)
		}
	}

	ids, err := crawler.NewIDSource(session, crawler.IDSourceOptions{
		SnapshotDir:    cfg.SnapshotDir,
		IDsPath:        site.IDsPath,
		CategoryIDsURL: site.CategoryIDsURL,
	}, idCache, log)
	if err != nil {
		log.Error("identifier source", zap.Error(err))
		return 1
	}

	fields, err := crawler.NewFieldMap(site.Fields)
	if err != nil {
		log.Error("field map", zap.Error(err))
		return 1
	}
	fetcher, err := crawler.NewFetcher(session, crawler.FetcherOptions{
		ProductsURL: site.ProductsURL,
		ItemsPath:   site.ItemsPath,
		BatchSize:   cfg.BatchSize,
		MaxAttempts: cfg.FetchMaxAttempts,
		Backoff:     cfg.FetchBackoff,
		Delay:       cfg.BatchDelay,
		Concurrency: cfg.FetchConcurrency,
	}, fields, log)
	if err != nil {
		log.Error("fetcher", zap.Error(err))
		return 1
	}

	orch := &pipeline.Orchestrator{
		IDs:     ids,
		Fetcher: fetcher,
		Transform: crawler.NewTransformer(crawler.TransformerOptions{
			Brand:              site.Brand,
			Source:             site.Source,
			Currency:           site.Currency,
			StaticHost:         site.StaticHost,
			ProductURLTemplate: site.ProductURLTemplate,
			PriceMinorUnits:    site.PriceMinorUnits,
			CategoryTags:       catalog.CategoryTags,
		}, fields),
		Log: log,
	}

	enc, err := embeddings.OpenEncoder(ctx, embeddings.EncoderOptions{
		URL:     cfg.EncoderURL,
		Model:   cfg.EncoderModel,
		Timeout: cfg.HTTPTimeout,
	}, log)
	if err != nil {
		log.Warn("image encoder unavailable, products are stored without embeddings", zap.Error(err))
	} else {
		defer func() {
			if err := enc.Close(context.Background()); err != nil {
				log.Warn("encoder release failed", zap.Error(err))
			}
		}()
		orch.Images = embeddings.NewEmbedder(session, enc, embeddings.EmbedderOptions{
			Referer: site.HomeURL,
			Workers: cfg.EmbedWorkers,
		}, log)
	}

	if cfg.OpenAIKey != "" {
		orch.Text = embeddings.NewTextEmbedder(cfg.OpenAIKey)
	}

	var schema *repository.Schema
	if !*dryRun {
		sqlDB, err := db.New(cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			log.Error("database", zap.Error(err))
			return 1
		}
		defer sqlDB.Close()
		orch.Store = &repository.ProductRepository{DB: sqlDB}

		pool, err := db.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
		if err != nil {
			log.Error("database pool", zap.Error(err))
			return 1
		}
		defer pool.Close()
		schema = &repository.Schema{Pool: pool}
		if err := schema.EnsureSchema(ctx); err != nil {
			log.Warn("schema check failed", zap.Error(err))
		}
	}

	summary, err := orch.Run(ctx, cats, pipeline.Options{Limit: *limit, DryRun: *dryRun})
	if out, jerr := summary.JSON(); jerr == nil {
		fmt.Println(string(out))
	}
	if err != nil {
		log.Error("run aborted", zap.Error(err))
		return 1
	}

	if schema != nil {
		if c, err := schema.CountBySource(context.Background(), site.Source); err == nil {
			log.Info("products in store", zap.String("source", site.Source),
				zap.Int64("total", c.Total), zap.Int64("embedded", c.Embedded))
		}
	}
	log.Info("ingest finished")
	return 0
}
