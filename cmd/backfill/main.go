package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalogsync/internal/config"
	"catalogsync/internal/crawler"
	"catalogsync/internal/db"
	"catalogsync/internal/embeddings"
	"catalogsync/internal/observability"
	"catalogsync/internal/repository"
)

type report struct {
	Candidates int  `json:"candidates"`
	Embedded   int  `json:"embedded"`
	Failed     int  `json:"failed"`
	Cancelled  bool `json:"cancelled"`
}

// Re-embeds stored products whose image embedding is still NULL.
// go run ./cmd/backfill -limit=500
func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	limit := flag.Int("limit", 500, "maximum rows to re-embed")
	catalogPath := flag.String("catalog", cfg.CatalogFile, "catalog YAML file")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqlDB, err := db.New(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("database", zap.Error(err))
		return 1
	}
	defer sqlDB.Close()
	repo := &repository.ProductRepository{DB: sqlDB}
	if err := repo.Ping(ctx); err != nil {
		log.Error("store unavailable", zap.Error(err))
		return 1
	}

	enc, err := embeddings.OpenEncoder(ctx, embeddings.EncoderOptions{
		URL:     cfg.EncoderURL,
		Model:   cfg.EncoderModel,
		Timeout: cfg.HTTPTimeout,
	}, log)
	if err != nil {
		log.Error("image encoder unavailable", zap.Error(err))
		return 1
	}
	defer func() {
		if err := enc.Close(context.Background()); err != nil {
			log.Warn("encoder release failed", zap.Error(err))
		}
	}()

	session := crawler.NewSession(crawler.SessionOptions{Timeout: cfg.HTTPTimeout, Headers: site.Headers}, log)
	embedder := embeddings.NewEmbedder(session, enc, embeddings.EmbedderOptions{Referer: site.HomeURL}, log)

	rows, err := repo.ListMissingEmbeddings(ctx, site.Source, *limit)
	if err != nil {
		log.Error("list rows without embedding", zap.Error(err))
		return 1
	}

	rep := report{Candidates: len(rows)}
	for _, p := range rows {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		vec, err := embedder.Vector(ctx, *p.ImageURL)
		if err != nil {
			rep.Failed++
			observability.IncRecords("backfill", "failed", 1)
			log.Warn("embedding failed", zap.String("id", p.ID), zap.String("image_url", *p.ImageURL), zap.Error(err))
			continue
		}
		if err := repo.UpdateEmbedding(ctx, p.ID, vec); err != nil {
			rep.Failed++
			observability.IncRecords("backfill", "failed", 1)
			log.Warn("update failed", zap.String("id", p.ID), zap.Error(err))
			continue
		}
		rep.Embedded++
		observability.IncRecords("backfill", "ok", 1)
	}

	out, _ := json.MarshalIndent(rep, "", "  ")
	fmt.Println(string(out))
	log.Info("backfill finished",
		zap.Int("candidates", rep.Candidates),
		zap.Int("embedded", rep.Embedded),
		zap.Int("failed", rep.Failed))
	return 0
}
