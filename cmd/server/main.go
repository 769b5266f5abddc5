// Command server runs the HTTP API: upload sessions, synchronous and
// async mapping/import, Analyzer-driven schema matching, query validation,
// and table/task inspection.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/rowforge/ingest/internal/analyzer"
	"github.com/rowforge/ingest/internal/api"
	"github.com/rowforge/ingest/internal/audit"
	"github.com/rowforge/ingest/internal/config"
	"github.com/rowforge/ingest/internal/lineage"
	"github.com/rowforge/ingest/internal/logging"
	"github.com/rowforge/ingest/internal/objectstore"
	"github.com/rowforge/ingest/internal/parsecache"
	"github.com/rowforge/ingest/internal/pipeline"
	"github.com/rowforge/ingest/internal/store"
	"github.com/rowforge/ingest/internal/taskmanager"
)

func main() {
	if err := godotenv.Overload(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.MustLoad()
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("connect to database", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("ping database", "err", err)
		os.Exit(1)
	}

	db := store.New(pool)
	if err := db.EnsureSystemTables(ctx); err != nil {
		slog.Error("ensure system tables", "err", err)
		os.Exit(1)
	}

	lineageStore := lineage.New(db)
	executor := pipeline.New(db)
	tasks := taskmanager.New(db, executor, cfg.Task.PollInterval)
	auditLog := audit.New(db)

	objects, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		slog.Warn("object storage unavailable; b2 endpoints will fail", "err", err)
		objects = nil
	}

	parseCache := parsecache.Cache(parsecache.NullCache{})
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			slog.Error("parse parse-cache redis url", "err", err)
			os.Exit(1)
		}
		parseCache = parsecache.NewRedisCache(redis.NewClient(opts), cfg.Cache.TTL)
	} else {
		slog.Warn("PARSE_CACHE_REDIS_URL not set; parse cache disabled")
	}

	var llm *analyzer.Analyzer
	if os.Getenv("ANTHROPIC_API_KEY") != "" || os.Getenv("AWS_REGION") != "" {
		llm, err = analyzer.New(ctx, db, cfg.LLM.ModelID)
		if err != nil {
			slog.Warn("Analyzer unavailable; analyze-file endpoints will 500", "err", err)
			llm = nil
		}
	}

	server := api.NewServer(api.Deps{
		DB:             db,
		Lineage:        lineageStore,
		Executor:       executor,
		Tasks:          tasks,
		Objects:        objects,
		ParseCache:     parseCache,
		LLM:            llm,
		Audit:          auditLog,
		SyncTimeout:    cfg.Task.SyncTimeout,
		ExportTTL:      cfg.Export.Timeout(),
		ExportRowLimit: cfg.Export.RowLimit,
		MaxUploadBytes: cfg.Upload.MaxFileSizeBytes(),
		AllowedOrigins: cfg.Security.AllowedOrigins,
		AdminToken:     cfg.Security.SecretKey,
		RateLimit:      cfg.Rate.RequestsPerMinute,
	})

	tasks.ReclaimStaleProcessingJobs(ctx)
	workerCtx, cancelWorker := context.WithCancel(ctx)
	go tasks.Run(workerCtx)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		cancelWorker()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "err", err)
		}
	}()

	addr := cfg.Server.Addr()
	slog.Info("api server starting", "addr", addr)
	if err := server.Start(addr); err != nil && ctx.Err() == nil {
		slog.Error("server stopped unexpectedly", "err", err)
		os.Exit(1)
	}
	time.Sleep(100 * time.Millisecond) // let the shutdown goroutine finish logging
}
