// Package main wires together the crawl worker binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pagepulse/crawlworker/internal/api"
	"github.com/pagepulse/crawlworker/internal/clock/system"
	"github.com/pagepulse/crawlworker/internal/config"
	"github.com/pagepulse/crawlworker/internal/crawl"
	collyfetcher "github.com/pagepulse/crawlworker/internal/fetcher/colly"
	"github.com/pagepulse/crawlworker/internal/id/uuid"
	"github.com/pagepulse/crawlworker/internal/logging"
	"github.com/pagepulse/crawlworker/internal/metrics"
	pubsubpublisher "github.com/pagepulse/crawlworker/internal/publisher/pubsub"
	gcsstorage "github.com/pagepulse/crawlworker/internal/storage/gcs"
	localstorage "github.com/pagepulse/crawlworker/internal/storage/local"
	memorystorage "github.com/pagepulse/crawlworker/internal/storage/memory"
	"github.com/pagepulse/crawlworker/internal/store/postgres"
	"github.com/pagepulse/crawlworker/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	idGen := uuid.New()
	workerID, err := idGen.NewWorkerID()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate worker id failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Development, workerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.MaxConnLifetime(),
	})
	if err != nil {
		logger.Fatal("connect store failed", zap.Error(err))
	}
	defer store.Close()
	if cfg.DB.InitSchema {
		if err := store.InitSchema(ctx); err != nil {
			logger.Fatal("init schema failed", zap.Error(err))
		}
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxRedirects: cfg.HTTP.MaxRedirects,
	})

	var publisher crawl.Publisher
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicName != "" {
		pub, err := pubsubpublisher.Connect(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("connect pubsub failed", zap.Error(err))
		}
		defer pub.Close() //nolint:errcheck // best-effort close
		publisher = pub
	}

	archive, err := buildArchive(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("init archive failed", zap.Error(err))
	}

	w := worker.New(
		store,
		fetcher,
		system.New(),
		publisher,
		archive,
		worker.Config{
			WorkerID:          workerID,
			Topic:             cfg.PubSub.TopicName,
			ArchivePrefix:     cfg.Storage.Prefix,
			IdleDelay:         cfg.IdleDelay(),
			BackoffDelay:      cfg.BackoffDelay(),
			RescueEvery:       cfg.Worker.RescueEvery,
			JobLease:          cfg.JobLease(),
			URLLock:           cfg.URLLock(),
			HeartbeatInterval: cfg.HeartbeatInterval(),
		},
		logger.Named("worker"),
	)

	apiServer := api.NewServer(store, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker started", zap.String("worker_id", workerID))
		w.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildArchive(ctx context.Context, cfg config.StorageConfig) (crawl.BlobStore, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "local":
		return localstorage.New(localstorage.Config{BaseDir: cfg.LocalDir})
	case "gcs":
		return gcsstorage.Connect(ctx, gcsstorage.Config{Bucket: cfg.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
