// Package main wires together the perch bookmark service binary.
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

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/api"
	blobgcs "github.com/perchlink/perch/internal/blob/gcs"
	bloblocal "github.com/perchlink/perch/internal/blob/local"
	blobmemory "github.com/perchlink/perch/internal/blob/memory"
	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/clock/system"
	"github.com/perchlink/perch/internal/config"
	"github.com/perchlink/perch/internal/enrich"
	collyenrich "github.com/perchlink/perch/internal/enrich/colly"
	"github.com/perchlink/perch/internal/enrich/headless"
	"github.com/perchlink/perch/internal/id/uuid"
	"github.com/perchlink/perch/internal/logging"
	"github.com/perchlink/perch/internal/metrics"
	"github.com/perchlink/perch/internal/pipeline"
	memorypublisher "github.com/perchlink/perch/internal/publisher/memory"
	pubsubpublisher "github.com/perchlink/perch/internal/publisher/pubsub"
	registrymemory "github.com/perchlink/perch/internal/registry/memory"
	registryredis "github.com/perchlink/perch/internal/registry/redis"
	"github.com/perchlink/perch/internal/storage"
	storagememory "github.com/perchlink/perch/internal/storage/memory"
	"github.com/perchlink/perch/internal/storage/postgres"
	"github.com/perchlink/perch/internal/storage/redismirror"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "perchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *goredis.Client
	needRedis := cfg.Registry.Provider == config.ProviderRedis || cfg.Storage.Mirror
	if needRedis {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if closeErr := redisClient.Close(); closeErr != nil {
				logger.Warn("redis close failed", zap.Error(closeErr))
			}
		}()
		if pingErr := redisClient.Ping(ctx).Err(); pingErr != nil {
			return fmt.Errorf("redis ping: %w", pingErr)
		}
	}

	var registry bookmarks.ProcessingRegistry
	switch cfg.Registry.Provider {
	case config.ProviderRedis:
		registry = registryredis.NewRegistry(redisClient, logger.Named("registry"))
	default:
		registry = registrymemory.NewRegistry()
	}

	var store bookmarks.BookmarkStore
	switch cfg.Storage.Provider {
	case config.ProviderPostgres:
		pgStore, pgErr := postgres.NewBookmarkStore(ctx, postgres.BookmarkStoreConfig{
			DSN:      cfg.Storage.DSN,
			MaxConns: int32(cfg.Storage.MaxOpenConns),
		})
		if pgErr != nil {
			return fmt.Errorf("postgres store: %w", pgErr)
		}
		defer pgStore.Close()
		store = pgStore
	default:
		store = storagememory.NewBookmarkStore()
	}
	if cfg.Storage.Mirror {
		mirror := redismirror.New(redisClient, logger.Named("mirror"))
		store = storage.NewFallback(store, mirror, logger.Named("storage"))
	}

	var (
		scraper  bookmarks.Scraper
		metadata bookmarks.MetadataExtractor
	)
	switch cfg.Enrich.Page {
	case config.ProviderService:
		scraper = enrich.NewHTTPScraper(cfg.Enrich.ScrapeURL, 0)
		metadata = enrich.NewHTTPMetadataExtractor(cfg.Enrich.MetadataURL, 0)
	case config.ProviderBuiltin:
		extractor := collyenrich.New(collyenrich.Config{
			UserAgent:    cfg.Enrich.UserAgent,
			PerHostRPS:   cfg.Enrich.PerHostRPS,
			PerHostBurst: cfg.Enrich.PerHostBurst,
		}, logger.Named("colly"))
		scraper = extractor
		metadata = extractor
	default:
		scraper = enrich.NoopScraper{}
		metadata = enrich.NoopMetadataExtractor{}
	}

	var shooter bookmarks.Screenshotter = enrich.NoopScreenshotter{}
	switch cfg.Enrich.Screenshot {
	case config.ProviderService:
		shooter = enrich.NewHTTPScreenshotter(cfg.Enrich.ScreenshotURL, 0)
	case config.ProviderBuiltin:
		headlessShooter, headlessErr := headless.New(headless.Config{
			UserAgent:      cfg.Enrich.UserAgent,
			MaxConcurrency: cfg.Enrich.HeadlessMaxConcurrent,
		}, logger.Named("headless"))
		if headlessErr != nil {
			logger.Warn("headless screenshotter init failed", zap.Error(headlessErr))
		} else {
			defer func() {
				if closeErr := headlessShooter.Close(context.Background()); closeErr != nil {
					logger.Warn("headless close failed", zap.Error(closeErr))
				}
			}()
			shooter = headlessShooter
		}
	}

	var tagger bookmarks.Tagger = enrich.NoopTagger{}
	if cfg.Enrich.Tags == config.ProviderService {
		tagger = enrich.NewHTTPTagger(cfg.Enrich.TagsURL, 0)
	}

	var blobs bookmarks.BlobStore
	switch cfg.Blob.Provider {
	case config.ProviderGCS:
		gcsStore, gcsErr := blobgcs.New(ctx, blobgcs.Config{Bucket: cfg.Blob.GCSBucket})
		if gcsErr != nil {
			return fmt.Errorf("gcs blob store: %w", gcsErr)
		}
		defer func() {
			if closeErr := gcsStore.Close(); closeErr != nil {
				logger.Warn("gcs close failed", zap.Error(closeErr))
			}
		}()
		blobs = gcsStore
	case config.ProviderLocal:
		localStore, localErr := bloblocal.New(bloblocal.Config{BaseDir: cfg.Blob.LocalDir})
		if localErr != nil {
			return fmt.Errorf("local blob store: %w", localErr)
		}
		blobs = localStore
	case config.ProviderMemory:
		blobs = blobmemory.New()
	}

	var publisher bookmarks.Publisher
	switch cfg.Events.Provider {
	case config.ProviderPubSub:
		pub, pubErr := pubsubpublisher.New(ctx, pubsubpublisher.Config{ProjectID: cfg.Events.ProjectID})
		if pubErr != nil {
			return fmt.Errorf("pubsub publisher: %w", pubErr)
		}
		defer func() {
			if closeErr := pub.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = pub
	case config.ProviderMemory:
		publisher = memorypublisher.New()
	}

	clock := system.New()
	ids := uuid.NewGenerator()

	orch := pipeline.NewOrchestrator(pipeline.OrchestratorParams{
		Registry:      registry,
		Store:         store,
		Scraper:       scraper,
		Metadata:      metadata,
		Screenshotter: shooter,
		Tagger:        tagger,
		Blobs:         blobs,
		Publisher:     publisher,
		IDs:           ids,
		Clock:         clock,
		Timeouts:      cfg.Pipeline.Timeouts,
		Logger:        logger.Named("pipeline"),
	})
	svc := pipeline.NewService(pipeline.ServiceParams{
		Registry:     registry,
		Store:        store,
		Orchestrator: orch,
		Publisher:    publisher,
		IDs:          ids,
		Clock:        clock,
		CancelPoll:   cfg.Pipeline.CancelPoll,
		Logger:       logger.Named("service"),
	})

	apiServer := api.NewServer(svc, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("server shutdown error", zap.Error(shutdownErr))
	}

	select {
	case serveErr := <-errCh:
		return serveErr
	default:
	}
	logger.Info("shutdown complete")
	return nil
}
