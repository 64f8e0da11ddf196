// Package bootstrap assembles the ad pipeline from configuration. The API and
// the standalone worker share it so both processes run the same wiring.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/abdulwaheed16/shopster-server-sub000/internal/adapter/repo"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/ads"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/dedup"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/domain"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/events"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/infra/credentials"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/generation"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/providers/genai"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/queue"
	"github.com/abdulwaheed16/shopster-server-sub000/internal/storage"
)

// Runtime holds the long-lived pieces of one process.
type Runtime struct {
	Service   *ads.Service
	Processor *ads.Processor
	Queue     *queue.PostgresQueue
	Events    events.Broadcaster
	// Relay is set when events travel through Postgres; Listen must run for
	// local subscribers to receive anything.
	Relay *events.PgRelay
	// StaticDir is the directory served under /static for the local store.
	StaticDir string

	closers []func() error
}

// Build wires repositories, queue, events, storage and providers.
func Build(ctx context.Context, cfg *infra.Config, pool *pgxpool.Pool, logger infra.Logger) (*Runtime, error) {
	runner := infra.NewSQLRunner(pool, logger)
	rt := &Runtime{Queue: queue.NewPostgresQueue(runner, 0)}

	hub := events.NewHub(logger)
	rt.Events = hub
	if cfg.EventsBackend == infra.EventsPostgres {
		rt.Relay = events.NewPgRelay(pool, runner, hub, logger)
		rt.Events = rt.Relay
	}

	store, err := rt.buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	secrets, err := credentials.NewStore(runner).LoadSecrets(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load provider credentials: %w", err)
	}

	rt.Service = ads.NewService(ads.Deps{
		Ads:     repo.NewAdRepository(runner),
		Ledger:  repo.NewCreditLedger(runner),
		Catalog: repo.NewCatalogRepository(runner),
		Queue:   rt.Queue,
		Guard:   dedup.NewMemoryGuard(0),
		Events:  rt.Events,
		Store:   store,
		Logger:  logger,
	}, ads.Config{
		DedupWindow:           cfg.DedupWindow,
		ImageCreditCost:       cfg.ImageCreditCost,
		VideoCreditCost:       cfg.VideoCreditCost,
		VideoCreditsPerSecond: cfg.VideoCreditsPerSecond,
		QueueOptions: queue.Options{
			Attempts:  cfg.QueueMaxAttempts,
			Backoff:   cfg.QueueBackoff,
			Retention: cfg.QueueRetention,
		},
		ImageProvider: string(cfg.GenerationProvider),
		VideoProvider: string(cfg.VideoProvider),
	})

	providers, err := generation.NewRouter(cfg, generation.Secrets{FalAPIKey: secrets.Fal}, logger)
	if err != nil {
		return nil, fmt.Errorf("build generation providers: %w", err)
	}

	var enricher ads.PromptEnricher
	if secrets.Gemini != "" {
		client, err := genai.NewClient(genai.Options{
			APIKey:  secrets.Gemini,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  &logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build gemini client: %w", err)
		}
		enricher = client
	} else {
		logger.Info().Msg("bootstrap: gemini key not set, prompt enrichment disabled")
	}

	archiver := ads.NewArchiver(rt.Service, store, nil)
	rt.Processor = ads.NewProcessor(rt.Service, providers, enricher, archiver, cfg.ProviderTimeout)
	return rt, nil
}

// Pool returns a worker pool draining generate-ad jobs.
func (rt *Runtime) Pool(cfg *infra.Config, logger infra.Logger) *queue.Pool {
	return queue.NewPool(rt.Queue, rt.Processor.Handle, queue.PoolConfig{
		JobType:     domain.JobTypeGenerateAd,
		Concurrency: cfg.WorkerConcurrency,
		JobTimeout:  cfg.ProviderTimeout + time.Minute,
		Retention:   cfg.QueueRetention,
	}, logger)
}

// Close releases clients opened by Build.
func (rt *Runtime) Close() error {
	var first error
	for _, c := range rt.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (rt *Runtime) buildStore(ctx context.Context, cfg *infra.Config) (storage.Store, error) {
	if cfg.StorageBackend == infra.StorageGCS {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		rt.closers = append(rt.closers, client.Close)
		return storage.NewGCSStore(client, cfg.GCSBucket, cfg.GCSPublicBaseURL)
	}
	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	rt.StaticDir = cfg.StoragePath
	return store, nil
}
