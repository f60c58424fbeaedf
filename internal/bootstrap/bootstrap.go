package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mealgen/internal/adapter/repo"
	"mealgen/internal/agents"
	"mealgen/internal/domain"
	"mealgen/internal/infra"
	"mealgen/internal/infra/credentials"
	"mealgen/internal/pipeline"
	"mealgen/internal/progress"
	"mealgen/internal/providers/image"
	"mealgen/internal/providers/planner"
	"mealgen/internal/providers/qwen"
	"mealgen/internal/storage"
)

// Runtime is the fully wired pipeline shared by cmd/api and cmd/batchgen.
type Runtime struct {
	Config      *infra.Config
	Logger      infra.Logger
	Pool        *pgxpool.Pool
	Items       domain.ItemStore
	Files       *storage.FileStore
	Prometheus  *infra.PromRecorder
	Metrics     *agents.MetricsRegistry
	Tracker     *progress.Tracker
	Coordinator *pipeline.Coordinator

	mirror *progress.RedisMirror
}

// Build connects backing services and assembles the coordinator. Without
// DATABASE_URL items are kept in memory; without PROGRESS_REDIS_URL progress
// lives only in this process.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	rt := &Runtime{Config: cfg, Logger: logger}

	var sqlExec infra.SQLExecutor
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.Pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		sqlExec = runner
		rt.Items = repo.NewItemRepository(runner)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, generated items are kept in memory")
		rt.Items = repo.NewMemoryItemStore()
	}

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	files, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Files = files

	creds := credentials.NewStore(sqlExec)
	source, err := conceptSource(ctx, cfg, creds, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	images, err := imageGenerator(ctx, cfg, creds, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var mirror progress.Mirror
	if cfg.ProgressRedisURL != "" {
		m, err := progress.NewRedisMirror(cfg.ProgressRedisURL, cfg.ProgressRetention)
		if err != nil {
			rt.Close()
			return nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = m.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = m.Close()
			rt.Close()
			return nil, fmt.Errorf("progress mirror: %w", err)
		}
		rt.mirror = m
		mirror = m
	}

	rt.Prometheus = infra.NewPromRecorder()
	rt.Metrics = agents.NewMetricsRegistry(rt.Prometheus)
	rt.Tracker = progress.NewTracker(progress.Options{
		Buffer:    cfg.ProgressBuffer,
		Retention: cfg.ProgressRetention,
		Mirror:    mirror,
		Logger:    logger,
	})

	workers := pipeline.NewAgents(pipeline.Deps{
		Metrics: rt.Metrics,
		Policy: agents.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BackoffBase,
			Multiplier:  2,
			MaxDelay:    cfg.BackoffMax,
		},
		Logger:           logger,
		Source:           source,
		Images:           images,
		Objects:          files,
		Items:            rt.Items,
		HTTPClient:       &http.Client{Timeout: cfg.UploadTimeout},
		PlaceholderBase:  cfg.PlaceholderBaseURL,
		MediaConcurrency: cfg.MediaConcurrency,
		UploadTimeout:    cfg.UploadTimeout,
	})
	rt.Coordinator = pipeline.New(workers, rt.Tracker, pipeline.Options{
		ChunkSize: cfg.ChunkSize,
		Logger:    logger,
	})
	return rt, nil
}

func conceptSource(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (planner.Source, error) {
	catalog := planner.NewCatalogSource()
	if cfg.ConceptProvider != "openai" {
		return catalog, nil
	}
	key, err := creds.Resolve(ctx, credentials.ProviderOpenAI, cfg.OpenAIAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load openai api key from store")
	}
	if key == "" {
		logger.Warn().Msg("openai api key missing, planning from the built-in catalog")
	}
	log := logger.With().Str("provider", "openai").Logger()
	return planner.NewOpenAISource(planner.OpenAIOptions{
		APIKey:   key,
		Model:    cfg.OpenAIModel,
		BaseURL:  cfg.OpenAIBaseURL,
		Fallback: catalog,
		OnFallback: func(reason string, err error) {
			log.Warn().Err(err).Str("reason", reason).Msg("concept planning fell back to catalog")
		},
		OnWarning: func(reason, detail string) {
			log.Warn().Str("reason", reason).Str("detail", detail).Msg("openai configuration adjusted")
		},
	})
}

func imageGenerator(ctx context.Context, cfg *infra.Config, creds *credentials.Store, logger infra.Logger) (image.Generator, error) {
	synthetic := image.NewSynthetic()
	if cfg.ImageProvider == "synthetic" {
		return synthetic, nil
	}
	key, err := creds.Resolve(ctx, credentials.ProviderQwen, cfg.QwenAPIKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load qwen api key from store")
	}
	client, err := qwen.NewClient(qwen.Options{
		APIKey:         key,
		BaseURL:        cfg.QwenBaseURL,
		Model:          cfg.QwenModel,
		PromptExtend:   true,
		Logger:         &logger,
		RequestTimeout: cfg.UploadTimeout * 2,
	})
	if err != nil {
		return nil, fmt.Errorf("configure qwen client: %w", err)
	}
	if !client.HasCredentials() {
		logger.Warn().Str("model", client.Model()).Msg("qwen api key missing, using synthetic images")
	}
	return image.NewQwenGenerator(client, synthetic), nil
}

// Ping checks the database and the progress mirror when they are configured.
func (r *Runtime) Ping(ctx context.Context) error {
	if r.Pool != nil {
		if err := r.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if r.mirror != nil {
		if err := r.mirror.Ping(ctx); err != nil {
			return fmt.Errorf("progress mirror: %w", err)
		}
	}
	return nil
}

// Shutdown stops accepting batches, waits for running ones up to ctx's
// deadline and releases every backing service.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var err error
	if r.Coordinator != nil {
		err = r.Coordinator.Shutdown(ctx)
	}
	r.Close()
	return err
}

// Close releases backing services without waiting for batches.
func (r *Runtime) Close() {
	if r.Tracker != nil {
		r.Tracker.Close()
	}
	if r.mirror != nil {
		if err := r.mirror.Close(); err != nil {
			r.Logger.Warn().Err(err).Msg("close progress mirror")
		}
		r.mirror = nil
	}
	if r.Pool != nil {
		r.Pool.Close()
		r.Pool = nil
	}
}
