// Package bootstrap provides dependency initialization for the ReelForge API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelforge/reelforge-api/internal/config"
	"github.com/reelforge/reelforge-api/internal/generation"
	"github.com/reelforge/reelforge-api/internal/ledger"
	"github.com/reelforge/reelforge-api/internal/media"
	"github.com/reelforge/reelforge-api/internal/project"
	"github.com/reelforge/reelforge-api/internal/provider"
	"github.com/reelforge/reelforge-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
// Close releases them in reverse initialization order.
type Dependencies struct {
	Orchestrator *generation.Orchestrator
	Projects     *project.MemoryStore
	Ledger       *ledger.MemoryLedger
}

// Close stops background pollers and the event hub.
func (d *Dependencies) Close() {
	d.Orchestrator.Close()
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	providerOpts := []provider.ClientOption{provider.WithAPIKey(cfg.ProviderAPIKey)}
	if cfg.ProviderBaseURL != "" {
		providerOpts = append(providerOpts, provider.WithBaseURL(cfg.ProviderBaseURL))
	}
	providerClient, err := provider.NewClient(providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("create provider client: %w", err)
	}

	pipelineOpts := []media.Option{
		media.WithConstraints(media.Constraints{
			MaxBytes:       cfg.MaxVideoBytes,
			MaxDurationSec: cfg.MaxDurationSec,
		}),
		media.WithDownloadTimeout(cfg.DownloadTimeout),
		media.WithHTTPClient(&http.Client{Timeout: cfg.DownloadTimeout + 10*time.Second}),
		media.WithLogger(logger),
	}
	prober := media.NewFFprobeProber(cfg.FFprobePath)
	if prober.Available() {
		pipelineOpts = append(pipelineOpts, media.WithProber(prober))
	} else {
		logger.Info("ffprobe not found, metadata validation disabled")
	}
	pipeline := media.NewPipeline(store, cfg.StorageBucket, pipelineOpts...)

	repo := generation.NewMemoryRepository()
	projects := project.NewMemoryStore()
	tokens := ledger.NewMemoryLedger()

	orchestrator := generation.NewOrchestrator(
		repo,
		projects,
		providerClient,
		pipeline,
		tokens,
		logger,
		generation.WithConfig(generation.Config{
			Cost:            cfg.GenerationCost,
			PollInterval:    cfg.PollInterval,
			MaxPollAttempts: cfg.MaxPollAttempts,
		}),
	)

	return &Dependencies{
		Orchestrator: orchestrator,
		Projects:     projects,
		Ledger:       tokens,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(storage.S3Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.StorageBucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.LocalStorageDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("base_dir", localStore.BaseDir()),
	)
	return localStore, nil
}
