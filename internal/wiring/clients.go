package wiring

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/evalmesh/pipeline/internal/archive"
	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/judgeclient"
	"github.com/evalmesh/pipeline/internal/modelprovider"
	"github.com/evalmesh/pipeline/internal/statestore"
)

// NewRedisClient parses cfg.RedisURL and returns a connected client.
func NewRedisClient(cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=wiring.NewRedisClient: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewStateStore builds the ephemeral state repository.
func NewStateStore(cfg config.Config) (domain.StateRepository, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return statestore.NewRedisStore(client, cfg.StateTTL), nil
}

// NewArchive builds the durable archive repository over a fresh pgx pool.
func NewArchive(ctx context.Context, cfg config.Config) (domain.ArchiveRepository, error) {
	pool, err := archive.NewPgxPool(ctx, cfg.ArchiveDBURL)
	if err != nil {
		return nil, fmt.Errorf("op=wiring.NewArchive: %w", err)
	}
	return archive.NewRepo(pool), nil
}

// NewArchiveCleanup builds the retention-cleanup routine over the same DSN,
// for callers that want to run it as a background loop alongside a
// long-lived consumer (see cmd/judgeworker).
func NewArchiveCleanup(ctx context.Context, cfg config.Config) (*archive.CleanupService, error) {
	pool, err := archive.NewPgxPool(ctx, cfg.ArchiveDBURL)
	if err != nil {
		return nil, fmt.Errorf("op=wiring.NewArchiveCleanup: %w", err)
	}
	return archive.NewCleanupService(pool, cfg.ArchiveRetentionDays), nil
}

// NewModelClient selects the real or stub target-model client per
// cfg.UseStubProviders.
func NewModelClient(cfg config.Config) domain.ModelClient {
	if cfg.UseStubProviders {
		return modelprovider.NewStub()
	}
	return modelprovider.New(cfg.TargetProviderBaseURL, cfg.TargetProviderAPIKey, cfg.TargetProviderTimeout)
}

// NewJudgeClient selects the real or stub judge client per
// cfg.UseStubProviders.
func NewJudgeClient(cfg config.Config) domain.JudgeClient {
	if cfg.UseStubProviders {
		return judgeclient.NewStub()
	}
	return judgeclient.New(cfg.JudgeServiceURL(), cfg.JudgeServiceTimeout)
}
