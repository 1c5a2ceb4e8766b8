package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/feed"
	"github.com/noah-isme/whale-spotting-api/internal/repository"
	"github.com/noah-isme/whale-spotting-api/internal/service"
	"github.com/noah-isme/whale-spotting-api/pkg/cache"
	"github.com/noah-isme/whale-spotting-api/pkg/config"
	"github.com/noah-isme/whale-spotting-api/pkg/database"
)

// Container holds the wired services shared by the API server and whalectl.
type Container struct {
	DB        *sqlx.DB
	Metrics   *service.MetricsService
	Cache     *service.CacheService
	Sightings *service.SightingService
	Exports   *service.ExportService
	Ingest    *service.IngestService
	Tokens    *service.TokenService

	redisCache *repository.RedisCacheRepository
}

// Build connects to the backing stores and constructs every service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	c := &Container{DB: db, Metrics: service.NewMetricsService()}

	cacheRepo, err := c.cacheRepository(ctx, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c.Cache = service.NewCacheService(cacheRepo, c.Metrics, cfg.Cache.DefaultTTL, logger)

	validate := validator.New()
	sightingRepo := repository.NewSightingRepository(db, cfg.Search.MaxPageSize)

	c.Sightings = service.NewSightingService(sightingRepo, c.Cache, c.Metrics, validate, logger, service.SightingServiceConfig{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		RecentLimit:     cfg.Search.RecentLimit,
		CacheTTL:        cfg.Search.CacheTTL,
		CountAllStates:  cfg.Search.CountAllStates,
	})
	c.Exports = service.NewExportService(c.Sightings, logger, nil, nil)

	var fetcher *feed.Client
	if cfg.Feed.BaseURL != "" {
		fetcher, err = feed.NewClient(feed.Config{
			BaseURL:    cfg.Feed.BaseURL,
			APIKey:     cfg.Feed.APIKey,
			SourceName: cfg.Feed.SourceName,
			PageLimit:  cfg.Feed.PageLimit,
			Timeout:    cfg.Feed.Timeout,
		}, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init feed client: %w", err)
		}
	}
	ingestCfg := service.IngestServiceConfig{
		SourceName:   cfg.Feed.SourceName,
		PollInterval: cfg.Feed.PollInterval,
		Workers:      cfg.Feed.Workers,
		MaxRetries:   cfg.Feed.MaxRetries,
		RetryDelay:   cfg.Feed.RetryDelay,
	}
	if fetcher != nil {
		c.Ingest = service.NewIngestService(sightingRepo, fetcher, c.Cache, c.Metrics, validate, logger, ingestCfg)
	} else {
		c.Ingest = service.NewIngestService(sightingRepo, nil, c.Cache, c.Metrics, validate, logger, ingestCfg)
	}

	c.Tokens = service.NewTokenService(service.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Expiration: cfg.JWT.Expiration,
	})

	return c, nil
}

func (c *Container) cacheRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.CacheRepository, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendNone:
		return nil, nil
	case config.CacheBackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		c.redisCache = repository.NewRedisCacheRepository(client, logger)
		return c.redisCache, nil
	default:
		return repository.NewMemoryCacheRepository(cfg.Cache.DefaultTTL, 0), nil
	}
}

// Close stops background work and releases connections.
func (c *Container) Close() {
	if c.Ingest != nil {
		c.Ingest.Stop()
	}
	if c.redisCache != nil {
		_ = c.redisCache.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
