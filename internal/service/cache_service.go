package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
)

const (
	sightingCachePattern = "sightings:*"
	recentCacheKey       = "sightings:recent"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the configured cache backend for listing reads. Cache
// failures are logged and treated as misses so reads fall through to storage.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewCacheService constructs a cache service. A nil repo disables caching.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Get reports whether key was found and decoded into dest.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
	}
	return err == nil
}

// Set stores value under key. A non-positive ttl uses the default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !s.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateSightings drops every cached sighting listing.
func (s *CacheService) InvalidateSightings(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, sightingCachePattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", sightingCachePattern), zap.Error(err))
	}
}

// searchCacheKey derives a stable key from the normalised search filter.
func searchCacheKey(filter models.SightingFilter) string {
	day := ""
	if filter.SightedAt != nil {
		day = filter.SightedAt.UTC().Format(dateLayout)
	}
	raw := fmt.Sprintf("%s|%s|%s|%d|%d|%t", filter.Species, filter.Location, day, filter.Page, filter.PageSize, filter.CountAllStates)
	sum := sha1.Sum([]byte(raw))
	return "sightings:search:" + hex.EncodeToString(sum[:])
}
