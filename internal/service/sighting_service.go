package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type sightingRepository interface {
	Create(ctx context.Context, sighting *models.Sighting) error
	ListByConfirmState(ctx context.Context, state models.ConfirmState) ([]models.Sighting, error)
	FindByID(ctx context.Context, id int64) (*models.Sighting, error)
	SearchPage(ctx context.Context, filter models.SightingFilter) ([]models.Sighting, int, error)
	UpdateConfirmState(ctx context.Context, id int64, state models.ConfirmState) error
	Update(ctx context.Context, sighting *models.Sighting) error
	Recent(ctx context.Context, limit int) ([]models.Sighting, error)
}

// SightingServiceConfig carries search tuning.
type SightingServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	RecentLimit     int
	CacheTTL        time.Duration
	CountAllStates  bool
}

// SightingService implements the public submission flow, the search listings
// and the admin review workflow.
type SightingService struct {
	repo      sightingRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SightingServiceConfig
}

// NewSightingService constructs a SightingService.
func NewSightingService(repo sightingRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SightingServiceConfig) *SightingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 100
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 5
	}
	return &SightingService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// Submit stores a visitor report in the review queue.
func (s *SightingService) Submit(ctx context.Context, req dto.SubmitSightingRequest) (*models.Sighting, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sighting payload")
	}
	sightedAt, err := ParseSightingTime(req.SightedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "sightedAt must be a date (YYYY-MM-DD) or RFC3339 timestamp")
	}

	sighting := &models.Sighting{
		Species:          strings.TrimSpace(req.Species),
		Quantity:         strings.TrimSpace(req.Quantity),
		Location:         strings.TrimSpace(req.Location),
		Latitude:         *req.Latitude,
		Longitude:        *req.Longitude,
		Description:      strings.TrimSpace(req.Description),
		SightedAt:        sightedAt,
		SubmittedByName:  strings.TrimSpace(req.SubmittedByName),
		SubmittedByEmail: strings.TrimSpace(req.SubmittedByEmail),
	}
	if err := s.repo.Create(ctx, sighting); err != nil {
		return nil, appErrors.Storage(err, "failed to submit sighting")
	}

	s.cache.InvalidateSightings(ctx)
	s.logger.Info("sighting submitted", zap.Int64("id", sighting.ID), zap.String("species", sighting.Species))
	return sighting, nil
}

// Get returns a sighting in any state.
func (s *SightingService) Get(ctx context.Context, id int64) (*models.Sighting, error) {
	return s.load(ctx, id)
}

// ReviewQueue lists sightings awaiting moderation.
func (s *SightingService) ReviewQueue(ctx context.Context) ([]models.Sighting, error) {
	sightings, err := s.repo.ListByConfirmState(ctx, models.ConfirmStateReview)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to load review queue")
	}
	return nonNil(sightings), nil
}

// Recent lists the latest confirmed sightings. The bool reports a cache hit.
func (s *SightingService) Recent(ctx context.Context) ([]models.Sighting, bool, error) {
	var cached []models.Sighting
	if s.cache.Get(ctx, recentCacheKey, &cached) {
		return nonNil(cached), true, nil
	}

	start := time.Now()
	sightings, err := s.repo.Recent(ctx, s.cfg.RecentLimit)
	s.metrics.ObserveDBQuery("sightings_recent", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Storage(err, "failed to load recent sightings")
	}
	sightings = nonNil(sightings)
	s.cache.Set(ctx, recentCacheKey, sightings, s.cfg.CacheTTL)
	return sightings, false, nil
}

// Search returns one page of confirmed sightings and the matching total. The
// bool reports a cache hit.
func (s *SightingService) Search(ctx context.Context, filter models.SightingFilter) (*dto.SearchResponse, bool, error) {
	filter = s.normalizeFilter(filter)
	key := searchCacheKey(filter)

	var cached dto.SearchResponse
	if s.cache.Get(ctx, key, &cached) {
		cached.Sightings = nonNil(cached.Sightings)
		return &cached, true, nil
	}

	start := time.Now()
	sightings, total, err := s.repo.SearchPage(ctx, filter)
	s.metrics.ObserveDBQuery("sightings_search", time.Since(start))
	if err != nil {
		return nil, false, appErrors.Storage(err, "failed to search sightings")
	}

	resp := &dto.SearchResponse{
		Sightings:  nonNil(sightings),
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}
	s.cache.Set(ctx, key, resp, s.cfg.CacheTTL)
	return resp, false, nil
}

// Confirm publishes a sighting as submitted. Confirming an already confirmed
// sighting succeeds without writing.
func (s *SightingService) Confirm(ctx context.Context, id int64) (*models.Sighting, error) {
	return s.transition(ctx, id, models.ConfirmStateConfirmed)
}

// UpdateAndConfirm overwrites the sighting with the reviewed field set and
// publishes it in one write.
func (s *SightingService) UpdateAndConfirm(ctx context.Context, id int64, req dto.ConfirmSightingRequest) (*models.Sighting, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sighting payload")
	}
	sightedAt, err := ParseSightingTime(req.SightedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "sightedAt must be a date (YYYY-MM-DD) or RFC3339 timestamp")
	}

	sighting, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if apiIDChanged(sighting.APIID, req.APIID) {
		return nil, appErrors.Clone(appErrors.ErrConflict, "apiId of a stored sighting cannot be changed")
	}
	from := sighting.ConfirmState
	next, err := from.Transition(models.ConfirmStateConfirmed)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, err.Error())
	}

	sighting.Species = strings.TrimSpace(req.Species)
	sighting.Quantity = strings.TrimSpace(req.Quantity)
	sighting.Location = strings.TrimSpace(req.Location)
	sighting.Latitude = *req.Latitude
	sighting.Longitude = *req.Longitude
	sighting.Description = strings.TrimSpace(req.Description)
	sighting.SightedAt = sightedAt
	sighting.SubmittedByName = strings.TrimSpace(req.SubmittedByName)
	sighting.SubmittedByEmail = strings.TrimSpace(req.SubmittedByEmail)
	sighting.ConfirmState = next

	if err := s.repo.Update(ctx, sighting); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sighting no longer exists")
		}
		return nil, appErrors.Storage(err, "failed to update sighting")
	}

	s.afterTransition(ctx, sighting.ID, from, next)
	return sighting, nil
}

// Delete hides a sighting from every public listing.
func (s *SightingService) Delete(ctx context.Context, id int64) (*models.Sighting, error) {
	return s.transition(ctx, id, models.ConfirmStateDeleted)
}

// Restore returns a sighting to the review queue.
func (s *SightingService) Restore(ctx context.Context, id int64) (*models.Sighting, error) {
	return s.transition(ctx, id, models.ConfirmStateReview)
}

func (s *SightingService) transition(ctx context.Context, id int64, target models.ConfirmState) (*models.Sighting, error) {
	sighting, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := sighting.ConfirmState
	next, err := from.Transition(target)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status, err.Error())
	}
	if next == from {
		return sighting, nil
	}

	if err := s.repo.UpdateConfirmState(ctx, id, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sighting no longer exists")
		}
		return nil, appErrors.Storage(err, "failed to update sighting state")
	}
	sighting.ConfirmState = next

	s.afterTransition(ctx, id, from, next)
	return sighting, nil
}

func (s *SightingService) afterTransition(ctx context.Context, id int64, from, to models.ConfirmState) {
	s.metrics.RecordTransition(from, to)
	s.cache.InvalidateSightings(ctx)
	s.logger.Info("sighting state changed",
		zap.Int64("id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (s *SightingService) load(ctx context.Context, id int64) (*models.Sighting, error) {
	sighting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sighting no longer exists")
		}
		return nil, appErrors.Storage(err, "failed to load sighting")
	}
	return sighting, nil
}

func (s *SightingService) normalizeFilter(filter models.SightingFilter) models.SightingFilter {
	filter.Species = strings.TrimSpace(filter.Species)
	filter.Location = strings.TrimSpace(filter.Location)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.cfg.DefaultPageSize
	}
	if filter.PageSize > s.cfg.MaxPageSize {
		filter.PageSize = s.cfg.MaxPageSize
	}
	if s.cfg.CountAllStates {
		filter.CountAllStates = true
	}
	return filter
}

// apiIDChanged reports whether the request tries to set or replace the feed
// identity of a stored row. An omitted apiId keeps the stored one.
func apiIDChanged(stored, requested *string) bool {
	if requested == nil {
		return false
	}
	return stored == nil || *stored != *requested
}

// ParseSightingTime accepts a calendar date or an RFC3339 timestamp. Sighting
// times carry no zone: dates are read as midnight and a timestamp keeps its
// local wall clock, with any offset dropped rather than applied.
func ParseSightingTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
}

func nonNil(sightings []models.Sighting) []models.Sighting {
	if sightings == nil {
		return []models.Sighting{}
	}
	return sightings
}
