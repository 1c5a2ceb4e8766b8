package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/jobs"
)

const feedPollJob = "feed_poll"

type ingestRepository interface {
	InsertMissing(ctx context.Context, candidates []models.Sighting) ([]models.Sighting, error)
	LatestFromFeed(ctx context.Context) (*models.Sighting, error)
}

type feedFetcher interface {
	Fetch(ctx context.Context, since time.Time) ([]dto.IngestCandidate, error)
}

// IngestServiceConfig tunes the feed poller.
type IngestServiceConfig struct {
	SourceName   string
	PollInterval time.Duration
	Workers      int
	MaxRetries   int
	RetryDelay   time.Duration
}

// IngestService imports externally sourced sightings. Ingested records are
// published immediately and deduplicated by their feed id.
type IngestService struct {
	repo      ingestRepository
	feed      feedFetcher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       IngestServiceConfig

	mu    sync.Mutex
	queue *jobs.Queue
}

// NewIngestService constructs an IngestService. feed may be nil when polling
// is disabled; Ingest still works for pushed batches.
func NewIngestService(repo ingestRepository, feed feedFetcher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg IngestServiceConfig) *IngestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "feed"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Hour
	}
	return &IngestService{
		repo:      repo,
		feed:      feed,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Ingest validates and stores a batch of candidates. Known feed ids are
// skipped, so repeating a batch is harmless.
func (s *IngestService) Ingest(ctx context.Context, candidates []dto.IngestCandidate) (*dto.IngestResult, error) {
	if err := s.validator.Struct(dto.IngestRequest{Sightings: candidates}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ingest payload")
	}

	sightings := make([]models.Sighting, 0, len(candidates))
	for i := range candidates {
		sighting, err := candidateToSighting(candidates[i])
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timestamp for apiId "+candidates[i].APIID)
		}
		sightings = append(sightings, sighting)
	}

	inserted, err := s.repo.InsertMissing(ctx, sightings)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to ingest sightings")
	}

	result := &dto.IngestResult{
		Received: len(candidates),
		Inserted: len(inserted),
		Skipped:  len(candidates) - len(inserted),
		IDs:      make([]int64, 0, len(inserted)),
	}
	for _, sighting := range inserted {
		result.IDs = append(result.IDs, sighting.ID)
	}

	if len(inserted) > 0 {
		s.cache.InvalidateSightings(ctx)
		s.metrics.RecordFeedIngested(s.cfg.SourceName, len(inserted))
	}
	s.logger.Info("sightings ingested",
		zap.Int("received", result.Received),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

// Poll fetches feed entries newer than the latest ingested one and stores them.
func (s *IngestService) Poll(ctx context.Context) (*dto.IngestResult, error) {
	if s.feed == nil {
		return nil, appErrors.Clone(appErrors.ErrUpstream, "sighting feed is not configured")
	}

	var since time.Time
	latest, err := s.repo.LatestFromFeed(ctx)
	switch {
	case err == nil:
		since = latest.CreatedAt
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, appErrors.Storage(err, "failed to read feed high-water mark")
	}

	candidates, err := s.feed.Fetch(ctx, since)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	if len(candidates) == 0 {
		return &dto.IngestResult{IDs: []int64{}}, nil
	}
	return s.Ingest(ctx, candidates)
}

// Start launches the poll worker pool and, when interval polling is enabled,
// a ticker that schedules a poll every PollInterval. Both stop with ctx.
func (s *IngestService) Start(ctx context.Context, schedule bool) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	queue := jobs.NewQueue("feed-ingest", s.handleJob, jobs.QueueConfig{
		Workers:    s.cfg.Workers,
		MaxRetries: s.cfg.MaxRetries,
		RetryDelay: s.cfg.RetryDelay,
		Logger:     s.logger,
	})
	queue.Start(ctx)
	s.queue = queue
	s.mu.Unlock()

	if !schedule {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Enqueue(); err != nil {
					s.logger.Warn("feed poll not scheduled", zap.Error(err))
				}
			}
		}
	}()
}

// Stop waits for the poll workers to exit.
func (s *IngestService) Stop() {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue != nil {
		queue.Stop()
	}
}

// Enqueue schedules an asynchronous feed poll and returns its job id.
func (s *IngestService) Enqueue() (string, error) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()
	if queue == nil || s.feed == nil {
		return "", appErrors.Clone(appErrors.ErrUpstream, "sighting feed is not configured")
	}

	id := uuid.NewString()
	if err := queue.Enqueue(jobs.Job{ID: id, Type: feedPollJob}); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			return "", appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "too many feed polls pending")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "feed poller is not running")
	}
	return id, nil
}

func (s *IngestService) handleJob(ctx context.Context, job jobs.Job) error {
	result, err := s.Poll(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("feed poll finished", zap.String("job_id", job.ID), zap.Int("inserted", result.Inserted))
	return nil
}

func candidateToSighting(candidate dto.IngestCandidate) (models.Sighting, error) {
	sightedAt, err := ParseSightingTime(candidate.SightedAt)
	if err != nil {
		return models.Sighting{}, err
	}
	apiID := strings.TrimSpace(candidate.APIID)
	sighting := models.Sighting{
		APIID:            &apiID,
		Species:          strings.TrimSpace(candidate.Species),
		Quantity:         strings.TrimSpace(candidate.Quantity),
		Location:         strings.TrimSpace(candidate.Location),
		Latitude:         *candidate.Latitude,
		Longitude:        *candidate.Longitude,
		Description:      strings.TrimSpace(candidate.Description),
		SightedAt:        sightedAt,
		SubmittedByName:  strings.TrimSpace(candidate.SubmittedByName),
		SubmittedByEmail: strings.TrimSpace(candidate.SubmittedByEmail),
	}
	if candidate.CreatedAt != "" {
		createdAt, err := ParseSightingTime(candidate.CreatedAt)
		if err != nil {
			return models.Sighting{}, err
		}
		sighting.CreatedAt = createdAt
	}
	return sighting, nil
}
