package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/whale-spotting-api/internal/models"
)

const (
	defaultSearchPageSize = 10
	maxSearchPageSize     = 100
	defaultRecentLimit    = 5
)

const sightingColumns = `id, api_id, species, quantity, location, latitude, longitude, description, sighted_at,
        submitted_by_name, submitted_by_email, confirm_state, created_at`

// SightingRepository manages persistence for sighting records. It is the only
// component that writes confirm_state.
type SightingRepository struct {
	db          *sqlx.DB
	maxPageSize int
}

// NewSightingRepository constructs a SightingRepository. maxPageSize caps the
// search page size and must match the limit enforced by callers; zero keeps
// the default of 100.
func NewSightingRepository(db *sqlx.DB, maxPageSize int) *SightingRepository {
	if maxPageSize <= 0 {
		maxPageSize = maxSearchPageSize
	}
	return &SightingRepository{db: db, maxPageSize: maxPageSize}
}

// Create inserts a visitor submission. The record always starts in review.
func (r *SightingRepository) Create(ctx context.Context, sighting *models.Sighting) error {
	sighting.ConfirmState = models.ConfirmStateReview
	sighting.CreatedAt = time.Now().UTC()
	if err := insertSighting(ctx, r.db, sighting); err != nil {
		return fmt.Errorf("create sighting: %w", err)
	}
	return nil
}

// ListByConfirmState returns every sighting currently in state, unordered.
func (r *SightingRepository) ListByConfirmState(ctx context.Context, state models.ConfirmState) ([]models.Sighting, error) {
	query := fmt.Sprintf("SELECT %s FROM sightings WHERE confirm_state = $1", sightingColumns)
	var sightings []models.Sighting
	if err := r.db.SelectContext(ctx, &sightings, query, state); err != nil {
		return nil, fmt.Errorf("list sightings by state: %w", err)
	}
	return sightings, nil
}

// InsertMissing stores the candidates whose api_id is not yet known, forcing
// them to confirmed. Duplicates inside the batch keep their first occurrence
// and candidates without an api_id are ignored. Either every new candidate is
// committed or none is.
func (r *SightingRepository) InsertMissing(ctx context.Context, candidates []models.Sighting) ([]models.Sighting, error) {
	ids := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if candidate.APIID == nil {
			continue
		}
		if _, ok := seen[*candidate.APIID]; ok {
			continue
		}
		seen[*candidate.APIID] = struct{}{}
		ids = append(ids, *candidate.APIID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ingest: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var existing []string
	if err := tx.SelectContext(ctx, &existing, "SELECT api_id FROM sightings WHERE api_id = ANY($1)", pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lookup known api ids: %w", err)
	}
	known := make(map[string]struct{}, len(existing)+len(ids))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	now := time.Now().UTC()
	inserted := make([]models.Sighting, 0, len(ids)-len(existing))
	for _, candidate := range candidates {
		if candidate.APIID == nil {
			continue
		}
		if _, ok := known[*candidate.APIID]; ok {
			continue
		}
		known[*candidate.APIID] = struct{}{}

		candidate.ConfirmState = models.ConfirmStateConfirmed
		if candidate.CreatedAt.IsZero() {
			candidate.CreatedAt = now
		}
		if err := insertSighting(ctx, tx, &candidate); err != nil {
			return nil, fmt.Errorf("insert feed sighting %s: %w", *candidate.APIID, err)
		}
		inserted = append(inserted, candidate)
	}
	if len(inserted) == 0 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ingest: %w", err)
	}
	committed = true
	return inserted, nil
}

// FindByID fetches a sighting by ID. sql.ErrNoRows is returned when absent.
func (r *SightingRepository) FindByID(ctx context.Context, id int64) (*models.Sighting, error) {
	query := fmt.Sprintf("SELECT %s FROM sightings WHERE id = $1", sightingColumns)
	var sighting models.Sighting
	if err := r.db.GetContext(ctx, &sighting, query, id); err != nil {
		return nil, err
	}
	return &sighting, nil
}

// Search returns one page of confirmed sightings matching filter, newest sighting first.
func (r *SightingRepository) Search(ctx context.Context, filter models.SightingFilter) ([]models.Sighting, error) {
	return searchSightings(ctx, r.db, filter, r.maxPageSize)
}

// Count returns the number of sightings matching filter without pagination.
func (r *SightingRepository) Count(ctx context.Context, filter models.SightingFilter) (int, error) {
	return countSightings(ctx, r.db, filter)
}

// SearchPage runs Search and Count inside one read-only transaction so the
// page and the total describe the same snapshot.
func (r *SightingRepository) SearchPage(ctx context.Context, filter models.SightingFilter) ([]models.Sighting, int, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin search: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sightings, err := searchSightings(ctx, tx, filter, r.maxPageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := countSightings(ctx, tx, filter)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit search: %w", err)
	}
	return sightings, total, nil
}

// UpdateConfirmState sets confirm_state only. sql.ErrNoRows is returned when id is unknown.
func (r *SightingRepository) UpdateConfirmState(ctx context.Context, id int64, state models.ConfirmState) error {
	res, err := r.db.ExecContext(ctx, "UPDATE sightings SET confirm_state = $2 WHERE id = $1", id, state)
	if err != nil {
		return fmt.Errorf("update confirm state: %w", err)
	}
	return expectAffected(res)
}

// Update persists the full record as supplied, including its confirm state.
func (r *SightingRepository) Update(ctx context.Context, sighting *models.Sighting) error {
	const query = `UPDATE sightings SET api_id = :api_id, species = :species, quantity = :quantity, location = :location,
        latitude = :latitude, longitude = :longitude, description = :description, sighted_at = :sighted_at,
        submitted_by_name = :submitted_by_name, submitted_by_email = :submitted_by_email, confirm_state = :confirm_state
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, sighting)
	if err != nil {
		return fmt.Errorf("update sighting: %w", err)
	}
	return expectAffected(res)
}

// LatestFromFeed returns the feed-sourced sighting with the greatest created_at.
func (r *SightingRepository) LatestFromFeed(ctx context.Context) (*models.Sighting, error) {
	query := fmt.Sprintf("SELECT %s FROM sightings WHERE api_id IS NOT NULL ORDER BY created_at DESC, id DESC LIMIT 1", sightingColumns)
	var sighting models.Sighting
	if err := r.db.GetContext(ctx, &sighting, query); err != nil {
		return nil, err
	}
	return &sighting, nil
}

// Recent returns the most recently sighted confirmed records.
func (r *SightingRepository) Recent(ctx context.Context, limit int) ([]models.Sighting, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	query := fmt.Sprintf("SELECT %s FROM sightings WHERE confirm_state = $1 ORDER BY sighted_at DESC, id DESC LIMIT %d", sightingColumns, limit)
	var sightings []models.Sighting
	if err := r.db.SelectContext(ctx, &sightings, query, models.ConfirmStateConfirmed); err != nil {
		return nil, fmt.Errorf("list recent sightings: %w", err)
	}
	return sightings, nil
}

func searchSightings(ctx context.Context, q sqlx.QueryerContext, filter models.SightingFilter, maxPageSize int) ([]models.Sighting, error) {
	conditions, args := buildSightingConditions(filter)
	args = append(args, models.ConfirmStateConfirmed)
	conditions = append(conditions, fmt.Sprintf("confirm_state = $%d", len(args)))

	page, size := pageBounds(filter, maxPageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM sightings WHERE %s ORDER BY sighted_at DESC, id DESC LIMIT %d OFFSET %d",
		sightingColumns, strings.Join(conditions, " AND "), size, offset)

	var sightings []models.Sighting
	if err := sqlx.SelectContext(ctx, q, &sightings, query, args...); err != nil {
		return nil, fmt.Errorf("search sightings: %w", err)
	}
	return sightings, nil
}

func countSightings(ctx context.Context, q sqlx.QueryerContext, filter models.SightingFilter) (int, error) {
	conditions, args := buildSightingConditions(filter)
	if !filter.CountAllStates {
		args = append(args, models.ConfirmStateConfirmed)
		conditions = append(conditions, fmt.Sprintf("confirm_state = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM sightings WHERE %s", strings.Join(conditions, " AND "))
	var total int
	if err := sqlx.GetContext(ctx, q, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count sightings: %w", err)
	}
	return total, nil
}

// buildSightingConditions is shared by search and count so both always apply
// the same species, date and location predicates.
func buildSightingConditions(filter models.SightingFilter) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Species != "" {
		args = append(args, containsPattern(filter.Species))
		conditions = append(conditions, fmt.Sprintf("LOWER(species) LIKE $%d", len(args)))
	}
	if filter.SightedAt != nil {
		day := time.Date(filter.SightedAt.Year(), filter.SightedAt.Month(), filter.SightedAt.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, day, day.AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("sighted_at >= $%d AND sighted_at < $%d", len(args)-1, len(args)))
	}
	if filter.Location != "" {
		args = append(args, containsPattern(filter.Location))
		conditions = append(conditions, fmt.Sprintf("LOWER(location) LIKE $%d", len(args)))
	}

	return conditions, args
}

// containsPattern builds a LIKE pattern matching value as a plain,
// case-insensitive substring.
func containsPattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.ToLower(value))
	return "%" + escaped + "%"
}

func pageBounds(filter models.SightingFilter, maxPageSize int) (int, int) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = defaultSearchPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func insertSighting(ctx context.Context, q sqlx.QueryerContext, sighting *models.Sighting) error {
	const query = `INSERT INTO sightings (api_id, species, quantity, location, latitude, longitude, description, sighted_at,
        submitted_by_name, submitted_by_email, confirm_state, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`
	return q.QueryRowxContext(ctx, query,
		sighting.APIID,
		sighting.Species,
		sighting.Quantity,
		sighting.Location,
		sighting.Latitude,
		sighting.Longitude,
		sighting.Description,
		sighting.SightedAt,
		sighting.SubmittedByName,
		sighting.SubmittedByEmail,
		sighting.ConfirmState,
		sighting.CreatedAt,
	).Scan(&sighting.ID)
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
