package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/whale-spotting-api/internal/models"
)

var sightingRowColumns = []string{"id", "api_id", "species", "quantity", "location", "latitude", "longitude", "description", "sighted_at", "submitted_by_name", "submitted_by_email", "confirm_state", "created_at"}

func newSightingRepoMock(t *testing.T) (*SightingRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewSightingRepository(sqlx.NewDb(db, "sqlmock"), 0), mock, func() { db.Close() }
}

func sightingRow(rows *sqlmock.Rows, id int64, apiID interface{}, species string, sightedAt time.Time, state models.ConfirmState) *sqlmock.Rows {
	return rows.AddRow(id, apiID, species, "2", "Haro Strait", 48.5, -123.1, "pod heading north", sightedAt, "Ana", "ana@example.com", string(state), sightedAt)
}

func TestSightingRepositoryCreateForcesReview(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sightings")).
		WithArgs(nil, "Orca", "3", "Lime Kiln", 48.51, -123.15, "", sqlmock.AnyArg(), "Ana", "", "Review", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	sighting := &models.Sighting{
		Species:         "Orca",
		Quantity:        "3",
		Location:        "Lime Kiln",
		Latitude:        48.51,
		Longitude:       -123.15,
		SightedAt:       time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		SubmittedByName: "Ana",
		ConfirmState:    models.ConfirmStateConfirmed,
	}
	require.NoError(t, repo.Create(context.Background(), sighting))
	assert.Equal(t, int64(7), sighting.ID)
	assert.Equal(t, models.ConfirmStateReview, sighting.ConfirmState)
	assert.False(t, sighting.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryFindByIDNotFound(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, api_id, species")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryListByConfirmState(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sightingRowColumns)
	sightingRow(rows, 1, nil, "Orca", at, models.ConfirmStateReview)
	sightingRow(rows, 2, nil, "Humpback", at, models.ConfirmStateReview)
	mock.ExpectQuery(regexp.QuoteMeta("FROM sightings WHERE confirm_state = $1")).
		WithArgs("Review").
		WillReturnRows(rows)

	sightings, err := repo.ListByConfirmState(context.Background(), models.ConfirmStateReview)
	require.NoError(t, err)
	require.Len(t, sightings, 2)
	assert.Equal(t, models.ConfirmStateReview, sightings[0].ConfirmState)
	assert.Nil(t, sightings[0].APIID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositorySearchAppliesFilters(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	day := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sightingRowColumns)
	sightingRow(rows, 3, "feed-3", "Orca", day, models.ConfirmStateConfirmed)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(species) LIKE $1 AND sighted_at >= $2 AND sighted_at < $3 AND LOWER(location) LIKE $4 AND confirm_state = $5 ORDER BY sighted_at DESC, id DESC LIMIT 5 OFFSET 5")).
		WithArgs("%orca%", start, start.AddDate(0, 0, 1), `%50\%%`, "Confirmed").
		WillReturnRows(rows)

	sightings, err := repo.Search(context.Background(), models.SightingFilter{
		Species:   "ORCA",
		Location:  "50%",
		SightedAt: &day,
		Page:      2,
		PageSize:  5,
	})
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	require.NotNil(t, sightings[0].APIID)
	assert.Equal(t, "feed-3", *sightings[0].APIID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositorySearchClampsPaging(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND confirm_state = $1 ORDER BY sighted_at DESC, id DESC LIMIT 100 OFFSET 0")).
		WithArgs("Confirmed").
		WillReturnRows(sqlmock.NewRows(sightingRowColumns))

	sightings, err := repo.Search(context.Background(), models.SightingFilter{Page: -4, PageSize: 5000})
	require.NoError(t, err)
	assert.Empty(t, sightings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositorySearchUsesConfiguredMaxPageSize(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewSightingRepository(sqlx.NewDb(db, "sqlmock"), 250)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY sighted_at DESC, id DESC LIMIT 250 OFFSET 250")).
		WithArgs("Confirmed").
		WillReturnRows(sqlmock.NewRows(sightingRowColumns))

	_, err = repo.Search(context.Background(), models.SightingFilter{Page: 2, PageSize: 900})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryCountRestrictsToConfirmed(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sightings WHERE 1=1 AND LOWER(species) LIKE $1 AND confirm_state = $2")).
		WithArgs("%orca%", "Confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := repo.Count(context.Background(), models.SightingFilter{Species: "orca", Page: 3, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryCountAllStates(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sightings WHERE 1=1 AND LOWER(species) LIKE $1")).
		WithArgs("%orca%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(9))

	total, err := repo.Count(context.Background(), models.SightingFilter{Species: "orca", CountAllStates: true})
	require.NoError(t, err)
	assert.Equal(t, 9, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositorySearchPageUsesOneTransaction(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	at := time.Date(2024, 6, 2, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sightingRowColumns)
	sightingRow(rows, 5, nil, "Minke", at, models.ConfirmStateConfirmed)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, api_id, species")).
		WithArgs("%minke%", "Confirmed").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sightings")).
		WithArgs("%minke%", "Confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	sightings, total, err := repo.SearchPage(context.Background(), models.SightingFilter{Species: "minke"})
	require.NoError(t, err)
	require.Len(t, sightings, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositorySearchPageRollsBackOnError(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, api_id, species")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, _, err := repo.SearchPage(context.Background(), models.SightingFilter{})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryInsertMissingSkipsKnownAndDuplicates(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	known, fresh := "feed-1", "feed-2"
	created := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	candidates := []models.Sighting{
		{APIID: &known, Species: "Orca", SightedAt: created, ConfirmState: models.ConfirmStateReview},
		{APIID: &fresh, Species: "Humpback", SightedAt: created, CreatedAt: created, ConfirmState: models.ConfirmStateReview},
		{APIID: &fresh, Species: "Humpback duplicate", SightedAt: created},
		{Species: "No id"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT api_id FROM sightings WHERE api_id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"api_id"}).AddRow(known))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sightings")).
		WithArgs("feed-2", "Humpback", "", "", 0.0, 0.0, "", created, "", "", "Confirmed", created).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	inserted, err := repo.InsertMissing(context.Background(), candidates)
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, int64(11), inserted[0].ID)
	assert.Equal(t, models.ConfirmStateConfirmed, inserted[0].ConfirmState)
	assert.Equal(t, created, inserted[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryInsertMissingRollsBackOnFailure(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	a, b := "feed-a", "feed-b"
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT api_id FROM sightings")).
		WillReturnRows(sqlmock.NewRows([]string{"api_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sightings")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO sightings")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	inserted, err := repo.InsertMissing(context.Background(), []models.Sighting{{APIID: &a}, {APIID: &b}})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Nil(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryInsertMissingNoCandidates(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	inserted, err := repo.InsertMissing(context.Background(), []models.Sighting{{Species: "No id"}})
	require.NoError(t, err)
	assert.Empty(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryUpdateConfirmState(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sightings SET confirm_state = $2 WHERE id = $1")).
		WithArgs(int64(4), "Deleted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sightings SET confirm_state = $2 WHERE id = $1")).
		WithArgs(int64(404), "Deleted").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdateConfirmState(context.Background(), 4, models.ConfirmStateDeleted))
	assert.ErrorIs(t, repo.UpdateConfirmState(context.Background(), 404, models.ConfirmStateDeleted), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryUpdate(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE sightings SET api_id = ?, species = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Sighting{ID: 2, Species: "Grey", ConfirmState: models.ConfirmStateConfirmed})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryLatestFromFeed(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(sightingRowColumns)
	sightingRow(rows, 8, "feed-8", "Orca", at, models.ConfirmStateConfirmed)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE api_id IS NOT NULL ORDER BY created_at DESC")).
		WillReturnRows(rows)

	latest, err := repo.LatestFromFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, at, latest.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSightingRepositoryRecentDefaultsLimit(t *testing.T) {
	repo, mock, cleanup := newSightingRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE confirm_state = $1 ORDER BY sighted_at DESC, id DESC LIMIT 5")).
		WithArgs("Confirmed").
		WillReturnRows(sqlmock.NewRows(sightingRowColumns))

	sightings, err := repo.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, sightings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%a\_b\%c\\%`, containsPattern(`A_b%C\`))
}
