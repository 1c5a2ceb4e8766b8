package service

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/whale-spotting-api/internal/models"
	"github.com/noah-isme/whale-spotting-api/internal/repository"
)

func TestSightingServiceSearchHonoursConfiguredMaxPageSize(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := repository.NewSightingRepository(sqlx.NewDb(db, "sqlmock"), 200)
	svc := NewSightingService(repo, nil, nil, nil, nil, SightingServiceConfig{MaxPageSize: 200})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY sighted_at DESC, id DESC LIMIT 150 OFFSET 150")).
		WithArgs("Confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sightings")).
		WithArgs("Confirmed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(160))
	mock.ExpectCommit()

	result, hit, err := svc.Search(context.Background(), models.SightingFilter{Page: 2, PageSize: 150})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 150, result.PageSize)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 160, result.TotalCount)
	assert.Empty(t, result.Sightings)
	require.NoError(t, mock.ExpectationsWereMet())
}
