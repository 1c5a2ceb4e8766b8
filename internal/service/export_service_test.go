package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/export"
)

type stubSearcher struct {
	resp   *dto.SearchResponse
	err    error
	filter models.SightingFilter
}

func (s *stubSearcher) Search(ctx context.Context, filter models.SightingFilter) (*dto.SearchResponse, bool, error) {
	s.filter = filter
	return s.resp, false, s.err
}

type failingRenderer struct{}

func (failingRenderer) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("render failed")
}

func exportFixture() *dto.SearchResponse {
	return &dto.SearchResponse{
		Sightings: []models.Sighting{{
			ID:              3,
			Species:         "Orca",
			Quantity:        "4",
			Location:        "Lime Kiln",
			Latitude:        48.5158,
			Longitude:       -123.1524,
			SightedAt:       time.Date(2024, 6, 1, 18, 20, 0, 0, time.UTC),
			SubmittedByName: "Hotline",
			Description:     "J pod",
			ConfirmState:    models.ConfirmStateConfirmed,
		}},
		TotalCount: 1,
		Page:       1,
		PageSize:   10,
	}
}

func TestExportServiceCSV(t *testing.T) {
	searcher := &stubSearcher{resp: exportFixture()}
	svc := NewExportService(searcher, nil, nil, nil)

	file, err := svc.Export(context.Background(), models.SightingFilter{Species: "orca"}, export.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "orca", searcher.filter.Species)
	assert.Equal(t, 1, file.Rows)
	assert.True(t, strings.HasSuffix(file.Filename, "_p1.csv"))
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	lines := strings.Split(strings.TrimSpace(string(file.Payload)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "3,Orca,4,Lime Kiln,48.51580,-123.15240,2024-06-01T18:20:00Z,Hotline,J pod", lines[1])
}

func TestExportServicePDF(t *testing.T) {
	svc := NewExportService(&stubSearcher{resp: exportFixture()}, nil, nil, nil)

	file, err := svc.Export(context.Background(), models.SightingFilter{}, export.FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Payload), "%PDF-"))
}

func TestExportServiceErrors(t *testing.T) {
	storageErr := appErrors.Storage(errors.New("down"), "failed to search sightings")
	svc := NewExportService(&stubSearcher{err: storageErr}, nil, nil, nil)
	_, err := svc.Export(context.Background(), models.SightingFilter{}, export.FormatCSV)
	assert.Equal(t, appErrors.ErrStorage.Code, appErrors.FromError(err).Code)

	svc = NewExportService(&stubSearcher{resp: exportFixture()}, nil, failingRenderer{}, nil)
	_, err = svc.Export(context.Background(), models.SightingFilter{}, export.FormatCSV)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), models.SightingFilter{}, export.Format("xml"))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
