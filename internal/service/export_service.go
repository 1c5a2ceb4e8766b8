package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/export"
)

var exportHeaders = []string{"ID", "Species", "Quantity", "Location", "Latitude", "Longitude", "Sighted at", "Reported by", "Description"}

var exportWidths = []float64{0.6, 1.6, 0.8, 2, 1, 1, 1.6, 1.6, 4}

type sightingSearcher interface {
	Search(ctx context.Context, filter models.SightingFilter) (*dto.SearchResponse, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders a page of search results as CSV or PDF.
type ExportService struct {
	search sightingSearcher
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(search sightingSearcher, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{search: search, csv: csv, pdf: pdf, logger: logger}
}

// Export runs the search and encodes its page in format.
func (s *ExportService) Export(ctx context.Context, filter models.SightingFilter, format export.Format) (*ExportFile, error) {
	result, _, err := s.search.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Confirmed sightings - page %d (%d total)", result.Page, result.TotalCount),
		Headers: exportHeaders,
		Widths:  exportWidths,
		Rows:    make([][]string, 0, len(result.Sightings)),
	}
	for _, sighting := range result.Sightings {
		dataset.Rows = append(dataset.Rows, []string{
			strconv.FormatInt(sighting.ID, 10),
			sighting.Species,
			sighting.Quantity,
			sighting.Location,
			strconv.FormatFloat(sighting.Latitude, 'f', 5, 64),
			strconv.FormatFloat(sighting.Longitude, 'f', 5, 64),
			sighting.SightedAt.UTC().Format(time.RFC3339),
			sighting.SubmittedByName,
			sighting.Description,
		})
	}

	var payload []byte
	switch format {
	case export.FormatCSV:
		payload, err = s.csv.Render(dataset)
	case export.FormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Debug("search exported", zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("sightings_%s_p%d.%s", time.Now().UTC().Format("20060102_150405"), result.Page, format),
		ContentType: format.ContentType(),
		Payload:     payload,
		Rows:        len(dataset.Rows),
	}, nil
}
