package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/middleware"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	"github.com/noah-isme/whale-spotting-api/internal/service"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/export"
	"github.com/noah-isme/whale-spotting-api/pkg/response"
)

type searchService interface {
	Search(ctx context.Context, filter models.SightingFilter) (*dto.SearchResponse, bool, error)
}

type exportService interface {
	Export(ctx context.Context, filter models.SightingFilter, format export.Format) (*service.ExportFile, error)
}

// SearchHandler serves the public sighting search.
type SearchHandler struct {
	search  searchService
	exports exportService
}

// NewSearchHandler constructs a SearchHandler.
func NewSearchHandler(search searchService, exports exportService) *SearchHandler {
	return &SearchHandler{search: search, exports: exports}
}

// Search godoc
// @Summary Search confirmed sightings
// @Tags Search
// @Produce json
// @Param species query string false "Case-insensitive species substring"
// @Param location query string false "Case-insensitive location substring"
// @Param sightedAt query string false "Calendar day (YYYY-MM-DD)"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(10)
// @Success 200 {object} response.Envelope{data=dto.SearchResponse}
// @Failure 400 {object} response.Envelope
// @Router /search [get]
func (h *SearchHandler) Search(c *gin.Context) {
	filter, ok := searchFilter(c)
	if !ok {
		return
	}
	result, hit, err := h.search.Search(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, result, &models.Pagination{
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalCount: result.TotalCount,
	}, middleware.ResponseMeta(c))
}

// Export godoc
// @Summary Download search results
// @Tags Search
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param species query string false "Case-insensitive species substring"
// @Param location query string false "Case-insensitive location substring"
// @Param sightedAt query string false "Calendar day (YYYY-MM-DD)"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(10)
// @Success 200 {file} file
// @Router /search/export [get]
func (h *SearchHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	filter, ok := searchFilter(c)
	if !ok {
		return
	}
	file, err := h.exports.Export(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}

func searchFilter(c *gin.Context) (models.SightingFilter, bool) {
	filter := models.SightingFilter{
		Species:  strings.TrimSpace(c.Query("species")),
		Location: strings.TrimSpace(c.Query("location")),
	}
	if raw := strings.TrimSpace(c.Query("sightedAt")); raw != "" {
		day, err := service.ParseSightingTime(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "sightedAt must be a date (YYYY-MM-DD)"))
			return filter, false
		}
		filter.SightedAt = &day
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("pageSize", "10")); err == nil {
		filter.PageSize = size
	}
	return filter, true
}
