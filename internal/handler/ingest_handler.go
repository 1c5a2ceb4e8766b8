package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/response"
)

type ingestService interface {
	Ingest(ctx context.Context, candidates []dto.IngestCandidate) (*dto.IngestResult, error)
	Enqueue() (string, error)
}

// IngestHandler exposes the admin feed ingestion endpoints.
type IngestHandler struct {
	ingest ingestService
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(ingest ingestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// Ingest godoc
// @Summary Ingest externally sourced sightings
// @Description Candidates whose apiId is already stored are skipped. New ones are published immediately.
// @Tags Admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.IngestRequest true "Candidates"
// @Success 200 {object} response.Envelope{data=dto.IngestResult}
// @Router /admin/ingest [post]
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	result, err := h.ingest.Ingest(c.Request.Context(), req.Sightings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Poll godoc
// @Summary Schedule a feed poll
// @Tags Admin
// @Security BearerAuth
// @Produce json
// @Success 202 {object} response.Envelope{data=dto.PollResponse}
// @Router /admin/ingest/poll [post]
func (h *IngestHandler) Poll(c *gin.Context) {
	jobID, err := h.ingest.Enqueue()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, dto.PollResponse{JobID: jobID}, nil)
}
