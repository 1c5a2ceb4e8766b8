package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/whale-spotting-api/internal/dto"
	"github.com/noah-isme/whale-spotting-api/internal/middleware"
	"github.com/noah-isme/whale-spotting-api/internal/models"
	appErrors "github.com/noah-isme/whale-spotting-api/pkg/errors"
	"github.com/noah-isme/whale-spotting-api/pkg/response"
)

type sightingService interface {
	Submit(ctx context.Context, req dto.SubmitSightingRequest) (*models.Sighting, error)
	Get(ctx context.Context, id int64) (*models.Sighting, error)
	ReviewQueue(ctx context.Context) ([]models.Sighting, error)
	Recent(ctx context.Context) ([]models.Sighting, bool, error)
	Confirm(ctx context.Context, id int64) (*models.Sighting, error)
	UpdateAndConfirm(ctx context.Context, id int64, req dto.ConfirmSightingRequest) (*models.Sighting, error)
	Delete(ctx context.Context, id int64) (*models.Sighting, error)
	Restore(ctx context.Context, id int64) (*models.Sighting, error)
}

// SightingHandler serves sighting submission and review endpoints.
type SightingHandler struct {
	sightings sightingService
}

// NewSightingHandler constructs a SightingHandler.
func NewSightingHandler(sightings sightingService) *SightingHandler {
	return &SightingHandler{sightings: sightings}
}

// Submit godoc
// @Summary Report a sighting
// @Description Stores a visitor report. It stays hidden until an admin confirms it.
// @Tags Sightings
// @Accept json
// @Produce json
// @Param payload body dto.SubmitSightingRequest true "Sighting"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sightings [post]
func (h *SightingHandler) Submit(c *gin.Context) {
	var req dto.SubmitSightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	sighting, err := h.sightings.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sighting)
}

// Get godoc
// @Summary Get a sighting
// @Tags Sightings
// @Produce json
// @Param id path int true "Sighting ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sightings/{id} [get]
func (h *SightingHandler) Get(c *gin.Context) {
	id, ok := sightingID(c)
	if !ok {
		return
	}
	sighting, err := h.sightings.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sighting, nil)
}

// Recent godoc
// @Summary Latest confirmed sightings
// @Tags Sightings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sightings/recent [get]
func (h *SightingHandler) Recent(c *gin.Context) {
	sightings, hit, err := h.sightings.Recent(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, sightings, nil, middleware.ResponseMeta(c))
}

// ReviewQueue godoc
// @Summary Sightings awaiting review
// @Tags Review
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sightings/review [get]
func (h *SightingHandler) ReviewQueue(c *gin.Context) {
	sightings, err := h.sightings.ReviewQueue(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sightings, nil)
}

// Confirm godoc
// @Summary Confirm a sighting
// @Description With an empty body the sighting is published as submitted. With a body the reviewed fields replace the stored ones; apiId may be omitted but never changed.
// @Tags Review
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Sighting ID"
// @Param payload body dto.ConfirmSightingRequest false "Reviewed sighting"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sightings/{id}/confirm [put]
func (h *SightingHandler) Confirm(c *gin.Context) {
	id, ok := sightingID(c)
	if !ok {
		return
	}

	var req dto.ConfirmSightingRequest
	var (
		sighting *models.Sighting
		err      error
	)
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		if !errors.Is(bindErr, io.EOF) {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
			return
		}
		sighting, err = h.sightings.Confirm(c.Request.Context(), id)
	} else {
		sighting, err = h.sightings.UpdateAndConfirm(c.Request.Context(), id, req)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sighting, nil)
}

// Delete godoc
// @Summary Delete a sighting
// @Description Soft delete. The sighting can be restored to the review queue.
// @Tags Review
// @Security BearerAuth
// @Produce json
// @Param id path int true "Sighting ID"
// @Success 200 {object} response.Envelope
// @Router /sightings/{id} [delete]
func (h *SightingHandler) Delete(c *gin.Context) {
	id, ok := sightingID(c)
	if !ok {
		return
	}
	sighting, err := h.sightings.Delete(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sighting, nil)
}

// Restore godoc
// @Summary Restore a sighting to review
// @Tags Review
// @Security BearerAuth
// @Produce json
// @Param id path int true "Sighting ID"
// @Success 200 {object} response.Envelope
// @Router /sightings/{id}/restore [post]
func (h *SightingHandler) Restore(c *gin.Context) {
	id, ok := sightingID(c)
	if !ok {
		return
	}
	sighting, err := h.sightings.Restore(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sighting, nil)
}

func sightingID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid sighting id"))
		return 0, false
	}
	return id, true
}
