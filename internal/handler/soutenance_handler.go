package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type soutenanceService interface {
	Validate(ctx context.Context, req dto.SoutenanceRequest, excludeID string) (*dto.ValidationResponse, error)
	List(ctx context.Context, filter repository.SoutenanceFilter) ([]dto.SoutenanceItem, error)
	Get(ctx context.Context, id string) (*dto.SoutenanceItem, error)
	Create(ctx context.Context, actorID string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error)
	Update(ctx context.Context, actorID, id string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error)
	Delete(ctx context.Context, actorID, id string) error
}

// SoutenanceHandler exposes defense scheduling endpoints for the chef de
// departement.
type SoutenanceHandler struct {
	service soutenanceService
}

// NewSoutenanceHandler builds a new handler.
func NewSoutenanceHandler(service soutenanceService) *SoutenanceHandler {
	return &SoutenanceHandler{service: service}
}

// List godoc
// @Summary List the soutenance planning
// @Tags Soutenances
// @Security BearerAuth
// @Produce json
// @Param dateFrom query string false "Start date (YYYY-MM-DD)"
// @Param dateTo query string false "End date (YYYY-MM-DD)"
// @Param filiereId query string false "Filiere filter"
// @Success 200 {object} response.Envelope
// @Router /soutenances [get]
func (h *SoutenanceHandler) List(c *gin.Context) {
	filter, err := planningFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get one soutenance
// @Tags Soutenances
// @Security BearerAuth
// @Produce json
// @Param id path string true "Soutenance ID"
// @Success 200 {object} response.Envelope
// @Router /soutenances/{id} [get]
func (h *SoutenanceHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Validate godoc
// @Summary Dry-run the scheduling validator
// @Tags Soutenances
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SoutenanceRequest true "Scheduling payload"
// @Param excludeId query string false "Soutenance being rescheduled"
// @Success 200 {object} response.Envelope
// @Router /soutenances/validate [post]
func (h *SoutenanceHandler) Validate(c *gin.Context) {
	var req dto.SoutenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid soutenance payload"))
		return
	}
	result, err := h.service.Validate(c.Request.Context(), req, c.Query("excludeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Schedule a soutenance
// @Tags Soutenances
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SoutenanceRequest true "Scheduling payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} dto.ValidationResponse
// @Router /soutenances [post]
func (h *SoutenanceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.SoutenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid soutenance payload"))
		return
	}
	item, validation, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if validation != nil {
		c.JSON(http.StatusBadRequest, validation)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Reschedule a soutenance
// @Tags Soutenances
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Soutenance ID"
// @Param payload body dto.SoutenanceRequest true "Scheduling payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} dto.ValidationResponse
// @Router /soutenances/{id} [put]
func (h *SoutenanceHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.SoutenanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid soutenance payload"))
		return
	}
	item, validation, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if validation != nil {
		c.JSON(http.StatusBadRequest, validation)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Remove a soutenance
// @Tags Soutenances
// @Security BearerAuth
// @Param id path string true "Soutenance ID"
// @Success 204
// @Router /soutenances/{id} [delete]
func (h *SoutenanceHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func planningFilterFromQuery(c *gin.Context) (repository.SoutenanceFilter, error) {
	filter := repository.SoutenanceFilter{FiliereID: c.Query("filiereId")}
	if raw := c.Query("dateFrom"); raw != "" {
		from, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "dateFrom must use the YYYY-MM-DD format")
		}
		filter.DateFrom = &from
	}
	if raw := c.Query("dateTo"); raw != "" {
		to, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "dateTo must use the YYYY-MM-DD format")
		}
		filter.DateTo = &to
	}
	return filter, nil
}
