package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/dto"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type planningService interface {
	RequestExport(ctx context.Context, userID string, req dto.CreatePlanningExportRequest) (*dto.PlanningExportItem, error)
	GetExport(ctx context.Context, userID, exportID string) (*dto.PlanningExportItem, error)
	OpenDownload(ctx context.Context, token string) (*os.File, string, string, error)
}

// PlanningHandler exposes asynchronous planning export endpoints.
type PlanningHandler struct {
	service planningService
}

// NewPlanningHandler builds a new handler.
func NewPlanningHandler(service planningService) *PlanningHandler {
	return &PlanningHandler{service: service}
}

// RequestExport godoc
// @Summary Start a planning export (csv or pdf)
// @Tags Planning
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreatePlanningExportRequest true "Export options"
// @Success 202 {object} response.Envelope
// @Router /planning/exports [post]
func (h *PlanningHandler) RequestExport(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CreatePlanningExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	item, err := h.service.RequestExport(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, item, nil)
}

// GetExport godoc
// @Summary Poll an export job
// @Tags Planning
// @Security BearerAuth
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Router /planning/exports/{id} [get]
func (h *PlanningHandler) GetExport(c *gin.Context) {
	claims := claimsFromContext(c)
	item, err := h.service.GetExport(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Download streams a finished artifact referenced by a signed token. The
// token itself authenticates the request, so the route stays public.
func (h *PlanningHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, contentType, filename, err := h.service.OpenDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat artifact"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.DataFromReader(http.StatusOK, stat.Size(), contentType, file, nil)
}
