package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/dto"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type pairingService interface {
	Status(ctx context.Context, studentID string) (*dto.EtudiantStatus, error)
	Search(ctx context.Context, studentID string) (*dto.BinomeSearch, error)
	SendRequest(ctx context.Context, requesterID string, req dto.SendPairingRequest) (*dto.PairingResult, error)
	Respond(ctx context.Context, responderID, requestID string, accept bool) (*dto.PairingResult, error)
	Cancel(ctx context.Context, requesterID, requestID string) (*dto.PairingResult, error)
	ContinueSolo(ctx context.Context, studentID string) (*dto.PairingResult, error)
}

// PairingHandler exposes the student-facing binome formation endpoints.
type PairingHandler struct {
	service pairingService
}

// NewPairingHandler builds a new handler.
func NewPairingHandler(service pairingService) *PairingHandler {
	return &PairingHandler{service: service}
}

// Status godoc
// @Summary Report the caller's pairing status
// @Tags Binomes
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /binomes/status [get]
func (h *PairingHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	status, err := h.service.Status(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Search godoc
// @Summary List pairing candidates and pending requests
// @Tags Binomes
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /binomes/search [get]
func (h *PairingHandler) Search(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.Search(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SendRequest godoc
// @Summary Send a binome request to another student
// @Tags Binomes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SendPairingRequest true "Target student"
// @Success 201 {object} response.Envelope
// @Router /binomes/requests [post]
func (h *PairingHandler) SendRequest(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.SendPairingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pairing payload"))
		return
	}
	result, err := h.service.SendRequest(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Respond godoc
// @Summary Accept or reject a binome request
// @Tags Binomes
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RespondPairingRequest true "Accept flag"
// @Success 200 {object} response.Envelope
// @Router /binomes/requests/{id}/respond [post]
func (h *PairingHandler) Respond(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.RespondPairingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid response payload"))
		return
	}
	result, err := h.service.Respond(c.Request.Context(), claims.UserID, c.Param("id"), req.Accept)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a pending binome request the caller sent
// @Tags Binomes
// @Security BearerAuth
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /binomes/requests/{id} [delete]
func (h *PairingHandler) Cancel(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ContinueSolo godoc
// @Summary Commit to a solo binome
// @Tags Binomes
// @Security BearerAuth
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /binomes/solo [post]
func (h *PairingHandler) ContinueSolo(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.ContinueSolo(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
