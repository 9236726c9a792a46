package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type sujetService interface {
	Available(ctx context.Context, studentID string) (*dto.AvailableSujets, error)
	Select(ctx context.Context, studentID string, req dto.SelectSujetRequest) (*dto.BinomeSujet, error)
	SelectRandom(ctx context.Context, studentID string) (*dto.BinomeSujet, error)
	Propose(ctx context.Context, studentID string, req dto.ProposeSujetRequest) (*models.SujetProposal, error)
	ListProposals(ctx context.Context, status string) ([]models.SujetProposal, error)
	Create(ctx context.Context, req dto.CreateSujetRequest) (*models.Sujet, error)
}

// SujetHandler exposes sujet selection endpoints.
type SujetHandler struct {
	service sujetService
}

// NewSujetHandler builds a new handler.
func NewSujetHandler(service sujetService) *SujetHandler {
	return &SujetHandler{service: service}
}

// Available godoc
// @Summary List sujets still available for the caller's binome
// @Tags Sujets
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sujets/available [get]
func (h *SujetHandler) Available(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.Available(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Select godoc
// @Summary Attach a sujet to the caller's binome
// @Tags Sujets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SelectSujetRequest true "Sujet choice"
// @Success 200 {object} response.Envelope
// @Router /sujets/select [post]
func (h *SujetHandler) Select(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.SelectSujetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sujet payload"))
		return
	}
	result, err := h.service.Select(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SelectRandom godoc
// @Summary Draw a random sujet for the caller's binome
// @Tags Sujets
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /sujets/random [post]
func (h *SujetHandler) SelectRandom(c *gin.Context) {
	claims := claimsFromContext(c)
	result, err := h.service.SelectRandom(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Create godoc
// @Summary Register a sujet in a filiere's catalog
// @Tags Sujets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateSujetRequest true "Sujet payload"
// @Success 201 {object} response.Envelope
// @Router /sujets [post]
func (h *SujetHandler) Create(c *gin.Context) {
	var req dto.CreateSujetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sujet payload"))
		return
	}
	if req.Titre == "" || req.Theme == "" || req.Description == "" || req.FiliereID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "titre, theme, description and filiereId are required"))
		return
	}
	sujet, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, sujet)
}

// Propose godoc
// @Summary Propose a new sujet for chef approval
// @Tags Sujets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.ProposeSujetRequest true "Sujet proposal"
// @Success 201 {object} response.Envelope
// @Router /sujets/proposals [post]
func (h *SujetHandler) Propose(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.ProposeSujetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid proposal payload"))
		return
	}
	proposal, err := h.service.Propose(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, proposal)
}

// ListProposals godoc
// @Summary List sujet proposals by status
// @Tags Sujets
// @Security BearerAuth
// @Produce json
// @Param status query string false "Proposal status (default PENDING)"
// @Success 200 {object} response.Envelope
// @Router /sujets/proposals [get]
func (h *SujetHandler) ListProposals(c *gin.Context) {
	proposals, err := h.service.ListProposals(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, proposals, nil)
}
