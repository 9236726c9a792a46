package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type salleService interface {
	List(ctx context.Context) ([]models.Salle, error)
	Create(ctx context.Context, salle *models.Salle) error
}

type filiereService interface {
	List(ctx context.Context) ([]models.Filiere, error)
}

type juryDirectory interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error)
}

// CatalogHandler exposes the salle, filiere and jury directories backing the
// scheduling and pairing forms.
type CatalogHandler struct {
	salles   salleService
	filieres filiereService
	jurys    juryDirectory
}

// NewCatalogHandler builds a new handler.
func NewCatalogHandler(salles salleService, filieres filiereService, jurys juryDirectory) *CatalogHandler {
	return &CatalogHandler{salles: salles, filieres: filieres, jurys: jurys}
}

// ListSalles godoc
// @Summary List defense rooms
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /salles [get]
func (h *CatalogHandler) ListSalles(c *gin.Context) {
	salles, err := h.salles.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, salles, nil)
}

// CreateSalle godoc
// @Summary Register a defense room
// @Tags Catalog
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body models.Salle true "Salle payload"
// @Success 201 {object} response.Envelope
// @Router /salles [post]
func (h *CatalogHandler) CreateSalle(c *gin.Context) {
	var salle models.Salle
	if err := c.ShouldBindJSON(&salle); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid salle payload"))
		return
	}
	if salle.Nom == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "nom is required"))
		return
	}
	if err := h.salles.Create(c.Request.Context(), &salle); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create salle"))
		return
	}
	response.Created(c, salle)
}

// ListJurys godoc
// @Summary List active jury members available for scheduling
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /jurys [get]
func (h *CatalogHandler) ListJurys(c *gin.Context) {
	jurys, err := h.jurys.ListByRole(c.Request.Context(), models.RoleJury)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list jurys"))
		return
	}
	response.JSON(c, http.StatusOK, jurys, nil)
}

// ListFilieres godoc
// @Summary List academic tracks
// @Tags Catalog
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /filieres [get]
func (h *CatalogHandler) ListFilieres(c *gin.Context) {
	filieres, err := h.filieres.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, filieres, nil)
}
