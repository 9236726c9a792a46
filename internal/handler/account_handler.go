package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type accountService interface {
	List(ctx context.Context, filter models.UserFilter) ([]dto.AccountItem, int, error)
	Get(ctx context.Context, id string) (*dto.AccountItem, error)
	Create(ctx context.Context, actorID string, req dto.CreateAccountRequest) (*dto.AccountItem, error)
	Update(ctx context.Context, actorID, id string, req dto.UpdateAccountRequest) (*dto.AccountItem, error)
	Delete(ctx context.Context, actorID, id string) error
}

// AccountHandler exposes admin account provisioning endpoints.
type AccountHandler struct {
	service  accountService
	validate *validator.Validate
}

// NewAccountHandler builds a new handler.
func NewAccountHandler(service accountService) *AccountHandler {
	return &AccountHandler{service: service, validate: validator.New()}
}

// List godoc
// @Summary List accounts
// @Tags Accounts
// @Security BearerAuth
// @Produce json
// @Param role query string false "Role filter"
// @Param filiereId query string false "Filiere filter (students)"
// @Param search query string false "Email or name search"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /accounts [get]
func (h *AccountHandler) List(c *gin.Context) {
	filter := models.UserFilter{
		FiliereID: c.Query("filiereId"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		filter.Role = &role
	}
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := models.NewPagination(filter.Page, filter.PageSize, total)
	response.JSON(c, http.StatusOK, items, &pagination)
}

// Get godoc
// @Summary Get one account
// @Tags Accounts
// @Security BearerAuth
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Provision a new account
// @Tags Accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.CreateAccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Router /accounts [post]
func (h *AccountHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid account payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "account payload failed validation"))
		return
	}
	item, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit an account (role immutable)
// @Tags Accounts
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param payload body dto.UpdateAccountRequest true "Account changes"
// @Success 200 {object} response.Envelope
// @Router /accounts/{id} [put]
func (h *AccountHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid account payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "account payload failed validation"))
		return
	}
	item, err := h.service.Update(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Delete an account
// @Tags Accounts
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 204
// @Router /accounts/{id} [delete]
func (h *AccountHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if err := h.service.Delete(c.Request.Context(), claims.UserID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
