package handler

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/response"
)

type evaluationService interface {
	RecordNote(ctx context.Context, juryID, soutenanceID string, req dto.RecordNoteRequest) (*models.NoteSoutenance, error)
	SoutenanceNotes(ctx context.Context, soutenanceID string) (*dto.SoutenanceNotes, error)
	SubmitRapport(ctx context.Context, studentID, titre, filename string, data []byte) (*dto.RapportItem, error)
	MyRapport(ctx context.Context, studentID string) (*dto.RapportItem, error)
	GradeRapport(ctx context.Context, actorID, rapportID string, req dto.GradeRapportRequest) (*dto.RapportItem, error)
	OpenRapport(ctx context.Context, actorID string, role models.UserRole, rapportID string) (*os.File, *models.Rapport, error)
}

// EvaluationHandler exposes jury grading and rapport endpoints.
type EvaluationHandler struct {
	service   evaluationService
	maxUpload int64
}

// NewEvaluationHandler builds a new handler. maxUpload bounds the accepted
// rapport file size in bytes.
func NewEvaluationHandler(service evaluationService, maxUpload int64) *EvaluationHandler {
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &EvaluationHandler{service: service, maxUpload: maxUpload}
}

// RecordNote godoc
// @Summary Record the caller's jury grade for a soutenance
// @Tags Evaluation
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Soutenance ID"
// @Param payload body dto.RecordNoteRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Router /soutenances/{id}/notes [post]
func (h *EvaluationHandler) RecordNote(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.RecordNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid note payload"))
		return
	}
	note, err := h.service.RecordNote(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, note, nil)
}

// ListNotes godoc
// @Summary List the jury grades of a soutenance with their average
// @Tags Evaluation
// @Security BearerAuth
// @Produce json
// @Param id path string true "Soutenance ID"
// @Success 200 {object} response.Envelope
// @Router /soutenances/{id}/notes [get]
func (h *EvaluationHandler) ListNotes(c *gin.Context) {
	notes, err := h.service.SoutenanceNotes(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notes, nil)
}

// SubmitRapport godoc
// @Summary Hand in the caller's binome rapport
// @Tags Evaluation
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param titre formData string true "Rapport title"
// @Param file formData file true "Rapport file"
// @Success 201 {object} response.Envelope
// @Router /rapports [post]
func (h *EvaluationHandler) SubmitRapport(c *gin.Context) {
	claims := claimsFromContext(c)

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a rapport file is required"))
		return
	}
	if header.Size > h.maxUpload {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "rapport file is too large"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read rapport file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read rapport file"))
		return
	}

	item, err := h.service.SubmitRapport(c.Request.Context(), claims.UserID, c.PostForm("titre"), header.Filename, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// MyRapport godoc
// @Summary Show the latest rapport of the caller's binome
// @Tags Evaluation
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /rapports/mine [get]
func (h *EvaluationHandler) MyRapport(c *gin.Context) {
	claims := claimsFromContext(c)
	item, err := h.service.MyRapport(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// GradeRapport godoc
// @Summary Grade a submitted rapport
// @Tags Evaluation
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Rapport ID"
// @Param payload body dto.GradeRapportRequest true "Grade"
// @Success 200 {object} response.Envelope
// @Router /rapports/{id}/note [put]
func (h *EvaluationHandler) GradeRapport(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.GradeRapportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}
	item, err := h.service.GradeRapport(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// DownloadRapport godoc
// @Summary Stream a stored rapport file
// @Tags Evaluation
// @Security BearerAuth
// @Produce application/octet-stream
// @Param id path string true "Rapport ID"
// @Success 200
// @Router /rapports/{id}/download [get]
func (h *EvaluationHandler) DownloadRapport(c *gin.Context) {
	claims := claimsFromContext(c)
	file, rapport, err := h.service.OpenRapport(c.Request.Context(), claims.UserID, claims.Role, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat rapport"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+rapport.Titre+`"`)
	c.DataFromReader(http.StatusOK, stat.Size(), "application/octet-stream", file, nil)
}
