package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/middleware"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type soutenanceServiceMock struct {
	validateResp   *dto.ValidationResponse
	listResp       []dto.SoutenanceItem
	getResp        *dto.SoutenanceItem
	createItem     *dto.SoutenanceItem
	createValid    *dto.ValidationResponse
	createErr      error
	updateItem     *dto.SoutenanceItem
	updateValid    *dto.ValidationResponse
	deleteErr      error
	lastExcludeID  string
	lastFilter     repository.SoutenanceFilter
	lastActorID    string
	lastUpdateID   string
	validateCalled bool
}

func (m *soutenanceServiceMock) Validate(ctx context.Context, req dto.SoutenanceRequest, excludeID string) (*dto.ValidationResponse, error) {
	m.validateCalled = true
	m.lastExcludeID = excludeID
	return m.validateResp, nil
}

func (m *soutenanceServiceMock) List(ctx context.Context, filter repository.SoutenanceFilter) ([]dto.SoutenanceItem, error) {
	m.lastFilter = filter
	return m.listResp, nil
}

func (m *soutenanceServiceMock) Get(ctx context.Context, id string) (*dto.SoutenanceItem, error) {
	if m.getResp == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
	}
	return m.getResp, nil
}

func (m *soutenanceServiceMock) Create(ctx context.Context, actorID string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error) {
	m.lastActorID = actorID
	return m.createItem, m.createValid, m.createErr
}

func (m *soutenanceServiceMock) Update(ctx context.Context, actorID, id string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error) {
	m.lastActorID = actorID
	m.lastUpdateID = id
	return m.updateItem, m.updateValid, nil
}

func (m *soutenanceServiceMock) Delete(ctx context.Context, actorID, id string) error {
	return m.deleteErr
}

func chefContext(t *testing.T, w *httptest.ResponseRecorder, method, path string, body []byte) *gin.Context {
	t.Helper()
	c := studentContext(t, w, method, path, body)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "chef-1", Role: models.RoleChefDepartement})
	return c
}

func soutenancePayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(dto.SoutenanceRequest{
		Date:     "2026-09-15",
		Heure:    "10:00",
		SalleID:  "salle-1",
		BinomeID: "bin-1",
		Jury1ID:  "jury-1",
		Jury2ID:  "jury-2",
	})
	require.NoError(t, err)
	return payload
}

func TestSoutenanceHandlerValidatePassesExcludeID(t *testing.T) {
	mockSvc := &soutenanceServiceMock{validateResp: &dto.ValidationResponse{Valid: true, Errors: []dto.FieldError{}}}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodPost, "/soutenances/validate?excludeId=sout-1", soutenancePayload(t))

	handler.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.validateCalled)
	assert.Equal(t, "sout-1", mockSvc.lastExcludeID)
}

func TestSoutenanceHandlerCreate(t *testing.T) {
	mockSvc := &soutenanceServiceMock{createItem: &dto.SoutenanceItem{ID: "sout-1"}}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodPost, "/soutenances", soutenancePayload(t))

	handler.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "chef-1", mockSvc.lastActorID)
}

func TestSoutenanceHandlerCreateReturnsFieldErrors(t *testing.T) {
	mockSvc := &soutenanceServiceMock{createValid: &dto.ValidationResponse{
		Valid:  false,
		Errors: []dto.FieldError{{Field: "salleId", Message: "salle is already booked at this date and time"}},
	}}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodPost, "/soutenances", soutenancePayload(t))

	handler.Create(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var result dto.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "salleId", result.Errors[0].Field)
}

func TestSoutenanceHandlerCreateCommitConflict(t *testing.T) {
	mockSvc := &soutenanceServiceMock{createErr: appErrors.ErrScheduleConflict}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodPost, "/soutenances", soutenancePayload(t))

	handler.Create(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSoutenanceHandlerUpdate(t *testing.T) {
	mockSvc := &soutenanceServiceMock{updateItem: &dto.SoutenanceItem{ID: "sout-1"}}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodPut, "/soutenances/sout-1", soutenancePayload(t))
	c.Params = gin.Params{{Key: "id", Value: "sout-1"}}

	handler.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sout-1", mockSvc.lastUpdateID)
}

func TestSoutenanceHandlerListParsesFilter(t *testing.T) {
	mockSvc := &soutenanceServiceMock{listResp: []dto.SoutenanceItem{}}
	handler := NewSoutenanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodGet, "/soutenances?dateFrom=2026-09-01&dateTo=2026-09-30&filiereId=fil-1", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.DateFrom)
	assert.Equal(t, "2026-09-01", mockSvc.lastFilter.DateFrom.Format(models.DateLayout))
	assert.Equal(t, "fil-1", mockSvc.lastFilter.FiliereID)
}

func TestSoutenanceHandlerListRejectsBadDate(t *testing.T) {
	handler := NewSoutenanceHandler(&soutenanceServiceMock{})

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodGet, "/soutenances?dateFrom=15-09-2026", nil)

	handler.List(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSoutenanceHandlerDelete(t *testing.T) {
	handler := NewSoutenanceHandler(&soutenanceServiceMock{})

	w := httptest.NewRecorder()
	c := chefContext(t, w, http.MethodDelete, "/soutenances/sout-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sout-1"}}

	handler.Delete(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
}
