package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/models"
)

type juryDirectoryMock struct {
	users    []models.User
	lastRole models.UserRole
}

func (m *juryDirectoryMock) ListByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	m.lastRole = role
	return m.users, nil
}

func TestCatalogHandlerListJurys(t *testing.T) {
	directory := &juryDirectoryMock{users: []models.User{
		{ID: "jury-1", Nom: "Alami", Prenom: "Sara", Role: models.RoleJury, Active: true},
		{ID: "jury-2", Nom: "Bennis", Prenom: "Karim", Role: models.RoleJury, Active: true},
	}}
	handler := NewCatalogHandler(nil, nil, directory)

	w := httptest.NewRecorder()
	c := studentContext(t, w, http.MethodGet, "/jurys", nil)

	handler.ListJurys(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleJury, directory.lastRole)
	assert.Contains(t, w.Body.String(), "jury-1")
	assert.Contains(t, w.Body.String(), "Bennis")
}
