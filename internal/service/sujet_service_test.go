package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type sujetStoreStub struct {
	created   []*models.Sujet
	available []models.Sujet
	proposals []*models.SujetProposal
}

func (s *sujetStoreStub) FindByID(ctx context.Context, id string) (*models.Sujet, error) {
	for i := range s.available {
		if s.available[i].ID == id {
			return &s.available[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *sujetStoreStub) ListAvailableByFiliere(ctx context.Context, filiereID string) ([]models.Sujet, error) {
	return s.available, nil
}

func (s *sujetStoreStub) Create(ctx context.Context, sujet *models.Sujet) error {
	if sujet.ID == "" {
		sujet.ID = "suj-1"
	}
	s.created = append(s.created, sujet)
	return nil
}

func (s *sujetStoreStub) CreateProposal(ctx context.Context, proposal *models.SujetProposal) error {
	s.proposals = append(s.proposals, proposal)
	return nil
}

func (s *sujetStoreStub) ListProposalsByStatus(ctx context.Context, status string) ([]models.SujetProposal, error) {
	return nil, nil
}

type sujetBinomeStub struct {
	containing *models.Binome
	attached   bool
}

func (s *sujetBinomeStub) BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error) {
	return s.containing, nil
}

func (s *sujetBinomeStub) SetSujet(ctx context.Context, binomeID, sujetID string) (bool, error) {
	return s.attached, nil
}

func newSujetFixture(store *sujetStoreStub, binomes *sujetBinomeStub) *SujetService {
	return NewSujetService(store, binomes, userReaderStub{}, filiereReaderStub{filieres: map[string]*models.Filiere{
		"fil-1": {ID: "fil-1", Nom: "Genie Informatique"},
	}}, nil)
}

func TestCreateSujetRegistersInCatalog(t *testing.T) {
	store := &sujetStoreStub{}
	svc := newSujetFixture(store, &sujetBinomeStub{})

	sujet, err := svc.Create(context.Background(), dto.CreateSujetRequest{
		Titre:       "Plateforme PFE",
		Theme:       "Web",
		Description: "Gestion des projets de fin d'etudes",
		FiliereID:   "fil-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "suj-1", sujet.ID)
	assert.Equal(t, "fil-1", sujet.FiliereID)
	require.Len(t, store.created, 1)
	assert.Equal(t, "Plateforme PFE", store.created[0].Titre)
}

func TestCreateSujetUnknownFiliere(t *testing.T) {
	store := &sujetStoreStub{}
	svc := newSujetFixture(store, &sujetBinomeStub{})

	_, err := svc.Create(context.Background(), dto.CreateSujetRequest{
		Titre:       "Plateforme PFE",
		Theme:       "Web",
		Description: "Gestion des projets de fin d'etudes",
		FiliereID:   "fil-9",
	})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Empty(t, store.created)
}
