package service

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"

	"go.uber.org/zap"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type sujetStore interface {
	FindByID(ctx context.Context, id string) (*models.Sujet, error)
	ListAvailableByFiliere(ctx context.Context, filiereID string) ([]models.Sujet, error)
	Create(ctx context.Context, sujet *models.Sujet) error
	CreateProposal(ctx context.Context, proposal *models.SujetProposal) error
	ListProposalsByStatus(ctx context.Context, status string) ([]models.SujetProposal, error)
}

type sujetBinomeStore interface {
	BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error)
	SetSujet(ctx context.Context, binomeID, sujetID string) (bool, error)
}

// SujetService lets a committed binome pick, draw or propose its PFE sujet.
// A binome holds at most one sujet; the attachment is a compare-and-set on
// the null column so two members clicking at once cannot double-assign.
type SujetService struct {
	sujets   sujetStore
	binomes  sujetBinomeStore
	users    pairingUserReader
	filieres pairingFiliereReader
	logger   *zap.Logger
	pick     func(n int) int
}

// NewSujetService builds a SujetService.
func NewSujetService(sujets sujetStore, binomes sujetBinomeStore, users pairingUserReader, filieres pairingFiliereReader, logger *zap.Logger) *SujetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SujetService{
		sujets:   sujets,
		binomes:  binomes,
		users:    users,
		filieres: filieres,
		logger:   logger,
		pick:     rand.Intn,
	}
}

// Available lists the sujets of the student's filiere not yet taken by any
// binome. The student must already belong to a binome.
func (s *SujetService) Available(ctx context.Context, studentID string) (*dto.AvailableSujets, error) {
	binome, filiere, err := s.binomeAndFiliere(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if binome.SujetID != nil {
		return nil, appErrors.ErrSujetAlreadyChosen
	}

	sujets, err := s.sujets.ListAvailableByFiliere(ctx, filiere.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sujets")
	}

	items := make([]dto.SujetItem, 0, len(sujets))
	for _, sujet := range sujets {
		items = append(items, sujetToItem(sujet, filiere.Nom))
	}
	return &dto.AvailableSujets{Sujets: items}, nil
}

// Select attaches a chosen sujet to the caller's binome.
func (s *SujetService) Select(ctx context.Context, studentID string, req dto.SelectSujetRequest) (*dto.BinomeSujet, error) {
	binome, filiere, err := s.binomeAndFiliere(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if binome.SujetID != nil {
		return nil, appErrors.ErrSujetAlreadyChosen
	}

	sujet, err := s.sujets.FindByID(ctx, req.SujetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sujet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sujet")
	}
	if sujet.FiliereID != filiere.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sujet does not belong to your filiere")
	}

	return s.attach(ctx, binome, sujet, filiere.Nom)
}

// SelectRandom draws a sujet uniformly from the remaining pool of the
// filiere and attaches it.
func (s *SujetService) SelectRandom(ctx context.Context, studentID string) (*dto.BinomeSujet, error) {
	binome, filiere, err := s.binomeAndFiliere(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if binome.SujetID != nil {
		return nil, appErrors.ErrSujetAlreadyChosen
	}

	sujets, err := s.sujets.ListAvailableByFiliere(ctx, filiere.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sujets")
	}
	if len(sujets) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no sujet left for your filiere")
	}

	sujet := sujets[s.pick(len(sujets))]
	return s.attach(ctx, binome, &sujet, filiere.Nom)
}

// Create registers a new sujet in a filiere's catalog. Chef only; students
// go through Propose instead.
func (s *SujetService) Create(ctx context.Context, req dto.CreateSujetRequest) (*models.Sujet, error) {
	filiere, err := s.filieres.FindByID(ctx, req.FiliereID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "filiere not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load filiere")
	}

	sujet := &models.Sujet{
		Titre:       req.Titre,
		Theme:       req.Theme,
		Description: req.Description,
		FiliereID:   filiere.ID,
	}
	if err := s.sujets.Create(ctx, sujet); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create sujet")
	}
	return sujet, nil
}

// Propose submits a sujet suggestion that the chef de departement must
// approve before it becomes selectable.
func (s *SujetService) Propose(ctx context.Context, studentID string, req dto.ProposeSujetRequest) (*models.SujetProposal, error) {
	binome, _, err := s.binomeAndFiliere(ctx, studentID)
	if err != nil {
		return nil, err
	}

	proposal := &models.SujetProposal{
		BinomeID:    binome.ID,
		Titre:       req.Titre,
		Theme:       req.Theme,
		Description: req.Description,
		Status:      models.SujetProposalPending,
	}
	if err := s.sujets.CreateProposal(ctx, proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create proposal")
	}
	return proposal, nil
}

// ListProposals returns proposals in the given state for chef review.
func (s *SujetService) ListProposals(ctx context.Context, status string) ([]models.SujetProposal, error) {
	if status == "" {
		status = models.SujetProposalPending
	}
	proposals, err := s.sujets.ListProposalsByStatus(ctx, status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list proposals")
	}
	return proposals, nil
}

func (s *SujetService) attach(ctx context.Context, binome *models.Binome, sujet *models.Sujet, filiereName string) (*dto.BinomeSujet, error) {
	attached, err := s.binomes.SetSujet(ctx, binome.ID, sujet.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to attach sujet")
	}
	if !attached {
		return nil, appErrors.ErrSujetAlreadyChosen
	}
	return &dto.BinomeSujet{
		BinomeID: binome.ID,
		Sujet:    sujetToItem(*sujet, filiereName),
	}, nil
}

func (s *SujetService) binomeAndFiliere(ctx context.Context, studentID string) (*models.Binome, *models.Filiere, error) {
	binome, err := s.binomes.BinomeContaining(ctx, studentID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load binome")
	}
	if binome == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "you need a binome before choosing a sujet")
	}

	etudiant, err := s.users.FindEtudiant(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "etudiant profile not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load etudiant profile")
	}
	filiere, err := s.filieres.FindByID(ctx, etudiant.FiliereID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "filiere not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load filiere")
	}
	return binome, filiere, nil
}

func sujetToItem(sujet models.Sujet, filiereName string) dto.SujetItem {
	return dto.SujetItem{
		ID:          sujet.ID,
		Titre:       sujet.Titre,
		Theme:       sujet.Theme,
		Description: sujet.Description,
		FiliereName: filiereName,
	}
}
