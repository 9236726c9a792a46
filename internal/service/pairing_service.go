package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type pairingStore interface {
	FindRequestByID(ctx context.Context, id string) (*models.PairingRequest, error)
	FindRequestBetween(ctx context.Context, requesterID, targetID string) (*models.PairingRequest, error)
	ListRequestsByRequesterAndStatus(ctx context.Context, requesterID string, status models.PairingStatus) ([]models.PairingRequest, error)
	ListRequestsByTargetAndStatus(ctx context.Context, targetID string, status models.PairingStatus) ([]models.PairingRequest, error)
	CreateRequest(ctx context.Context, req *models.PairingRequest) error
	DeleteRequest(ctx context.Context, id string) error
	RejectRequest(ctx context.Context, id string) error
	BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error)
	HasBinome(ctx context.Context, studentID string) (bool, error)
	AcceptAndPair(ctx context.Context, requestID string) (*models.Binome, error)
	CreateSoloBinome(ctx context.Context, studentID string) (*models.Binome, error)
}

type pairingUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindEtudiant(ctx context.Context, userID string) (*models.Etudiant, error)
	ListEtudiantsByFiliere(ctx context.Context, filiereID string) ([]models.User, error)
}

type pairingFiliereReader interface {
	FindByID(ctx context.Context, id string) (*models.Filiere, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// PairingService mediates the lifecycle from two unpaired students to one
// committed binome, paired or solo. It owns every status transition of the
// demande_binome rows; the repository guarantees each mutation commits as a
// single transaction.
type PairingService struct {
	repo     pairingStore
	users    pairingUserReader
	filieres pairingFiliereReader
	audit    auditLogger
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPairingService builds a PairingService.
func NewPairingService(repo pairingStore, users pairingUserReader, filieres pairingFiliereReader, audit auditLogger, logger *zap.Logger) *PairingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PairingService{
		repo:     repo,
		users:    users,
		filieres: filieres,
		audit:    audit,
		logger:   logger,
	}
}

// WithMetrics attaches the Prometheus counters. Optional.
func (s *PairingService) WithMetrics(metrics *MetricsService) *PairingService {
	s.metrics = metrics
	return s
}

// Status reports where the student stands in the pairing lifecycle.
func (s *PairingService) Status(ctx context.Context, studentID string) (*dto.EtudiantStatus, error) {
	if _, err := s.users.FindByID(ctx, studentID); err != nil {
		return nil, s.mapUserErr(err, "student not found")
	}

	binome, err := s.repo.BinomeContaining(ctx, studentID)
	if err != nil {
		return nil, s.internal(err, "failed to load binome")
	}

	incoming, err := s.repo.ListRequestsByTargetAndStatus(ctx, studentID, models.PairingStatusPending)
	if err != nil {
		return nil, s.internal(err, "failed to load incoming requests")
	}
	outgoing, err := s.repo.ListRequestsByRequesterAndStatus(ctx, studentID, models.PairingStatusPending)
	if err != nil {
		return nil, s.internal(err, "failed to load outgoing requests")
	}

	status := &dto.EtudiantStatus{
		HasBinome:          binome != nil,
		HasPendingRequests: len(incoming) > 0,
		HasRequestSent:     len(outgoing) > 0,
	}

	switch {
	case binome != nil:
		status.BinomeID = &binome.ID
		switch {
		case binome.SujetID != nil:
			status.SujetID = binome.SujetID
			status.StatusMessage = "You already have a binome and an assigned sujet."
		case binome.Solo():
			status.StatusMessage = "You are working solo and still need to choose a sujet."
		default:
			status.StatusMessage = "You have a binome but still need to choose a sujet."
		}
	case status.HasPendingRequests:
		status.StatusMessage = "You have pending binome requests waiting for your answer."
	case status.HasRequestSent:
		status.StatusMessage = "You sent a binome request. Wait for the answer."
	default:
		status.StatusMessage = "You do not have a binome yet."
	}

	return status, nil
}

// Search returns the pairing candidates of the student's filiere together
// with the pending incoming and outgoing requests.
func (s *PairingService) Search(ctx context.Context, studentID string) (*dto.BinomeSearch, error) {
	if _, err := s.users.FindByID(ctx, studentID); err != nil {
		return nil, s.mapUserErr(err, "student not found")
	}
	etudiant, err := s.users.FindEtudiant(ctx, studentID)
	if err != nil {
		return nil, s.mapUserErr(err, "etudiant profile not found")
	}
	filiere, err := s.filieres.FindByID(ctx, etudiant.FiliereID)
	if err != nil {
		return nil, s.mapUserErr(err, "filiere not found")
	}

	candidates, err := s.users.ListEtudiantsByFiliere(ctx, filiere.ID)
	if err != nil {
		return nil, s.internal(err, "failed to list filiere students")
	}

	available := make([]dto.AvailableStudent, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == studentID {
			continue
		}
		paired, err := s.repo.HasBinome(ctx, candidate.ID)
		if err != nil {
			return nil, s.internal(err, "failed to check candidate binome")
		}
		if paired {
			continue
		}

		canRequest := true
		alreadyRequested := false
		previous, err := s.repo.FindRequestBetween(ctx, studentID, candidate.ID)
		if err != nil {
			return nil, s.internal(err, "failed to check previous request")
		}
		if previous != nil {
			switch previous.Status {
			case models.PairingStatusRejected:
				canRequest = false
			case models.PairingStatusPending:
				alreadyRequested = true
			}
		}

		available = append(available, dto.AvailableStudent{
			ID:               candidate.ID,
			Nom:              candidate.Nom,
			Prenom:           candidate.Prenom,
			Email:            candidate.Email,
			FiliereName:      filiere.Nom,
			AlreadyRequested: alreadyRequested,
			CanRequest:       canRequest,
		})
	}

	incoming, err := s.repo.ListRequestsByTargetAndStatus(ctx, studentID, models.PairingStatusPending)
	if err != nil {
		return nil, s.internal(err, "failed to load incoming requests")
	}
	outgoing, err := s.repo.ListRequestsByRequesterAndStatus(ctx, studentID, models.PairingStatusPending)
	if err != nil {
		return nil, s.internal(err, "failed to load outgoing requests")
	}

	incomingItems, err := s.mapRequestItems(ctx, incoming)
	if err != nil {
		return nil, err
	}
	outgoingItems, err := s.mapRequestItems(ctx, outgoing)
	if err != nil {
		return nil, err
	}

	return &dto.BinomeSearch{
		AvailableStudents: available,
		IncomingRequests:  incomingItems,
		OutgoingRequests:  outgoingItems,
	}, nil
}

// SendRequest proposes a binome to another student. A pending request in the
// opposite direction auto-matches: the earlier row flips to ACCEPTED, the
// binome is created and no new row is written.
func (s *PairingService) SendRequest(ctx context.Context, requesterID string, req dto.SendPairingRequest) (*dto.PairingResult, error) {
	if req.TargetID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "demandeId is required")
	}
	if req.TargetID == requesterID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "you cannot send a binome request to yourself")
	}

	if _, err := s.users.FindByID(ctx, requesterID); err != nil {
		return nil, s.mapUserErr(err, "requesting student not found")
	}
	target, err := s.users.FindByID(ctx, req.TargetID)
	if err != nil {
		return nil, s.mapUserErr(err, "target student not found")
	}
	if target.Role != models.RoleEtudiant {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target user is not a student")
	}

	requesterPaired, err := s.repo.HasBinome(ctx, requesterID)
	if err != nil {
		return nil, s.internal(err, "failed to check requester binome")
	}
	if requesterPaired {
		return nil, s.refuse(appErrors.ErrAlreadyPaired)
	}
	targetPaired, err := s.repo.HasBinome(ctx, req.TargetID)
	if err != nil {
		return nil, s.internal(err, "failed to check target binome")
	}
	if targetPaired {
		return nil, s.refuse(appErrors.Clone(appErrors.ErrAlreadyPaired, "this student already has a binome"))
	}

	previous, err := s.repo.FindRequestBetween(ctx, requesterID, req.TargetID)
	if err != nil {
		return nil, s.internal(err, "failed to check previous request")
	}
	if previous != nil {
		switch previous.Status {
		case models.PairingStatusPending:
			return nil, s.refuse(appErrors.ErrDuplicateRequest)
		case models.PairingStatusRejected:
			return nil, s.refuse(appErrors.ErrPreviouslyRejected)
		default:
			return nil, s.refuse(appErrors.ErrAlreadyPaired)
		}
	}

	reverse, err := s.repo.FindRequestBetween(ctx, req.TargetID, requesterID)
	if err != nil {
		return nil, s.internal(err, "failed to check reciprocal request")
	}
	if reverse != nil && reverse.Status == models.PairingStatusPending {
		binome, err := s.repo.AcceptAndPair(ctx, reverse.ID)
		if err != nil {
			return nil, s.mapPairingErr(err, requesterID)
		}
		s.auditBinome(ctx, requesterID, binome)
		return &dto.PairingResult{
			Success:  true,
			Message:  "Binome created automatically: a reciprocal request already existed.",
			BinomeID: &binome.ID,
		}, nil
	}

	request := &models.PairingRequest{
		RequesterID: requesterID,
		TargetID:    req.TargetID,
		Status:      models.PairingStatusPending,
	}
	if err := s.repo.CreateRequest(ctx, request); err != nil {
		return nil, s.internal(err, "failed to create pairing request")
	}

	return &dto.PairingResult{Success: true, Message: "Binome request sent."}, nil
}

// Respond accepts or rejects a pending request addressed to the responder.
// A well-formed reject always succeeds; an accept re-checks availability
// inside the commit transaction.
func (s *PairingService) Respond(ctx context.Context, responderID, requestID string, accept bool) (*dto.PairingResult, error) {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "binome request not found")
		}
		return nil, s.internal(err, "failed to load pairing request")
	}
	if request.TargetID != responderID {
		return nil, appErrors.Clone(appErrors.ErrNotOwner, "this request is not addressed to you")
	}
	if request.Status != models.PairingStatusPending {
		return nil, s.refuse(appErrors.ErrNotPending)
	}

	if !accept {
		if err := s.repo.RejectRequest(ctx, requestID); err != nil {
			return nil, s.internal(err, "failed to reject pairing request")
		}
		return &dto.PairingResult{Success: true, Message: "You rejected the request."}, nil
	}

	binome, err := s.repo.AcceptAndPair(ctx, requestID)
	if err != nil {
		return nil, s.mapPairingErr(err, responderID)
	}
	s.auditBinome(ctx, responderID, binome)

	return &dto.PairingResult{
		Success:  true,
		Message:  "You accepted the request. Binome created.",
		BinomeID: &binome.ID,
	}, nil
}

// Cancel deletes a pending request sent by the caller. Unlike a rejection
// this removes the row entirely, so the pair may try again later.
func (s *PairingService) Cancel(ctx context.Context, requesterID, requestID string) (*dto.PairingResult, error) {
	request, err := s.repo.FindRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "binome request not found")
		}
		return nil, s.internal(err, "failed to load pairing request")
	}
	if request.RequesterID != requesterID {
		return nil, appErrors.Clone(appErrors.ErrNotOwner, "you cannot cancel this request")
	}
	if request.Status != models.PairingStatusPending {
		return nil, appErrors.ErrNotPending
	}

	if err := s.repo.DeleteRequest(ctx, requestID); err != nil {
		return nil, s.internal(err, "failed to delete pairing request")
	}

	return &dto.PairingResult{Success: true, Message: "Binome request cancelled."}, nil
}

// ContinueSolo commits the student to a single-member binome and cascades
// every pending request naming them to REJECTED.
func (s *PairingService) ContinueSolo(ctx context.Context, studentID string) (*dto.PairingResult, error) {
	if _, err := s.users.FindByID(ctx, studentID); err != nil {
		return nil, s.mapUserErr(err, "student not found")
	}

	paired, err := s.repo.HasBinome(ctx, studentID)
	if err != nil {
		return nil, s.internal(err, "failed to check binome")
	}
	if paired {
		return nil, s.refuse(appErrors.ErrAlreadyPaired)
	}

	binome, err := s.repo.CreateSoloBinome(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrTargetPaired) {
			return nil, s.refuse(appErrors.ErrAlreadyPaired)
		}
		return nil, s.internal(err, "failed to create solo binome")
	}
	s.auditBinome(ctx, studentID, binome)

	return &dto.PairingResult{
		Success:  true,
		Message:  "You chose to continue solo.",
		BinomeID: &binome.ID,
	}, nil
}

func (s *PairingService) mapRequestItems(ctx context.Context, requests []models.PairingRequest) ([]dto.PairingRequestItem, error) {
	items := make([]dto.PairingRequestItem, 0, len(requests))
	for _, request := range requests {
		requester, err := s.users.FindByID(ctx, request.RequesterID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, s.internal(err, "failed to load requester")
		}

		filiereName := "Non assigne"
		if etudiant, err := s.users.FindEtudiant(ctx, requester.ID); err == nil {
			if filiere, err := s.filieres.FindByID(ctx, etudiant.FiliereID); err == nil {
				filiereName = filiere.Nom
			}
		}

		items = append(items, dto.PairingRequestItem{
			ID:              request.ID,
			RequesterID:     requester.ID,
			RequesterNom:    requester.Nom,
			RequesterPrenom: requester.Prenom,
			RequesterEmail:  requester.Email,
			TargetID:        request.TargetID,
			FiliereName:     filiereName,
			Status:          string(request.Status),
		})
	}
	return items, nil
}

// mapPairingErr translates transactional race outcomes into the structured
// failure taxonomy.
func (s *PairingService) mapPairingErr(err error, actorID string) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "binome request not found")
	case errors.Is(err, repository.ErrRequestNotPending):
		return s.refuse(appErrors.ErrNotPending)
	case errors.Is(err, repository.ErrTargetPaired):
		return s.refuse(appErrors.ErrAlreadyPaired)
	case errors.Is(err, repository.ErrRequesterPaired):
		return s.refuse(appErrors.ErrRequesterUnavailable)
	default:
		s.logger.Error("pairing transaction failed", zap.String("actor", actorID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "pairing failed")
	}
}

func (s *PairingService) mapUserErr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *PairingService) internal(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// refuse counts a pairing refusal before surfacing it.
func (s *PairingService) refuse(e *appErrors.Error) error {
	if s.metrics != nil {
		s.metrics.PairingRejected(e.Code)
	}
	return e
}

func (s *PairingService) auditBinome(ctx context.Context, actorID string, binome *models.Binome) {
	if binome != nil && s.metrics != nil {
		s.metrics.BinomeFormed()
	}
	if s.audit == nil || binome == nil {
		return
	}
	payload, _ := json.Marshal(binome)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionBinomeCreate,
		Resource:   "binome",
		ResourceID: &binome.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "pairing-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record binome audit", zap.Error(err))
	}
}
