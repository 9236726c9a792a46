package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/storage"
)

type evaluationStore interface {
	UpsertNote(ctx context.Context, note *models.NoteSoutenance) error
	ListNotesBySoutenance(ctx context.Context, soutenanceID string) ([]models.NoteSoutenance, error)
	CreateRapport(ctx context.Context, rapport *models.Rapport) error
	FindRapportByID(ctx context.Context, id string) (*models.Rapport, error)
	FindRapportByBinome(ctx context.Context, binomeID string) (*models.Rapport, error)
	SetRapportNote(ctx context.Context, id string, note int, commentaire *string, updatedAt time.Time) error
}

type evaluationSoutenanceReader interface {
	FindByID(ctx context.Context, id string) (*models.Soutenance, error)
}

type evaluationBinomeReader interface {
	BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error)
	FindBinomeByID(ctx context.Context, id string) (*models.Binome, error)
}

// EvaluationService covers what happens after a soutenance is on the
// planning: jury members grade it, and the binome hands in its rapport for
// evaluation. Grades stay per jury member; averaging happens at read time.
type EvaluationService struct {
	repo        evaluationStore
	soutenances evaluationSoutenanceReader
	binomes     evaluationBinomeReader
	users       soutenanceUserReader
	files       *storage.LocalStorage
	audit       auditLogger
	logger      *zap.Logger
	now         func() time.Time
}

// NewEvaluationService builds an EvaluationService.
func NewEvaluationService(repo evaluationStore, soutenances evaluationSoutenanceReader, binomes evaluationBinomeReader, users soutenanceUserReader, files *storage.LocalStorage, audit auditLogger, logger *zap.Logger) *EvaluationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationService{
		repo:        repo,
		soutenances: soutenances,
		binomes:     binomes,
		users:       users,
		files:       files,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// RecordNote stores a jury member's grade for a soutenance. Only the two
// assigned jury members may grade, and recording twice overwrites the first
// note rather than adding a second one.
func (s *EvaluationService) RecordNote(ctx context.Context, juryID, soutenanceID string, req dto.RecordNoteRequest) (*models.NoteSoutenance, error) {
	if req.Note < 0 || req.Note > models.NoteMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("note must be between 0 and %d", models.NoteMax))
	}

	soutenance, err := s.soutenances.FindByID(ctx, soutenanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return nil, s.internal(err, "failed to load soutenance")
	}
	if !soutenance.HasJury(juryID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only an assigned jury member can grade this soutenance")
	}

	note := &models.NoteSoutenance{
		SoutenanceID: soutenance.ID,
		JuryID:       juryID,
		Note:         req.Note,
		Commentaire:  req.Commentaire,
	}
	if err := s.repo.UpsertNote(ctx, note); err != nil {
		return nil, s.internal(err, "failed to record note")
	}

	s.auditEvaluation(ctx, juryID, models.AuditActionNoteRecord, "note_soutenance", note.ID, note)
	return note, nil
}

// SoutenanceNotes returns the jury grades of a soutenance with their mean.
// The average stays nil until at least one note exists.
func (s *EvaluationService) SoutenanceNotes(ctx context.Context, soutenanceID string) (*dto.SoutenanceNotes, error) {
	if _, err := s.soutenances.FindByID(ctx, soutenanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return nil, s.internal(err, "failed to load soutenance")
	}

	notes, err := s.repo.ListNotesBySoutenance(ctx, soutenanceID)
	if err != nil {
		return nil, s.internal(err, "failed to list notes")
	}

	result := &dto.SoutenanceNotes{SoutenanceID: soutenanceID, Notes: make([]dto.NoteItem, 0, len(notes))}
	sum := 0
	for _, note := range notes {
		item := dto.NoteItem{
			ID:          note.ID,
			Jury:        dto.PersonRef{ID: note.JuryID},
			Note:        note.Note,
			Commentaire: note.Commentaire,
		}
		if jury, err := s.users.FindByID(ctx, note.JuryID); err == nil {
			item.Jury.Nom = jury.Nom
			item.Jury.Prenom = jury.Prenom
		}
		result.Notes = append(result.Notes, item)
		sum += note.Note
	}
	if len(notes) > 0 {
		average := float64(sum) / float64(len(notes))
		result.Average = &average
	}
	return result, nil
}

// SubmitRapport stores the uploaded report file and records the rapport for
// the caller's binome. The student must already belong to a binome.
func (s *EvaluationService) SubmitRapport(ctx context.Context, studentID, titre, filename string, data []byte) (*dto.RapportItem, error) {
	if strings.TrimSpace(titre) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "titre is required")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rapport file is empty")
	}

	binome, err := s.binomes.BinomeContaining(ctx, studentID)
	if err != nil {
		return nil, s.internal(err, "failed to load binome")
	}
	if binome == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "you need a binome before submitting a rapport")
	}

	name := fmt.Sprintf("%d_%s", s.now().UTC().Unix(), filepath.Base(filename))
	stored, err := s.files.Save(filepath.Join("rapports", binome.ID, name), data)
	if err != nil {
		return nil, s.internal(err, "failed to store rapport file")
	}

	rapport := &models.Rapport{
		BinomeID:    binome.ID,
		Titre:       strings.TrimSpace(titre),
		FilePath:    stored,
		SubmittedBy: studentID,
	}
	if err := s.repo.CreateRapport(ctx, rapport); err != nil {
		return nil, s.internal(err, "failed to create rapport")
	}

	s.auditEvaluation(ctx, studentID, models.AuditActionRapportSubmit, "rapport", rapport.ID, rapport)
	return rapportToItem(rapport), nil
}

// MyRapport returns the latest rapport handed in by the caller's binome.
func (s *EvaluationService) MyRapport(ctx context.Context, studentID string) (*dto.RapportItem, error) {
	binome, err := s.binomes.BinomeContaining(ctx, studentID)
	if err != nil {
		return nil, s.internal(err, "failed to load binome")
	}
	if binome == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "you need a binome before consulting a rapport")
	}

	rapport, err := s.repo.FindRapportByBinome(ctx, binome.ID)
	if err != nil {
		return nil, s.internal(err, "failed to load rapport")
	}
	if rapport == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no rapport submitted yet")
	}
	return rapportToItem(rapport), nil
}

// GradeRapport records the evaluation of a submitted rapport.
func (s *EvaluationService) GradeRapport(ctx context.Context, actorID, rapportID string, req dto.GradeRapportRequest) (*dto.RapportItem, error) {
	if req.Note < 0 || req.Note > models.NoteMax {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("note must be between 0 and %d", models.NoteMax))
	}

	rapport, err := s.repo.FindRapportByID(ctx, rapportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rapport not found")
		}
		return nil, s.internal(err, "failed to load rapport")
	}

	now := s.now().UTC()
	if err := s.repo.SetRapportNote(ctx, rapport.ID, req.Note, req.Commentaire, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "rapport not found")
		}
		return nil, s.internal(err, "failed to grade rapport")
	}

	rapport.Note = &req.Note
	rapport.Commentaire = req.Commentaire
	rapport.UpdatedAt = now

	s.auditEvaluation(ctx, actorID, models.AuditActionRapportGrade, "rapport", rapport.ID, rapport)
	return rapportToItem(rapport), nil
}

// OpenRapport returns a read handle on the stored report file. Staff and jury
// read any rapport; a student only reads their own binome's.
func (s *EvaluationService) OpenRapport(ctx context.Context, actorID string, role models.UserRole, rapportID string) (*os.File, *models.Rapport, error) {
	rapport, err := s.repo.FindRapportByID(ctx, rapportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "rapport not found")
		}
		return nil, nil, s.internal(err, "failed to load rapport")
	}

	if role == models.RoleEtudiant {
		binome, err := s.binomes.FindBinomeByID(ctx, rapport.BinomeID)
		if err != nil {
			return nil, nil, s.internal(err, "failed to load binome")
		}
		if !binome.Contains(actorID) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "this rapport belongs to another binome")
		}
	}

	file, err := s.files.Open(rapport.FilePath)
	if err != nil {
		return nil, nil, s.internal(err, "failed to open rapport file")
	}
	return file, rapport, nil
}

func (s *EvaluationService) internal(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *EvaluationService) auditEvaluation(ctx context.Context, actorID, action, resource, resourceID string, payload interface{}) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  values,
		IPAddress:  "system",
		UserAgent:  "evaluation-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record evaluation audit", zap.Error(err))
	}
}

func rapportToItem(rapport *models.Rapport) *dto.RapportItem {
	return &dto.RapportItem{
		ID:          rapport.ID,
		BinomeID:    rapport.BinomeID,
		Titre:       rapport.Titre,
		Note:        rapport.Note,
		Commentaire: rapport.Commentaire,
		SubmittedAt: rapport.CreatedAt.UTC().Format(time.RFC3339),
	}
}
