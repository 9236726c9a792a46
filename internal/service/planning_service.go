package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/export"
	"github.com/estfbs/pfe-management-api/pkg/jobs"
	"github.com/estfbs/pfe-management-api/pkg/storage"
)

type planningExportStore interface {
	Create(ctx context.Context, export *models.PlanningExport) error
	FindByID(ctx context.Context, id string) (*models.PlanningExport, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkFinished(ctx context.Context, id, filePath string, finishedAt time.Time) error
	MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error
}

type planningReader interface {
	ListPlanning(ctx context.Context, filter repository.SoutenanceFilter) ([]repository.PlanningRow, error)
}

var planningHeaders = []string{"Date", "Heure", "Salle", "Filiere", "Etudiant 1", "Etudiant 2", "Encadrant", "Sujet", "Jury 1", "Jury 2"}

// PlanningService renders the soutenance planning into downloadable CSV or
// PDF artifacts. Exports run on a background queue; clients poll the job and
// receive a signed, expiring download URL once it finishes.
type PlanningService struct {
	exports     planningExportStore
	soutenances planningReader
	storage     *storage.LocalStorage
	signer      *storage.SignedURLSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	queue       *jobs.Queue
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewPlanningService builds a PlanningService. Call StartQueue before
// enqueueing exports and StopQueue on shutdown.
func NewPlanningService(exports planningExportStore, soutenances planningReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, queueCfg jobs.QueueConfig, logger *zap.Logger) *PlanningService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PlanningService{
		exports:     exports,
		soutenances: soutenances,
		storage:     store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
	}
	queueCfg.Logger = logger
	s.queue = jobs.NewQueue("planning-exports", s.handleExportJob, queueCfg)
	return s
}

// WithMetrics attaches the Prometheus counters. Optional.
func (s *PlanningService) WithMetrics(metrics *MetricsService) *PlanningService {
	s.metrics = metrics
	return s
}

// StartQueue launches the export workers.
func (s *PlanningService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains and stops the export workers.
func (s *PlanningService) StopQueue() {
	s.queue.Stop()
}

// RequestExport persists a queued export job and hands it to the workers.
func (s *PlanningService) RequestExport(ctx context.Context, userID string, req dto.CreatePlanningExportRequest) (*dto.PlanningExportItem, error) {
	if req.Format != models.ExportFormatCSV && req.Format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	for _, raw := range []*string{req.DateFrom, req.DateTo} {
		if raw == nil {
			continue
		}
		if _, err := time.Parse(models.DateLayout, *raw); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dates must use the YYYY-MM-DD format")
		}
	}

	job := &models.PlanningExport{
		Params: models.PlanningExportParams{
			Format:    req.Format,
			DateFrom:  req.DateFrom,
			DateTo:    req.DateTo,
			FiliereID: req.FiliereID,
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: userID,
	}
	if err := s.exports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "planning-export", Payload: job.ID}); err != nil {
		now := time.Now().UTC()
		if markErr := s.exports.MarkFailed(ctx, job.ID, "export queue unavailable", now); markErr != nil {
			s.logger.Error("failed to mark export failed", zap.String("export", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}

	return s.toItem(job), nil
}

// GetExport reports the state of an export job. Only the requesting user may
// see it.
func (s *PlanningService) GetExport(ctx context.Context, userID, exportID string) (*dto.PlanningExportItem, error) {
	job, err := s.exports.FindByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}
	if job.CreatedBy != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return s.toItem(job), nil
}

// OpenDownload validates a signed token and returns the artifact handle with
// its content type and suggested filename.
func (s *PlanningService) OpenDownload(ctx context.Context, token string) (*os.File, string, string, error) {
	exportID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}

	job, err := s.exports.FindByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export")
	}
	if job.Status != models.ExportStatusFinished || job.FilePath == nil || *job.FilePath != relPath {
		return nil, "", "", appErrors.Clone(appErrors.ErrNotFound, "export artifact not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open artifact")
	}

	contentType := "text/csv"
	if job.Params.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	filename := fmt.Sprintf("planning-%s.%s", job.ID, job.Params.Format)
	return file, contentType, filename, nil
}

// CleanupArtifacts removes stored files older than the TTL.
func (s *PlanningService) CleanupArtifacts(ttl time.Duration) {
	deleted, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export artifacts cleaned", zap.Int("count", len(deleted)))
	}
}

func (s *PlanningService) handleExportJob(ctx context.Context, job jobs.Job) error {
	exportID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected export payload %T", job.Payload)
	}

	record, err := s.exports.FindByID(ctx, exportID)
	if err != nil {
		return fmt.Errorf("load export %s: %w", exportID, err)
	}
	if err := s.exports.MarkProcessing(ctx, exportID); err != nil {
		return fmt.Errorf("mark export processing: %w", err)
	}

	data, renderErr := s.render(ctx, record.Params)
	now := time.Now().UTC()
	if renderErr != nil {
		if err := s.exports.MarkFailed(ctx, exportID, renderErr.Error(), now); err != nil {
			s.logger.Error("failed to mark export failed", zap.String("export", exportID), zap.Error(err))
		}
		s.recordExport("failed")
		return renderErr
	}

	relPath := fmt.Sprintf("%s/%s.%s", now.Format("2006/01"), exportID, record.Params.Format)
	stored, err := s.storage.Save(relPath, data)
	if err != nil {
		if markErr := s.exports.MarkFailed(ctx, exportID, "failed to store artifact", now); markErr != nil {
			s.logger.Error("failed to mark export failed", zap.String("export", exportID), zap.Error(markErr))
		}
		s.recordExport("failed")
		return err
	}

	if err := s.exports.MarkFinished(ctx, exportID, stored, now); err != nil {
		return fmt.Errorf("mark export finished: %w", err)
	}
	s.recordExport("finished")
	s.logger.Info("planning export finished", zap.String("export", exportID), zap.String("file", stored))
	return nil
}

func (s *PlanningService) recordExport(outcome string) {
	if s.metrics != nil {
		s.metrics.ExportProcessed(outcome)
	}
}

func (s *PlanningService) render(ctx context.Context, params models.PlanningExportParams) ([]byte, error) {
	filter := repository.SoutenanceFilter{}
	if params.DateFrom != nil {
		if from, err := time.Parse(models.DateLayout, *params.DateFrom); err == nil {
			filter.DateFrom = &from
		}
	}
	if params.DateTo != nil {
		if to, err := time.Parse(models.DateLayout, *params.DateTo); err == nil {
			filter.DateTo = &to
		}
	}
	if params.FiliereID != nil {
		filter.FiliereID = *params.FiliereID
	}

	rows, err := s.soutenances.ListPlanning(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load planning: %w", err)
	}

	dataset := export.Dataset{Headers: planningHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		dataset.Rows = append(dataset.Rows, planningRowToRecord(row))
	}

	if params.Format == models.ExportFormatPDF {
		return s.pdf.Render(dataset, "Planning des soutenances")
	}
	return s.csv.Render(dataset)
}

func (s *PlanningService) toItem(job *models.PlanningExport) *dto.PlanningExportItem {
	item := &dto.PlanningExportItem{
		ID:     job.ID,
		Status: job.Status,
		Format: job.Params.Format,
		Error:  job.ErrorMessage,
	}
	if job.Status == models.ExportStatusFinished && job.FilePath != nil {
		if token, _, err := s.signer.Generate(job.ID, *job.FilePath); err == nil {
			url := "/planning/exports/download?token=" + token
			item.DownloadURL = &url
		} else {
			s.logger.Warn("failed to sign download url", zap.String("export", job.ID), zap.Error(err))
		}
	}
	return item
}

func planningRowToRecord(row repository.PlanningRow) map[string]string {
	record := map[string]string{
		"Date":       row.Date.Format(models.DateLayout),
		"Heure":      row.Heure,
		"Salle":      row.SalleNom,
		"Filiere":    row.FiliereNom.String,
		"Etudiant 1": strings.TrimSpace(row.Etudiant1Prenom + " " + row.Etudiant1Nom),
		"Jury 1":     strings.TrimSpace(row.Jury1Prenom + " " + row.Jury1Nom),
		"Jury 2":     strings.TrimSpace(row.Jury2Prenom + " " + row.Jury2Nom),
	}
	if row.Etudiant2ID.Valid {
		record["Etudiant 2"] = strings.TrimSpace(row.Etudiant2Prenom.String + " " + row.Etudiant2Nom.String)
	}
	if row.EncadrantID.Valid {
		record["Encadrant"] = strings.TrimSpace(row.EncadrantPrenom.String + " " + row.EncadrantNom.String)
	}
	if row.SujetID.Valid {
		record["Sujet"] = row.SujetTitre.String
	}
	return record
}
