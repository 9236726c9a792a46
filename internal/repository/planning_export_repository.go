package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/estfbs/pfe-management-api/internal/models"
)

// PlanningExportRepository persists asynchronous planning export jobs.
type PlanningExportRepository struct {
	db *sqlx.DB
}

// NewPlanningExportRepository constructs the repository.
func NewPlanningExportRepository(db *sqlx.DB) *PlanningExportRepository {
	return &PlanningExportRepository{db: db}
}

const planningExportColumns = `id, params, status, file_path, created_by, created_at, finished_at, error_message`

// Create inserts a queued export job.
func (r *PlanningExportRepository) Create(ctx context.Context, export *models.PlanningExport) error {
	if export.ID == "" {
		export.ID = uuid.NewString()
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = time.Now().UTC()
	}
	if export.Status == "" {
		export.Status = models.ExportStatusQueued
	}
	const query = `INSERT INTO planning_exports (id, params, status, created_by, created_at)
VALUES (:id, :params, :status, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, export); err != nil {
		return fmt.Errorf("create planning export: %w", err)
	}
	return nil
}

// FindByID returns an export job by identifier.
func (r *PlanningExportRepository) FindByID(ctx context.Context, id string) (*models.PlanningExport, error) {
	query := fmt.Sprintf(`SELECT %s FROM planning_exports WHERE id = $1 LIMIT 1`, planningExportColumns)
	var export models.PlanningExport
	if err := r.db.GetContext(ctx, &export, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find planning export: %w", err)
	}
	return &export, nil
}

// MarkProcessing flips a job into the PROCESSING state.
func (r *PlanningExportRepository) MarkProcessing(ctx context.Context, id string) error {
	const query = `UPDATE planning_exports SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusProcessing); err != nil {
		return fmt.Errorf("mark planning export processing: %w", err)
	}
	return nil
}

// MarkFinished records the artifact path on success.
func (r *PlanningExportRepository) MarkFinished(ctx context.Context, id, filePath string, finishedAt time.Time) error {
	const query = `UPDATE planning_exports SET status = $2, file_path = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFinished, filePath, finishedAt); err != nil {
		return fmt.Errorf("mark planning export finished: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *PlanningExportRepository) MarkFailed(ctx context.Context, id, message string, finishedAt time.Time) error {
	const query = `UPDATE planning_exports SET status = $2, error_message = $3, finished_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.ExportStatusFailed, message, finishedAt); err != nil {
		return fmt.Errorf("mark planning export failed: %w", err)
	}
	return nil
}
