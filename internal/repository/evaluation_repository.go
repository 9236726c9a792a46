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

// EvaluationRepository persists jury grades and submitted rapports.
type EvaluationRepository struct {
	db *sqlx.DB
}

// NewEvaluationRepository constructs the repository.
func NewEvaluationRepository(db *sqlx.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

const noteColumns = `id, soutenance_id, jury_id, note, commentaire, created_at, updated_at`

const rapportColumns = `id, binome_id, titre, localisation_rapport, note, commentaire, submitted_by, created_at, updated_at`

// UpsertNote records a jury member's grade for a soutenance. A jury member
// holds one row per soutenance; recording again overwrites the previous note.
func (r *EvaluationRepository) UpsertNote(ctx context.Context, note *models.NoteSoutenance) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now

	const query = `INSERT INTO notes_soutenance (id, soutenance_id, jury_id, note, commentaire, created_at, updated_at)
VALUES (:id, :soutenance_id, :jury_id, :note, :commentaire, :created_at, :updated_at)
ON CONFLICT (soutenance_id, jury_id)
DO UPDATE SET note = EXCLUDED.note, commentaire = EXCLUDED.commentaire, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, note); err != nil {
		return fmt.Errorf("upsert note: %w", err)
	}
	return nil
}

// ListNotesBySoutenance returns every jury grade recorded for a soutenance.
func (r *EvaluationRepository) ListNotesBySoutenance(ctx context.Context, soutenanceID string) ([]models.NoteSoutenance, error) {
	query := fmt.Sprintf(`SELECT %s FROM notes_soutenance WHERE soutenance_id = $1 ORDER BY created_at ASC`, noteColumns)
	var notes []models.NoteSoutenance
	if err := r.db.SelectContext(ctx, &notes, query, soutenanceID); err != nil {
		return nil, fmt.Errorf("list notes by soutenance: %w", err)
	}
	return notes, nil
}

// CreateRapport inserts a newly submitted rapport row.
func (r *EvaluationRepository) CreateRapport(ctx context.Context, rapport *models.Rapport) error {
	if rapport.ID == "" {
		rapport.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rapport.CreatedAt.IsZero() {
		rapport.CreatedAt = now
	}
	rapport.UpdatedAt = now

	const query = `INSERT INTO rapports (id, binome_id, titre, localisation_rapport, submitted_by, created_at, updated_at)
VALUES (:id, :binome_id, :titre, :localisation_rapport, :submitted_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rapport); err != nil {
		return fmt.Errorf("create rapport: %w", err)
	}
	return nil
}

// FindRapportByID returns one rapport by identifier.
func (r *EvaluationRepository) FindRapportByID(ctx context.Context, id string) (*models.Rapport, error) {
	query := fmt.Sprintf(`SELECT %s FROM rapports WHERE id = $1 LIMIT 1`, rapportColumns)
	var rapport models.Rapport
	if err := r.db.GetContext(ctx, &rapport, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find rapport: %w", err)
	}
	return &rapport, nil
}

// FindRapportByBinome returns the latest rapport of a binome, or nil when the
// binome has not handed anything in yet.
func (r *EvaluationRepository) FindRapportByBinome(ctx context.Context, binomeID string) (*models.Rapport, error) {
	query := fmt.Sprintf(`SELECT %s FROM rapports WHERE binome_id = $1 ORDER BY created_at DESC LIMIT 1`, rapportColumns)
	var rapport models.Rapport
	if err := r.db.GetContext(ctx, &rapport, query, binomeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find rapport by binome: %w", err)
	}
	return &rapport, nil
}

// SetRapportNote records the evaluation of a rapport.
func (r *EvaluationRepository) SetRapportNote(ctx context.Context, id string, note int, commentaire *string, updatedAt time.Time) error {
	const query = `UPDATE rapports SET note = $2, commentaire = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, note, commentaire, updatedAt)
	if err != nil {
		return fmt.Errorf("set rapport note: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rapport note: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
