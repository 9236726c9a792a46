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

// SalleRepository provides access to the defense-room directory.
type SalleRepository struct {
	db *sqlx.DB
}

// NewSalleRepository constructs the repository.
func NewSalleRepository(db *sqlx.DB) *SalleRepository {
	return &SalleRepository{db: db}
}

// FindByID returns a salle by identifier.
func (r *SalleRepository) FindByID(ctx context.Context, id string) (*models.Salle, error) {
	const query = `SELECT id, nom FROM salle WHERE id = $1 LIMIT 1`
	var salle models.Salle
	if err := r.db.GetContext(ctx, &salle, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find salle: %w", err)
	}
	return &salle, nil
}

// List returns every salle ordered by name.
func (r *SalleRepository) List(ctx context.Context) ([]models.Salle, error) {
	const query = `SELECT id, nom FROM salle ORDER BY nom ASC`
	var salles []models.Salle
	if err := r.db.SelectContext(ctx, &salles, query); err != nil {
		return nil, fmt.Errorf("list salles: %w", err)
	}
	return salles, nil
}

// Create inserts a new salle.
func (r *SalleRepository) Create(ctx context.Context, salle *models.Salle) error {
	if salle.ID == "" {
		salle.ID = uuid.NewString()
	}
	const query = `INSERT INTO salle (id, nom) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, salle.ID, salle.Nom); err != nil {
		return fmt.Errorf("create salle: %w", err)
	}
	return nil
}

// FiliereRepository provides access to academic tracks.
type FiliereRepository struct {
	db *sqlx.DB
}

// NewFiliereRepository constructs the repository.
func NewFiliereRepository(db *sqlx.DB) *FiliereRepository {
	return &FiliereRepository{db: db}
}

// FindByID returns a filiere by identifier.
func (r *FiliereRepository) FindByID(ctx context.Context, id string) (*models.Filiere, error) {
	const query = `SELECT id, nom, abbreviation FROM filiere WHERE id = $1 LIMIT 1`
	var filiere models.Filiere
	if err := r.db.GetContext(ctx, &filiere, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find filiere: %w", err)
	}
	return &filiere, nil
}

// List returns every filiere ordered by name.
func (r *FiliereRepository) List(ctx context.Context) ([]models.Filiere, error) {
	const query = `SELECT id, nom, abbreviation FROM filiere ORDER BY nom ASC`
	var filieres []models.Filiere
	if err := r.db.SelectContext(ctx, &filieres, query); err != nil {
		return nil, fmt.Errorf("list filieres: %w", err)
	}
	return filieres, nil
}

// SujetRepository provides access to PFE subjects and proposals.
type SujetRepository struct {
	db *sqlx.DB
}

// NewSujetRepository constructs the repository.
func NewSujetRepository(db *sqlx.DB) *SujetRepository {
	return &SujetRepository{db: db}
}

const sujetColumns = `id, titre, theme, description, filiere_id, created_at`

// FindByID returns a sujet by identifier.
func (r *SujetRepository) FindByID(ctx context.Context, id string) (*models.Sujet, error) {
	query := fmt.Sprintf(`SELECT %s FROM sujet WHERE id = $1 LIMIT 1`, sujetColumns)
	var sujet models.Sujet
	if err := r.db.GetContext(ctx, &sujet, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find sujet: %w", err)
	}
	return &sujet, nil
}

// ListAvailableByFiliere returns sujets of the filiere not yet attached to
// any binome.
func (r *SujetRepository) ListAvailableByFiliere(ctx context.Context, filiereID string) ([]models.Sujet, error) {
	query := fmt.Sprintf(`SELECT %s FROM sujet s
WHERE s.filiere_id = $1
AND NOT EXISTS (SELECT 1 FROM binome b WHERE b.sujet_id = s.id)
ORDER BY s.titre ASC`, prefixColumns("s", sujetColumns))
	var sujets []models.Sujet
	if err := r.db.SelectContext(ctx, &sujets, query, filiereID); err != nil {
		return nil, fmt.Errorf("list available sujets: %w", err)
	}
	return sujets, nil
}

// Create inserts a new sujet.
func (r *SujetRepository) Create(ctx context.Context, sujet *models.Sujet) error {
	if sujet.ID == "" {
		sujet.ID = uuid.NewString()
	}
	if sujet.CreatedAt.IsZero() {
		sujet.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sujet (id, titre, theme, description, filiere_id, created_at)
VALUES (:id, :titre, :theme, :description, :filiere_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, sujet); err != nil {
		return fmt.Errorf("create sujet: %w", err)
	}
	return nil
}

// CreateProposal records a sujet suggestion from a binome.
func (r *SujetRepository) CreateProposal(ctx context.Context, proposal *models.SujetProposal) error {
	if proposal.ID == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = time.Now().UTC()
	}
	if proposal.Status == "" {
		proposal.Status = models.SujetProposalPending
	}
	const query = `INSERT INTO proposer_sujets (id, binome_id, titre, theme, description, statut, created_at)
VALUES (:id, :binome_id, :titre, :theme, :description, :statut, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, proposal); err != nil {
		return fmt.Errorf("create sujet proposal: %w", err)
	}
	return nil
}

// ListProposalsByStatus returns proposals in the given state.
func (r *SujetRepository) ListProposalsByStatus(ctx context.Context, status string) ([]models.SujetProposal, error) {
	const query = `SELECT id, binome_id, titre, theme, description, statut, created_at FROM proposer_sujets WHERE statut = $1 ORDER BY created_at ASC`
	var proposals []models.SujetProposal
	if err := r.db.SelectContext(ctx, &proposals, query, status); err != nil {
		return nil, fmt.Errorf("list sujet proposals: %w", err)
	}
	return proposals, nil
}
