package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/estfbs/pfe-management-api/internal/models"
)

// ErrSoutenanceConflict reports that a concurrent writer took the slot (or
// scheduled the binome) between validation and commit.
var ErrSoutenanceConflict = errors.New("soutenance slot conflict")

// SoutenanceRepository owns the soutenance table and its planning
// projections.
type SoutenanceRepository struct {
	db *sqlx.DB
}

// NewSoutenanceRepository constructs the repository.
func NewSoutenanceRepository(db *sqlx.DB) *SoutenanceRepository {
	return &SoutenanceRepository{db: db}
}

const soutenanceColumns = `id, date, heure, salle_id, binome_id, jury1_id, jury2_id, created_at, updated_at`

// SoutenanceFilter narrows planning queries.
type SoutenanceFilter struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	FiliereID string
}

// PlanningRow is the flat planning projection joined across salle, binome,
// students, encadrant and sujet.
type PlanningRow struct {
	ID              string         `db:"id"`
	Date            time.Time      `db:"date"`
	Heure           string         `db:"heure"`
	SalleID         string         `db:"salle_id"`
	SalleNom        string         `db:"salle_nom"`
	BinomeID        string         `db:"binome_id"`
	Etudiant1ID     string         `db:"etudiant1_id"`
	Etudiant1Nom    string         `db:"etudiant1_nom"`
	Etudiant1Prenom string         `db:"etudiant1_prenom"`
	Etudiant2ID     sql.NullString `db:"etudiant2_id"`
	Etudiant2Nom    sql.NullString `db:"etudiant2_nom"`
	Etudiant2Prenom sql.NullString `db:"etudiant2_prenom"`
	EncadrantID     sql.NullString `db:"encadrant_id"`
	EncadrantNom    sql.NullString `db:"encadrant_nom"`
	EncadrantPrenom sql.NullString `db:"encadrant_prenom"`
	SujetID         sql.NullString `db:"sujet_id"`
	SujetTitre      sql.NullString `db:"sujet_titre"`
	Jury1ID         string         `db:"jury1_id"`
	Jury1Nom        string         `db:"jury1_nom"`
	Jury1Prenom     string         `db:"jury1_prenom"`
	Jury2ID         string         `db:"jury2_id"`
	Jury2Nom        string         `db:"jury2_nom"`
	Jury2Prenom     string         `db:"jury2_prenom"`
	FiliereNom      sql.NullString `db:"filiere_nom"`
}

// FindByID returns a soutenance by identifier.
func (r *SoutenanceRepository) FindByID(ctx context.Context, id string) (*models.Soutenance, error) {
	query := fmt.Sprintf(`SELECT %s FROM soutenance WHERE id = $1 LIMIT 1`, soutenanceColumns)
	var s models.Soutenance
	if err := r.db.GetContext(ctx, &s, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find soutenance: %w", err)
	}
	return &s, nil
}

// FindBySlot returns every soutenance sharing the exact (date, heure) slot,
// excluding the given id when non-empty.
func (r *SoutenanceRepository) FindBySlot(ctx context.Context, date time.Time, heure string, excludeID string) ([]models.Soutenance, error) {
	query := fmt.Sprintf(`SELECT %s FROM soutenance WHERE date = $1 AND heure = $2`, soutenanceColumns)
	args := []interface{}{date, heure}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	var rows []models.Soutenance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("find soutenances by slot: %w", err)
	}
	return rows, nil
}

// FindByBinome returns the soutenance of a binome, or nil when unscheduled.
func (r *SoutenanceRepository) FindByBinome(ctx context.Context, binomeID string) (*models.Soutenance, error) {
	query := fmt.Sprintf(`SELECT %s FROM soutenance WHERE binome_id = $1 LIMIT 1`, soutenanceColumns)
	var s models.Soutenance
	if err := r.db.GetContext(ctx, &s, query, binomeID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find soutenance by binome: %w", err)
	}
	return &s, nil
}

// ListPlanning returns the joined planning projection.
func (r *SoutenanceRepository) ListPlanning(ctx context.Context, filter SoutenanceFilter) ([]PlanningRow, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT
	s.id,
	s.date,
	s.heure,
	s.salle_id,
	sa.nom AS salle_nom,
	s.binome_id,
	b.etudiant1_id,
	e1.nom AS etudiant1_nom,
	e1.prenom AS etudiant1_prenom,
	b.etudiant2_id,
	e2.nom AS etudiant2_nom,
	e2.prenom AS etudiant2_prenom,
	b.encadrant_id,
	en.nom AS encadrant_nom,
	en.prenom AS encadrant_prenom,
	b.sujet_id,
	su.titre AS sujet_titre,
	s.jury1_id,
	j1.nom AS jury1_nom,
	j1.prenom AS jury1_prenom,
	s.jury2_id,
	j2.nom AS jury2_nom,
	j2.prenom AS jury2_prenom,
	f.nom AS filiere_nom
FROM soutenance s
JOIN salle sa ON sa.id = s.salle_id
JOIN binome b ON b.id = s.binome_id
JOIN utilisateurs e1 ON e1.id = b.etudiant1_id
LEFT JOIN utilisateurs e2 ON e2.id = b.etudiant2_id
LEFT JOIN utilisateurs en ON en.id = b.encadrant_id
LEFT JOIN sujet su ON su.id = b.sujet_id
JOIN utilisateurs j1 ON j1.id = s.jury1_id
JOIN utilisateurs j2 ON j2.id = s.jury2_id
LEFT JOIN etudiant et ON et.user_id = b.etudiant1_id
LEFT JOIN filiere f ON f.id = et.filiere_id
WHERE 1=1`)

	var args []interface{}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		fmt.Fprintf(&query, " AND s.date >= $%d", len(args))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		fmt.Fprintf(&query, " AND s.date <= $%d", len(args))
	}
	if filter.FiliereID != "" {
		args = append(args, filter.FiliereID)
		fmt.Fprintf(&query, " AND et.filiere_id = $%d", len(args))
	}
	query.WriteString("\nORDER BY s.date ASC, s.heure ASC, sa.nom ASC")

	var rows []PlanningRow
	if err := r.db.SelectContext(ctx, &rows, query.String(), args...); err != nil {
		return nil, fmt.Errorf("list planning: %w", err)
	}
	return rows, nil
}

// Create inserts a soutenance, re-asserting inside the transaction that the
// slot is still free for the salle and both jury members and that the binome
// is still unscheduled. Returns ErrSoutenanceConflict on any violation.
func (r *SoutenanceRepository) Create(ctx context.Context, s *models.Soutenance) (err error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin soutenance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = assertSlotFree(ctx, tx, s, ""); err != nil {
		return err
	}

	var binomeScheduled bool
	const binomeCheck = `SELECT EXISTS (SELECT 1 FROM soutenance WHERE binome_id = $1)`
	if err = tx.GetContext(ctx, &binomeScheduled, binomeCheck, s.BinomeID); err != nil {
		return fmt.Errorf("check binome soutenance: %w", err)
	}
	if binomeScheduled {
		err = ErrSoutenanceConflict
		return err
	}

	const insert = `INSERT INTO soutenance (id, date, heure, salle_id, binome_id, jury1_id, jury2_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err = tx.ExecContext(ctx, insert, s.ID, s.Date, s.Heure, s.SalleID, s.BinomeID, s.Jury1ID, s.Jury2ID, s.CreatedAt, s.UpdatedAt); err != nil {
		return fmt.Errorf("insert soutenance: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit soutenance: %w", err)
	}
	return nil
}

// Update rewrites a soutenance, re-asserting slot freedom while excluding
// the row itself. The binome-uniqueness check is create-only: a binome's
// existing soutenance may be freely rescheduled.
func (r *SoutenanceRepository) Update(ctx context.Context, s *models.Soutenance) (err error) {
	s.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin soutenance transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = assertSlotFree(ctx, tx, s, s.ID); err != nil {
		return err
	}

	const update = `UPDATE soutenance SET date = $2, heure = $3, salle_id = $4, binome_id = $5, jury1_id = $6, jury2_id = $7, updated_at = $8 WHERE id = $1`
	res, err := tx.ExecContext(ctx, update, s.ID, s.Date, s.Heure, s.SalleID, s.BinomeID, s.Jury1ID, s.Jury2ID, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update soutenance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update soutenance: %w", err)
	}
	if affected == 0 {
		err = sql.ErrNoRows
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit soutenance update: %w", err)
	}
	return nil
}

// Delete removes a soutenance row.
func (r *SoutenanceRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM soutenance WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete soutenance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete soutenance: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func assertSlotFree(ctx context.Context, tx *sqlx.Tx, s *models.Soutenance, excludeID string) error {
	query := `SELECT EXISTS (
SELECT 1 FROM soutenance
WHERE date = $1 AND heure = $2
AND (salle_id = $3 OR jury1_id IN ($4, $5) OR jury2_id IN ($4, $5))`
	args := []interface{}{s.Date, s.Heure, s.SalleID, s.Jury1ID, s.Jury2ID}
	if excludeID != "" {
		args = append(args, excludeID)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += ")"

	var conflict bool
	if err := tx.GetContext(ctx, &conflict, query, args...); err != nil {
		return fmt.Errorf("check slot conflicts: %w", err)
	}
	if conflict {
		return ErrSoutenanceConflict
	}
	return nil
}
