package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/estfbs/pfe-management-api/internal/models"
)

// Transactional outcomes surfaced to the pairing service. They describe
// legitimate races (a student joined another binome between the service
// precondition check and the commit), not infrastructure failures.
var (
	ErrRequestNotPending = errors.New("pairing request is no longer pending")
	ErrRequesterPaired   = errors.New("requester already belongs to a binome")
	ErrTargetPaired      = errors.New("target already belongs to a binome")
)

// PairingRepository owns the demande_binome and binome tables. All
// multi-statement pairing mutations run as a single serializable
// transaction so the existence checks cannot interleave with a
// conflicting concurrent write.
type PairingRepository struct {
	db *sqlx.DB
}

// NewPairingRepository constructs the repository.
func NewPairingRepository(db *sqlx.DB) *PairingRepository {
	return &PairingRepository{db: db}
}

const pairingRequestColumns = `id, demandeur_id, demande_id, statut, created_at, updated_at`

// FindRequestByID returns a pairing request by identifier.
func (r *PairingRepository) FindRequestByID(ctx context.Context, id string) (*models.PairingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM demande_binome WHERE id = $1 LIMIT 1`, pairingRequestColumns)
	var req models.PairingRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find pairing request: %w", err)
	}
	return &req, nil
}

// FindRequestBetween returns the request for the ordered (requester, target)
// pair regardless of status, or nil when none exists.
func (r *PairingRepository) FindRequestBetween(ctx context.Context, requesterID, targetID string) (*models.PairingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM demande_binome WHERE demandeur_id = $1 AND demande_id = $2 ORDER BY created_at DESC LIMIT 1`, pairingRequestColumns)
	var req models.PairingRequest
	if err := r.db.GetContext(ctx, &req, query, requesterID, targetID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find pairing request between students: %w", err)
	}
	return &req, nil
}

// ListRequestsByRequesterAndStatus returns requests sent by a student.
func (r *PairingRepository) ListRequestsByRequesterAndStatus(ctx context.Context, requesterID string, status models.PairingStatus) ([]models.PairingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM demande_binome WHERE demandeur_id = $1 AND statut = $2 ORDER BY created_at ASC`, pairingRequestColumns)
	var requests []models.PairingRequest
	if err := r.db.SelectContext(ctx, &requests, query, requesterID, status); err != nil {
		return nil, fmt.Errorf("list outgoing pairing requests: %w", err)
	}
	return requests, nil
}

// ListRequestsByTargetAndStatus returns requests addressed to a student.
func (r *PairingRepository) ListRequestsByTargetAndStatus(ctx context.Context, targetID string, status models.PairingStatus) ([]models.PairingRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM demande_binome WHERE demande_id = $1 AND statut = $2 ORDER BY created_at ASC`, pairingRequestColumns)
	var requests []models.PairingRequest
	if err := r.db.SelectContext(ctx, &requests, query, targetID, status); err != nil {
		return nil, fmt.Errorf("list incoming pairing requests: %w", err)
	}
	return requests, nil
}

// CreateRequest inserts a new pending request row.
func (r *PairingRepository) CreateRequest(ctx context.Context, req *models.PairingRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.PairingStatusPending
	}

	const query = `INSERT INTO demande_binome (id, demandeur_id, demande_id, statut, created_at, updated_at)
VALUES (:id, :demandeur_id, :demande_id, :statut, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create pairing request: %w", err)
	}
	return nil
}

// DeleteRequest removes a request row outright (requester cancellation).
func (r *PairingRepository) DeleteRequest(ctx context.Context, id string) error {
	const query = `DELETE FROM demande_binome WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete pairing request: %w", err)
	}
	return nil
}

// RejectRequest flips a request to REJECTED.
func (r *PairingRepository) RejectRequest(ctx context.Context, id string) error {
	const query = `UPDATE demande_binome SET statut = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.PairingStatusRejected, time.Now().UTC()); err != nil {
		return fmt.Errorf("reject pairing request: %w", err)
	}
	return nil
}

// BinomeContaining returns the binome the student belongs to, or nil.
func (r *PairingRepository) BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error) {
	const query = `SELECT id, etudiant1_id, etudiant2_id, encadrant_id, sujet_id, created_at
FROM binome WHERE etudiant1_id = $1 OR etudiant2_id = $1 LIMIT 1`
	var binome models.Binome
	if err := r.db.GetContext(ctx, &binome, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find binome containing student: %w", err)
	}
	return &binome, nil
}

// HasBinome reports whether the student already belongs to a binome.
func (r *PairingRepository) HasBinome(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM binome WHERE etudiant1_id = $1 OR etudiant2_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, studentID); err != nil {
		return false, fmt.Errorf("check binome existence: %w", err)
	}
	return exists, nil
}

// FindBinomeByID returns a binome by identifier.
func (r *PairingRepository) FindBinomeByID(ctx context.Context, id string) (*models.Binome, error) {
	const query = `SELECT id, etudiant1_id, etudiant2_id, encadrant_id, sujet_id, created_at FROM binome WHERE id = $1 LIMIT 1`
	var binome models.Binome
	if err := r.db.GetContext(ctx, &binome, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find binome: %w", err)
	}
	return &binome, nil
}

// AcceptAndPair accepts the request in one serializable transaction: the row
// is locked and re-checked, both students are re-verified as unpaired, the
// binome is created and every other pending request touching either student
// is cascaded to REJECTED.
//
// Race outcomes: ErrRequestNotPending when the row left PENDING meanwhile;
// ErrTargetPaired when the accepting side is already in a binome (no write);
// ErrRequesterPaired when the requester joined another binome, in which case
// the request is flipped to REJECTED and that flip is committed.
func (r *PairingRepository) AcceptAndPair(ctx context.Context, requestID string) (binome *models.Binome, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin pairing transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var req models.PairingRequest
	lockQuery := fmt.Sprintf(`SELECT %s FROM demande_binome WHERE id = $1 FOR UPDATE`, pairingRequestColumns)
	if err = tx.GetContext(ctx, &req, lockQuery, requestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock pairing request: %w", err)
	}
	if req.Status != models.PairingStatusPending {
		return nil, ErrRequestNotPending
	}

	targetPaired, err := txHasBinome(ctx, tx, req.TargetID)
	if err != nil {
		return nil, err
	}
	if targetPaired {
		return nil, ErrTargetPaired
	}

	requesterPaired, err := txHasBinome(ctx, tx, req.RequesterID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if requesterPaired {
		// The requester moved on. The stale request is resolved to REJECTED
		// and that resolution must survive the failed accept.
		const reject = `UPDATE demande_binome SET statut = $2, updated_at = $3 WHERE id = $1`
		if _, err = tx.ExecContext(ctx, reject, requestID, models.PairingStatusRejected, now); err != nil {
			return nil, fmt.Errorf("reject stale pairing request: %w", err)
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit pairing rejection: %w", err)
		}
		committed = true
		return nil, ErrRequesterPaired
	}

	const accept = `UPDATE demande_binome SET statut = $2, updated_at = $3 WHERE id = $1`
	if _, err = tx.ExecContext(ctx, accept, requestID, models.PairingStatusAccepted, now); err != nil {
		return nil, fmt.Errorf("accept pairing request: %w", err)
	}

	binome = &models.Binome{
		ID:         uuid.NewString(),
		Student1ID: req.RequesterID,
		Student2ID: &req.TargetID,
		CreatedAt:  now,
	}
	const insertBinome = `INSERT INTO binome (id, etudiant1_id, etudiant2_id, created_at) VALUES ($1, $2, $3, $4)`
	if _, err = tx.ExecContext(ctx, insertBinome, binome.ID, binome.Student1ID, binome.Student2ID, binome.CreatedAt); err != nil {
		return nil, fmt.Errorf("create binome: %w", err)
	}

	const cascade = `UPDATE demande_binome SET statut = $1, updated_at = $2
WHERE statut = $3 AND id <> $4
AND (demandeur_id IN ($5, $6) OR demande_id IN ($5, $6))`
	if _, err = tx.ExecContext(ctx, cascade,
		models.PairingStatusRejected, now, models.PairingStatusPending,
		requestID, req.RequesterID, req.TargetID); err != nil {
		return nil, fmt.Errorf("cascade pending pairing requests: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pairing: %w", err)
	}
	committed = true
	return binome, nil
}

// CreateSoloBinome commits a solo continuation: the binome row is inserted
// and every pending request naming the student is cascaded to REJECTED, all
// in one transaction. Returns ErrTargetPaired when the student joined a
// binome since the service precondition check.
func (r *PairingRepository) CreateSoloBinome(ctx context.Context, studentID string) (binome *models.Binome, err error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin solo transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	paired, err := txHasBinome(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}
	if paired {
		return nil, ErrTargetPaired
	}

	now := time.Now().UTC()
	binome = &models.Binome{
		ID:         uuid.NewString(),
		Student1ID: studentID,
		CreatedAt:  now,
	}
	const insertBinome = `INSERT INTO binome (id, etudiant1_id, etudiant2_id, created_at) VALUES ($1, $2, NULL, $3)`
	if _, err = tx.ExecContext(ctx, insertBinome, binome.ID, binome.Student1ID, binome.CreatedAt); err != nil {
		return nil, fmt.Errorf("create solo binome: %w", err)
	}

	const cascade = `UPDATE demande_binome SET statut = $1, updated_at = $2
WHERE statut = $3 AND (demandeur_id = $4 OR demande_id = $4)`
	if _, err = tx.ExecContext(ctx, cascade,
		models.PairingStatusRejected, now, models.PairingStatusPending, studentID); err != nil {
		return nil, fmt.Errorf("cascade pending pairing requests: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit solo binome: %w", err)
	}
	committed = true
	return binome, nil
}

// SetSujet attaches a sujet to a binome, only when none is set yet.
func (r *PairingRepository) SetSujet(ctx context.Context, binomeID, sujetID string) (bool, error) {
	const query = `UPDATE binome SET sujet_id = $2 WHERE id = $1 AND sujet_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, binomeID, sujetID)
	if err != nil {
		return false, fmt.Errorf("set binome sujet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set binome sujet: %w", err)
	}
	return affected == 1, nil
}

func txHasBinome(ctx context.Context, tx *sqlx.Tx, studentID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM binome WHERE etudiant1_id = $1 OR etudiant2_id = $1)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, studentID); err != nil {
		return false, fmt.Errorf("check binome existence: %w", err)
	}
	return exists, nil
}
