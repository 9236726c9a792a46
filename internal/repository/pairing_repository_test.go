package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/models"
)

func newPairingRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func pendingRequestRows(id, requesterID, targetID string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "demandeur_id", "demande_id", "statut", "created_at", "updated_at"}).
		AddRow(id, requesterID, targetID, string(models.PairingStatusPending), now, now)
}

func existsRows(exists bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(exists)
}

func TestFindRequestBetweenReturnsNilWhenAbsent(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, demandeur_id, demande_id, statut, created_at, updated_at FROM demande_binome WHERE demandeur_id = $1 AND demande_id = $2`)).
		WithArgs("alice", "bob").
		WillReturnError(sql.ErrNoRows)

	req, err := repo.FindRequestBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, req)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequestInsertsPendingRow(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO demande_binome`)).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", string(models.PairingStatusPending), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.PairingRequest{RequesterID: "alice", TargetID: "bob"}
	err := repo.CreateRequest(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.PairingStatusPending, req.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptAndPairCreatesBinomeAndCascades(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, demandeur_id, demande_id, statut, created_at, updated_at FROM demande_binome WHERE id = $1 FOR UPDATE`)).
		WithArgs("req-1").
		WillReturnRows(pendingRequestRows("req-1", "alice", "bob"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM binome WHERE etudiant1_id = $1 OR etudiant2_id = $1)`)).
		WithArgs("bob").
		WillReturnRows(existsRows(false))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM binome WHERE etudiant1_id = $1 OR etudiant2_id = $1)`)).
		WithArgs("alice").
		WillReturnRows(existsRows(false))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE demande_binome SET statut = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("req-1", string(models.PairingStatusAccepted), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO binome (id, etudiant1_id, etudiant2_id, created_at) VALUES ($1, $2, $3, $4)`)).
		WithArgs(sqlmock.AnyArg(), "alice", "bob", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE demande_binome SET statut = $1, updated_at = $2
WHERE statut = $3 AND id <> $4
AND (demandeur_id IN ($5, $6) OR demande_id IN ($5, $6))`)).
		WithArgs(string(models.PairingStatusRejected), sqlmock.AnyArg(), string(models.PairingStatusPending), "req-1", "alice", "bob").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	binome, err := repo.AcceptAndPair(context.Background(), "req-1")
	require.NoError(t, err)
	require.NotNil(t, binome)
	assert.Equal(t, "alice", binome.Student1ID)
	require.NotNil(t, binome.Student2ID)
	assert.Equal(t, "bob", *binome.Student2ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptAndPairRejectsWhenTargetPaired(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM demande_binome WHERE id = $1 FOR UPDATE`)).
		WithArgs("req-1").
		WillReturnRows(pendingRequestRows("req-1", "alice", "bob"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("bob").
		WillReturnRows(existsRows(true))
	mock.ExpectRollback()

	binome, err := repo.AcceptAndPair(context.Background(), "req-1")
	assert.Nil(t, binome)
	assert.ErrorIs(t, err, ErrTargetPaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptAndPairCommitsRejectionWhenRequesterPaired(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM demande_binome WHERE id = $1 FOR UPDATE`)).
		WithArgs("req-1").
		WillReturnRows(pendingRequestRows("req-1", "alice", "bob"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("bob").
		WillReturnRows(existsRows(false))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("alice").
		WillReturnRows(existsRows(true))
	// The stale request flips to REJECTED and that write must commit.
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE demande_binome SET statut = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("req-1", string(models.PairingStatusRejected), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	binome, err := repo.AcceptAndPair(context.Background(), "req-1")
	assert.Nil(t, binome)
	assert.ErrorIs(t, err, ErrRequesterPaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptAndPairRejectsNonPendingRequest(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "demandeur_id", "demande_id", "statut", "created_at", "updated_at"}).
		AddRow("req-1", "alice", "bob", string(models.PairingStatusRejected), now, now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM demande_binome WHERE id = $1 FOR UPDATE`)).
		WithArgs("req-1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := repo.AcceptAndPair(context.Background(), "req-1")
	assert.ErrorIs(t, err, ErrRequestNotPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSoloBinomeCascadesPendingRequests(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("alice").
		WillReturnRows(existsRows(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO binome (id, etudiant1_id, etudiant2_id, created_at) VALUES ($1, $2, NULL, $3)`)).
		WithArgs(sqlmock.AnyArg(), "alice", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE demande_binome SET statut = $1, updated_at = $2
WHERE statut = $3 AND (demandeur_id = $4 OR demande_id = $4)`)).
		WithArgs(string(models.PairingStatusRejected), sqlmock.AnyArg(), string(models.PairingStatusPending), "alice").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	binome, err := repo.CreateSoloBinome(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, binome)
	assert.Equal(t, "alice", binome.Student1ID)
	assert.Nil(t, binome.Student2ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSoloBinomeRejectsPairedStudent(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS`)).
		WithArgs("alice").
		WillReturnRows(existsRows(true))
	mock.ExpectRollback()

	_, err := repo.CreateSoloBinome(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrTargetPaired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetSujetOnlyWhenUnset(t *testing.T) {
	db, mock, cleanup := newPairingRepoMock(t)
	defer cleanup()
	repo := NewPairingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE binome SET sujet_id = $2 WHERE id = $1 AND sujet_id IS NULL`)).
		WithArgs("bin-1", "suj-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	attached, err := repo.SetSujet(context.Background(), "bin-1", "suj-1")
	require.NoError(t, err)
	assert.True(t, attached)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE binome SET sujet_id = $2 WHERE id = $1 AND sujet_id IS NULL`)).
		WithArgs("bin-1", "suj-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	attached, err = repo.SetSujet(context.Background(), "bin-1", "suj-2")
	require.NoError(t, err)
	assert.False(t, attached)
	require.NoError(t, mock.ExpectationsWereMet())
}
