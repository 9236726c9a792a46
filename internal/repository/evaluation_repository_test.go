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

func newEvaluationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
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

func TestUpsertNoteOverwritesOnConflict(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notes_soutenance`)).
		WithArgs(sqlmock.AnyArg(), "sout-1", "jury-1", 15, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	note := &models.NoteSoutenance{SoutenanceID: "sout-1", JuryID: "jury-1", Note: 15}
	err := repo.UpsertNote(context.Background(), note)
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.False(t, note.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListNotesBySoutenance(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "soutenance_id", "jury_id", "note", "commentaire", "created_at", "updated_at"}).
		AddRow("n1", "sout-1", "jury-1", 12, nil, now, now).
		AddRow("n2", "sout-1", "jury-2", 15, "good", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, soutenance_id, jury_id, note, commentaire, created_at, updated_at FROM notes_soutenance WHERE soutenance_id = $1`)).
		WithArgs("sout-1").
		WillReturnRows(rows)

	notes, err := repo.ListNotesBySoutenance(context.Background(), "sout-1")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, 12, notes[0].Note)
	require.NotNil(t, notes[1].Commentaire)
	assert.Equal(t, "good", *notes[1].Commentaire)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRapportInsertsRow(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rapports`)).
		WithArgs(sqlmock.AnyArg(), "bin-1", "Plateforme PFE", "rapports/bin-1/file.pdf", "alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rapport := &models.Rapport{
		BinomeID:    "bin-1",
		Titre:       "Plateforme PFE",
		FilePath:    "rapports/bin-1/file.pdf",
		SubmittedBy: "alice",
	}
	err := repo.CreateRapport(context.Background(), rapport)
	require.NoError(t, err)
	assert.NotEmpty(t, rapport.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRapportByBinomeReturnsNilWhenAbsent(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM rapports WHERE binome_id = $1 ORDER BY created_at DESC LIMIT 1`)).
		WithArgs("bin-1").
		WillReturnError(sql.ErrNoRows)

	rapport, err := repo.FindRapportByBinome(context.Background(), "bin-1")
	require.NoError(t, err)
	assert.Nil(t, rapport)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRapportNoteRequiresExistingRow(t *testing.T) {
	db, mock, cleanup := newEvaluationRepoMock(t)
	defer cleanup()
	repo := NewEvaluationRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE rapports SET note = $2, commentaire = $3, updated_at = $4 WHERE id = $1`)).
		WithArgs("missing", 17, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetRapportNote(context.Background(), "missing", 17, nil, now)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
