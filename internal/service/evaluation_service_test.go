package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
	"github.com/estfbs/pfe-management-api/pkg/storage"
)

type evaluationStoreStub struct {
	upserted        []*models.NoteSoutenance
	notes           []models.NoteSoutenance
	rapports        map[string]*models.Rapport
	rapportOfBinome *models.Rapport
	createdRapports []*models.Rapport
	gradedIDs       []string
}

func (s *evaluationStoreStub) UpsertNote(ctx context.Context, note *models.NoteSoutenance) error {
	if note.ID == "" {
		note.ID = "note-1"
	}
	s.upserted = append(s.upserted, note)
	return nil
}

func (s *evaluationStoreStub) ListNotesBySoutenance(ctx context.Context, soutenanceID string) ([]models.NoteSoutenance, error) {
	return s.notes, nil
}

func (s *evaluationStoreStub) CreateRapport(ctx context.Context, rapport *models.Rapport) error {
	if rapport.ID == "" {
		rapport.ID = "rap-1"
	}
	if rapport.CreatedAt.IsZero() {
		rapport.CreatedAt = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	}
	s.createdRapports = append(s.createdRapports, rapport)
	return nil
}

func (s *evaluationStoreStub) FindRapportByID(ctx context.Context, id string) (*models.Rapport, error) {
	if rapport, ok := s.rapports[id]; ok {
		return rapport, nil
	}
	return nil, sql.ErrNoRows
}

func (s *evaluationStoreStub) FindRapportByBinome(ctx context.Context, binomeID string) (*models.Rapport, error) {
	return s.rapportOfBinome, nil
}

func (s *evaluationStoreStub) SetRapportNote(ctx context.Context, id string, note int, commentaire *string, updatedAt time.Time) error {
	if _, ok := s.rapports[id]; !ok {
		return sql.ErrNoRows
	}
	s.gradedIDs = append(s.gradedIDs, id)
	return nil
}

type evaluationBinomeStub struct {
	containing *models.Binome
	byID       map[string]*models.Binome
}

func (s evaluationBinomeStub) BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error) {
	return s.containing, nil
}

func (s evaluationBinomeStub) FindBinomeByID(ctx context.Context, id string) (*models.Binome, error) {
	if binome, ok := s.byID[id]; ok {
		return binome, nil
	}
	return nil, sql.ErrNoRows
}

func pairedBinome() *models.Binome {
	partner := "bob"
	return &models.Binome{ID: "bin-1", Student1ID: "alice", Student2ID: &partner}
}

func newEvaluationFixture(t *testing.T, store *evaluationStoreStub, binomes evaluationBinomeStub) (*EvaluationService, *auditStub, *storage.LocalStorage) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	audit := &auditStub{}
	souts := &soutenanceStoreStub{byID: map[string]*models.Soutenance{
		"sout-1": {ID: "sout-1", BinomeID: "bin-1", Jury1ID: "jury-1", Jury2ID: "jury-2"},
	}}
	svc := NewEvaluationService(
		store,
		souts,
		binomes,
		userReaderStub{users: map[string]*models.User{
			"jury-1": juryUser("jury-1"),
			"jury-2": juryUser("jury-2"),
		}},
		files,
		audit,
		nil,
	)
	svc.now = func() time.Time { return time.Date(2026, 9, 20, 14, 0, 0, 0, time.UTC) }
	return svc, audit, files
}

func TestRecordNoteStoresJuryGrade(t *testing.T) {
	store := &evaluationStoreStub{}
	svc, audit, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})
	commentaire := "solid defense"

	note, err := svc.RecordNote(context.Background(), "jury-1", "sout-1", dto.RecordNoteRequest{Note: 16, Commentaire: &commentaire})

	require.NoError(t, err)
	assert.Equal(t, "sout-1", note.SoutenanceID)
	assert.Equal(t, "jury-1", note.JuryID)
	assert.Equal(t, 16, note.Note)
	require.Len(t, store.upserted, 1)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionNoteRecord, audit.logs[0].Action)
}

func TestRecordNoteRejectsOutsiders(t *testing.T) {
	store := &evaluationStoreStub{}
	svc, _, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})

	_, err := svc.RecordNote(context.Background(), "jury-9", "sout-1", dto.RecordNoteRequest{Note: 12})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)
	assert.Empty(t, store.upserted)
}

func TestRecordNoteRejectsOutOfRangeGrade(t *testing.T) {
	store := &evaluationStoreStub{}
	svc, _, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})

	for _, grade := range []int{-1, models.NoteMax + 1} {
		_, err := svc.RecordNote(context.Background(), "jury-1", "sout-1", dto.RecordNoteRequest{Note: grade})

		var appErr *appErrors.Error
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	}
	assert.Empty(t, store.upserted)
}

func TestRecordNoteUnknownSoutenance(t *testing.T) {
	svc, _, _ := newEvaluationFixture(t, &evaluationStoreStub{}, evaluationBinomeStub{})

	_, err := svc.RecordNote(context.Background(), "jury-1", "missing", dto.RecordNoteRequest{Note: 10})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestSoutenanceNotesAveragesJuryGrades(t *testing.T) {
	store := &evaluationStoreStub{notes: []models.NoteSoutenance{
		{ID: "n1", SoutenanceID: "sout-1", JuryID: "jury-1", Note: 12},
		{ID: "n2", SoutenanceID: "sout-1", JuryID: "jury-2", Note: 15},
	}}
	svc, _, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})

	result, err := svc.SoutenanceNotes(context.Background(), "sout-1")

	require.NoError(t, err)
	require.Len(t, result.Notes, 2)
	assert.Equal(t, "Nom-jury-1", result.Notes[0].Jury.Nom)
	require.NotNil(t, result.Average)
	assert.InDelta(t, 13.5, *result.Average, 0.001)
}

func TestSoutenanceNotesWithoutGrades(t *testing.T) {
	svc, _, _ := newEvaluationFixture(t, &evaluationStoreStub{}, evaluationBinomeStub{})

	result, err := svc.SoutenanceNotes(context.Background(), "sout-1")

	require.NoError(t, err)
	assert.Empty(t, result.Notes)
	assert.Nil(t, result.Average)
}

func TestSubmitRapportRequiresBinome(t *testing.T) {
	store := &evaluationStoreStub{}
	svc, _, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})

	_, err := svc.SubmitRapport(context.Background(), "alice", "Plateforme PFE", "rapport.pdf", []byte("content"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PRECONDITION_FAILED", appErr.Code)
	assert.Empty(t, store.createdRapports)
}

func TestSubmitRapportStoresFileAndRow(t *testing.T) {
	store := &evaluationStoreStub{}
	svc, audit, files := newEvaluationFixture(t, store, evaluationBinomeStub{containing: pairedBinome()})

	item, err := svc.SubmitRapport(context.Background(), "alice", "  Plateforme PFE  ", "rapport.pdf", []byte("content"))

	require.NoError(t, err)
	assert.Equal(t, "bin-1", item.BinomeID)
	assert.Equal(t, "Plateforme PFE", item.Titre)
	require.Len(t, store.createdRapports, 1)
	rapport := store.createdRapports[0]
	assert.Equal(t, "alice", rapport.SubmittedBy)

	data, readErr := os.ReadFile(files.Path(rapport.FilePath))
	require.NoError(t, readErr)
	assert.Equal(t, []byte("content"), data)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRapportSubmit, audit.logs[0].Action)
}

func TestSubmitRapportRejectsEmptyTitle(t *testing.T) {
	svc, _, _ := newEvaluationFixture(t, &evaluationStoreStub{}, evaluationBinomeStub{containing: pairedBinome()})

	_, err := svc.SubmitRapport(context.Background(), "alice", "   ", "rapport.pdf", []byte("content"))

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestMyRapportReturnsLatest(t *testing.T) {
	note := 14
	store := &evaluationStoreStub{rapportOfBinome: &models.Rapport{
		ID:       "rap-1",
		BinomeID: "bin-1",
		Titre:    "Plateforme PFE",
		Note:     &note,
	}}
	svc, _, _ := newEvaluationFixture(t, store, evaluationBinomeStub{containing: pairedBinome()})

	item, err := svc.MyRapport(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, "rap-1", item.ID)
	require.NotNil(t, item.Note)
	assert.Equal(t, 14, *item.Note)
}

func TestMyRapportBeforeSubmission(t *testing.T) {
	svc, _, _ := newEvaluationFixture(t, &evaluationStoreStub{}, evaluationBinomeStub{containing: pairedBinome()})

	_, err := svc.MyRapport(context.Background(), "alice")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestGradeRapportRecordsEvaluation(t *testing.T) {
	store := &evaluationStoreStub{rapports: map[string]*models.Rapport{
		"rap-1": {ID: "rap-1", BinomeID: "bin-1", Titre: "Plateforme PFE"},
	}}
	svc, audit, _ := newEvaluationFixture(t, store, evaluationBinomeStub{})
	commentaire := "well structured"

	item, err := svc.GradeRapport(context.Background(), "encadrant-1", "rap-1", dto.GradeRapportRequest{Note: 17, Commentaire: &commentaire})

	require.NoError(t, err)
	require.NotNil(t, item.Note)
	assert.Equal(t, 17, *item.Note)
	assert.Equal(t, []string{"rap-1"}, store.gradedIDs)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRapportGrade, audit.logs[0].Action)
}

func TestGradeRapportUnknownRapport(t *testing.T) {
	svc, _, _ := newEvaluationFixture(t, &evaluationStoreStub{rapports: map[string]*models.Rapport{}}, evaluationBinomeStub{})

	_, err := svc.GradeRapport(context.Background(), "encadrant-1", "missing", dto.GradeRapportRequest{Note: 10})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestOpenRapportGuardsOtherStudents(t *testing.T) {
	binome := pairedBinome()
	store := &evaluationStoreStub{rapports: map[string]*models.Rapport{
		"rap-1": {ID: "rap-1", BinomeID: "bin-1", Titre: "Plateforme PFE", FilePath: "rapports/bin-1/file.pdf"},
	}}
	svc, _, files := newEvaluationFixture(t, store, evaluationBinomeStub{byID: map[string]*models.Binome{"bin-1": binome}})
	_, err := files.Save("rapports/bin-1/file.pdf", []byte("content"))
	require.NoError(t, err)

	_, _, err = svc.OpenRapport(context.Background(), "mallory", models.RoleEtudiant, "rap-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "FORBIDDEN", appErr.Code)

	// Both binome members and staff may read the file.
	for _, tc := range []struct {
		actor string
		role  models.UserRole
	}{
		{actor: "alice", role: models.RoleEtudiant},
		{actor: "bob", role: models.RoleEtudiant},
		{actor: "chef-1", role: models.RoleChefDepartement},
	} {
		file, rapport, err := svc.OpenRapport(context.Background(), tc.actor, tc.role, "rap-1")
		require.NoError(t, err, tc.actor)
		assert.Equal(t, "rap-1", rapport.ID)
		require.NoError(t, file.Close())
	}
}
