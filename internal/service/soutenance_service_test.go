package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type slotCall struct {
	date    string
	heure   string
	exclude string
}

type soutenanceStoreStub struct {
	byID        map[string]*models.Soutenance
	slotRows    []models.Soutenance
	slotCalls   []slotCall
	byBinome    *models.Soutenance
	binomeCalls int
	planning    []repository.PlanningRow
	createErr   error
	updateErr   error
	created     []*models.Soutenance
	updated     []*models.Soutenance
	deleted     []string
}

func (s *soutenanceStoreStub) FindByID(ctx context.Context, id string) (*models.Soutenance, error) {
	if row, ok := s.byID[id]; ok {
		return row, nil
	}
	return nil, sql.ErrNoRows
}

func (s *soutenanceStoreStub) FindBySlot(ctx context.Context, date time.Time, heure string, excludeID string) ([]models.Soutenance, error) {
	s.slotCalls = append(s.slotCalls, slotCall{date: date.Format(models.DateLayout), heure: heure, exclude: excludeID})
	return s.slotRows, nil
}

func (s *soutenanceStoreStub) FindByBinome(ctx context.Context, binomeID string) (*models.Soutenance, error) {
	s.binomeCalls++
	return s.byBinome, nil
}

func (s *soutenanceStoreStub) ListPlanning(ctx context.Context, filter repository.SoutenanceFilter) ([]repository.PlanningRow, error) {
	return s.planning, nil
}

func (s *soutenanceStoreStub) Create(ctx context.Context, sout *models.Soutenance) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, sout)
	return nil
}

func (s *soutenanceStoreStub) Update(ctx context.Context, sout *models.Soutenance) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.updated = append(s.updated, sout)
	return nil
}

func (s *soutenanceStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type salleReaderStub struct {
	salles map[string]*models.Salle
}

func (s salleReaderStub) FindByID(ctx context.Context, id string) (*models.Salle, error) {
	if salle, ok := s.salles[id]; ok {
		return salle, nil
	}
	return nil, sql.ErrNoRows
}

type binomeReaderStub struct {
	binomes map[string]*models.Binome
}

func (s binomeReaderStub) FindBinomeByID(ctx context.Context, id string) (*models.Binome, error) {
	if binome, ok := s.binomes[id]; ok {
		return binome, nil
	}
	return nil, sql.ErrNoRows
}

func juryUser(id string) *models.User {
	return &models.User{ID: id, Email: id + "@est.ac.ma", Nom: "Nom-" + id, Prenom: "Prenom-" + id, Role: models.RoleJury, Active: true}
}

func validSoutenanceRequest() dto.SoutenanceRequest {
	return dto.SoutenanceRequest{
		Date:     "2026-09-15",
		Heure:    "10:00",
		SalleID:  "salle-1",
		BinomeID: "bin-1",
		Jury1ID:  "jury-1",
		Jury2ID:  "jury-2",
	}
}

func newSoutenanceFixture(store *soutenanceStoreStub) (*SoutenanceService, *auditStub) {
	audit := &auditStub{}
	partner := "bob"
	svc := NewSoutenanceService(
		store,
		salleReaderStub{salles: map[string]*models.Salle{"salle-1": {ID: "salle-1", Nom: "A1"}}},
		binomeReaderStub{binomes: map[string]*models.Binome{"bin-1": {ID: "bin-1", Student1ID: "alice", Student2ID: &partner}}},
		userReaderStub{users: map[string]*models.User{
			"alice":  studentUser("alice"),
			"bob":    studentUser("bob"),
			"jury-1": juryUser("jury-1"),
			"jury-2": juryUser("jury-2"),
		}},
		audit,
		nil,
		0,
		nil,
	)
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC) }
	return svc, audit
}

func fieldsOf(result *dto.ValidationResponse) []string {
	fields := make([]string, 0, len(result.Errors))
	for _, fieldErr := range result.Errors {
		fields = append(fields, fieldErr.Field)
	}
	return fields
}

func TestValidateReportsAllMissingFields(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, _ := newSoutenanceFixture(store)

	result, err := svc.Validate(context.Background(), dto.SoutenanceRequest{}, "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.ElementsMatch(t, []string{"date", "heure", "salleId", "binomeId", "jury1Id", "jury2Id"}, fieldsOf(result))
	// Structural failures short-circuit: no conflict queries ran.
	assert.Empty(t, store.slotCalls)
	assert.Zero(t, store.binomeCalls)
}

func TestValidateRejectsPastDate(t *testing.T) {
	svc, _ := newSoutenanceFixture(&soutenanceStoreStub{})
	req := validSoutenanceRequest()
	req.Date = "2026-08-31"

	result, err := svc.Validate(context.Background(), req, "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, fieldsOf(result), "date")
}

func TestValidateAcceptsTodayAsDate(t *testing.T) {
	svc, _ := newSoutenanceFixture(&soutenanceStoreStub{})
	req := validSoutenanceRequest()
	req.Date = "2026-09-01"

	result, err := svc.Validate(context.Background(), req, "")

	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestValidateRejectsMalformedHeure(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, _ := newSoutenanceFixture(store)
	req := validSoutenanceRequest()
	req.Heure = "25:99"

	result, err := svc.Validate(context.Background(), req, "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, fieldsOf(result), "heure")
	assert.Empty(t, store.slotCalls)
}

func TestValidateRejectsIdenticalJuries(t *testing.T) {
	svc, _ := newSoutenanceFixture(&soutenanceStoreStub{})
	req := validSoutenanceRequest()
	req.Jury2ID = req.Jury1ID

	result, err := svc.Validate(context.Background(), req, "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, fieldsOf(result), "jury2Id")
}

func TestValidateDetectsSalleConflict(t *testing.T) {
	store := &soutenanceStoreStub{
		slotRows: []models.Soutenance{{ID: "other", SalleID: "salle-1", Jury1ID: "jury-9", Jury2ID: "jury-8"}},
	}
	svc, _ := newSoutenanceFixture(store)

	result, err := svc.Validate(context.Background(), validSoutenanceRequest(), "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"salleId"}, fieldsOf(result))
}

func TestValidateDetectsJuryConflicts(t *testing.T) {
	store := &soutenanceStoreStub{
		slotRows: []models.Soutenance{{ID: "other", SalleID: "salle-9", Jury1ID: "jury-1", Jury2ID: "jury-2"}},
	}
	svc, _ := newSoutenanceFixture(store)

	result, err := svc.Validate(context.Background(), validSoutenanceRequest(), "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.ElementsMatch(t, []string{"jury1Id", "jury2Id"}, fieldsOf(result))
}

func TestValidateChecksBinomeOnlyOnCreate(t *testing.T) {
	store := &soutenanceStoreStub{byBinome: &models.Soutenance{ID: "existing", BinomeID: "bin-1"}}
	svc, _ := newSoutenanceFixture(store)

	result, err := svc.Validate(context.Background(), validSoutenanceRequest(), "")

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"binomeId"}, fieldsOf(result))

	// Rescheduling the same soutenance must not trip the binome check.
	result, err = svc.Validate(context.Background(), validSoutenanceRequest(), "existing")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 1, store.binomeCalls)
}

func TestValidateExcludesSelfFromSlotQuery(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, _ := newSoutenanceFixture(store)

	_, err := svc.Validate(context.Background(), validSoutenanceRequest(), "self-id")

	require.NoError(t, err)
	require.Len(t, store.slotCalls, 1)
	assert.Equal(t, "self-id", store.slotCalls[0].exclude)
	assert.Equal(t, "2026-09-15", store.slotCalls[0].date)
	assert.Equal(t, "10:00", store.slotCalls[0].heure)
}

func TestCreateSchedulesSoutenance(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, audit := newSoutenanceFixture(store)

	item, validation, err := svc.Create(context.Background(), "chef-1", validSoutenanceRequest())

	require.NoError(t, err)
	assert.Nil(t, validation)
	require.NotNil(t, item)
	assert.Equal(t, "2026-09-15", item.Date)
	assert.Equal(t, "10:00", item.Heure)
	require.Len(t, store.created, 1)
	assert.Equal(t, "bin-1", store.created[0].BinomeID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSoutenanceCreate, audit.logs[0].Action)
}

func TestCreateReturnsValidationWithoutWriting(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, _ := newSoutenanceFixture(store)
	req := validSoutenanceRequest()
	req.SalleID = ""

	item, validation, err := svc.Create(context.Background(), "chef-1", req)

	require.NoError(t, err)
	assert.Nil(t, item)
	require.NotNil(t, validation)
	assert.False(t, validation.Valid)
	assert.Empty(t, store.created)
}

func TestCreateMapsCommitConflict(t *testing.T) {
	store := &soutenanceStoreStub{createErr: repository.ErrSoutenanceConflict}
	svc, _ := newSoutenanceFixture(store)

	_, _, err := svc.Create(context.Background(), "chef-1", validSoutenanceRequest())

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "SCHEDULE_CONFLICT", appErr.Code)
}

func TestCreateRejectsStudentJury(t *testing.T) {
	store := &soutenanceStoreStub{}
	svc, _ := newSoutenanceFixture(store)
	req := validSoutenanceRequest()
	req.Jury1ID = "alice"

	_, _, err := svc.Create(context.Background(), "chef-1", req)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Empty(t, store.created)
}

func TestUpdateReschedulesExcludingSelf(t *testing.T) {
	existing := &models.Soutenance{
		ID:       "sout-1",
		Date:     time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		Heure:    "09:00",
		SalleID:  "salle-1",
		BinomeID: "bin-1",
		Jury1ID:  "jury-1",
		Jury2ID:  "jury-2",
	}
	store := &soutenanceStoreStub{byID: map[string]*models.Soutenance{"sout-1": existing}}
	svc, audit := newSoutenanceFixture(store)

	item, validation, err := svc.Update(context.Background(), "chef-1", "sout-1", validSoutenanceRequest())

	require.NoError(t, err)
	assert.Nil(t, validation)
	require.NotNil(t, item)
	require.Len(t, store.slotCalls, 1)
	assert.Equal(t, "sout-1", store.slotCalls[0].exclude)
	assert.Zero(t, store.binomeCalls)
	require.Len(t, store.updated, 1)
	assert.Equal(t, "10:00", store.updated[0].Heure)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSoutenanceUpdate, audit.logs[0].Action)
}

func TestUpdateUnknownSoutenance(t *testing.T) {
	store := &soutenanceStoreStub{byID: map[string]*models.Soutenance{}}
	svc, _ := newSoutenanceFixture(store)

	_, _, err := svc.Update(context.Background(), "chef-1", "missing", validSoutenanceRequest())

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestDeleteRemovesSoutenance(t *testing.T) {
	store := &soutenanceStoreStub{byID: map[string]*models.Soutenance{
		"sout-1": {ID: "sout-1", BinomeID: "bin-1"},
	}}
	svc, audit := newSoutenanceFixture(store)

	err := svc.Delete(context.Background(), "chef-1", "sout-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"sout-1"}, store.deleted)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSoutenanceDelete, audit.logs[0].Action)
}

func TestListBuildsPlanningItems(t *testing.T) {
	store := &soutenanceStoreStub{planning: []repository.PlanningRow{
		{
			ID:              "sout-1",
			Date:            time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
			Heure:           "10:00",
			SalleID:         "salle-1",
			SalleNom:        "A1",
			BinomeID:        "bin-1",
			Etudiant1ID:     "alice",
			Etudiant1Nom:    "Nom-alice",
			Etudiant1Prenom: "Prenom-alice",
			Etudiant2ID:     sql.NullString{String: "bob", Valid: true},
			Etudiant2Nom:    sql.NullString{String: "Nom-bob", Valid: true},
			Etudiant2Prenom: sql.NullString{String: "Prenom-bob", Valid: true},
			Jury1ID:         "jury-1",
			Jury2ID:         "jury-2",
			FiliereNom:      sql.NullString{String: "Genie Informatique", Valid: true},
		},
	}}
	svc, _ := newSoutenanceFixture(store)

	items, err := svc.List(context.Background(), repository.SoutenanceFilter{})

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2026-09-15", items[0].Date)
	assert.Equal(t, "A1", items[0].Salle.Nom)
	require.NotNil(t, items[0].Binome.Etudiant2)
	assert.Equal(t, "bob", items[0].Binome.Etudiant2.ID)
	assert.Equal(t, "Genie Informatique", items[0].FiliereName)
}
