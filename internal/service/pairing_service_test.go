package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type pairingStoreStub struct {
	requests     map[string]*models.PairingRequest
	between      map[string]*models.PairingRequest
	incoming     []models.PairingRequest
	outgoing     []models.PairingRequest
	binomes      map[string]*models.Binome
	paired       map[string]bool
	acceptResult *models.Binome
	acceptErr    error
	acceptedIDs  []string
	soloResult   *models.Binome
	soloErr      error
	created      []*models.PairingRequest
	deletedIDs   []string
	rejectedIDs  []string
}

func betweenKey(requesterID, targetID string) string {
	return requesterID + "->" + targetID
}

func (s *pairingStoreStub) FindRequestByID(ctx context.Context, id string) (*models.PairingRequest, error) {
	if req, ok := s.requests[id]; ok {
		return req, nil
	}
	return nil, sql.ErrNoRows
}

func (s *pairingStoreStub) FindRequestBetween(ctx context.Context, requesterID, targetID string) (*models.PairingRequest, error) {
	return s.between[betweenKey(requesterID, targetID)], nil
}

func (s *pairingStoreStub) ListRequestsByRequesterAndStatus(ctx context.Context, requesterID string, status models.PairingStatus) ([]models.PairingRequest, error) {
	return s.outgoing, nil
}

func (s *pairingStoreStub) ListRequestsByTargetAndStatus(ctx context.Context, targetID string, status models.PairingStatus) ([]models.PairingRequest, error) {
	return s.incoming, nil
}

func (s *pairingStoreStub) CreateRequest(ctx context.Context, req *models.PairingRequest) error {
	s.created = append(s.created, req)
	return nil
}

func (s *pairingStoreStub) DeleteRequest(ctx context.Context, id string) error {
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

func (s *pairingStoreStub) RejectRequest(ctx context.Context, id string) error {
	s.rejectedIDs = append(s.rejectedIDs, id)
	return nil
}

func (s *pairingStoreStub) BinomeContaining(ctx context.Context, studentID string) (*models.Binome, error) {
	return s.binomes[studentID], nil
}

func (s *pairingStoreStub) HasBinome(ctx context.Context, studentID string) (bool, error) {
	return s.paired[studentID], nil
}

func (s *pairingStoreStub) AcceptAndPair(ctx context.Context, requestID string) (*models.Binome, error) {
	s.acceptedIDs = append(s.acceptedIDs, requestID)
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return s.acceptResult, nil
}

func (s *pairingStoreStub) CreateSoloBinome(ctx context.Context, studentID string) (*models.Binome, error) {
	if s.soloErr != nil {
		return nil, s.soloErr
	}
	return s.soloResult, nil
}

type userReaderStub struct {
	users     map[string]*models.User
	etudiants map[string]*models.Etudiant
	byFiliere []models.User
}

func (s userReaderStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s userReaderStub) FindEtudiant(ctx context.Context, userID string) (*models.Etudiant, error) {
	if etudiant, ok := s.etudiants[userID]; ok {
		return etudiant, nil
	}
	return nil, sql.ErrNoRows
}

func (s userReaderStub) ListEtudiantsByFiliere(ctx context.Context, filiereID string) ([]models.User, error) {
	return s.byFiliere, nil
}

type filiereReaderStub struct {
	filieres map[string]*models.Filiere
}

func (s filiereReaderStub) FindByID(ctx context.Context, id string) (*models.Filiere, error) {
	if filiere, ok := s.filieres[id]; ok {
		return filiere, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (s *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func studentUser(id string) *models.User {
	return &models.User{ID: id, Email: id + "@est.ac.ma", Nom: "Nom-" + id, Prenom: "Prenom-" + id, Role: models.RoleEtudiant, Active: true}
}

func newPairingFixture(store *pairingStoreStub, users userReaderStub) (*PairingService, *auditStub) {
	audit := &auditStub{}
	svc := NewPairingService(store, users, filiereReaderStub{filieres: map[string]*models.Filiere{
		"fil-1": {ID: "fil-1", Nom: "Genie Informatique"},
	}}, audit, nil)
	return svc, audit
}

func TestSendRequestCreatesPendingRequest(t *testing.T) {
	store := &pairingStoreStub{between: map[string]*models.PairingRequest{}, paired: map[string]bool{}}
	users := userReaderStub{users: map[string]*models.User{
		"alice": studentUser("alice"),
		"bob":   studentUser("bob"),
	}}
	svc, _ := newPairingFixture(store, users)

	result, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "bob"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Nil(t, result.BinomeID)
	require.Len(t, store.created, 1)
	assert.Equal(t, "alice", store.created[0].RequesterID)
	assert.Equal(t, "bob", store.created[0].TargetID)
	assert.Equal(t, models.PairingStatusPending, store.created[0].Status)
}

func TestSendRequestAutoMatchesReciprocalPending(t *testing.T) {
	reverse := &models.PairingRequest{ID: "req-1", RequesterID: "bob", TargetID: "alice", Status: models.PairingStatusPending}
	partner := "alice"
	store := &pairingStoreStub{
		between: map[string]*models.PairingRequest{
			betweenKey("bob", "alice"): reverse,
		},
		paired:       map[string]bool{},
		acceptResult: &models.Binome{ID: "bin-1", Student1ID: "bob", Student2ID: &partner},
	}
	users := userReaderStub{users: map[string]*models.User{
		"alice": studentUser("alice"),
		"bob":   studentUser("bob"),
	}}
	svc, audit := newPairingFixture(store, users)

	result, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "bob"})

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.BinomeID)
	assert.Equal(t, "bin-1", *result.BinomeID)
	// The stored reverse row is accepted in place; no new row is written.
	assert.Equal(t, []string{"req-1"}, store.acceptedIDs)
	assert.Empty(t, store.created)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionBinomeCreate, audit.logs[0].Action)
}

func TestSendRequestRejectsDuplicatePending(t *testing.T) {
	store := &pairingStoreStub{
		between: map[string]*models.PairingRequest{
			betweenKey("alice", "bob"): {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
		paired: map[string]bool{},
	}
	users := userReaderStub{users: map[string]*models.User{
		"alice": studentUser("alice"),
		"bob":   studentUser("bob"),
	}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "bob"})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "DUPLICATE_REQUEST", appErr.Code)
}

func TestSendRequestBlocksAfterRejection(t *testing.T) {
	store := &pairingStoreStub{
		between: map[string]*models.PairingRequest{
			betweenKey("alice", "bob"): {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusRejected},
		},
		paired: map[string]bool{},
	}
	users := userReaderStub{users: map[string]*models.User{
		"alice": studentUser("alice"),
		"bob":   studentUser("bob"),
	}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "bob"})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PREVIOUSLY_REJECTED", appErr.Code)
	assert.Empty(t, store.created)
}

func TestSendRequestRejectsPairedTarget(t *testing.T) {
	store := &pairingStoreStub{between: map[string]*models.PairingRequest{}, paired: map[string]bool{"bob": true}}
	users := userReaderStub{users: map[string]*models.User{
		"alice": studentUser("alice"),
		"bob":   studentUser("bob"),
	}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "bob"})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ALREADY_PAIRED", appErr.Code)
}

func TestSendRequestRejectsSelf(t *testing.T) {
	store := &pairingStoreStub{between: map[string]*models.PairingRequest{}, paired: map[string]bool{}}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.SendRequest(context.Background(), "alice", dto.SendPairingRequest{TargetID: "alice"})

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestRespondAcceptCreatesBinome(t *testing.T) {
	partner := "bob"
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
		acceptResult: &models.Binome{ID: "bin-1", Student1ID: "alice", Student2ID: &partner},
	}
	svc, audit := newPairingFixture(store, userReaderStub{})

	result, err := svc.Respond(context.Background(), "bob", "req-1", true)

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.BinomeID)
	assert.Equal(t, "bin-1", *result.BinomeID)
	assert.Equal(t, []string{"req-1"}, store.acceptedIDs)
	assert.Len(t, audit.logs, 1)
}

func TestRespondRejectFlipsRequest(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	result, err := svc.Respond(context.Background(), "bob", "req-1", false)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"req-1"}, store.rejectedIDs)
	assert.Empty(t, store.acceptedIDs)
}

func TestRespondRequiresOwnership(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Respond(context.Background(), "mallory", "req-1", true)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_OWNER", appErr.Code)
}

func TestRespondRejectsNonPendingRequest(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusRejected},
		},
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Respond(context.Background(), "bob", "req-1", true)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_PENDING", appErr.Code)
}

func TestRespondSurfacesRequesterRace(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
		acceptErr: repository.ErrRequesterPaired,
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Respond(context.Background(), "bob", "req-1", true)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "REQUESTER_UNAVAILABLE", appErr.Code)
}

func TestRespondSurfacesResponderRace(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
		acceptErr: repository.ErrTargetPaired,
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Respond(context.Background(), "bob", "req-1", true)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ALREADY_PAIRED", appErr.Code)
}

func TestCancelDeletesOwnPendingRequest(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	result, err := svc.Cancel(context.Background(), "alice", "req-1")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"req-1"}, store.deletedIDs)
}

func TestCancelRejectsForeignRequest(t *testing.T) {
	store := &pairingStoreStub{
		requests: map[string]*models.PairingRequest{
			"req-1": {ID: "req-1", RequesterID: "alice", TargetID: "bob", Status: models.PairingStatusPending},
		},
	}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Cancel(context.Background(), "bob", "req-1")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_OWNER", appErr.Code)
	assert.Empty(t, store.deletedIDs)
}

func TestContinueSoloCreatesSingleMemberBinome(t *testing.T) {
	store := &pairingStoreStub{
		paired:     map[string]bool{},
		soloResult: &models.Binome{ID: "bin-solo", Student1ID: "alice"},
	}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, audit := newPairingFixture(store, users)

	result, err := svc.ContinueSolo(context.Background(), "alice")

	require.NoError(t, err)
	require.NotNil(t, result.BinomeID)
	assert.Equal(t, "bin-solo", *result.BinomeID)
	assert.Len(t, audit.logs, 1)
}

func TestContinueSoloRejectsPairedStudent(t *testing.T) {
	store := &pairingStoreStub{paired: map[string]bool{"alice": true}}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.ContinueSolo(context.Background(), "alice")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ALREADY_PAIRED", appErr.Code)
}

func TestContinueSoloSurfacesRace(t *testing.T) {
	store := &pairingStoreStub{paired: map[string]bool{}, soloErr: repository.ErrTargetPaired}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	_, err := svc.ContinueSolo(context.Background(), "alice")

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ALREADY_PAIRED", appErr.Code)
}

func TestStatusReportsBinomeAndRequests(t *testing.T) {
	sujetID := "suj-1"
	store := &pairingStoreStub{
		binomes: map[string]*models.Binome{
			"alice": {ID: "bin-1", Student1ID: "alice", SujetID: &sujetID},
		},
	}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	status, err := svc.Status(context.Background(), "alice")

	require.NoError(t, err)
	assert.True(t, status.HasBinome)
	require.NotNil(t, status.BinomeID)
	assert.Equal(t, "bin-1", *status.BinomeID)
	require.NotNil(t, status.SujetID)
	assert.Equal(t, "suj-1", *status.SujetID)
}

func TestStatusDistinguishesSoloBinome(t *testing.T) {
	store := &pairingStoreStub{
		binomes: map[string]*models.Binome{
			"alice": {ID: "bin-1", Student1ID: "alice"},
		},
	}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	status, err := svc.Status(context.Background(), "alice")

	require.NoError(t, err)
	assert.True(t, status.HasBinome)
	assert.Equal(t, "You are working solo and still need to choose a sujet.", status.StatusMessage)
}

func TestStatusWithoutBinome(t *testing.T) {
	store := &pairingStoreStub{
		incoming: []models.PairingRequest{{ID: "req-1", RequesterID: "bob", TargetID: "alice", Status: models.PairingStatusPending}},
	}
	users := userReaderStub{users: map[string]*models.User{"alice": studentUser("alice")}}
	svc, _ := newPairingFixture(store, users)

	status, err := svc.Status(context.Background(), "alice")

	require.NoError(t, err)
	assert.False(t, status.HasBinome)
	assert.True(t, status.HasPendingRequests)
}

func TestSearchSkipsPairedAndMarksRejected(t *testing.T) {
	store := &pairingStoreStub{
		between: map[string]*models.PairingRequest{
			betweenKey("alice", "carol"): {ID: "req-2", RequesterID: "alice", TargetID: "carol", Status: models.PairingStatusRejected},
		},
		paired: map[string]bool{"bob": true},
	}
	users := userReaderStub{
		users: map[string]*models.User{
			"alice": studentUser("alice"),
			"bob":   studentUser("bob"),
			"carol": studentUser("carol"),
		},
		etudiants: map[string]*models.Etudiant{
			"alice": {UserID: "alice", FiliereID: "fil-1"},
		},
		byFiliere: []models.User{*studentUser("alice"), *studentUser("bob"), *studentUser("carol")},
	}
	svc, _ := newPairingFixture(store, users)

	search, err := svc.Search(context.Background(), "alice")

	require.NoError(t, err)
	require.Len(t, search.AvailableStudents, 1)
	assert.Equal(t, "carol", search.AvailableStudents[0].ID)
	assert.False(t, search.AvailableStudents[0].CanRequest)
}

func TestRespondUnknownRequest(t *testing.T) {
	store := &pairingStoreStub{requests: map[string]*models.PairingRequest{}}
	svc, _ := newPairingFixture(store, userReaderStub{})

	_, err := svc.Respond(context.Background(), "bob", "missing", true)

	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}
