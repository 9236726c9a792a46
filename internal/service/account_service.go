package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type accountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User, filiereID string) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	FindEtudiant(ctx context.Context, userID string) (*models.Etudiant, error)
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AccountService is the admin surface for provisioning users. The role of an
// account is fixed at creation; student accounts also carry a filiere.
type AccountService struct {
	users    accountStore
	filieres pairingFiliereReader
	logger   *zap.Logger
}

// NewAccountService builds an AccountService.
func NewAccountService(users accountStore, filieres pairingFiliereReader, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{users: users, filieres: filieres, logger: logger}
}

// List returns accounts matching the filter with the total count.
func (s *AccountService) List(ctx context.Context, filter models.UserFilter) ([]dto.AccountItem, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list accounts")
	}

	items := make([]dto.AccountItem, 0, len(users))
	for _, user := range users {
		items = append(items, s.toItem(ctx, &user))
	}
	return items, total, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id string) (*dto.AccountItem, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	item := s.toItem(ctx, user)
	return &item, nil
}

// Create provisions a new account. Student accounts require a filiere.
func (s *AccountService) Create(ctx context.Context, actorID string, req dto.CreateAccountRequest) (*dto.AccountItem, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an account with this email already exists")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	if req.Role == models.RoleEtudiant {
		if req.FiliereID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "filiereId is required for student accounts")
		}
		if _, err := s.filieres.FindByID(ctx, req.FiliereID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "filiere not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load filiere")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Nom:          req.Nom,
		Prenom:       req.Prenom,
		Role:         req.Role,
		Active:       true,
	}
	if err := s.users.Create(ctx, user, req.FiliereID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create account")
	}

	s.auditAccount(ctx, actorID, models.AuditActionUserCreate, user)
	item := s.toItem(ctx, user)
	return &item, nil
}

// Update edits mutable account fields. The role never changes; deactivating
// an account also kills its sessions.
func (s *AccountService) Update(ctx context.Context, actorID, id string, req dto.UpdateAccountRequest) (*dto.AccountItem, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	deactivated := false
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Nom != nil {
		user.Nom = *req.Nom
	}
	if req.Prenom != nil {
		user.Prenom = *req.Prenom
	}
	if req.Active != nil {
		deactivated = user.Active && !*req.Active
		user.Active = *req.Active
	}

	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update account")
	}

	if deactivated {
		if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions of deactivated account", zap.String("user", user.ID), zap.Error(err))
		}
	}

	s.auditAccount(ctx, actorID, models.AuditActionUserUpdate, user)
	item := s.toItem(ctx, user)
	return &item, nil
}

// Delete removes an account.
func (s *AccountService) Delete(ctx context.Context, actorID, id string) error {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "account not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete account")
	}

	s.auditAccount(ctx, actorID, models.AuditActionUserDelete, user)
	return nil
}

func (s *AccountService) toItem(ctx context.Context, user *models.User) dto.AccountItem {
	item := dto.AccountItem{
		ID:     user.ID,
		Email:  user.Email,
		Nom:    user.Nom,
		Prenom: user.Prenom,
		Role:   user.Role,
		Active: user.Active,
	}
	if user.Role == models.RoleEtudiant {
		if etudiant, err := s.users.FindEtudiant(ctx, user.ID); err == nil {
			if filiere, err := s.filieres.FindByID(ctx, etudiant.FiliereID); err == nil {
				item.FiliereName = filiere.Nom
			}
		}
	}
	return item
}

func (s *AccountService) auditAccount(ctx context.Context, actorID, action string, user *models.User) {
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "utilisateur",
		ResourceID: &user.ID,
		IPAddress:  "system",
		UserAgent:  "account-service",
	}
	if err := s.users.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record account audit", zap.Error(err))
	}
}
