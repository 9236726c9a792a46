package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/estfbs/pfe-management-api/internal/dto"
	"github.com/estfbs/pfe-management-api/internal/models"
	"github.com/estfbs/pfe-management-api/internal/repository"
	appErrors "github.com/estfbs/pfe-management-api/pkg/errors"
)

type soutenanceStore interface {
	FindByID(ctx context.Context, id string) (*models.Soutenance, error)
	FindBySlot(ctx context.Context, date time.Time, heure string, excludeID string) ([]models.Soutenance, error)
	FindByBinome(ctx context.Context, binomeID string) (*models.Soutenance, error)
	ListPlanning(ctx context.Context, filter repository.SoutenanceFilter) ([]repository.PlanningRow, error)
	Create(ctx context.Context, s *models.Soutenance) error
	Update(ctx context.Context, s *models.Soutenance) error
	Delete(ctx context.Context, id string) error
}

type soutenanceSalleReader interface {
	FindByID(ctx context.Context, id string) (*models.Salle, error)
}

type soutenanceBinomeReader interface {
	FindBinomeByID(ctx context.Context, id string) (*models.Binome, error)
}

type soutenanceUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

const planningVersionKey = "planning:version"

// SoutenanceService schedules defenses. Every create and update runs the
// two-phase validator first; the repository then re-asserts the conflict
// predicates inside the commit transaction so a slot can never be
// double-booked by concurrent writers.
type SoutenanceService struct {
	repo     soutenanceStore
	salles   soutenanceSalleReader
	binomes  soutenanceBinomeReader
	users    soutenanceUserReader
	audit    auditLogger
	redis    *redis.Client
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSoutenanceService builds a SoutenanceService. redisClient may be nil,
// in which case planning reads always hit the database.
func NewSoutenanceService(repo soutenanceStore, salles soutenanceSalleReader, binomes soutenanceBinomeReader, users soutenanceUserReader, audit auditLogger, redisClient *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *SoutenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SoutenanceService{
		repo:     repo,
		salles:   salles,
		binomes:  binomes,
		users:    users,
		audit:    audit,
		redis:    redisClient,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// WithMetrics attaches the Prometheus counters. Optional.
func (s *SoutenanceService) WithMetrics(metrics *MetricsService) *SoutenanceService {
	s.metrics = metrics
	return s
}

// Validate runs the scheduling validator without writing anything. Phase one
// checks the shape of the request; only when it is clean does phase two query
// the existing planning for salle, jury and binome conflicts. excludeID names
// the soutenance being rescheduled, empty on create.
func (s *SoutenanceService) Validate(ctx context.Context, req dto.SoutenanceRequest, excludeID string) (*dto.ValidationResponse, error) {
	result := &dto.ValidationResponse{Errors: []dto.FieldError{}}

	date, structuralOK, err := s.validateShape(req, result)
	if err != nil {
		return nil, err
	}
	if !structuralOK {
		return result, nil
	}

	if err := s.checkConflicts(ctx, req, date, excludeID, result); err != nil {
		return nil, err
	}

	result.Valid = len(result.Errors) == 0
	if !result.Valid && s.metrics != nil {
		s.metrics.ScheduleConflict()
	}
	return result, nil
}

// validateShape is phase one: required fields, formats and jury distinctness.
// It reports whether phase two may run.
func (s *SoutenanceService) validateShape(req dto.SoutenanceRequest, result *dto.ValidationResponse) (time.Time, bool, error) {
	var date time.Time

	if req.Date == "" {
		result.AddError("date", "date is required")
	}
	if req.Heure == "" {
		result.AddError("heure", "heure is required")
	}
	if req.SalleID == "" {
		result.AddError("salleId", "salleId is required")
	}
	if req.BinomeID == "" {
		result.AddError("binomeId", "binomeId is required")
	}
	if req.Jury1ID == "" {
		result.AddError("jury1Id", "jury1Id is required")
	}
	if req.Jury2ID == "" {
		result.AddError("jury2Id", "jury2Id is required")
	}

	if req.Date != "" {
		parsed, err := time.Parse(models.DateLayout, req.Date)
		if err != nil {
			result.AddError("date", "date must use the YYYY-MM-DD format")
		} else {
			today := s.today()
			if parsed.Before(today) {
				result.AddError("date", "date cannot be in the past")
			} else {
				date = parsed
			}
		}
	}

	if req.Heure != "" {
		if _, err := time.Parse(models.TimeLayout, req.Heure); err != nil {
			result.AddError("heure", "heure must use the HH:MM format")
		}
	}

	if req.Jury1ID != "" && req.Jury2ID != "" && req.Jury1ID == req.Jury2ID {
		result.AddError("jury2Id", "jury members must be two different people")
	}

	return date, len(result.Errors) == 0, nil
}

// checkConflicts is phase two: salle and jury double-booking at the exact
// (date, heure) slot, plus the create-only binome-already-scheduled check.
func (s *SoutenanceService) checkConflicts(ctx context.Context, req dto.SoutenanceRequest, date time.Time, excludeID string, result *dto.ValidationResponse) error {
	sameSlot, err := s.repo.FindBySlot(ctx, date, req.Heure, excludeID)
	if err != nil {
		return s.internal(err, "failed to load slot occupancy")
	}

	for _, existing := range sameSlot {
		if existing.SalleID == req.SalleID {
			result.AddError("salleId", "salle is already booked at this date and time")
		}
		if existing.HasJury(req.Jury1ID) {
			result.AddError("jury1Id", "jury member is already assigned at this date and time")
		}
		if existing.HasJury(req.Jury2ID) {
			result.AddError("jury2Id", "jury member is already assigned at this date and time")
		}
	}

	if excludeID == "" {
		scheduled, err := s.repo.FindByBinome(ctx, req.BinomeID)
		if err != nil {
			return s.internal(err, "failed to check binome soutenance")
		}
		if scheduled != nil {
			result.AddError("binomeId", "this binome already has a soutenance")
		}
	}

	return nil
}

// List returns the planning, optionally narrowed by date range and filiere.
// Results are cached in redis under a version-stamped key; any write bumps
// the version so stale entries simply stop being read.
func (s *SoutenanceService) List(ctx context.Context, filter repository.SoutenanceFilter) ([]dto.SoutenanceItem, error) {
	cacheKey := s.planningCacheKey(ctx, filter)
	if cacheKey != "" {
		if cached, err := s.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var items []dto.SoutenanceItem
			if err := json.Unmarshal(cached, &items); err == nil {
				s.recordCacheLookup("hit")
				return items, nil
			}
		}
		s.recordCacheLookup("miss")
	}

	rows, err := s.repo.ListPlanning(ctx, filter)
	if err != nil {
		return nil, s.internal(err, "failed to list planning")
	}

	items := make([]dto.SoutenanceItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, planningRowToItem(row))
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(items); err == nil {
			if err := s.redis.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("failed to cache planning", zap.Error(err))
			}
		}
	}

	return items, nil
}

// Get returns one soutenance as a planning item.
func (s *SoutenanceService) Get(ctx context.Context, id string) (*dto.SoutenanceItem, error) {
	soutenance, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return nil, s.internal(err, "failed to load soutenance")
	}
	return s.buildItem(ctx, soutenance)
}

// Create validates then schedules a new soutenance. A non-nil validation
// response means the request was rejected without touching the database.
func (s *SoutenanceService) Create(ctx context.Context, actorID string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error) {
	validation, err := s.Validate(ctx, req, "")
	if err != nil {
		return nil, nil, err
	}
	if !validation.Valid {
		return nil, validation, nil
	}

	if err := s.assertReferences(ctx, req); err != nil {
		return nil, nil, err
	}

	date, _ := time.Parse(models.DateLayout, req.Date)
	soutenance := &models.Soutenance{
		Date:     date,
		Heure:    req.Heure,
		SalleID:  req.SalleID,
		BinomeID: req.BinomeID,
		Jury1ID:  req.Jury1ID,
		Jury2ID:  req.Jury2ID,
	}
	if err := s.repo.Create(ctx, soutenance); err != nil {
		if errors.Is(err, repository.ErrSoutenanceConflict) {
			if s.metrics != nil {
				s.metrics.ScheduleConflict()
			}
			return nil, nil, appErrors.ErrScheduleConflict
		}
		return nil, nil, s.internal(err, "failed to create soutenance")
	}

	s.invalidatePlanning(ctx)
	s.auditSoutenance(ctx, actorID, models.AuditActionSoutenanceCreate, soutenance)

	item, err := s.buildItem(ctx, soutenance)
	if err != nil {
		return nil, nil, err
	}
	return item, nil, nil
}

// Update validates then reschedules an existing soutenance. The row itself is
// excluded from conflict detection so a soutenance never conflicts with its
// own slot.
func (s *SoutenanceService) Update(ctx context.Context, actorID, id string, req dto.SoutenanceRequest) (*dto.SoutenanceItem, *dto.ValidationResponse, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return nil, nil, s.internal(err, "failed to load soutenance")
	}

	validation, err := s.Validate(ctx, req, existing.ID)
	if err != nil {
		return nil, nil, err
	}
	if !validation.Valid {
		return nil, validation, nil
	}

	if err := s.assertReferences(ctx, req); err != nil {
		return nil, nil, err
	}

	date, _ := time.Parse(models.DateLayout, req.Date)
	existing.Date = date
	existing.Heure = req.Heure
	existing.SalleID = req.SalleID
	existing.BinomeID = req.BinomeID
	existing.Jury1ID = req.Jury1ID
	existing.Jury2ID = req.Jury2ID

	if err := s.repo.Update(ctx, existing); err != nil {
		switch {
		case errors.Is(err, repository.ErrSoutenanceConflict):
			if s.metrics != nil {
				s.metrics.ScheduleConflict()
			}
			return nil, nil, appErrors.ErrScheduleConflict
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		default:
			return nil, nil, s.internal(err, "failed to update soutenance")
		}
	}

	s.invalidatePlanning(ctx)
	s.auditSoutenance(ctx, actorID, models.AuditActionSoutenanceUpdate, existing)

	item, err := s.buildItem(ctx, existing)
	if err != nil {
		return nil, nil, err
	}
	return item, nil, nil
}

// Delete removes a soutenance and frees its slot.
func (s *SoutenanceService) Delete(ctx context.Context, actorID, id string) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return s.internal(err, "failed to load soutenance")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "soutenance not found")
		}
		return s.internal(err, "failed to delete soutenance")
	}

	s.invalidatePlanning(ctx)
	s.auditSoutenance(ctx, actorID, models.AuditActionSoutenanceDelete, existing)
	return nil
}

// assertReferences checks that every entity the request names exists.
func (s *SoutenanceService) assertReferences(ctx context.Context, req dto.SoutenanceRequest) error {
	if _, err := s.salles.FindByID(ctx, req.SalleID); err != nil {
		return s.mapRefErr(err, "salle not found")
	}
	if _, err := s.binomes.FindBinomeByID(ctx, req.BinomeID); err != nil {
		return s.mapRefErr(err, "binome not found")
	}
	for _, juryID := range []string{req.Jury1ID, req.Jury2ID} {
		jury, err := s.users.FindByID(ctx, juryID)
		if err != nil {
			return s.mapRefErr(err, "jury member not found")
		}
		if jury.Role == models.RoleEtudiant {
			return appErrors.Clone(appErrors.ErrValidation, "a student cannot sit on a jury")
		}
	}
	return nil
}

func (s *SoutenanceService) buildItem(ctx context.Context, soutenance *models.Soutenance) (*dto.SoutenanceItem, error) {
	salle, err := s.salles.FindByID(ctx, soutenance.SalleID)
	if err != nil {
		return nil, s.mapRefErr(err, "salle not found")
	}
	binome, err := s.binomes.FindBinomeByID(ctx, soutenance.BinomeID)
	if err != nil {
		return nil, s.mapRefErr(err, "binome not found")
	}

	item := &dto.SoutenanceItem{
		ID:    soutenance.ID,
		Date:  soutenance.Date.Format(models.DateLayout),
		Heure: soutenance.Heure,
		Salle: dto.SalleRef{ID: salle.ID, Nom: salle.Nom},
		Binome: dto.BinomeRef{
			ID: binome.ID,
		},
	}

	if ref, err := s.personRef(ctx, binome.Student1ID); err == nil {
		item.Binome.Etudiant1 = *ref
	}
	if binome.Student2ID != nil {
		if ref, err := s.personRef(ctx, *binome.Student2ID); err == nil {
			item.Binome.Etudiant2 = ref
		}
	}
	if binome.EncadrantID != nil {
		if ref, err := s.personRef(ctx, *binome.EncadrantID); err == nil {
			item.Binome.Encadrant = ref
		}
	}
	if jury1, err := s.personRef(ctx, soutenance.Jury1ID); err == nil {
		item.Jury1 = *jury1
	}
	if jury2, err := s.personRef(ctx, soutenance.Jury2ID); err == nil {
		item.Jury2 = *jury2
	}

	return item, nil
}

func (s *SoutenanceService) personRef(ctx context.Context, id string) (*dto.PersonRef, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.PersonRef{ID: user.ID, Nom: user.Nom, Prenom: user.Prenom}, nil
}

// planningCacheKey folds the filter and the current planning version into a
// redis key. Empty means caching is off.
func (s *SoutenanceService) planningCacheKey(ctx context.Context, filter repository.SoutenanceFilter) string {
	if s.redis == nil || s.cacheTTL <= 0 {
		return ""
	}
	version, err := s.redis.Get(ctx, planningVersionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return ""
	}

	from, to := "", ""
	if filter.DateFrom != nil {
		from = filter.DateFrom.Format(models.DateLayout)
	}
	if filter.DateTo != nil {
		to = filter.DateTo.Format(models.DateLayout)
	}
	return fmt.Sprintf("planning:v%d:%s:%s:%s", version, from, to, filter.FiliereID)
}

func (s *SoutenanceService) invalidatePlanning(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Incr(ctx, planningVersionKey).Err(); err != nil {
		s.logger.Warn("failed to bump planning cache version", zap.Error(err))
	}
}

func (s *SoutenanceService) recordCacheLookup(result string) {
	if s.metrics != nil {
		s.metrics.PlanningCacheLookup(result)
	}
}

func (s *SoutenanceService) today() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *SoutenanceService) mapRefErr(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return s.internal(err, message)
}

func (s *SoutenanceService) internal(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *SoutenanceService) auditSoutenance(ctx context.Context, actorID, action string, soutenance *models.Soutenance) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(soutenance)
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "soutenance",
		ResourceID: &soutenance.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "soutenance-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record soutenance audit", zap.Error(err))
	}
}

func planningRowToItem(row repository.PlanningRow) dto.SoutenanceItem {
	item := dto.SoutenanceItem{
		ID:    row.ID,
		Date:  row.Date.Format(models.DateLayout),
		Heure: row.Heure,
		Salle: dto.SalleRef{ID: row.SalleID, Nom: row.SalleNom},
		Binome: dto.BinomeRef{
			ID: row.BinomeID,
			Etudiant1: dto.PersonRef{
				ID:     row.Etudiant1ID,
				Nom:    row.Etudiant1Nom,
				Prenom: row.Etudiant1Prenom,
			},
		},
		Jury1: dto.PersonRef{ID: row.Jury1ID, Nom: row.Jury1Nom, Prenom: row.Jury1Prenom},
		Jury2: dto.PersonRef{ID: row.Jury2ID, Nom: row.Jury2Nom, Prenom: row.Jury2Prenom},
	}
	if row.Etudiant2ID.Valid {
		item.Binome.Etudiant2 = &dto.PersonRef{
			ID:     row.Etudiant2ID.String,
			Nom:    row.Etudiant2Nom.String,
			Prenom: row.Etudiant2Prenom.String,
		}
	}
	if row.EncadrantID.Valid {
		item.Binome.Encadrant = &dto.PersonRef{
			ID:     row.EncadrantID.String,
			Nom:    row.EncadrantNom.String,
			Prenom: row.EncadrantPrenom.String,
		}
	}
	if row.SujetID.Valid {
		item.Binome.Sujet = &dto.SujetRef{ID: row.SujetID.String, Titre: row.SujetTitre.String}
	}
	if row.FiliereNom.Valid {
		item.FiliereName = row.FiliereNom.String
	}
	return item
}
