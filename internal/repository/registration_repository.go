package repository

import (
	"errors"

	"github.com/gatherhq/community-api/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRegistrationRepository is a GORM implementation of RegistrationRepository
type GormRegistrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository creates a new RegistrationRepository
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &GormRegistrationRepository{db: db}
}

// CreateAtomically inserts a registration after re-checking capacity and
// per-principal uniqueness inside one transaction. The event row is locked
// for the duration so concurrent registrations for the same event serialize
// at the database; sqlite has no row locks, so there the caller's per-event
// lock is the only serialization.
func (r *GormRegistrationRepository) CreateAtomically(reg *models.Registration) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		eventQuery := tx
		if r.db.Dialector.Name() != "sqlite" {
			eventQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var event models.Event
		if err := eventQuery.First(&event, reg.EventID).Error; err != nil {
			return err
		}

		var existing models.Registration
		err := tx.Where("event_id = ? AND principal_id = ? AND status <> ?",
			reg.EventID, reg.PrincipalID, models.RegistrationCancelled).
			First(&existing).Error
		if err == nil {
			return ErrDuplicateRegistration
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if event.Capacity != nil {
			var count int64
			if err := tx.Model(&models.Registration{}).
				Where("event_id = ? AND status <> ?", reg.EventID, models.RegistrationCancelled).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(*event.Capacity) {
				return ErrEventFull
			}
		}

		return tx.Create(reg).Error
	})
}

// FindByID finds a registration by ID with optional preloading
func (r *GormRegistrationRepository) FindByID(id uint64, preload ...string) (*models.Registration, error) {
	var reg models.Registration
	query := r.db
	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&reg, id).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// FindActive finds the non-cancelled registration for (event, principal)
func (r *GormRegistrationRepository) FindActive(eventID, principalID uint64) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.Where("event_id = ? AND principal_id = ? AND status <> ?",
		eventID, principalID, models.RegistrationCancelled).
		First(&reg).Error; err != nil {
		return nil, err
	}
	return &reg, nil
}

// CountActive counts non-cancelled registrations for an event
func (r *GormRegistrationRepository) CountActive(eventID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.Registration{}).
		Where("event_id = ? AND status <> ?", eventID, models.RegistrationCancelled).
		Count(&count).Error
	return count, err
}

// ListByEvent lists an event's registrations, newest first
func (r *GormRegistrationRepository) ListByEvent(eventID uint64, limit, offset int) ([]models.Registration, error) {
	var regs []models.Registration
	query := r.db.Preload("Principal").
		Where("event_id = ?", eventID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

// CountByEvent counts all registrations for an event
func (r *GormRegistrationRepository) CountByEvent(eventID uint64) (int64, error) {
	var count int64
	err := r.db.Model(&models.Registration{}).
		Where("event_id = ?", eventID).
		Count(&count).Error
	return count, err
}

// ListActiveByEvent lists non-cancelled registrations for an event
func (r *GormRegistrationRepository) ListActiveByEvent(eventID uint64) ([]models.Registration, error) {
	var regs []models.Registration
	if err := r.db.Where("event_id = ? AND status <> ?", eventID, models.RegistrationCancelled).
		Find(&regs).Error; err != nil {
		return nil, err
	}
	return regs, nil
}

// Update updates a registration
func (r *GormRegistrationRepository) Update(reg *models.Registration) error {
	return r.db.Save(reg).Error
}
