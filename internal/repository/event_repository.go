package repository

import (
	"time"

	"github.com/gatherhq/community-api/internal/models"
	"gorm.io/gorm"
)

// GormEventRepository is a GORM implementation of EventRepository
type GormEventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new EventRepository
func NewEventRepository(db *gorm.DB) EventRepository {
	return &GormEventRepository{db: db}
}

// Create creates a new event
func (r *GormEventRepository) Create(event *models.Event) error {
	return r.db.Create(event).Error
}

// FindByID finds an event by ID with optional preloading
func (r *GormEventRepository) FindByID(id uint64, preload ...string) (*models.Event, error) {
	var event models.Event
	query := r.db
	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// Update updates an event
func (r *GormEventRepository) Update(event *models.Event) error {
	return r.db.Save(event).Error
}

// Delete soft deletes an event and its registrations in a transaction
func (r *GormEventRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("event_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Event{}, id).Error
	})
}

// ListByCommunity returns a community's events partitioned into upcoming and
// past relative to now
func (r *GormEventRepository) ListByCommunity(communityID uint64, includePrivate bool, now time.Time) ([]models.Event, []models.Event, error) {
	var events []models.Event
	query := r.db.Where("community_id = ?", communityID)
	if !includePrivate {
		query = query.Where("visibility = ?", models.EventPublic)
	}
	if err := query.Order("starts_at ASC").Find(&events).Error; err != nil {
		return nil, nil, err
	}

	var upcoming, past []models.Event
	for _, event := range events {
		if event.Ended(now) {
			past = append(past, event)
		} else {
			upcoming = append(upcoming, event)
		}
	}
	return upcoming, past, nil
}
