package repository

import (
	"errors"

	"github.com/gatherhq/community-api/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormPrincipalRepository is a GORM implementation of PrincipalRepository
type GormPrincipalRepository struct {
	db *gorm.DB
}

// NewPrincipalRepository creates a new PrincipalRepository
func NewPrincipalRepository(db *gorm.DB) PrincipalRepository {
	return &GormPrincipalRepository{db: db}
}

// Create creates a new principal
func (r *GormPrincipalRepository) Create(principal *models.Principal) error {
	if principal.ExternalID == "" {
		principal.ExternalID = uuid.NewString()
	}
	return r.db.Create(principal).Error
}

// FindByID finds a principal by ID
func (r *GormPrincipalRepository) FindByID(id uint64) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.First(&principal, id).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

// FindByEmail finds a principal by email
func (r *GormPrincipalRepository) FindByEmail(email string) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.Where("email = ?", email).First(&principal).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

// UpsertByEmail returns the principal with the given email, creating one when
// none exists yet.
func (r *GormPrincipalRepository) UpsertByEmail(displayName, email string) (*models.Principal, error) {
	var principal models.Principal
	err := r.db.Where("email = ?", email).First(&principal).Error
	if err == nil {
		return &principal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	principal = models.Principal{
		DisplayName: displayName,
		Email:       email,
		ExternalID:  uuid.NewString(),
	}
	if err := r.db.Create(&principal).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}
