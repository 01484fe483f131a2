package repository

import (
	"time"

	"github.com/gatherhq/community-api/internal/models"
	"gorm.io/gorm"
)

// GormCommunityRepository is a GORM implementation of CommunityRepository
type GormCommunityRepository struct {
	db *gorm.DB
}

// NewCommunityRepository creates a new CommunityRepository
func NewCommunityRepository(db *gorm.DB) CommunityRepository {
	return &GormCommunityRepository{db: db}
}

// CreateWithOwner creates a community and its owner membership in a single
// transaction
func (r *GormCommunityRepository) CreateWithOwner(community *models.Community, ownerID uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(community).Error; err != nil {
			return err
		}

		member := &models.Membership{
			CommunityID: community.ID,
			PrincipalID: ownerID,
			Role:        models.RoleOwner,
			JoinedAt:    time.Now(),
		}
		return tx.Create(member).Error
	})
}

// FindByID finds a community by ID
func (r *GormCommunityRepository) FindByID(id uint64) (*models.Community, error) {
	var community models.Community
	if err := r.db.First(&community, id).Error; err != nil {
		return nil, err
	}
	return &community, nil
}

// Update updates a community
func (r *GormCommunityRepository) Update(community *models.Community) error {
	return r.db.Save(community).Error
}

// AddMember adds a membership
func (r *GormCommunityRepository) AddMember(member *models.Membership) error {
	return r.db.Create(member).Error
}

// RemoveMember removes a membership
func (r *GormCommunityRepository) RemoveMember(communityID, principalID uint64) error {
	return r.db.Where("community_id = ? AND principal_id = ?", communityID, principalID).
		Delete(&models.Membership{}).Error
}

// FindMember finds a specific membership
func (r *GormCommunityRepository) FindMember(communityID, principalID uint64) (*models.Membership, error) {
	var member models.Membership
	if err := r.db.Where("community_id = ? AND principal_id = ?", communityID, principalID).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMemberRole changes a membership's role
func (r *GormCommunityRepository) UpdateMemberRole(communityID, principalID uint64, role models.Role) error {
	return r.db.Model(&models.Membership{}).
		Where("community_id = ? AND principal_id = ?", communityID, principalID).
		Update("role", role).Error
}

// ListMembers lists all members of a community
func (r *GormCommunityRepository) ListMembers(communityID uint64) ([]models.Membership, error) {
	var members []models.Membership
	if err := r.db.Preload("Principal").
		Where("community_id = ?", communityID).
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// ListMembershipsByPrincipal lists all communities a principal belongs to
func (r *GormCommunityRepository) ListMembershipsByPrincipal(principalID uint64) ([]models.Membership, error) {
	var memberships []models.Membership
	if err := r.db.Preload("Community").
		Where("principal_id = ?", principalID).
		Find(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}

// CountMembersByRole counts memberships with the given role
func (r *GormCommunityRepository) CountMembersByRole(communityID uint64, role models.Role) (int64, error) {
	var count int64
	err := r.db.Model(&models.Membership{}).
		Where("community_id = ? AND role = ?", communityID, role).
		Count(&count).Error
	return count, err
}

// CreateJoinRequest records a pending application to join
func (r *GormCommunityRepository) CreateJoinRequest(request *models.JoinRequest) error {
	return r.db.Create(request).Error
}

// FindJoinRequest finds a join request by ID
func (r *GormCommunityRepository) FindJoinRequest(id uint64) (*models.JoinRequest, error) {
	var request models.JoinRequest
	if err := r.db.First(&request, id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// FindJoinRequestByPair finds a pending request for (community, principal)
func (r *GormCommunityRepository) FindJoinRequestByPair(communityID, principalID uint64) (*models.JoinRequest, error) {
	var request models.JoinRequest
	if err := r.db.Where("community_id = ? AND principal_id = ?", communityID, principalID).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

// DeleteJoinRequest removes a join request
func (r *GormCommunityRepository) DeleteJoinRequest(id uint64) error {
	return r.db.Delete(&models.JoinRequest{}, id).Error
}

// ListJoinRequests lists pending requests for a community
func (r *GormCommunityRepository) ListJoinRequests(communityID uint64) ([]models.JoinRequest, error) {
	var requests []models.JoinRequest
	if err := r.db.Preload("Principal").
		Where("community_id = ?", communityID).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
