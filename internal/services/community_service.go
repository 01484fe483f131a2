package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gatherhq/community-api/internal/authority"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gatherhq/community-api/internal/repository"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized         = errors.New("role does not permit this action")
	ErrCommunityNotFound    = errors.New("community not found")
	ErrInvalidCommunityName = errors.New("community name cannot be empty")
	ErrMembershipNotFound   = errors.New("membership not found")
	ErrJoinRequestNotFound  = errors.New("join request not found")
	ErrAlreadyMember        = errors.New("principal is already a member of this community")
	ErrJoinRequestPending   = errors.New("a join request for this community is already pending")
	ErrInvalidRole          = errors.New("unknown role")
	ErrLastOwner            = errors.New("community must retain at least one owner")
	ErrPayoutAccountMissing = errors.New("community has no payout account")
)

// CommunityService owns communities and the membership lifecycle:
// none -> pending -> member -> promoted/demoted -> removed/left.
type CommunityService struct {
	communityRepo repository.CommunityRepository
	coordinator   *payment.Coordinator
}

// NewCommunityService creates a new CommunityService.
func NewCommunityService(communityRepo repository.CommunityRepository, coordinator *payment.Coordinator) *CommunityService {
	return &CommunityService{
		communityRepo: communityRepo,
		coordinator:   coordinator,
	}
}

// resolveRole returns the actor's role in the community, RoleNone when the
// actor is not a member.
func (s *CommunityService) resolveRole(communityID, principalID uint64) (models.Role, error) {
	member, err := s.communityRepo.FindMember(communityID, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RoleNone, nil
		}
		return models.RoleNone, fmt.Errorf("failed to resolve membership: %w", err)
	}
	return member.Role, nil
}

// CreateCommunityInput represents parameters to create a new community.
type CreateCommunityInput struct {
	Name         string
	Description  string
	Visibility   models.CommunityVisibility
	ContactEmail string
	CreatorID    uint64
}

// CreateCommunity creates a community and makes the creator its owner.
func (s *CommunityService) CreateCommunity(input CreateCommunityInput) (*models.Community, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, ErrInvalidCommunityName
	}
	if input.Visibility == "" {
		input.Visibility = models.CommunityPublic
	}

	community := &models.Community{
		Name:         input.Name,
		Description:  input.Description,
		Visibility:   input.Visibility,
		ContactEmail: input.ContactEmail,
	}

	if err := s.communityRepo.CreateWithOwner(community, input.CreatorID); err != nil {
		return nil, fmt.Errorf("failed to create community: %w", err)
	}
	return community, nil
}

// UpdateCommunityInput represents updatable community fields.
type UpdateCommunityInput struct {
	Name         *string
	Description  *string
	Visibility   *models.CommunityVisibility
	ContactEmail *string
}

// UpdateCommunity updates community settings. Owner or manager only.
func (s *CommunityService) UpdateCommunity(communityID, actorID uint64, input UpdateCommunityInput) (*models.Community, error) {
	community, err := s.findCommunity(communityID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionManageMembers) {
		return nil, ErrUnauthorized
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, ErrInvalidCommunityName
		}
		community.Name = *input.Name
	}
	if input.Description != nil {
		community.Description = *input.Description
	}
	if input.Visibility != nil {
		community.Visibility = *input.Visibility
	}
	if input.ContactEmail != nil {
		community.ContactEmail = *input.ContactEmail
	}

	if err := s.communityRepo.Update(community); err != nil {
		return nil, fmt.Errorf("failed to update community: %w", err)
	}
	return community, nil
}

// ListForPrincipal returns the communities the principal belongs to.
func (s *CommunityService) ListForPrincipal(principalID uint64) ([]models.Membership, error) {
	memberships, err := s.communityRepo.ListMembershipsByPrincipal(principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list communities: %w", err)
	}
	return memberships, nil
}

// GetWithMembers returns a community and all of its members.
func (s *CommunityService) GetWithMembers(communityID uint64) (*models.Community, []models.Membership, error) {
	community, err := s.findCommunity(communityID)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.communityRepo.ListMembers(communityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list community members: %w", err)
	}
	return community, members, nil
}

// Join enrolls a principal. A public community admits immediately with
// RoleMember; a private one records a join request awaiting approval.
// Returns the membership or the pending request, whichever was created.
func (s *CommunityService) Join(communityID, principalID uint64) (*models.Membership, *models.JoinRequest, error) {
	community, err := s.findCommunity(communityID)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.communityRepo.FindMember(communityID, principalID); err == nil {
		return nil, nil, ErrAlreadyMember
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("failed to verify membership: %w", err)
	}

	if _, err := s.communityRepo.FindJoinRequestByPair(communityID, principalID); err == nil {
		return nil, nil, ErrJoinRequestPending
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, fmt.Errorf("failed to verify join request: %w", err)
	}

	if community.Visibility == models.CommunityPublic {
		member := &models.Membership{
			CommunityID: communityID,
			PrincipalID: principalID,
			Role:        models.RoleMember,
			JoinedAt:    time.Now(),
		}
		if err := s.communityRepo.AddMember(member); err != nil {
			return nil, nil, fmt.Errorf("failed to add member: %w", err)
		}
		return member, nil, nil
	}

	request := &models.JoinRequest{
		CommunityID: communityID,
		PrincipalID: principalID,
	}
	if err := s.communityRepo.CreateJoinRequest(request); err != nil {
		return nil, nil, fmt.Errorf("failed to create join request: %w", err)
	}
	return nil, request, nil
}

// ListJoinRequests returns pending join requests. Requires manage_members.
func (s *CommunityService) ListJoinRequests(communityID, actorID uint64) ([]models.JoinRequest, error) {
	if _, err := s.findCommunity(communityID); err != nil {
		return nil, err
	}

	role, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionManageMembers) {
		return nil, ErrUnauthorized
	}

	requests, err := s.communityRepo.ListJoinRequests(communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	return requests, nil
}

// Approve converts a pending join request into a membership with RoleMember.
func (s *CommunityService) Approve(requestID, actorID uint64) (*models.Membership, error) {
	request, err := s.findJoinRequest(requestID)
	if err != nil {
		return nil, err
	}

	role, err := s.resolveRole(request.CommunityID, actorID)
	if err != nil {
		return nil, err
	}
	if !authority.Can(role, authority.ActionManageMembers) {
		return nil, ErrUnauthorized
	}

	member := &models.Membership{
		CommunityID: request.CommunityID,
		PrincipalID: request.PrincipalID,
		Role:        models.RoleMember,
		JoinedAt:    time.Now(),
	}
	if err := s.communityRepo.AddMember(member); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	if err := s.communityRepo.DeleteJoinRequest(request.ID); err != nil {
		return nil, fmt.Errorf("failed to remove join request: %w", err)
	}
	return member, nil
}

// Reject deletes a pending join request.
func (s *CommunityService) Reject(requestID, actorID uint64) error {
	request, err := s.findJoinRequest(requestID)
	if err != nil {
		return err
	}

	role, err := s.resolveRole(request.CommunityID, actorID)
	if err != nil {
		return err
	}
	if !authority.Can(role, authority.ActionManageMembers) {
		return ErrUnauthorized
	}

	if err := s.communityRepo.DeleteJoinRequest(request.ID); err != nil {
		return fmt.Errorf("failed to remove join request: %w", err)
	}
	return nil
}

// ChangeRole changes a member's role. The actor must be allowed to act on
// the target's current role and to grant the new one; demoting the last
// owner is rejected.
func (s *CommunityService) ChangeRole(communityID, targetID uint64, newRole models.Role, actorID uint64) error {
	if !authority.ValidRole(newRole) {
		return ErrInvalidRole
	}

	target, err := s.findMember(communityID, targetID)
	if err != nil {
		return err
	}

	actorRole, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return err
	}
	if !authority.CanTarget(actorRole, authority.ActionChangeRole, target.Role) ||
		!authority.CanTarget(actorRole, authority.ActionChangeRole, newRole) {
		return ErrUnauthorized
	}

	if target.Role == models.RoleOwner && newRole != models.RoleOwner {
		if err := s.ensureNotLastOwner(communityID); err != nil {
			return err
		}
	}

	if err := s.communityRepo.UpdateMemberRole(communityID, targetID, newRole); err != nil {
		return fmt.Errorf("failed to change role: %w", err)
	}
	return nil
}

// Leave removes the principal's own membership.
func (s *CommunityService) Leave(communityID, principalID uint64) error {
	member, err := s.findMember(communityID, principalID)
	if err != nil {
		return err
	}

	if member.Role == models.RoleOwner {
		if err := s.ensureNotLastOwner(communityID); err != nil {
			return err
		}
	}

	if err := s.communityRepo.RemoveMember(communityID, principalID); err != nil {
		return fmt.Errorf("failed to leave community: %w", err)
	}
	return nil
}

// Remove removes another member. Requires the same authorization as a role
// change against the target.
func (s *CommunityService) Remove(communityID, targetID, actorID uint64) error {
	target, err := s.findMember(communityID, targetID)
	if err != nil {
		return err
	}

	actorRole, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return err
	}
	if !authority.CanTarget(actorRole, authority.ActionChangeRole, target.Role) {
		return ErrUnauthorized
	}

	if target.Role == models.RoleOwner {
		if err := s.ensureNotLastOwner(communityID); err != nil {
			return err
		}
	}

	if err := s.communityRepo.RemoveMember(communityID, targetID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// ConnectPayoutAccount creates a payout account for the community and
// returns the onboarding URL. Owner or manager only.
func (s *CommunityService) ConnectPayoutAccount(ctx context.Context, communityID, actorID uint64) (string, error) {
	community, err := s.findCommunity(communityID)
	if err != nil {
		return "", err
	}

	role, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return "", err
	}
	if !authority.Can(role, authority.ActionManageEventSettings) {
		return "", ErrUnauthorized
	}

	if community.PayoutAccountID != "" {
		// Account already exists; hand back a fresh onboarding link.
		return s.coordinator.PayoutAccountLink(ctx, community.PayoutAccountID)
	}

	accountID, onboardingURL, err := s.coordinator.CreatePayoutAccount(ctx, community.ContactEmail)
	if accountID != "" {
		community.PayoutAccountID = accountID
		if saveErr := s.communityRepo.Update(community); saveErr != nil {
			return "", fmt.Errorf("failed to record payout account: %w", saveErr)
		}
	}
	if err != nil {
		return "", err
	}
	return onboardingURL, nil
}

// RefreshPayoutStatus asks the gateway whether the community's payout
// account completed onboarding and records the answer.
func (s *CommunityService) RefreshPayoutStatus(ctx context.Context, communityID, actorID uint64) (bool, error) {
	community, err := s.findCommunity(communityID)
	if err != nil {
		return false, err
	}

	role, err := s.resolveRole(communityID, actorID)
	if err != nil {
		return false, err
	}
	if !authority.Can(role, authority.ActionManageEventSettings) {
		return false, ErrUnauthorized
	}

	if community.PayoutAccountID == "" {
		return false, ErrPayoutAccountMissing
	}

	verified, err := s.coordinator.VerifyPayoutAccount(ctx, community.PayoutAccountID)
	if err != nil {
		return false, err
	}
	if verified != community.PayoutVerified {
		community.PayoutVerified = verified
		if err := s.communityRepo.Update(community); err != nil {
			return verified, fmt.Errorf("failed to record payout status: %w", err)
		}
	}
	return verified, nil
}

func (s *CommunityService) findCommunity(id uint64) (*models.Community, error) {
	community, err := s.communityRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCommunityNotFound
		}
		return nil, fmt.Errorf("failed to find community: %w", err)
	}
	return community, nil
}

func (s *CommunityService) findMember(communityID, principalID uint64) (*models.Membership, error) {
	member, err := s.communityRepo.FindMember(communityID, principalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return member, nil
}

func (s *CommunityService) findJoinRequest(id uint64) (*models.JoinRequest, error) {
	request, err := s.communityRepo.FindJoinRequest(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJoinRequestNotFound
		}
		return nil, fmt.Errorf("failed to find join request: %w", err)
	}
	return request, nil
}

// ensureNotLastOwner rejects an operation that would leave the community
// with zero owners.
func (s *CommunityService) ensureNotLastOwner(communityID uint64) error {
	owners, err := s.communityRepo.CountMembersByRole(communityID, models.RoleOwner)
	if err != nil {
		return fmt.Errorf("failed to count owners: %w", err)
	}
	if owners <= 1 {
		return ErrLastOwner
	}
	return nil
}
