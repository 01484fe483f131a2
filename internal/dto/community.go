package dto

import (
	"time"

	"github.com/gatherhq/community-api/internal/authority"
	"github.com/gatherhq/community-api/internal/models"
)

// PrincipalDTO represents a principal in API responses
type PrincipalDTO struct {
	ID          uint64 `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// CommunityDTO represents a community in API responses
type CommunityDTO struct {
	ID           uint64                     `json:"id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Visibility   models.CommunityVisibility `json:"visibility"`
	ContactEmail string                     `json:"contact_email,omitempty"`
}

// CommunityWithRoleDTO represents a community with the principal's role
type CommunityWithRoleDTO struct {
	CommunityDTO
	Role models.Role `json:"role"`
}

// MembershipDTO represents a member in a community
type MembershipDTO struct {
	Principal PrincipalDTO `json:"principal"`
	Role      models.Role  `json:"role"`
	JoinedAt  time.Time    `json:"joined_at"`
}

// CommunityDetailDTO represents detailed community information
type CommunityDetailDTO struct {
	CommunityDTO
	Members        []MembershipDTO    `json:"members,omitempty"`
	YourRole       models.Role        `json:"your_role"`
	YourActions    []authority.Action `json:"your_actions"`
	PayoutVerified bool               `json:"payout_verified"`
}

// JoinRequestDTO represents a pending application to join
type JoinRequestDTO struct {
	ID        uint64       `json:"id"`
	Principal PrincipalDTO `json:"principal"`
	CreatedAt time.Time    `json:"created_at"`
}

// PayoutAccountDTO represents a community's payout account state
type PayoutAccountDTO struct {
	AccountID     string `json:"account_id"`
	Verified      bool   `json:"verified"`
	OnboardingURL string `json:"onboarding_url,omitempty"`
}

// ToPrincipalDTO converts a Principal model to PrincipalDTO. The email is
// only included when includeEmail is set; list endpoints omit it.
func ToPrincipalDTO(principal models.Principal, includeEmail bool) PrincipalDTO {
	dto := PrincipalDTO{
		ID:          principal.ID,
		DisplayName: principal.DisplayName,
	}
	if includeEmail {
		dto.Email = principal.Email
	}
	return dto
}

// ToCommunityDTO converts a Community model to CommunityDTO
func ToCommunityDTO(community models.Community) CommunityDTO {
	return CommunityDTO{
		ID:           community.ID,
		Name:         community.Name,
		Description:  community.Description,
		Visibility:   community.Visibility,
		ContactEmail: community.ContactEmail,
	}
}

// ToCommunityWithRoleDTO converts a membership to DTO with role
func ToCommunityWithRoleDTO(member models.Membership) CommunityWithRoleDTO {
	return CommunityWithRoleDTO{
		CommunityDTO: ToCommunityDTO(member.Community),
		Role:         member.Role,
	}
}

// ToMembershipDTO converts a membership to DTO
func ToMembershipDTO(member models.Membership) MembershipDTO {
	return MembershipDTO{
		Principal: ToPrincipalDTO(member.Principal, false),
		Role:      member.Role,
		JoinedAt:  member.JoinedAt,
	}
}

// ToCommunityDetailDTO converts a community with members to detailed DTO.
// The member list is only populated for members of the community.
func ToCommunityDetailDTO(community models.Community, members []models.Membership, yourRole models.Role) CommunityDetailDTO {
	detail := CommunityDetailDTO{
		CommunityDTO:   ToCommunityDTO(community),
		YourRole:       yourRole,
		YourActions:    authority.Actions(yourRole),
		PayoutVerified: community.PayoutVerified,
	}

	if yourRole != models.RoleNone {
		detail.Members = make([]MembershipDTO, len(members))
		for i, member := range members {
			detail.Members[i] = ToMembershipDTO(member)
		}
	}
	return detail
}

// ToJoinRequestDTO converts a join request to DTO
func ToJoinRequestDTO(request models.JoinRequest) JoinRequestDTO {
	return JoinRequestDTO{
		ID:        request.ID,
		Principal: ToPrincipalDTO(request.Principal, true),
		CreatedAt: request.CreatedAt,
	}
}
