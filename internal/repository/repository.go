package repository

import (
	"errors"
	"time"

	"github.com/gatherhq/community-api/internal/models"
)

// Sentinel errors surfaced by the atomic registration path.
var (
	ErrEventFull             = errors.New("event is at capacity")
	ErrDuplicateRegistration = errors.New("principal already has an active registration")
)

// PrincipalRepository defines the interface for principal data access
type PrincipalRepository interface {
	// Create creates a new principal
	Create(principal *models.Principal) error

	// FindByID finds a principal by ID
	FindByID(id uint64) (*models.Principal, error)

	// FindByEmail finds a principal by email
	FindByEmail(email string) (*models.Principal, error)

	// UpsertByEmail returns the principal with the given email, creating
	// one when none exists. Used by walk-in registration and by sign-in
	// flows that see an identity for the first time.
	UpsertByEmail(displayName, email string) (*models.Principal, error)
}

// CommunityRepository defines the interface for community and membership data access
type CommunityRepository interface {
	// CreateWithOwner creates a community and its owner membership in a
	// single transaction
	CreateWithOwner(community *models.Community, ownerID uint64) error

	// FindByID finds a community by ID
	FindByID(id uint64) (*models.Community, error)

	// Update updates a community
	Update(community *models.Community) error

	// AddMember adds a membership
	AddMember(member *models.Membership) error

	// RemoveMember removes a membership
	RemoveMember(communityID, principalID uint64) error

	// FindMember finds a specific membership
	FindMember(communityID, principalID uint64) (*models.Membership, error)

	// UpdateMemberRole changes a membership's role
	UpdateMemberRole(communityID, principalID uint64, role models.Role) error

	// ListMembers lists all members of a community
	ListMembers(communityID uint64) ([]models.Membership, error)

	// ListMembershipsByPrincipal lists all communities a principal belongs to
	ListMembershipsByPrincipal(principalID uint64) ([]models.Membership, error)

	// CountMembersByRole counts memberships with the given role
	CountMembersByRole(communityID uint64, role models.Role) (int64, error)

	// CreateJoinRequest records a pending application to join
	CreateJoinRequest(request *models.JoinRequest) error

	// FindJoinRequest finds a join request by ID
	FindJoinRequest(id uint64) (*models.JoinRequest, error)

	// FindJoinRequestByPair finds a pending request for (community, principal)
	FindJoinRequestByPair(communityID, principalID uint64) (*models.JoinRequest, error)

	// DeleteJoinRequest removes a join request
	DeleteJoinRequest(id uint64) error

	// ListJoinRequests lists pending requests for a community
	ListJoinRequests(communityID uint64) ([]models.JoinRequest, error)
}

// EventRepository defines the interface for event data access
type EventRepository interface {
	// Create creates a new event
	Create(event *models.Event) error

	// FindByID finds an event by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Event, error)

	// Update updates an event
	Update(event *models.Event) error

	// Delete soft deletes an event and its registrations in a transaction
	Delete(id uint64) error

	// ListByCommunity returns a community's events partitioned into
	// upcoming and past relative to now. Private events are omitted
	// unless includePrivate is set.
	ListByCommunity(communityID uint64, includePrivate bool, now time.Time) (upcoming, past []models.Event, err error)
}

// RegistrationRepository defines the interface for registration data access
type RegistrationRepository interface {
	// CreateAtomically inserts a registration after re-checking capacity
	// and per-principal uniqueness inside one transaction. Returns
	// ErrEventFull or ErrDuplicateRegistration when the preconditions
	// fail.
	CreateAtomically(reg *models.Registration) error

	// FindByID finds a registration by ID with optional preloading
	FindByID(id uint64, preload ...string) (*models.Registration, error)

	// FindActive finds the non-cancelled registration for (event, principal)
	FindActive(eventID, principalID uint64) (*models.Registration, error)

	// CountActive counts non-cancelled registrations for an event
	CountActive(eventID uint64) (int64, error)

	// ListByEvent lists an event's registrations, newest first
	ListByEvent(eventID uint64, limit, offset int) ([]models.Registration, error)

	// CountByEvent counts all registrations for an event
	CountByEvent(eventID uint64) (int64, error)

	// ListActiveByEvent lists non-cancelled registrations for an event
	ListActiveByEvent(eventID uint64) ([]models.Registration, error)

	// Update updates a registration
	Update(reg *models.Registration) error
}
