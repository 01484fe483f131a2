package models

import "time"

// Role is a principal's role within one community. Roles are a closed set;
// authorization decisions over them live in the authority package.
type Role string

const (
	RoleOwner        Role = "owner"
	RoleManager      Role = "manager"
	RoleEventCreator Role = "event_creator"
	RoleDoorPerson   Role = "door_person"
	RoleMember       Role = "member"

	// RoleNone is the role of a principal with no membership in the
	// community. It is never persisted.
	RoleNone Role = ""
)

type Membership struct {
	CommunityID uint64    `gorm:"primarykey" json:"community_id"`
	PrincipalID uint64    `gorm:"primarykey" json:"principal_id"`
	Role        Role      `gorm:"type:varchar(20);not null" json:"role"`
	JoinedAt    time.Time `json:"joined_at"`

	// Relations
	Community Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
	Principal Principal `gorm:"foreignKey:PrincipalID" json:"principal,omitempty"`
}
