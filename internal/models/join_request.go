package models

import "time"

// JoinRequest is a pending application to join a private community. It exists
// only while the pair has no active membership: approval converts it into a
// Membership with RoleMember, rejection deletes it.
type JoinRequest struct {
	ID          uint64    `gorm:"primarykey" json:"id"`
	CommunityID uint64    `gorm:"not null;uniqueIndex:idx_join_requests_pair" json:"community_id"`
	PrincipalID uint64    `gorm:"not null;uniqueIndex:idx_join_requests_pair" json:"principal_id"`
	Message     string    `gorm:"type:text" json:"message"`
	CreatedAt   time.Time `json:"created_at"`

	// Relations
	Community Community `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
	Principal Principal `gorm:"foreignKey:PrincipalID" json:"principal,omitempty"`
}
