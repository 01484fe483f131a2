package models

import (
	"time"

	"gorm.io/gorm"
)

// Principal is an authenticated identity. Walk-in attendees added at the door
// are also principals, created (or reused) by email.
type Principal struct {
	ID           uint64         `gorm:"primarykey" json:"id"`
	DisplayName  string         `gorm:"type:varchar(255);not null" json:"display_name"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"type:varchar(255)" json:"-"`
	ExternalID   string         `gorm:"type:varchar(64);index" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Memberships   []Membership   `gorm:"foreignKey:PrincipalID" json:"-"`
	Registrations []Registration `gorm:"foreignKey:PrincipalID" json:"-"`
}
