package models

import (
	"time"

	"gorm.io/gorm"
)

type CommunityVisibility string

const (
	CommunityPublic  CommunityVisibility = "public"
	CommunityPrivate CommunityVisibility = "private"
)

type Community struct {
	ID           uint64              `gorm:"primarykey" json:"id"`
	Name         string              `gorm:"type:varchar(255);not null" json:"name"`
	Description  string              `gorm:"type:text" json:"description"`
	Visibility   CommunityVisibility `gorm:"type:varchar(20);not null;default:'public'" json:"visibility"`
	ContactEmail string              `gorm:"type:varchar(255)" json:"contact_email"`

	// Payout account at the payment gateway. Empty until the community
	// connects one; Verified flips when the gateway reports the account
	// can receive payouts.
	PayoutAccountID string `gorm:"type:varchar(255)" json:"-"`
	PayoutVerified  bool   `gorm:"not null;default:false" json:"payout_verified"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Members []Membership `gorm:"foreignKey:CommunityID" json:"members,omitempty"`
	Events  []Event      `gorm:"foreignKey:CommunityID" json:"events,omitempty"`
}
