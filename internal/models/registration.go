package models

import (
	"time"

	"gorm.io/gorm"
)

type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationCheckedIn  RegistrationStatus = "checked_in"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentRefunded    PaymentStatus = "refunded"
)

// Registration is a principal's attendance record for an event. At most one
// non-cancelled registration exists per (event, principal) pair; a cancelled
// registration is terminal and releases its capacity slot.
type Registration struct {
	ID            uint64             `gorm:"primarykey" json:"id"`
	EventID       uint64             `gorm:"not null;index:idx_registrations_pair" json:"event_id"`
	PrincipalID   uint64             `gorm:"not null;index:idx_registrations_pair" json:"principal_id"`
	Status        RegistrationStatus `gorm:"type:varchar(20);not null;default:'registered'" json:"status"`
	PaymentStatus PaymentStatus      `gorm:"type:varchar(20);not null;default:'not_required'" json:"payment_status"`

	// AmountCents is the amount the registrant chose for pay-what-you-can
	// events, or the fixed price at registration time.
	AmountCents *int64 `json:"amount_cents"`

	CheckoutSessionID string `gorm:"type:varchar(255)" json:"-"`
	ChargeRef         string `gorm:"type:varchar(255)" json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Event     Event     `gorm:"foreignKey:EventID" json:"event,omitempty"`
	Principal Principal `gorm:"foreignKey:PrincipalID" json:"principal,omitempty"`
}

// Active reports whether the registration still holds a capacity slot.
func (r *Registration) Active() bool {
	return r.Status != RegistrationCancelled
}
