package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type EventVisibility string

const (
	EventPublic  EventVisibility = "public"
	EventPrivate EventVisibility = "private"
)

type PricingMode string

const (
	PricingFree          PricingMode = "free"
	PricingFixed         PricingMode = "fixed"
	PricingPayWhatYouCan PricingMode = "pay_what_you_can"
)

// StringSlice stores a list of tags as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StringSlice) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type for StringSlice: %T", value)
	}
}

type Event struct {
	ID          uint64          `gorm:"primarykey" json:"id"`
	CommunityID uint64          `gorm:"not null;index" json:"community_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	Location    string          `gorm:"type:varchar(255)" json:"location"`
	Tags        StringSlice     `gorm:"type:json" json:"tags"`
	StartsAt    time.Time       `gorm:"not null;index" json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`
	Capacity    *int            `json:"capacity"`
	Visibility  EventVisibility `gorm:"type:varchar(20);not null;default:'public'" json:"visibility"`

	PricingMode          PricingMode `gorm:"type:varchar(30);not null;default:'free'" json:"pricing_mode"`
	AmountCents          *int64      `json:"amount_cents"`
	MinAmountCents       *int64      `json:"min_amount_cents"`
	MaxAmountCents       *int64      `json:"max_amount_cents"`
	SuggestedAmountCents *int64      `json:"suggested_amount_cents"`

	// Gateway price objects are immutable: edits mint a new product/price
	// pair and overwrite these references. A product id without a price id
	// is a draft left by a partial gateway failure and is safe to retry.
	GatewayProductID string `gorm:"type:varchar(255)" json:"-"`
	GatewayPriceID   string `gorm:"type:varchar(255)" json:"-"`

	CreatedByID uint64         `gorm:"not null" json:"created_by_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Community     Community      `gorm:"foreignKey:CommunityID" json:"community,omitempty"`
	CreatedBy     Principal      `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	Registrations []Registration `gorm:"foreignKey:EventID" json:"registrations,omitempty"`
}

// Priced reports whether registrations for the event involve money.
func (e *Event) Priced() bool {
	return e.PricingMode == PricingFixed || e.PricingMode == PricingPayWhatYouCan
}

// Ended reports whether the event is over at the given instant. Events with
// no finish time end when they start.
func (e *Event) Ended(now time.Time) bool {
	if e.EndsAt != nil {
		return now.After(*e.EndsAt)
	}
	return now.After(e.StartsAt)
}
