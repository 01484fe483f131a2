package dto

import (
	"time"

	"github.com/gatherhq/community-api/internal/models"
)

// PricingDTO represents an event's pricing in API responses
type PricingDTO struct {
	Mode                 models.PricingMode `json:"mode"`
	AmountCents          *int64             `json:"amount_cents,omitempty"`
	MinAmountCents       *int64             `json:"min_amount_cents,omitempty"`
	MaxAmountCents       *int64             `json:"max_amount_cents,omitempty"`
	SuggestedAmountCents *int64             `json:"suggested_amount_cents,omitempty"`
	Published            bool               `json:"published"`
}

// EventDTO represents an event in API responses
type EventDTO struct {
	ID          uint64                 `json:"id"`
	CommunityID uint64                 `json:"community_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Location    string                 `json:"location"`
	Tags        []string               `json:"tags"`
	StartsAt    time.Time              `json:"starts_at"`
	EndsAt      *time.Time             `json:"ends_at"`
	Capacity    *int                   `json:"capacity"`
	Visibility  models.EventVisibility `json:"visibility"`
	Pricing     PricingDTO             `json:"pricing"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CreatedBy   *PrincipalDTO          `json:"created_by,omitempty"`
}

// EventListResponse represents a community's events split by schedule
type EventListResponse struct {
	Upcoming []EventDTO `json:"upcoming"`
	Past     []EventDTO `json:"past"`
}

// ToEventDTO converts an Event model to EventDTO
func ToEventDTO(event models.Event) EventDTO {
	dto := EventDTO{
		ID:          event.ID,
		CommunityID: event.CommunityID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Tags:        event.Tags,
		StartsAt:    event.StartsAt,
		EndsAt:      event.EndsAt,
		Capacity:    event.Capacity,
		Visibility:  event.Visibility,
		Pricing: PricingDTO{
			Mode:                 event.PricingMode,
			AmountCents:          event.AmountCents,
			MinAmountCents:       event.MinAmountCents,
			MaxAmountCents:       event.MaxAmountCents,
			SuggestedAmountCents: event.SuggestedAmountCents,
			Published:            !event.Priced() || event.GatewayPriceID != "",
		},
		CreatedAt: event.CreatedAt,
		UpdatedAt: event.UpdatedAt,
	}
	if dto.Tags == nil {
		dto.Tags = []string{}
	}

	// Include creator if preloaded
	if event.CreatedBy.ID != 0 {
		creator := ToPrincipalDTO(event.CreatedBy, false)
		dto.CreatedBy = &creator
	}

	return dto
}

// ToEventListResponse converts partitioned event slices to a list response
func ToEventListResponse(upcoming, past []models.Event) EventListResponse {
	resp := EventListResponse{
		Upcoming: make([]EventDTO, len(upcoming)),
		Past:     make([]EventDTO, len(past)),
	}
	for i, event := range upcoming {
		resp.Upcoming[i] = ToEventDTO(event)
	}
	for i, event := range past {
		resp.Past[i] = ToEventDTO(event)
	}
	return resp
}
