package dto

import (
	"time"

	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/utils"
)

// RegistrationDTO represents a registration in API responses
type RegistrationDTO struct {
	ID            uint64                    `json:"id"`
	EventID       uint64                    `json:"event_id"`
	Status        models.RegistrationStatus `json:"status"`
	PaymentStatus models.PaymentStatus      `json:"payment_status"`
	AmountCents   *int64                    `json:"amount_cents,omitempty"`
	CheckoutURL   string                    `json:"checkout_url,omitempty"`
	Principal     *PrincipalDTO             `json:"principal,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// RegistrationListResponse represents a page of an event's attendee list
type RegistrationListResponse struct {
	Registrations []RegistrationDTO        `json:"registrations"`
	Capacity      *int                     `json:"capacity"`
	Pagination    utils.PaginationResponse `json:"pagination"`
}

// ToRegistrationDTO converts a Registration model to RegistrationDTO
func ToRegistrationDTO(reg models.Registration) RegistrationDTO {
	dto := RegistrationDTO{
		ID:            reg.ID,
		EventID:       reg.EventID,
		Status:        reg.Status,
		PaymentStatus: reg.PaymentStatus,
		AmountCents:   reg.AmountCents,
		CreatedAt:     reg.CreatedAt,
	}

	// Include principal if preloaded
	if reg.Principal.ID != 0 {
		principal := ToPrincipalDTO(reg.Principal, true)
		dto.Principal = &principal
	}

	return dto
}

// ToRegistrationListResponse converts a page of registrations to the door
// list response
func ToRegistrationListResponse(regs []models.Registration, capacity *int, params utils.PaginationParams, total int64) RegistrationListResponse {
	resp := RegistrationListResponse{
		Registrations: make([]RegistrationDTO, len(regs)),
		Capacity:      capacity,
		Pagination: utils.PaginationResponse{
			Page:  params.Page,
			Limit: params.Limit,
			Total: total,
		},
	}
	for i, reg := range regs {
		resp.Registrations[i] = ToRegistrationDTO(reg)
	}
	return resp
}
