package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gatherhq/community-api/internal/dto"
	apierrors "github.com/gatherhq/community-api/internal/errors"
	"github.com/gatherhq/community-api/internal/middleware"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gin-gonic/gin"
)

// EventHandler coordinates event HTTP handlers.
type EventHandler struct {
	eventService *services.EventService
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{
		eventService: eventService,
	}
}

// CreateEvent creates an event in a community. A gateway failure while
// publishing pricing still creates the event and returns it with a 502 so
// the client can retry publication.
func (h *EventHandler) CreateEvent(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	type CreateRequest struct {
		Title       string                 `json:"title" binding:"required,min=1,max=255"`
		Description string                 `json:"description" binding:"max=5000"`
		Location    string                 `json:"location" binding:"max=255"`
		Tags        []string               `json:"tags" binding:"omitempty,max=20,dive,min=1,max=50"`
		StartsAt    time.Time              `json:"starts_at" binding:"required"`
		EndsAt      *time.Time             `json:"ends_at"`
		Capacity    *int                   `json:"capacity"`
		Visibility  models.EventVisibility `json:"visibility" binding:"omitempty,oneof=public private"`

		PricingMode          models.PricingMode `json:"pricing_mode" binding:"omitempty,oneof=free fixed pay_what_you_can"`
		AmountCents          *int64             `json:"amount_cents"`
		MinAmountCents       *int64             `json:"min_amount_cents"`
		MaxAmountCents       *int64             `json:"max_amount_cents"`
		SuggestedAmountCents *int64             `json:"suggested_amount_cents"`
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	event, err := h.eventService.CreateEvent(c.Request.Context(), services.CreateEventInput{
		CommunityID:          communityID,
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Tags:                 req.Tags,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		Capacity:             req.Capacity,
		Visibility:           req.Visibility,
		PricingMode:          req.PricingMode,
		AmountCents:          req.AmountCents,
		MinAmountCents:       req.MinAmountCents,
		MaxAmountCents:       req.MaxAmountCents,
		SuggestedAmountCents: req.SuggestedAmountCents,
		CreatorID:            userID,
	})
	if err != nil {
		if event != nil && respondIfGatewayError(c, err) {
			return
		}
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToEventDTO(*event))
}

// GetEvent returns a single event.
func (h *EventHandler) GetEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	event, err := h.eventService.GetEvent(eventID, userID)
	if err != nil {
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEventDTO(*event))
}

// ListCommunityEvents returns a community's events split into upcoming and
// past.
func (h *EventHandler) ListCommunityEvents(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	upcoming, past, err := h.eventService.ListCommunityEvents(communityID, userID)
	if err != nil {
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEventListResponse(upcoming, past))
}

// UpdateEvent updates an event definition.
func (h *EventHandler) UpdateEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	type UpdateRequest struct {
		Title       *string                 `json:"title" binding:"omitempty,min=1,max=255"`
		Description *string                 `json:"description" binding:"omitempty,max=5000"`
		Location    *string                 `json:"location" binding:"omitempty,max=255"`
		Tags        []string                `json:"tags" binding:"omitempty,max=20,dive,min=1,max=50"`
		StartsAt    *time.Time              `json:"starts_at"`
		EndsAt      *time.Time              `json:"ends_at"`
		ClearEndsAt bool                    `json:"clear_ends_at"`
		Capacity    *int                    `json:"capacity"`
		Visibility  *models.EventVisibility `json:"visibility" binding:"omitempty,oneof=public private"`

		PricingMode          *models.PricingMode `json:"pricing_mode" binding:"omitempty,oneof=free fixed pay_what_you_can"`
		AmountCents          *int64              `json:"amount_cents"`
		MinAmountCents       *int64              `json:"min_amount_cents"`
		MaxAmountCents       *int64              `json:"max_amount_cents"`
		SuggestedAmountCents *int64              `json:"suggested_amount_cents"`
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	event, err := h.eventService.UpdateEvent(c.Request.Context(), eventID, userID, services.UpdateEventInput{
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Tags:                 req.Tags,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		ClearEndsAt:          req.ClearEndsAt,
		Capacity:             req.Capacity,
		Visibility:           req.Visibility,
		PricingMode:          req.PricingMode,
		AmountCents:          req.AmountCents,
		MinAmountCents:       req.MinAmountCents,
		MaxAmountCents:       req.MaxAmountCents,
		SuggestedAmountCents: req.SuggestedAmountCents,
	})
	if err != nil {
		if event != nil && respondIfGatewayError(c, err) {
			return
		}
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEventDTO(*event))
}

// RetryPricing re-attempts gateway price publication for an event.
func (h *EventHandler) RetryPricing(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	event, err := h.eventService.RetryPricing(c.Request.Context(), eventID, userID)
	if err != nil {
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToEventDTO(*event))
}

// DeleteEvent deletes an event, cancelling registrations and refunding
// gateway payments first.
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.eventService.DeleteEvent(c.Request.Context(), eventID, userID); err != nil {
		respondEventError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

func respondEventError(c *gin.Context, err error) {
	if respondIfGatewayError(c, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrCommunityNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrEventTitleEmpty),
		errors.Is(err, services.ErrInvalidSchedule),
		errors.Is(err, services.ErrInvalidCapacity),
		errors.Is(err, services.ErrInvalidFixedPrice),
		errors.Is(err, services.ErrInvalidPwycBounds):
		apierrors.BadRequest(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
