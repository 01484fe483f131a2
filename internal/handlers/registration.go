package handlers

import (
	"errors"
	"net/http"

	"github.com/gatherhq/community-api/internal/dto"
	apierrors "github.com/gatherhq/community-api/internal/errors"
	"github.com/gatherhq/community-api/internal/middleware"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gatherhq/community-api/internal/utils"
	"github.com/gin-gonic/gin"
)

// RegistrationHandler coordinates registration HTTP handlers.
type RegistrationHandler struct {
	registrationService *services.RegistrationService
	eventService        *services.EventService
}

// NewRegistrationHandler creates a new RegistrationHandler.
func NewRegistrationHandler(registrationService *services.RegistrationService, eventService *services.EventService) *RegistrationHandler {
	return &RegistrationHandler{
		registrationService: registrationService,
		eventService:        eventService,
	}
}

// Register signs the caller up for an event. For priced events the response
// carries a checkout URL; if the gateway rejects the checkout the
// registration is still created and returned with a 502.
func (h *RegistrationHandler) Register(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	type RegisterRequest struct {
		AmountCents *int64 `json:"amount_cents"`
	}

	var req RegisterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.BadRequest(c, "Invalid request body")
			return
		}
	}

	userID, _ := middleware.GetUserID(c)
	result, err := h.registrationService.Register(c.Request.Context(), eventID, userID, req.AmountCents)
	if err != nil {
		if result != nil && respondIfGatewayError(c, err) {
			return
		}
		respondRegistrationError(c, err)
		return
	}

	regDTO := dto.ToRegistrationDTO(*result.Registration)
	regDTO.CheckoutURL = result.CheckoutURL
	c.JSON(http.StatusCreated, regDTO)
}

// RetryCheckout starts a fresh checkout session for a pending registration.
func (h *RegistrationHandler) RetryCheckout(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	result, err := h.registrationService.RetryCheckout(c.Request.Context(), registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	regDTO := dto.ToRegistrationDTO(*result.Registration)
	regDTO.CheckoutURL = result.CheckoutURL
	c.JSON(http.StatusOK, regDTO)
}

// GetOwnRegistration returns the caller's active registration for an event.
func (h *RegistrationHandler) GetOwnRegistration(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.GetOwn(eventID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// ListRegistrations returns the attendee list for door staff.
func (h *RegistrationHandler) ListRegistrations(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	userID, _ := middleware.GetUserID(c)
	regs, total, err := h.registrationService.ListForEvent(eventID, userID, params.Limit, params.Offset)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	event, err := h.eventService.GetEvent(eventID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationListResponse(regs, event.Capacity, params, total))
}

// CheckIn marks an attendee as present.
func (h *RegistrationHandler) CheckIn(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.CheckIn(registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// UndoCheckIn reverts a check-in.
func (h *RegistrationHandler) UndoCheckIn(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.UndoCheckIn(registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// Cancel cancels a registration.
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.Cancel(registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// MarkPaid records an out-of-band payment.
func (h *RegistrationHandler) MarkPaid(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.MarkPaid(registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// Refund refunds a paid registration.
func (h *RegistrationHandler) Refund(c *gin.Context) {
	registrationID, ok := parseIDParam(c, "registrationId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.Refund(c.Request.Context(), registrationID, userID)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToRegistrationDTO(*reg))
}

// AddWalkIn registers someone at the door.
func (h *RegistrationHandler) AddWalkIn(c *gin.Context) {
	eventID, ok := parseIDParam(c, "eventId")
	if !ok {
		return
	}

	type WalkInRequest struct {
		DisplayName string `json:"display_name" binding:"required,min=1,max=100"`
		Email       string `json:"email" binding:"required,email"`
		AmountCents *int64 `json:"amount_cents"`
	}

	var req WalkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	reg, err := h.registrationService.AddWalkIn(c.Request.Context(), eventID, userID, req.DisplayName, req.Email, req.AmountCents)
	if err != nil {
		respondRegistrationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToRegistrationDTO(*reg))
}

func respondRegistrationError(c *gin.Context, err error) {
	if respondIfGatewayError(c, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrEventNotFound),
		errors.Is(err, services.ErrRegistrationNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrEventFull),
		errors.Is(err, services.ErrAlreadyRegistered):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrAmountOutOfBounds),
		errors.Is(err, services.ErrAmountRequired):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrEventEnded),
		errors.Is(err, services.ErrRegistrationCancelled),
		errors.Is(err, services.ErrPaymentNotRequired),
		errors.Is(err, services.ErrNotPaid):
		apierrors.InvalidState(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
