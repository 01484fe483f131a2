package handlers

import (
	"errors"
	"net/http"

	"github.com/gatherhq/community-api/internal/dto"
	apierrors "github.com/gatherhq/community-api/internal/errors"
	"github.com/gatherhq/community-api/internal/middleware"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gatherhq/community-api/internal/services"
	"github.com/gin-gonic/gin"
)

// CommunityHandler coordinates community and membership HTTP handlers.
type CommunityHandler struct {
	communityService *services.CommunityService
}

// NewCommunityHandler creates a new CommunityHandler.
func NewCommunityHandler(communityService *services.CommunityService) *CommunityHandler {
	return &CommunityHandler{
		communityService: communityService,
	}
}

// CreateCommunity creates a community owned by the caller.
func (h *CommunityHandler) CreateCommunity(c *gin.Context) {
	type CreateRequest struct {
		Name         string                     `json:"name" binding:"required,min=1,max=100"`
		Description  string                     `json:"description" binding:"max=1000"`
		Visibility   models.CommunityVisibility `json:"visibility" binding:"omitempty,oneof=public private"`
		ContactEmail string                     `json:"contact_email" binding:"omitempty,email"`
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	community, err := h.communityService.CreateCommunity(services.CreateCommunityInput{
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   req.Visibility,
		ContactEmail: req.ContactEmail,
		CreatorID:    userID,
	})
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToCommunityDTO(*community))
}

// ListCommunities lists the communities the caller belongs to.
func (h *CommunityHandler) ListCommunities(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	memberships, err := h.communityService.ListForPrincipal(userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	result := make([]dto.CommunityWithRoleDTO, len(memberships))
	for i, membership := range memberships {
		result[i] = dto.ToCommunityWithRoleDTO(membership)
	}
	c.JSON(http.StatusOK, gin.H{"communities": result})
}

// GetCommunity returns a community with its member list. Access is enforced
// by RequireCommunityAccess; non-members of a public community see it
// without the member list.
func (h *CommunityHandler) GetCommunity(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	community, members, err := h.communityService.GetWithMembers(communityID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	yourRole := models.RoleNone
	if member, ok := middleware.GetCommunityMember(c); ok {
		yourRole = member.Role
	}
	c.JSON(http.StatusOK, dto.ToCommunityDetailDTO(*community, members, yourRole))
}

// UpdateCommunity updates community settings.
func (h *CommunityHandler) UpdateCommunity(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	type UpdateRequest struct {
		Name         *string                     `json:"name" binding:"omitempty,min=1,max=100"`
		Description  *string                     `json:"description" binding:"omitempty,max=1000"`
		Visibility   *models.CommunityVisibility `json:"visibility" binding:"omitempty,oneof=public private"`
		ContactEmail *string                     `json:"contact_email" binding:"omitempty,email"`
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	community, err := h.communityService.UpdateCommunity(communityID, userID, services.UpdateCommunityInput{
		Name:         req.Name,
		Description:  req.Description,
		Visibility:   req.Visibility,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToCommunityDTO(*community))
}

// JoinCommunity joins a public community immediately or files a join
// request for a private one.
func (h *CommunityHandler) JoinCommunity(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	membership, request, err := h.communityService.Join(communityID, userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	if membership != nil {
		c.JSON(http.StatusCreated, gin.H{
			"status": "joined",
			"role":   membership.Role,
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":          "pending",
		"join_request_id": request.ID,
	})
}

// ListJoinRequests lists pending join requests for a community.
func (h *CommunityHandler) ListJoinRequests(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	requests, err := h.communityService.ListJoinRequests(communityID, userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	result := make([]dto.JoinRequestDTO, len(requests))
	for i, request := range requests {
		result[i] = dto.ToJoinRequestDTO(request)
	}
	c.JSON(http.StatusOK, gin.H{"join_requests": result})
}

// ApproveJoinRequest admits the applicant as a member.
func (h *CommunityHandler) ApproveJoinRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "requestId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	membership, err := h.communityService.Approve(requestID, userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "approved",
		"role":   membership.Role,
	})
}

// RejectJoinRequest discards a pending join request.
func (h *CommunityHandler) RejectJoinRequest(c *gin.Context) {
	requestID, ok := parseIDParam(c, "requestId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.communityService.Reject(requestID, userID); err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// ChangeMemberRole assigns a member a new role.
func (h *CommunityHandler) ChangeMemberRole(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "principalId")
	if !ok {
		return
	}

	type ChangeRoleRequest struct {
		Role models.Role `json:"role" binding:"required"`
	}

	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.communityService.ChangeRole(communityID, targetID, req.Role, userID); err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": req.Role})
}

// LeaveCommunity removes the caller's own membership.
func (h *CommunityHandler) LeaveCommunity(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.communityService.Leave(communityID, userID); err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left community"})
}

// RemoveMember removes another principal's membership.
func (h *CommunityHandler) RemoveMember(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	targetID, ok := parseIDParam(c, "principalId")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	if err := h.communityService.Remove(communityID, targetID, userID); err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// ConnectPayoutAccount creates or resumes payout onboarding for the
// community and returns the onboarding URL.
func (h *CommunityHandler) ConnectPayoutAccount(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	onboardingURL, err := h.communityService.ConnectPayoutAccount(c.Request.Context(), communityID, userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"onboarding_url": onboardingURL})
}

// RefreshPayoutStatus re-checks payout onboarding with the gateway.
func (h *CommunityHandler) RefreshPayoutStatus(c *gin.Context) {
	communityID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	userID, _ := middleware.GetUserID(c)
	verified, err := h.communityService.RefreshPayoutStatus(c.Request.Context(), communityID, userID)
	if err != nil {
		respondCommunityError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": verified})
}

func respondCommunityError(c *gin.Context, err error) {
	if respondIfGatewayError(c, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrCommunityNotFound),
		errors.Is(err, services.ErrMembershipNotFound),
		errors.Is(err, services.ErrJoinRequestNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrAlreadyMember),
		errors.Is(err, services.ErrJoinRequestPending):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrInvalidCommunityName),
		errors.Is(err, services.ErrInvalidRole):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrLastOwner),
		errors.Is(err, services.ErrPayoutAccountMissing):
		apierrors.InvalidState(c, err.Error())
	default:
		apierrors.InternalError(c, "Internal server error")
	}
}
