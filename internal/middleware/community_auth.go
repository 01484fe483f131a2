package middleware

import (
	"net/http"
	"strconv"

	"github.com/gatherhq/community-api/internal/database"
	"github.com/gatherhq/community-api/internal/models"
	"github.com/gin-gonic/gin"
)

// RequireCommunityAccess checks if the principal may see the community: any
// principal for a public community, members only for a private one
func RequireCommunityAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		communityIDStr := c.Param("id")
		communityID, err := strconv.ParseUint(communityIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid community ID",
			})
			c.Abort()
			return
		}

		userID, exists := GetUserID(c)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
			})
			c.Abort()
			return
		}

		var community models.Community
		if err := database.GetDB().First(&community, communityID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Community not found",
			})
			c.Abort()
			return
		}

		var member models.Membership
		err = database.GetDB().Where("community_id = ? AND principal_id = ?", communityID, userID).First(&member).Error
		if err != nil && community.Visibility == models.CommunityPrivate {
			// Return 404 instead of 403 to avoid leaking private
			// community existence
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Community not found",
			})
			c.Abort()
			return
		}

		c.Set("community", community)
		if err == nil {
			c.Set("community_member", member)
		}
		c.Next()
	}
}

// GetCommunityMember retrieves the membership stored by
// RequireCommunityAccess, if any
func GetCommunityMember(c *gin.Context) (models.Membership, bool) {
	memberInterface, exists := c.Get("community_member")
	if !exists {
		return models.Membership{}, false
	}
	member, ok := memberInterface.(models.Membership)
	return member, ok
}
