package handlers

import (
	"strconv"

	apierrors "github.com/gatherhq/community-api/internal/errors"
	"github.com/gatherhq/community-api/internal/payment"
	"github.com/gin-gonic/gin"
)

// parseIDParam parses a numeric URL parameter, responding 400 on failure.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// respondIfGatewayError maps a payment gateway failure to a 502 and reports
// whether it did so.
func respondIfGatewayError(c *gin.Context, err error) bool {
	if payment.IsGatewayError(err) {
		apierrors.GatewayError(c, err.Error())
		return true
	}
	return false
}
