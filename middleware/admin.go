package middleware

import (
	"net/http"

	"arcline/image-api/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewAdminGate is the only code path that reads role assignments. It runs a
// single server-side query and fails closed: any lookup error denies access
// rather than risking an accidental grant.
func NewAdminGate(d *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)
		userID := c.MustGet("userID").(string)

		var count int64
		err := d.
			Model(&model.RoleAssignment{}).
			Where("user_id = ? AND role = ?", userID, model.RoleAdmin).
			Count(&count).
			Error
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Admin access required",
				"requestID": requestID,
			})

			zap.L().Error("Failed to resolve admin role, denying access", zap.Error(err), zap.String("requestID", requestID))
			return
		}

		if count == 0 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Admin access required",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}

// NewTOTPGate rejects sessions that haven't presented a valid TOTP code
// since login. Runs after the admin gate, asset management is only reachable
// from the fully verified state.
func NewTOTPGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.MustGet("requestID").(string)

		if !c.GetBool("totpVerified") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Two-factor verification required",
				"requestID": requestID,
			})
			return
		}

		c.Next()
	}
}
