package api

import (
	"errors"
	"net/http"
	"strings"

	"arcline/image-api/model"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errAdminExists = errors.New("an admin already exists")

// AdminBootstrap lets the configured email self-grant the first admin role.
// The zero-admins precondition is re-checked inside the transaction, so two
// racing calls can't both succeed, and once any admin exists the path is
// closed for good.
func (a *API) AdminBootstrap(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	email := c.MustGet("userEmail").(string)

	if !strings.EqualFold(email, viper.GetString("admin.bootstrap_email")) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":     "Not allowed to bootstrap an admin",
			"requestID": requestID,
		})
		return
	}

	err := a.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.
			Model(&model.RoleAssignment{}).
			Where("role = ?", model.RoleAdmin).
			Count(&count).
			Error; err != nil {
			return err
		}

		if count > 0 {
			return errAdminExists
		}

		return tx.Create(&model.RoleAssignment{
			UserID: userID,
			Role:   model.RoleAdmin,
		}).Error
	})
	if err != nil {
		if errors.Is(err, errAdminExists) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":     "An admin already exists",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to bootstrap admin", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	zap.L().Info("Bootstrap admin granted", zap.String("userID", userID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
