package api

import (
	"errors"
	"net/http"

	"arcline/image-api/model"
	"arcline/image-api/security"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TOTPSetup hands out the shared secret for the authenticator app. While the
// secret is still unverified the same one is returned on every call, so a
// reloaded setup page keeps working. A verified secret is never rotated from
// here, that would let a stolen session silently swap out someone's 2FA.
func (a *API) TOTPSetup(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)
	email := c.MustGet("userEmail").(string)

	issuer := viper.GetString("admin.issuer")

	var existing model.TOTPSecret
	err := a.DB.Where("user_id = ?", userID).First(&existing).Error
	if err == nil {
		if existing.IsVerified {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":     "Two-factor authentication is already configured for this account",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"secret":     existing.Secret,
			"otpauthUri": security.ProvisioningURI(existing.Secret, email, issuer),
		})
		return
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to look up TOTP secret", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	secret, err := security.GenerateTOTPSecret()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate TOTP secret", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	err = a.DB.Create(&model.TOTPSecret{
		UserID: userID,
		Secret: secret,
	}).Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to save TOTP secret", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":     secret,
		"otpauthUri": security.ProvisioningURI(secret, email, issuer),
	})
}
