package api

import (
	"errors"
	"net/http"
	"time"

	"arcline/image-api/model"
	"arcline/image-api/security"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type totpVerifyBody struct {
	Token   string `json:"token"`
	IsSetup bool   `json:"isSetup"`
}

// TOTPVerify checks a submitted code. During setup a success marks the
// secret verified (exactly once). In both cases a successful check mints a
// fresh session token carrying the totp claim, which is the only place the
// "verified this session" state lives.
func (a *API) TOTPVerify(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	var data totpVerifyBody
	if err := c.ShouldBind(&data); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	if len(data.Token) != 6 || !isDigits(data.Token) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Code must be exactly 6 digits",
			"requestID": requestID,
		})
		return
	}

	var secret model.TOTPSecret
	err := a.DB.Where("user_id = ?", userID).First(&secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "Two-factor authentication has not been set up",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to look up TOTP secret", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if !data.IsSetup && !secret.IsVerified {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":     "Two-factor setup has not been completed",
			"requestID": requestID,
		})
		return
	}

	if !security.VerifyTOTP(secret.Secret, data.Token, time.Now().Unix()) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":     "Invalid code",
			"requestID": requestID,
		})
		return
	}

	if data.IsSetup && !secret.IsVerified {
		err = a.DB.
			Model(&model.TOTPSecret{}).
			Where("user_id = ? AND is_verified = ?", userID, false).
			Update("is_verified", true).
			Error
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":     "Internal server error",
				"requestID": requestID,
			})

			zap.L().Error("Failed to mark TOTP secret verified", zap.Error(err), zap.String("requestID", requestID))
			return
		}
	}

	sessionToken, err := makeToken(&jwt.MapClaims{
		"user_id": userID,
		"type":    "auth",
		"totp":    "verified",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(sessionDuration).Unix(),
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate session token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   sessionToken,
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}
