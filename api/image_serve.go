package api

import (
	"errors"
	"net/http"
	"time"

	"arcline/image-api/model"
	"arcline/image-api/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImageServe hands out image bytes to anyone holding a valid access token.
// Absent, revoked and expired tokens all get the same opaque 404 so probing
// a token reveals nothing about why it stopped working.
func (a *API) ImageServe(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	token := c.Query("token")
	if token == "" {
		imageNotFound(c, requestID)
		return
	}

	// A single conditional UPDATE both checks the access policy and claims
	// a view. Concurrent fetches race on the database row, not on
	// application memory, so the counter can never pass max_views
	res := a.DB.
		Model(&model.PrivateImage{}).
		Where("access_token = ? AND is_revoked = ?", token, false).
		Where("(expiry_type = ? AND current_views < max_views) OR (expiry_type = ? AND expires_at > ?)",
			model.ExpiryViews, model.ExpiryTime, time.Now().Unix()).
		Update("current_views", gorm.Expr("current_views + 1"))
	if res.Error != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to claim image view", zap.Error(res.Error), zap.String("requestID", requestID))
		return
	}

	if res.RowsAffected == 0 {
		imageNotFound(c, requestID)
		return
	}

	var img model.PrivateImage
	if err := a.DB.Where("access_token = ?", token).First(&img).Error; err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to load image record", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	obj, err := a.Store.Get(c.Request.Context(), img.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Metadata without a blob shouldn't happen, deletes remove
			// metadata first. Log it and stay opaque towards the caller
			zap.L().Warn("Image record points at a missing blob", zap.String("imageID", img.ID))
			imageNotFound(c, requestID)
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to fetch blob", zap.Error(err), zap.String("requestID", requestID))
		return
	}
	defer obj.Close()

	// Nothing between us and the viewer may retain the bytes past expiry
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("X-Robots-Tag", "noindex, nofollow")
	c.Header("Content-Disposition", "inline")

	c.DataFromReader(http.StatusOK, img.Size, img.MimeType, obj, nil)
}

func imageNotFound(c *gin.Context, requestID string) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":     "Image not found",
		"requestID": requestID,
	})
}
