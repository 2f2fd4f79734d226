package api

import (
	"errors"
	"net/http"

	"arcline/image-api/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (a *API) ImageList(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var images []model.PrivateImage
	err := a.DB.Order("created_at desc").Find(&images).Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to list images", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"images":  images,
	})
}

type manageBody struct {
	ImageID string `json:"imageId"`
	Action  string `json:"action"`
}

// ImageManage revokes or deletes a single image. Revoke is an idempotent
// flag flip, delete removes metadata first and then the blob, favoring a
// stray blob over metadata pointing at freed policy state.
func (a *API) ImageManage(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)

	var data manageBody
	if err := c.ShouldBind(&data); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})
		return
	}

	if data.ImageID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "imageId is missing",
			"requestID": requestID,
		})
		return
	}

	switch data.Action {
	case "revoke":
		a.imageRevoke(c, requestID, data.ImageID)
	case "delete":
		a.imageDelete(c, requestID, data.ImageID)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Unknown action, must be 'revoke' or 'delete'",
			"requestID": requestID,
		})
	}
}

func (a *API) imageRevoke(c *gin.Context, requestID, imageID string) {
	res := a.DB.
		Model(&model.PrivateImage{}).
		Where("id = ?", imageID).
		Update("is_revoked", true)
	if res.Error != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to revoke image", zap.Error(res.Error), zap.String("requestID", requestID))
		return
	}

	if res.RowsAffected == 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Image not found",
			"requestID": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

func (a *API) imageDelete(c *gin.Context, requestID, imageID string) {
	var img model.PrivateImage
	err := a.DB.Where("id = ?", imageID).First(&img).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":     "Image not found",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to look up image", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	// Metadata goes first. Without the record the token is already dead,
	// even if the blob removal below fails
	err = a.DB.Delete(&model.PrivateImage{}, "id = ?", imageID).Error
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to delete image record", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if err := a.Store.Delete(c.Request.Context(), img.StorageKey); err != nil {
		// Needs manual cleanup, the metadata is already gone
		zap.L().Error("Failed to delete blob for removed image",
			zap.Error(err), zap.String("imageID", imageID), zap.String("key", img.StorageKey))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}
