package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arcline/image-api/model"
	"arcline/image-api/validators"

	"github.com/gin-gonic/gin"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const accessTokenLength = 32

func (a *API) ImageUpload(c *gin.Context) {
	requestID := c.MustGet("requestID").(string)
	userID := c.MustGet("userID").(string)

	if !strings.HasPrefix(c.Request.Header.Get("Content-Type"), "multipart/form-data") {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request",
			"requestID": requestID,
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid multipart form",
			"requestID": requestID,
		})

		zap.L().Error("Failed to parse multipart form", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	files := form.File["file"]
	if len(files) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "No file provided",
			"requestID": requestID,
		})
		return
	}

	fh := files[0]

	expiryType := c.PostForm("expiryType")

	var (
		expiryHours int
		maxViews    int
	)

	switch expiryType {
	case model.ExpiryTime:
		expiryHours, err = strconv.Atoi(c.PostForm("expiryHours"))
		if err != nil || expiryHours <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "expiryHours must be a positive integer",
				"requestID": requestID,
			})
			return
		}
	case model.ExpiryViews:
		maxViews, err = strconv.Atoi(c.PostForm("maxViews"))
		if err != nil || maxViews <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "maxViews must be a positive integer",
				"requestID": requestID,
			})
			return
		}
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "expiryType must be either 'time' or 'views'",
			"requestID": requestID,
		})
		return
	}

	code, f, mime, err := validators.ImageValidator(fh)
	if err != nil {
		if code == http.StatusInternalServerError {
			zap.L().Error("Failed to validate file", zap.Error(err), zap.String("requestID", requestID))

			// That's to set the error into a general one for the users
			err = errors.New("internal server error")
		}

		c.AbortWithStatusJSON(code, gin.H{
			"error":     err.Error(),
			"requestID": requestID,
		})
		return
	}
	defer f.Close()

	accessToken, err := gonanoid.Generate(idCharset, accessTokenLength)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate access token", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	// The storage key is its own random namespace. Neither the original
	// filename nor the access token ever shows up in storage layout
	storageKey, err := gonanoid.Generate(idCharset, 24)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate storage key", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	imageID, err := gonanoid.Generate(idCharset, 16)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to generate image ID", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	err = a.Store.Put(c.Request.Context(), storageKey, mime, fh.Size, f)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to store blob", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	now := time.Now()

	img := model.PrivateImage{
		ID:           imageID,
		AccessToken:  accessToken,
		StorageKey:   storageKey,
		OriginalName: fh.Filename,
		MimeType:     mime,
		Size:         fh.Size,
		UploadedBy:   userID,
		ExpiryType:   expiryType,
		CreatedAt:    now.Unix(),
	}

	switch expiryType {
	case model.ExpiryTime:
		img.ExpiryHours = expiryHours
		expiresAt := now.Add(time.Duration(expiryHours) * time.Hour).Unix()
		img.ExpiresAt = &expiresAt
	case model.ExpiryViews:
		img.MaxViews = maxViews
	}

	if err := a.DB.Create(&img).Error; err != nil {
		// No orphaned blobs, clean up what we just wrote
		if derr := a.Store.Delete(context.Background(), storageKey); derr != nil {
			zap.L().Error("Failed to clean up blob after metadata failure", zap.Error(derr), zap.String("key", storageKey))
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})

		zap.L().Error("Failed to save image record", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	publicURL := fmt.Sprintf("%s/api/images/view?token=%s",
		strings.TrimRight(viper.GetString("host.public_url"), "/"), accessToken)

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"image":     img,
		"publicUrl": publicURL,
	})
}
