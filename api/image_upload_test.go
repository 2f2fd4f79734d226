package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"arcline/image-api/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifiedAdmin(t *testing.T, a *API, email string) string {
	t.Helper()

	u := createUser(t, a, email)
	grantAdmin(t, a, u.ID)

	return authToken(t, u.ID, true)
}

func TestImageUploadSingleViewScenario(t *testing.T) {
	a := newTestAPI(t)
	token := verifiedAdmin(t, a, "admin@arcline.test")

	w := doUpload(t, a, token, map[string]string{
		"expiryType": "views",
		"maxViews":   "1",
	}, "photo.jpg", "image/png", pngBytes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := parseBody(t, w)
	assert.Equal(t, true, body["success"])

	publicURL, _ := body["publicUrl"].(string)
	require.Contains(t, publicURL, "/api/images/view?token=")

	// The URL must embed only the access token, never the storage key
	img := body["image"].(map[string]any)
	_, leaked := img["StorageKey"]
	assert.False(t, leaked)

	path := strings.TrimPrefix(publicURL, "http://localhost:8080")

	first := httptest.NewRecorder()
	a.Router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, pngBytes, first.Body.Bytes())

	second := httptest.NewRecorder()
	a.Router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, second.Code)
}

func TestImageUploadTimeExpiryDerivesExpiresAt(t *testing.T) {
	a := newTestAPI(t)
	token := verifiedAdmin(t, a, "admin@arcline.test")

	w := doUpload(t, a, token, map[string]string{
		"expiryType":  "time",
		"expiryHours": "2",
	}, "banner.png", "image/png", pngBytes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var img model.PrivateImage
	require.NoError(t, a.DB.First(&img).Error)

	require.NotNil(t, img.ExpiresAt)
	assert.Equal(t, img.CreatedAt+2*3600, *img.ExpiresAt)
	assert.Equal(t, 2, img.ExpiryHours)
	assert.Zero(t, img.MaxViews)
}

func TestImageUploadValidation(t *testing.T) {
	a := newTestAPI(t)
	token := verifiedAdmin(t, a, "admin@arcline.test")

	// Missing file
	w := doUpload(t, a, token, map[string]string{"expiryType": "views", "maxViews": "3"}, "", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Disallowed type, rejected before anything is written
	w = doUpload(t, a, token, map[string]string{"expiryType": "views", "maxViews": "3"},
		"notes.txt", "text/plain", []byte("hello"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Bad expiry policy
	w = doUpload(t, a, token, map[string]string{"expiryType": "never"}, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, a, token, map[string]string{"expiryType": "views", "maxViews": "0"}, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doUpload(t, a, token, map[string]string{"expiryType": "time", "expiryHours": "-1"}, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Nothing got persisted by any of the rejected requests
	var count int64
	require.NoError(t, a.DB.Model(&model.PrivateImage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestImageUploadRequiresVerifiedAdmin(t *testing.T) {
	a := newTestAPI(t)

	fields := map[string]string{"expiryType": "views", "maxViews": "1"}

	// No credentials at all
	w := doUpload(t, a, "", fields, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Authenticated but not admin
	u := createUser(t, a, "user@arcline.test")
	w = doUpload(t, a, authToken(t, u.ID, true), fields, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin but 2FA not verified this session
	admin := createUser(t, a, "admin@arcline.test")
	grantAdmin(t, a, admin.ID)
	w = doUpload(t, a, authToken(t, admin.ID, false), fields, "a.png", "image/png", pngBytes)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var count int64
	require.NoError(t, a.DB.Model(&model.PrivateImage{}).Count(&count).Error)
	assert.Zero(t, count)
}
