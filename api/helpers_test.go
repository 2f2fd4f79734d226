package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"arcline/image-api/middleware"
	"arcline/image-api/model"
	"arcline/image-api/security"
	"arcline/image-api/storage"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	gin.SetMode(gin.TestMode)
	zap.ReplaceGlobals(zap.NewNop())

	viper.Set("jwt.secret", "test-secret")
	viper.Set("admin.bootstrap_email", "owner@arcline.test")
	viper.Set("admin.issuer", "Arcline Test")
	viper.Set("host.public_url", "http://localhost:8080")
	viper.Set("upload.max_size", int64(10<<20))
	viper.Set("upload.allowed_types", []string{"image/jpeg", "image/png"})
	viper.Set("ratelimit.rps", 10000)
	viper.Set("ratelimit.burst", 10000)
	viper.Set("redis.addr", "")

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)

	// Serialize writes so concurrent test requests contend on rows, not on
	// the sqlite file lock
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = gdb.AutoMigrate(model.User{}, model.RoleAssignment{}, model.TOTPSecret{}, model.PrivateImage{})
	require.NoError(t, err)

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	a := &API{
		DB:    gdb,
		Store: store,
		Argon: security.New(),
	}

	a.Router = gin.New()
	a.Router.Use(middleware.NewRequestIDMiddleware())
	a.setupRoutes()

	return a
}

func createUser(t *testing.T, a *API, email string) *model.User {
	t.Helper()

	hash, err := a.Argon.GenerateFromPassword("password123")
	require.NoError(t, err)

	id, err := gonanoid.Generate(idCharset, 16)
	require.NoError(t, err)

	u := &model.User{ID: id, Email: email, PasswordHash: hash}
	require.NoError(t, a.DB.Create(u).Error)

	return u
}

func grantAdmin(t *testing.T, a *API, userID string) {
	t.Helper()
	require.NoError(t, a.DB.Create(&model.RoleAssignment{UserID: userID, Role: model.RoleAdmin}).Error)
}

func authToken(t *testing.T, userID string, totpVerified bool) string {
	t.Helper()

	claims := jwt.MapClaims{
		"user_id": userID,
		"type":    "auth",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
	if totpVerified {
		claims["totp"] = "verified"
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return token
}

func doJSON(t *testing.T, a *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)

	return w
}

func doUpload(t *testing.T, a *API, token string, fields map[string]string, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}

	if data != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/images", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)

	return rec
}

// seedImage writes blob and metadata directly, bypassing the upload endpoint
func seedImage(t *testing.T, a *API, img *model.PrivateImage, data []byte) {
	t.Helper()

	if img.ID == "" {
		id, err := gonanoid.Generate(idCharset, 16)
		require.NoError(t, err)
		img.ID = id
	}
	if img.AccessToken == "" {
		token, err := gonanoid.Generate(idCharset, accessTokenLength)
		require.NoError(t, err)
		img.AccessToken = token
	}
	if img.StorageKey == "" {
		key, err := gonanoid.Generate(idCharset, 24)
		require.NoError(t, err)
		img.StorageKey = key
	}
	if img.MimeType == "" {
		img.MimeType = "image/png"
	}
	if img.CreatedAt == 0 {
		img.CreatedAt = time.Now().Unix()
	}
	img.Size = int64(len(data))

	err := a.Store.Put(context.Background(), img.StorageKey, img.MimeType, img.Size, bytes.NewReader(data))
	require.NoError(t, err)

	require.NoError(t, a.DB.Create(img).Error)
}

func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	return out
}
