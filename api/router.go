// Package api contains all endpoints available
package api

import (
	"fmt"
	"time"

	"arcline/image-api/db"
	"arcline/image-api/middleware"
	"arcline/image-api/security"
	"arcline/image-api/storage"

	ginzap "github.com/gin-contrib/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

type API struct {
	DB     *gorm.DB
	Router *gin.Engine
	Argon  *security.ArgonHash
	Store  storage.Store
}

func NewRouter() (*API, error) {
	a := &API{}

	db, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite database, %w", err)
	}
	a.DB = db

	makeLogger()

	router := gin.New()
	a.Router = router

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     viper.GetStringSlice("host.cors_origins"),
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("userID"); v != "" {
					fields = append(fields, zap.String("userID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true
	a.Router.MaxMultipartMemory = 5 << 20

	a.Argon = security.New()

	store, err := storage.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob storage, %w", err)
	}
	a.Store = store

	a.setupRoutes()

	return a, nil
}

// setupRoutes wires every endpoint. Split out of NewRouter so tests can
// register the same routes on an engine backed by a throwaway database.
func (a *API) setupRoutes() {
	jwt := middleware.NewJWTMiddleware(a.DB)
	admin := middleware.NewAdminGate(a.DB)
	verified := middleware.NewTOTPGate()

	limit := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: viper.GetInt("ratelimit.rps"),
		Burst:             viper.GetInt("ratelimit.burst"),
	})

	maxUploadSize := viper.GetInt64("upload.max_size")

	main := a.Router.Group("/api")
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		main.HEAD("/heartbeat", a.Heartbeat)

		// HEAD /api/validate		-> Validates a JWT token
		main.HEAD("/validate", jwt, a.Validate)
	}

	users := main.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/users 		-> Registers a new user
		users.POST("", a.UserRegister)

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		users.POST("/login", limit, a.UserLogin)
	}

	images := main.Group("/images")
	{
		// GET /api/images/view		-> Serves an image to anyone holding a valid token
		images.GET("/view", limit, a.ImageServe)
	}

	adm := main.Group("/admin", jwt)
	{
		// POST /api/admin/bootstrap	-> One-time first-admin self grant
		adm.POST("/bootstrap", a.AdminBootstrap)

		totp := adm.Group("/totp", admin)
		{
			// POST /api/admin/totp/setup	-> Creates or returns the pending TOTP secret
			totp.POST("/setup", a.TOTPSetup)

			// POST /api/admin/totp/verify	-> Checks a code and upgrades the session
			totp.POST("/verify", limit, a.TOTPVerify)
		}

		assets := adm.Group("/images", admin, verified)
		{
			// POST /api/admin/images		-> Uploads a new private image
			assets.POST("", middleware.BodySizeLimiter(maxUploadSize), a.ImageUpload)

			// GET /api/admin/images		-> Lists all private images
			assets.GET("", a.ImageList)

			// POST /api/admin/images/manage	-> Revokes or deletes an image
			assets.POST("/manage", a.ImageManage)
		}
	}
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}
