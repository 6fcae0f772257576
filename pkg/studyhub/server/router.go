// Package server assembles the HTTP router and runs it.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/studyhub/pkg/studyhub/admin"
	"github.com/mikepea/studyhub/pkg/studyhub/auth"
	"github.com/mikepea/studyhub/pkg/studyhub/config"
	"github.com/mikepea/studyhub/pkg/studyhub/groups"
	"github.com/mikepea/studyhub/pkg/studyhub/home"
	"github.com/mikepea/studyhub/pkg/studyhub/leaderboard"
	"github.com/mikepea/studyhub/pkg/studyhub/materials"
	"github.com/mikepea/studyhub/pkg/studyhub/middleware"
	"github.com/mikepea/studyhub/pkg/studyhub/profiles"
	"github.com/mikepea/studyhub/pkg/studyhub/storage"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/mikepea/studyhub/api/swagger"
)

// Deps are the collaborators the router is built from
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Blobs  *storage.LocalStorage
	Logger *zap.Logger

	// Cache holds the leaderboard; nil disables caching
	Cache leaderboard.Cache
}

// NewRouter creates a Gin engine with all routes registered
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = zap.L()
	}

	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.Server.CORSOrigins),
	)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "studyhub"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	sessions := auth.NewSessions(tokens, auth.SessionOptions{
		CookieName: cfg.Auth.CookieName,
		Secure:     cfg.Auth.SecureCookie,
	})

	// The board cache is dropped whenever a ranking input changes
	board := leaderboard.NewService(d.DB, d.Cache, cfg.Redis.LeaderboardTTL)
	profileService := profiles.NewService(d.DB, d.Blobs, board)
	materialService := materials.NewService(d.DB, d.Blobs, board)
	groupService := groups.NewService(d.DB)
	homeService := home.NewService(d.DB, board)

	// Auth routes (public)
	identity := auth.NewStore(d.DB)
	authHandler := auth.NewHandler(identity, sessions, profileService, board)
	authHandler.RegisterRoutes(&r.RouterGroup)

	// Everything else needs a session
	protected := r.Group("/")
	protected.Use(sessions.Middleware())
	{
		authHandler.RegisterSessionRoutes(protected)
		home.NewHandler(homeService).RegisterRoutes(protected)
		materials.NewHandler(materialService, cfg.Storage.MaxUploadBytes).RegisterRoutes(protected)

		groupsHandler := groups.NewHandler(groupService)
		groupsHandler.RegisterRoutes(protected)
		groupsHandler.RegisterRequestRoutes(protected)

		leaderboard.NewHandler(board).RegisterRoutes(protected)
		profiles.NewHandler(profileService).RegisterRoutes(protected)
		storage.NewHandler(d.Blobs).RegisterRoutes(protected)

		// Admin routes (admin role required)
		adminGroup := protected.Group("/admin")
		adminGroup.Use(auth.RequireAdmin(identity))
		admin.NewHandler(d.DB, board).RegisterRoutes(adminGroup)
	}

	return r
}
