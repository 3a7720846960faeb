package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"phPortfolio/internal/api/middleware"
	"phPortfolio/internal/auth"
	"phPortfolio/internal/config"
	"phPortfolio/internal/portfolio"
	"phPortfolio/internal/publish"
	"phPortfolio/internal/storage"
)

// Deps 聚合路由注册所需的共享依赖。
type Deps struct {
	DB           *gorm.DB
	AsynqClient  *asynq.Client
	AuthService  *auth.AuthService
	RedisClient  *redis.Client
	Logger       *slog.Logger
	Storage      *storage.Client
	Store        *portfolio.Store
	Resolver     *portfolio.Resolver
	Orchestrator *publish.Orchestrator
	Config       *config.Config
}

// RegisterRoutes 注册 API 路由与公开页面路由。
func RegisterRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config
	resumeHandler := NewResumeHandler(deps.DB, 10)
	authHandler := NewAuthHandler(
		deps.DB, deps.AuthService, deps.RedisClient, deps.Logger,
		cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL,
		cfg.Auth.CookieDomain,
	)
	wsHandler := NewWsHandler(deps.RedisClient, deps.AuthService, deps.Logger, splitOrigins(cfg.API.AllowedOrigins))
	assetHandler := NewAssetHandler(deps.Storage, deps.Logger, cfg.API.ClamdAddr)
	portfolioHandler := NewPortfolioHandler(deps.DB, deps.Store, deps.Orchestrator, deps.AsynqClient, deps.Storage, deps.Logger)
	publicHandler := NewPublicHandler(deps.Resolver)
	authMiddleware := middleware.AuthMiddleware(deps.AuthService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		resumeGroup := v1.Group("/resume")
		resumeGroup.Use(authMiddleware)
		{
			resumeGroup.GET("", resumeHandler.ListResumes)
			resumeGroup.POST("", resumeHandler.CreateResume)
			resumeGroup.GET("/:id", resumeHandler.GetResume)
			resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
			resumeGroup.PUT("/:id/sections", resumeHandler.ReplaceSections)
			resumeGroup.PUT("/:id/sections/reorder", resumeHandler.ReorderSections)
		}

		portfolioGroup := v1.Group("/portfolio")
		{
			// record-view 面向公开页面脚本，不要求登录。
			portfolioGroup.POST("/record-view", publicHandler.RecordView)

			portfolioGroup.POST("/check-slug", authMiddleware, portfolioHandler.CheckSlug)
			portfolioGroup.POST("/generate", authMiddleware, portfolioHandler.Generate)
			portfolioGroup.POST("/publish", authMiddleware, portfolioHandler.Publish)
			portfolioGroup.POST("/retry-persist", authMiddleware, portfolioHandler.RetryPersist)
			portfolioGroup.GET("", authMiddleware, portfolioHandler.List)
			portfolioGroup.DELETE("/:id", authMiddleware, portfolioHandler.Deactivate)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
		}
	}

	// 公开站点路径：GET /{slug}。根路径段与注册路由冲突，走 NoRoute 兜底。
	router.NoRoute(publicHandler.ServeSlug)
}
