package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cna-finance/internal/auth"
	"cna-finance/internal/handler"
	"cna-finance/internal/hub"
	"cna-finance/internal/middleware"
	"cna-finance/internal/store"
)

type Deps struct {
	Store       *store.Store
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig
	// LoginLimiter throttles login and registration per client IP. A default
	// limiter is created when nil.
	LoginLimiter *middleware.RateLimiter
	Log          *zap.Logger
	Version      string
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if deps.Hub == nil {
		deps.Hub = hub.New()
	}
	if deps.LoginLimiter == nil {
		deps.LoginLimiter = middleware.NewRateLimiter(10, time.Minute)
	}

	api := r.Group("/api")

	healthHandler := &handler.HealthHandler{Version: deps.Version}
	api.GET("/health", healthHandler.Check)

	authHandler := &handler.AuthHandler{Store: deps.Store, TokenConfig: deps.TokenConfig, Log: deps.Log}
	limited := api.Group("", middleware.RateLimit(deps.LoginLimiter))
	limited.POST("/login", authHandler.Login)
	limited.POST("/register", authHandler.Register)

	userHandler := &handler.UserHandler{Store: deps.Store, Hub: deps.Hub, Log: deps.Log}
	user := api.Group("/user", middleware.RequireAuth(deps.TokenConfig))
	user.GET("/:id", userHandler.Get)
	user.POST("/pay", userHandler.Pay)

	adminHandler := &handler.AdminHandler{Store: deps.Store, Hub: deps.Hub, Log: deps.Log}
	admin := api.Group("/admin", middleware.RequireAuth(deps.TokenConfig), middleware.RequireAdmin())
	admin.GET("/users", adminHandler.List)
	admin.GET("/search-users", adminHandler.Search)
	admin.POST("/update-balance", adminHandler.UpdateBalance)

	wsHandler := &handler.WebSocketHandler{Hub: deps.Hub, TokenConfig: deps.TokenConfig, Log: deps.Log}
	api.GET("/ws", wsHandler.Serve)

	return r
}
