package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vthuan-dev/bufforder-sub001/internal/auth"
	"github.com/vthuan-dev/bufforder-sub001/internal/chat"
	"github.com/vthuan-dev/bufforder-sub001/internal/config"
	"github.com/vthuan-dev/bufforder-sub001/internal/httperr"
	"github.com/vthuan-dev/bufforder-sub001/internal/middleware"
	"github.com/vthuan-dev/bufforder-sub001/internal/storage"
)

const serviceName = "bufforder-chat"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the routes need. Gateway may be nil when the
// realtime endpoint is not served.
type Deps struct {
	Config  *config.Config
	JWT     *auth.JWTManager
	Chat    *chat.Service
	Images  storage.ImageStore
	Store   Pinger
	Gateway gin.HandlerFunc
	Log     zerolog.Logger
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	cfg := deps.Config
	chatHandler := NewChatHandler(deps.Chat, deps.Images, cfg.Upload.MaxBytes, deps.Log)

	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORSSpecific(cfg.GetCORSOrigins()))

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": serviceName,
		})
	}
	router.GET("/health", health)
	router.GET("/healthz", health)
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := deps.Store.Ping(ctx); err != nil {
			deps.Log.Warn().Err(err).Msg("readiness check failed")
			httperr.Write(c, http.StatusServiceUnavailable, httperr.TypeInternal, "store unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if local, ok := deps.Images.(*storage.LocalStorage); ok && local.Enabled() {
		router.Static(local.URLPrefix(), local.Dir())
	}

	if deps.Gateway != nil {
		router.GET("/ws", deps.Gateway)
	}

	chatRoutes := router.Group("/chat")
	{
		user := chatRoutes.Group("/thread")
		user.Use(middleware.AuthMiddleware(deps.JWT))
		{
			user.POST("", chatHandler.OpenThread)
			user.GET("/:id/messages", chatHandler.ListMessages)
			user.POST("/:id/messages", chatHandler.SendMessage)
			user.POST("/:id/images", chatHandler.UploadImage)
		}

		admin := chatRoutes.Group("/admin")
		admin.Use(middleware.StaffAuthMiddleware(deps.JWT))
		{
			admin.GET("/threads", chatHandler.ListThreads)
			admin.GET("/threads/:id/messages", chatHandler.ListMessages)
			admin.POST("/threads/:id/messages", chatHandler.SendMessage)
			admin.POST("/threads/:id/images", chatHandler.UploadImage)
			admin.POST("/threads/:id/read", chatHandler.MarkRead)
			admin.POST("/threads/:id/close", chatHandler.CloseThread)
			admin.POST("/threads/:id/hide-history", chatHandler.HideHistory)
			admin.DELETE("/threads/:id", chatHandler.DeleteThread)
			admin.GET("/users/by-phone/:phone", chatHandler.LookupUserByPhone)
		}
	}
}
