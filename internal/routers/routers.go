package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/PropChat/config"
	"github.com/Gopher0727/PropChat/internal/gateway"
	"github.com/Gopher0727/PropChat/internal/handlers"
	"github.com/Gopher0727/PropChat/internal/middlewares"
	logger "github.com/Gopher0727/PropChat/middleware/log"
)

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, cfg *config.Config,
	gw *gateway.Gateway, // WebSocket 网关
	chatHandler *handlers.ChatHandler,
	tokens middlewares.TokenVerifier,
	l *logger.Logger,
) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", logger.TraceHeader}
	corsConfig.ExposeHeaders = []string{logger.TraceHeader}
	r.Use(cors.New(corsConfig))
	r.Use(logger.GinMiddleware(l))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": gw.SessionCount(),
		})
	})

	// WebSocket 路由 (鉴权在升级前由网关完成，且不受并发上限约束)
	r.GET("/ws", gw.ServeWS)

	RegisterChatRoutes(r, chatHandler, tokens, cfg.Server.MaxConcurrent)
}

// RegisterChatRoutes 聊天 REST 接口
func RegisterChatRoutes(r *gin.Engine, h *handlers.ChatHandler, tokens middlewares.TokenVerifier, maxConcurrent int) {
	chat := r.Group("/api/v1/chat")
	chat.Use(middlewares.MaxConcurrencyMiddleware(maxConcurrent), middlewares.AuthMiddleware(tokens))
	{
		chat.GET("/servers", h.GetServer) // 服务器概览

		// 频道与消息
		chat.POST("/channels", h.CreateChannel)
		chat.GET("/channels/:channel_id/messages", h.ListMessages)
		chat.POST("/channels/:channel_id/messages", h.PostMessage)
		chat.PUT("/messages/:message_id", h.EditMessage)
		chat.DELETE("/messages/:message_id", h.DeleteMessage)

		// 私聊
		chat.GET("/direct-messages", h.ListDMs)
		chat.POST("/direct-messages", h.OpenDM)
		chat.GET("/direct-messages/:channel_id/messages", h.DMHistory)
		chat.POST("/direct-messages/:channel_id/messages", h.SendDM)

		// 在线状态
		chat.PUT("/presence", h.UpdatePresence)
	}
}
