package handler

import (
	"net/http"

	"github.com/eulercopilot/copilot-desktop-go/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 全部路由处理器
type Handlers struct {
	API       *APIHandler
	WebSocket *WebSocketHandler
	Events    *EventsHandler
	LogLevel  http.Handler

	// Origins 为 nil 时只接受不带 Origin 的本机请求
	Origins *middleware.OriginPolicy
}

// NewRouter 创建路由
func NewRouter(h Handlers, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(h.Origins))

	api := r.Group("/api")
	{
		api.POST("/conversation", h.API.CreateConversation)
		api.POST("/session", h.API.RefreshSession)
		api.POST("/chat", h.API.Chat)
		api.POST("/stop", h.API.Stop)
		api.GET("/plugin", h.API.Plugin)
		api.GET("/config", h.API.GetConfig)
		api.PUT("/config", h.API.UpdateConfig)
		api.GET("/health", h.API.Health)

		if h.Events != nil {
			api.GET("/events", h.Events.Stream)
		}
		if h.LogLevel != nil {
			api.GET("/log/level", gin.WrapH(h.LogLevel))
			api.PUT("/log/level", gin.WrapH(h.LogLevel))
		}
	}

	if h.WebSocket != nil {
		r.GET("/ws", h.WebSocket.HandleWebSocket)
	}

	return r
}
