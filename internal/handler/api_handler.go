package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eulercopilot/copilot-desktop-go/internal/client"
	"github.com/eulercopilot/copilot-desktop-go/internal/config"
	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/eulercopilot/copilot-desktop-go/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionBackend 对话与会话接口
type SessionBackend interface {
	CreateConversation(ctx context.Context) (string, error)
	RefreshSession(ctx context.Context, sessionID string) (string, error)
}

// ChatRunner 问答转发
type ChatRunner interface {
	Chat(ctx context.Context, req model.ChatRequest) (int, error)
	Stop(ctx context.Context, sessionID string) error
}

// PluginLister 插件列表
type PluginLister interface {
	List(ctx context.Context) (json.RawMessage, error)
}

// DesktopConfigStore 后端地址与 API Key 的持久化
type DesktopConfigStore interface {
	Load() (*config.DesktopConfig, error)
	Update(baseURL, apiKey string) error
}

// ListenerCounter 在线界面数
type ListenerCounter interface {
	Count() int
}

// APIHandler API 处理器
type APIHandler struct {
	sessions    SessionBackend
	chat        ChatRunner
	plugins     PluginLister
	desktop     DesktopConfigStore
	listeners   ListenerCounter
	serviceName string
	logger      *zap.Logger
}

// NewAPIHandler 创建 API 处理器
func NewAPIHandler(sessions SessionBackend, chat ChatRunner, plugins PluginLister, desktop DesktopConfigStore,
	listeners ListenerCounter, serviceName string, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		sessions:    sessions,
		chat:        chat,
		plugins:     plugins,
		desktop:     desktop,
		listeners:   listeners,
		serviceName: serviceName,
		logger:      logger,
	}
}

// CreateConversation 创建新对话
func (h *APIHandler) CreateConversation(c *gin.Context) {
	id, err := h.sessions.CreateConversation(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("创建对话", zap.String("conversationId", id))
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

// RefreshSession 刷新会话 ID
func (h *APIHandler) RefreshSession(c *gin.Context) {
	var req model.SessionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	id, err := h.sessions.RefreshSession(c.Request.Context(), req.SessionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("刷新会话",
		zap.String("oldSessionId", req.SessionID),
		zap.String("sessionId", id))
	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

// Chat 发起问答，回答通过事件推送，结束后返回后端状态码
func (h *APIHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	status, err := h.chat.Chat(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// Stop 停止回答
func (h *APIHandler) Stop(c *gin.Context) {
	var req model.StopRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	if err := h.chat.Stop(c.Request.Context(), req.SessionID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Plugin 插件列表，原样返回后端 JSON
func (h *APIHandler) Plugin(c *gin.Context) {
	raw, err := h.plugins.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// GetConfig 读取后端地址和 API Key，默认隐藏 Key
func (h *APIHandler) GetConfig(c *gin.Context) {
	cfg, err := h.desktop.Load()
	if err != nil {
		h.writeError(c, err)
		return
	}

	key := cfg.APIKey
	if c.Query("reveal") != "true" {
		key = maskKey(key)
	}
	c.JSON(http.StatusOK, gin.H{"url": cfg.BaseURL, "api_key": key})
}

// UpdateConfig 更新后端地址和 API Key
func (h *APIHandler) UpdateConfig(c *gin.Context) {
	var req model.ConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if _, err := client.Endpoint(req.URL, "/"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": err.Error()})
		return
	}

	if err := h.desktop.Update(req.URL, req.APIKey); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("后端配置已更新", zap.String("url", req.URL))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health 健康检查
func (h *APIHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "UP",
		"service":   h.serviceName,
		"listeners": h.listeners.Count(),
	})
}

// writeError 按错误类型映射 HTTP 状态
func (h *APIHandler) writeError(c *gin.Context, err error) {
	var (
		cfgErr   *config.ConfigError
		tErr     *client.TransportError
		protoErr *client.ProtocolError
	)

	status, kind := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.As(err, &cfgErr):
		status, kind = http.StatusInternalServerError, "config_error"
	case errors.As(err, &tErr):
		status, kind = http.StatusBadGateway, "transport_error"
	case errors.As(err, &protoErr):
		status, kind = http.StatusBadGateway, "protocol_error"
	case errors.Is(err, service.ErrChatInFlight):
		status, kind = http.StatusConflict, "chat_in_flight"
	case errors.Is(err, service.ErrStreamIdle):
		status, kind = http.StatusGatewayTimeout, "stream_idle"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, kind = http.StatusRequestTimeout, "canceled"
	}

	h.logger.Warn("请求失败",
		zap.String("path", c.FullPath()),
		zap.String("kind", kind),
		zap.Error(err))
	c.JSON(status, gin.H{"error": kind, "message": err.Error()})
}

// bindOptionalJSON 请求体可以为空
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	return false
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "********"
	}
	return key[:4] + "********" + key[len(key)-4:]
}
