package handler

import (
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/middleware"
	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/eulercopilot/copilot-desktop-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// pongWait 内没有收到 pong 或消息即断开
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 25 * time.Second
)

// WebSocketHandler 界面事件通道
type WebSocketHandler struct {
	hub        *service.EventHub
	chat       ChatRunner
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *zap.Logger
}

// NewWebSocketHandler 创建 WebSocket 处理器，origins 为 nil 时拒绝所有跨域连接
func NewWebSocketHandler(hub *service.EventHub, chat ChatRunner, origins *middleware.OriginPolicy, logger *zap.Logger) *WebSocketHandler {
	if origins == nil {
		origins = middleware.NewOriginPolicy(nil)
	}
	return &WebSocketHandler{
		hub:        hub,
		chat:       chat,
		upgrader:   websocket.Upgrader{CheckOrigin: origins.Allowed},
		pingPeriod: defaultPingPeriod,
		pongWait:   defaultPongWait,
		logger:     logger,
	}
}

// HandleWebSocket WebSocket 连接入口
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败",
			zap.String("origin", c.Request.Header.Get("Origin")),
			zap.Error(err))
		return
	}

	connID := uuid.New().String()
	ui := model.NewUIConnection(connID, conn, c.ClientIP())
	h.hub.Register(ui)
	defer h.hub.Remove(connID)

	h.logger.Info("WebSocket 连接建立",
		zap.String("connId", connID),
		zap.String("clientIp", c.ClientIP()))

	alive := func() error {
		h.hub.Heartbeat(connID)
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	}
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error { return alive() })

	done := make(chan struct{})
	defer close(done)
	go h.ping(ui, done)

	// 消息循环
	for {
		var msg model.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket 读取错误", zap.String("connId", connID), zap.Error(err))
			}
			break
		}
		_ = alive()

		h.handleMessage(c, connID, &msg)
	}

	h.logger.Info("WebSocket 连接断开", zap.String("connId", connID))
}

// ping 定时发送 ping，界面由浏览器自动回复 pong
func (h *WebSocketHandler) ping(ui *model.UIConnection, done <-chan struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ui.Ping(); err != nil {
				h.logger.Debug("发送 ping 失败", zap.String("connId", ui.ConnID), zap.Error(err))
				return
			}
		}
	}
}

// handleMessage 处理界面消息
func (h *WebSocketHandler) handleMessage(c *gin.Context, connID string, msg *model.ClientMessage) {
	switch msg.Type {
	case model.MessageHeartbeat:
		h.logger.Debug("收到心跳", zap.String("connId", connID))

	case model.MessageStop:
		if err := h.chat.Stop(c.Request.Context(), msg.SessionID); err != nil {
			h.logger.Warn("停止回答失败",
				zap.String("sessionId", msg.SessionID),
				zap.Error(err))
		}

	default:
		h.logger.Warn("未知消息类型",
			zap.String("connId", connID),
			zap.String("type", msg.Type))
	}
}
