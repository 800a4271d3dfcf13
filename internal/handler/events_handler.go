package handler

import (
	"net/http"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/eulercopilot/copilot-desktop-go/internal/service"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	eventBuffer       = 256
	keepAliveInterval = 15 * time.Second
)

// EventsHandler 通过 SSE 向界面推送事件
type EventsHandler struct {
	hub    *service.EventHub
	logger *zap.Logger
}

// NewEventsHandler 创建 SSE 处理器
func NewEventsHandler(hub *service.EventHub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger}
}

// Stream 保持连接直到客户端断开
func (h *EventsHandler) Stream(c *gin.Context) {
	listener := model.NewStreamListener(uuid.New().String(), eventBuffer)
	h.hub.Register(listener)
	defer h.hub.Remove(listener.ID())

	header := c.Writer.Header()
	header.Set("Content-Type", sse.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	if err := h.write(c, sse.Event{Event: "ready", Data: gin.H{"listener_id": listener.ID()}}); err != nil {
		return
	}

	h.logger.Info("SSE 监听者已连接", zap.String("listenerId", listener.ID()))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Info("SSE 监听者断开", zap.String("listenerId", listener.ID()))
			return
		case <-listener.Closed():
			return
		case env := <-listener.Events():
			if err := h.write(c, sse.Event{Event: env.Event, Data: env}); err != nil {
				h.logger.Warn("SSE 写入失败", zap.Error(err))
				return
			}
		case <-keepAlive.C:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (h *EventsHandler) write(c *gin.Context, ev sse.Event) error {
	if err := sse.Encode(c.Writer, ev); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
