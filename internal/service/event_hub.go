package service

import (
	"errors"
	"sync"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"go.uber.org/zap"
)

// ErrNoListener 没有界面在监听事件
var ErrNoListener = errors.New("没有界面在监听")

const heartbeatInterval = 30 * time.Second

// Listener 界面事件监听者
type Listener interface {
	ID() string
	Send(env model.EventEnvelope) error
	Close() error
}

// heartbeater 需要心跳检测的监听者
type heartbeater interface {
	UpdateHeartbeat()
	CheckHeartbeat(now time.Time) bool
}

// EventHub 向所有界面广播回答事件
type EventHub struct {
	listeners map[string]Listener
	order     []string
	mu        sync.RWMutex
	stop      chan struct{}
	once      sync.Once
	logger    *zap.Logger
}

// NewEventHub 创建事件中心
func NewEventHub(logger *zap.Logger) *EventHub {
	h := &EventHub{
		listeners: make(map[string]Listener),
		stop:      make(chan struct{}),
		logger:    logger,
	}

	// 启动心跳检测
	go h.heartbeatChecker()

	return h
}

// Register 注册监听者，同 ID 的旧监听者会被关闭
func (h *EventHub) Register(l Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.listeners[l.ID()]; ok {
		h.logger.Info("监听者重新连接，关闭旧连接", zap.String("listenerId", l.ID()))
		old.Close()
	} else {
		h.order = append(h.order, l.ID())
	}
	h.listeners[l.ID()] = l

	h.logger.Info("监听者注册成功",
		zap.String("listenerId", l.ID()),
		zap.Int("count", len(h.listeners)))
}

// Remove 移除监听者
func (h *EventHub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *EventHub) removeLocked(id string) {
	l, ok := h.listeners[id]
	if !ok {
		return
	}
	l.Close()
	delete(h.listeners, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.logger.Info("监听者已移除", zap.String("listenerId", id))
}

// Heartbeat 更新心跳时间
func (h *EventHub) Heartbeat(id string) bool {
	h.mu.RLock()
	l, ok := h.listeners[id]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	if hb, ok := l.(heartbeater); ok {
		hb.UpdateHeartbeat()
	}
	h.logger.Debug("心跳已更新", zap.String("listenerId", id))
	return true
}

// Count 当前监听者数量
func (h *EventHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Emit 向全部监听者发送事件
func (h *EventHub) Emit(event string, payload model.StreamPayload) error {
	return h.Publish(model.EventEnvelope{Event: event, Payload: payload})
}

// Publish 广播事件，发送失败的监听者会被移除
func (h *EventHub) Publish(env model.EventEnvelope) error {
	h.mu.RLock()
	targets := make([]Listener, 0, len(h.order))
	for _, id := range h.order {
		targets = append(targets, h.listeners[id])
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		h.logger.Debug("没有监听者，事件被丢弃",
			zap.String("event", env.Event),
			zap.String("message", env.Payload.Message))
		return ErrNoListener
	}

	var failed []string
	for _, l := range targets {
		if err := l.Send(env); err != nil {
			h.logger.Warn("事件发送失败",
				zap.String("listenerId", l.ID()),
				zap.Error(err))
			failed = append(failed, l.ID())
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			h.removeLocked(id)
		}
		h.mu.Unlock()
	}
	return nil
}

// Close 停止心跳检测并关闭全部监听者
func (h *EventHub) Close() {
	h.once.Do(func() {
		close(h.stop)

		h.mu.Lock()
		defer h.mu.Unlock()
		for _, l := range h.listeners {
			l.Close()
		}
		h.listeners = make(map[string]Listener)
		h.order = nil
	})
}

// heartbeatChecker 心跳检测器
func (h *EventHub) heartbeatChecker() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.checkHeartbeats(now)
		}
	}
}

func (h *EventHub) checkHeartbeats(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, l := range h.listeners {
		hb, ok := l.(heartbeater)
		if !ok {
			continue
		}
		if hb.CheckHeartbeat(now) {
			h.logger.Info("清理无效监听者", zap.String("listenerId", id))
			h.removeLocked(id)
		}
	}
}
