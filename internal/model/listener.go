package model

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrListenerClosed 监听者已关闭
var ErrListenerClosed = errors.New("监听者已关闭")

// ErrListenerBusy SSE 监听者缓冲区已满
var ErrListenerBusy = errors.New("监听者缓冲区已满")

const (
	heartbeatTimeout = 60 * time.Second
	maxMissedBeats   = 3
	writeTimeout     = 10 * time.Second
)

// UIConnection 界面 websocket 连接
type UIConnection struct {
	ConnID        string
	Conn          *websocket.Conn
	ClientIP      string
	LastHeartbeat time.Time
	MissedBeats   int
	mu            sync.RWMutex // 保护会话字段
	writeMu       sync.Mutex   // 串行化写入
}

// NewUIConnection 创建 websocket 连接记录
func NewUIConnection(id string, conn *websocket.Conn, clientIP string) *UIConnection {
	return &UIConnection{
		ConnID:        id,
		Conn:          conn,
		ClientIP:      clientIP,
		LastHeartbeat: time.Now(),
	}
}

// ID 连接 ID
func (s *UIConnection) ID() string {
	return s.ConnID
}

// UpdateHeartbeat 更新心跳时间
func (s *UIConnection) UpdateHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
	s.MissedBeats = 0
}

// CheckHeartbeat 心跳超时则累计丢失次数，返回是否应该清理
func (s *UIConnection) CheckHeartbeat(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.LastHeartbeat) > heartbeatTimeout {
		s.MissedBeats++
	}
	return s.MissedBeats >= maxMissedBeats
}

// Send 向 websocket 写入事件（线程安全）
func (s *UIConnection) Send(env EventEnvelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.Conn.WriteJSON(env)
}

// Ping 发送 ping 控制帧，可与 Send 并发调用
func (s *UIConnection) Ping() error {
	return s.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// Close 关闭连接
func (s *UIConnection) Close() error {
	return s.Conn.Close()
}

// StreamListener 通过 SSE 接收事件的界面
// 事件按顺序进入缓冲通道，由 HTTP 处理协程写出
type StreamListener struct {
	ListenerID string
	events     chan EventEnvelope
	closed     chan struct{}
	once       sync.Once
	mu         sync.Mutex
}

// NewStreamListener 创建 SSE 监听者
func NewStreamListener(id string, buffer int) *StreamListener {
	return &StreamListener{
		ListenerID: id,
		events:     make(chan EventEnvelope, buffer),
		closed:     make(chan struct{}),
	}
}

// ID 监听者 ID
func (l *StreamListener) ID() string {
	return l.ListenerID
}

// Events 待写出的事件
func (l *StreamListener) Events() <-chan EventEnvelope {
	return l.events
}

// Closed 监听者关闭信号
func (l *StreamListener) Closed() <-chan struct{} {
	return l.closed
}

// Send 放入缓冲区，不阻塞转发循环
func (l *StreamListener) Send(env EventEnvelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.closed:
		return ErrListenerClosed
	default:
	}

	select {
	case l.events <- env:
		return nil
	default:
		return ErrListenerBusy
	}
}

// Close 关闭监听者，可重复调用
func (l *StreamListener) Close() error {
	l.once.Do(func() {
		l.mu.Lock()
		close(l.closed)
		l.mu.Unlock()
	})
	return nil
}
