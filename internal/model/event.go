package model

// StreamEvent 界面接收回答片段的事件名
const StreamEvent = "fetch-stream-data"

// StreamPayload 回答片段，Message 为哨兵标记或已提取的文本/JSON
type StreamPayload struct {
	Message string `json:"message"`
}

// EventEnvelope 推送给界面的事件（websocket / SSE 帧）
type EventEnvelope struct {
	Event     string        `json:"event"`
	SessionID string        `json:"session_id,omitempty"`
	Payload   StreamPayload `json:"payload"`
}

// ClientMessage 界面通过 websocket 发来的消息
type ClientMessage struct {
	Type      string `json:"type"` // HEARTBEAT / STOP
	SessionID string `json:"session_id,omitempty"`
}

// 界面消息类型
const (
	MessageHeartbeat = "HEARTBEAT"
	MessageStop      = "STOP"
)
