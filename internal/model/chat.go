package model

// DefaultLanguage 未指定语言时的回答语言
const DefaultLanguage = "zh"

// ChatRequest 界面发起的问答请求
// 可选字段为 nil 或空字符串时都不会发送给后端
type ChatRequest struct {
	SessionID      string  `json:"session_id" binding:"required"`
	Question       string  `json:"question" binding:"required"`
	ConversationID string  `json:"conversation_id"`
	Language       string  `json:"language,omitempty"`
	RecordID       *string `json:"record_id,omitempty"`
	SelectedPlugin *string `json:"selected_plugin,omitempty"`
	SelectedFlow   *string `json:"selected_flow,omitempty"`
	FlowID         *string `json:"flow_id,omitempty"`
}

// ChatPayload 发送给 /api/client/chat 的请求体
type ChatPayload struct {
	SessionID           string   `json:"session_id"`
	Question            string   `json:"question"`
	ConversationID      string   `json:"conversation_id"`
	Language            string   `json:"language"`
	RecordID            string   `json:"record_id,omitempty"`
	UserSelectedPlugins []string `json:"user_selected_plugins,omitempty"`
	UserSelectedFlow    string   `json:"user_selected_flow,omitempty"`
	FlowID              string   `json:"flow_id,omitempty"`
}

// Payload 规范化为后端请求体
func (r ChatRequest) Payload() ChatPayload {
	p := ChatPayload{
		SessionID:        r.SessionID,
		Question:         r.Question,
		ConversationID:   r.ConversationID,
		Language:         r.Language,
		RecordID:         deref(r.RecordID),
		UserSelectedFlow: deref(r.SelectedFlow),
		FlowID:           deref(r.FlowID),
	}
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if plugin := deref(r.SelectedPlugin); plugin != "" {
		p.UserSelectedPlugins = []string{plugin}
	}
	return p
}

// SessionRequest 刷新会话请求体
type SessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// StopRequest 停止回答请求体，session_id 为空时停止全部回答
type StopRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// ConfigUpdateRequest 更新后端配置
type ConfigUpdateRequest struct {
	URL    string `json:"url" binding:"required"`
	APIKey string `json:"api_key"`
}

// StringPtr 返回 s 的指针
func StringPtr(s string) *string {
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
