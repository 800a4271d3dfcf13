package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/config"
	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"go.uber.org/zap"
)

// 后端接口路径
const (
	ChatPath         = "/api/client/chat"
	ConversationPath = "/api/client/conversation"
	SessionPath      = "/api/client/session"
	StopPath         = "/api/client/stop"
	PluginPath       = "/api/client/plugin"
)

const (
	// DefaultRequestTimeout 非流式请求的默认超时
	DefaultRequestTimeout = 30 * time.Second

	// maxResponseSize 非流式响应体上限
	maxResponseSize = 10 * 1024 * 1024
)

// ConfigSource 提供后端地址和 API Key，每次请求都会重新读取
type ConfigSource interface {
	Load() (*config.DesktopConfig, error)
}

// BackendClient 对话后端客户端
type BackendClient struct {
	source       ConfigSource
	httpClient   *http.Client
	streamClient *http.Client
	logger       *zap.Logger
}

// NewBackendClient 创建后端客户端
// 流式请求不设总超时，空闲超时由转发循环控制
func NewBackendClient(source ConfigSource, timeout time.Duration, logger *zap.Logger) *BackendClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &BackendClient{
		source:       source,
		httpClient:   &http.Client{Transport: transport, Timeout: timeout},
		streamClient: &http.Client{Transport: transport},
		logger:       logger,
	}
}

// OpenChatStream 发起问答请求并返回 SSE 字节流
// 非 2xx 状态同样返回响应体，由调用方决定如何处理
func (c *BackendClient) OpenChatStream(ctx context.Context, req model.ChatRequest) (int, io.ReadCloser, error) {
	const op = "调用问答接口"

	httpReq, err := c.newRequest(ctx, http.MethodPost, ChatPath, req.Payload())
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("发起问答请求",
		zap.String("url", httpReq.URL.String()),
		zap.String("sessionId", req.SessionID),
		zap.String("conversationId", req.ConversationID))

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return 0, nil, &TransportError{Op: op, URL: httpReq.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("问答接口返回非成功状态，继续读取响应流",
			zap.Int("status", resp.StatusCode))
	}
	return resp.StatusCode, resp.Body, nil
}

// CreateConversation 创建新对话，返回 conversation_id
func (c *BackendClient) CreateConversation(ctx context.Context) (string, error) {
	const op = "创建对话"

	body, err := c.doJSON(ctx, op, http.MethodPost, ConversationPath, nil)
	if err != nil {
		return "", err
	}
	return resultString(op, body, "conversation_id")
}

// RefreshSession 刷新会话，sessionID 为空时申请新会话
func (c *BackendClient) RefreshSession(ctx context.Context, sessionID string) (string, error) {
	const op = "刷新会话"

	body, err := c.doJSON(ctx, op, http.MethodPost, SessionPath, model.SessionRequest{SessionID: sessionID})
	if err != nil {
		return "", err
	}
	return resultString(op, body, "session_id")
}

// Stop 通知后端停止生成
func (c *BackendClient) Stop(ctx context.Context) error {
	_, err := c.doJSON(ctx, "停止回答", http.MethodPost, StopPath, nil)
	return err
}

// Plugins 获取插件列表，原样返回后端 JSON
func (c *BackendClient) Plugins(ctx context.Context) (json.RawMessage, error) {
	const op = "获取插件列表"

	body, err := c.doJSON(ctx, op, http.MethodGet, PluginPath, nil)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &ProtocolError{Op: op, Field: "body", Err: errors.New("响应不是合法 JSON")}
	}
	return json.RawMessage(body), nil
}

// Endpoint 拼接后端地址，base 中的路径会被 path 替换
func Endpoint(baseURL, path string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &config.ConfigError{Field: "framework_url", Err: err}
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, &config.ConfigError{Field: "framework_url", Err: fmt.Errorf("%q 不是合法的 http(s) 地址", baseURL)}
	}
	return base.ResolveReference(&url.URL{Path: path}), nil
}

func (c *BackendClient) newRequest(ctx context.Context, method, path string, payload interface{}) (*http.Request, error) {
	cfg, err := c.source.Load()
	if err != nil {
		return nil, err
	}
	endpoint, err := Endpoint(cfg.BaseURL, path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	return req, nil
}

func (c *BackendClient) doJSON(ctx context.Context, op, method, path string, payload interface{}) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: fmt.Errorf("读取响应失败: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("后端返回错误",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)))
		return nil, &TransportError{Op: op, URL: req.URL.String(), Status: resp.StatusCode}
	}
	return body, nil
}

// envelope 后端通用响应 {result: {...}}
type envelope struct {
	Result map[string]json.RawMessage `json:"result"`
}

func resultString(op string, body []byte, field string) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", &ProtocolError{Op: op, Field: "result", Err: err}
	}

	raw, ok := env.Result[field]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return "", &ProtocolError{Op: op, Field: field}
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &ProtocolError{Op: op, Field: field, Err: errFieldType}
	}
	return value, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
