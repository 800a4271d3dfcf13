package client

import (
	"errors"
	"fmt"
)

// errFieldType 字段存在但不是预期类型
var errFieldType = errors.New("字段类型错误")

// TransportError 网络、TLS 或非 2xx 响应
type TransportError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s 失败: %s 返回 HTTP %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s 失败: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError 后端响应缺少约定字段或无法解析
type ProtocolError struct {
	Op    string
	Field string
	Err   error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: 无法获取 %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: 响应缺少 %s", e.Op, e.Field)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
