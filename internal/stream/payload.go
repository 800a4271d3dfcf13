package stream

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// 哨兵标记
const (
	SentinelDone      = "[DONE]"
	SentinelError     = "[ERROR]"
	SentinelSensitive = "[SENSITIVE]"
)

// Payload 数据事件的解释结果，只有本包内的类型实现
type Payload interface {
	isPayload()
}

// Text 回答文本片段（content 字段）
type Text struct {
	Value string
}

// SearchSuggestions 搜索建议，原样转发整个对象
type SearchSuggestions struct {
	Raw string
}

// Extracted extract.data 中的结构化数据
type Extracted struct {
	Raw string
}

// Empty 无需转发
type Empty struct{}

// Sentinel 结束、错误或敏感内容标记
type Sentinel struct {
	Token string
}

func (Text) isPayload()              {}
func (SearchSuggestions) isPayload() {}
func (Extracted) isPayload()         {}
func (Empty) isPayload()             {}
func (Sentinel) isPayload()          {}

// IsSentinel 判断是否为哨兵标记
func IsSentinel(data string) bool {
	switch data {
	case SentinelDone, SentinelError, SentinelSensitive:
		return true
	}
	return false
}

// Interpreter 解释数据事件内容
type Interpreter struct {
	logger *zap.Logger
}

// NewInterpreter 创建解释器
func NewInterpreter(logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{logger: logger}
}

// Interpret 解释一条数据事件，解析失败视为 Empty 并记录日志
func (in *Interpreter) Interpret(data string) Payload {
	p, err := interpret(data)
	if err != nil {
		in.logger.Debug("数据事件解析失败", zap.String("data", data), zap.Error(err))
		return Empty{}
	}
	return p
}

func interpret(data string) (Payload, error) {
	if IsSentinel(data) {
		return Sentinel{Token: data}, nil
	}

	raw := []byte(data)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("非法 JSON")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// 合法 JSON 但不是对象
		return Empty{}, nil
	}

	if content, ok := obj["content"]; ok {
		var v interface{}
		if err := json.Unmarshal(content, &v); err != nil {
			return Empty{}, nil
		}
		s, ok := v.(string)
		if !ok {
			// null、数字、对象等都不转发
			return Empty{}, nil
		}
		return Text{Value: s}, nil
	}

	if _, ok := obj["search_suggestions"]; ok {
		return SearchSuggestions{Raw: compact(raw)}, nil
	}

	if extract, ok := obj["extract"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(extract, &inner); err != nil {
			return Empty{}, nil
		}
		if value, ok := inner["data"]; ok {
			return Extracted{Raw: compact(value)}, nil
		}
	}

	return Empty{}, nil
}

// Message 转换为推送给界面的消息，Empty 返回 false
func Message(p Payload) (string, bool) {
	switch v := p.(type) {
	case Text:
		return v.Value, true
	case SearchSuggestions:
		return v.Raw, true
	case Extracted:
		return v.Raw, true
	case Sentinel:
		return v.Token, true
	case Empty:
		return "", false
	default:
		panic(fmt.Sprintf("stream: unhandled payload %T", p))
	}
}

// IsTerminal 哨兵标记之后不再处理后续数据
func IsTerminal(p Payload) bool {
	_, ok := p.(Sentinel)
	return ok
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
