package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// FrameSeparator 事件帧之间的分隔符
	FrameSeparator = "\n\n"
	// DataPrefix 数据事件前缀
	DataPrefix = "data:"
)

var frameSeparator = []byte(FrameSeparator)

// MaxFrameSize 单帧上限，超出的帧被整体丢弃
const MaxFrameSize = 1 << 20

// Decoder 把任意切分的字节块还原为数据事件
// 未遇到分隔符的尾部字节保留到下一个块，分隔符或多字节字符跨块时不会丢帧
type Decoder struct {
	buf        []byte
	scanned    int  // buf[:scanned] 中已确认没有分隔符
	discarding bool // 正在丢弃超长帧，直到下一个分隔符
	maxFrame   int
	logger     *zap.Logger
}

// NewDecoder 创建解码器
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{maxFrame: MaxFrameSize, logger: logger}
}

// Feed 写入一个网络块，返回本块补全的所有数据事件
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var out []string
	consumed := 0
	from := d.scanned
	for {
		idx := bytes.Index(d.buf[from:], frameSeparator)
		if idx < 0 {
			break
		}
		end := from + idx
		if d.discarding {
			d.discarding = false
		} else if data, ok := d.frame(d.buf[consumed:end]); ok {
			out = append(out, data)
		}
		consumed = end + len(frameSeparator)
		from = consumed
	}

	if consumed > 0 {
		rest := d.buf[consumed:]
		d.buf = append(make([]byte, 0, len(rest)), rest...)
	}

	// 分隔符可能跨块，末尾少于分隔符长度的字节下次重新检查
	d.scanned = len(d.buf) - (len(frameSeparator) - 1)
	if d.scanned < 0 {
		d.scanned = 0
	}

	if len(d.buf) > d.maxFrame {
		if !d.discarding {
			d.logger.Warn("事件帧超过上限，已丢弃", zap.Int("limit", d.maxFrame))
		}
		keep := d.buf[d.scanned:]
		d.buf = append(make([]byte, 0, len(keep)), keep...)
		d.scanned = 0
		d.discarding = true
	}
	return out
}

// Flush 流结束时处理缓冲区中未以分隔符结尾的最后一帧
func (d *Decoder) Flush() []string {
	raw, discarding := d.buf, d.discarding
	d.buf, d.scanned, d.discarding = nil, 0, false
	if len(raw) == 0 || discarding {
		return nil
	}
	if data, ok := d.frame(raw); ok {
		return []string{data}
	}
	return nil
}

// Buffered 尚未成帧的字节数
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) frame(raw []byte) (string, bool) {
	text := strings.TrimLeft(decodeLossy(raw), "\r\n")
	if text == "" {
		return "", false
	}
	if !strings.HasPrefix(text, DataPrefix) {
		d.logger.Debug("丢弃非数据帧", zap.String("frame", text))
		return "", false
	}

	data := strings.TrimSpace(text[len(DataPrefix):])
	if data == "" {
		return "", false
	}
	d.logger.Debug("收到数据帧", zap.String("data", data))
	return data, true
}

// decodeLossy 按 UTF-8 解码，非法字节替换为 U+FFFD
func decodeLossy(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}
