package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/client"
	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/eulercopilot/copilot-desktop-go/internal/stream"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStreamIdle 回答流长时间没有数据
var ErrStreamIdle = errors.New("回答流空闲超时")

const (
	DefaultIdleTimeout = 5 * time.Minute
	DefaultChunkSize   = 4096
)

// Backend 问答后端
type Backend interface {
	OpenChatStream(ctx context.Context, req model.ChatRequest) (int, io.ReadCloser, error)
	Stop(ctx context.Context) error
}

// Emitter 界面事件出口
type Emitter interface {
	Publish(env model.EventEnvelope) error
}

// RelayOptions 转发参数，IdleTimeout 为 0 时不限制空闲时间
type RelayOptions struct {
	IdleTimeout time.Duration
	ChunkSize   int
}

// ChatService 聊天服务，把后端回答流逐条推送给界面
type ChatService struct {
	backend     Backend
	emitter     Emitter
	aborts      *AbortRegistry
	opts        RelayOptions
	interpreter *stream.Interpreter
	logger      *zap.Logger
}

// NewChatService 创建聊天服务
func NewChatService(backend Backend, emitter Emitter, aborts *AbortRegistry, opts RelayOptions, logger *zap.Logger) *ChatService {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.IdleTimeout < 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &ChatService{
		backend:     backend,
		emitter:     emitter,
		aborts:      aborts,
		opts:        opts,
		interpreter: stream.NewInterpreter(logger),
		logger:      logger,
	}
}

// Chat 发起问答并转发回答，直到结束、被中止或出错
// 返回后端 HTTP 状态码
func (s *ChatService) Chat(ctx context.Context, req model.ChatRequest) (int, error) {
	token, err := s.aborts.Begin(req.SessionID)
	if err != nil {
		return 0, err
	}
	defer s.aborts.End(token)

	log := s.logger.With(
		zap.String("answerId", uuid.NewString()),
		zap.String("sessionId", req.SessionID))
	log.Info("开始回答", zap.String("conversationId", req.ConversationID))

	status, body, err := s.backend.OpenChatStream(ctx, req)
	if err != nil {
		log.Error("打开回答流失败", zap.Error(err))
		s.emit(log, req.SessionID, stream.SentinelError)
		return 0, err
	}
	defer body.Close()

	status, err = s.relay(ctx, log, token, body, status)
	if err != nil {
		log.Warn("回答异常结束", zap.Int("status", status), zap.Error(err))
		return status, err
	}
	log.Info("回答结束", zap.Int("status", status))
	return status, nil
}

// Stop 中止本地回答并通知后端，sessionID 为空时中止全部
func (s *ChatService) Stop(ctx context.Context, sessionID string) error {
	n := s.aborts.Stop(sessionID)
	s.logger.Info("停止回答", zap.String("sessionId", sessionID), zap.Int("stopped", n))

	if err := s.backend.Stop(ctx); err != nil {
		s.logger.Error("通知后端停止失败", zap.Error(err))
		return err
	}
	return nil
}

type chunk struct {
	data []byte
	err  error
}

// pump 读取响应体，EOF 时关闭 out
func pump(r io.Reader, size int, out chan<- chunk, quit <-chan struct{}) {
	defer close(out)
	for {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- chunk{data: buf[:n]}:
			case <-quit:
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			select {
			case out <- chunk{err: err}:
			case <-quit:
			}
			return
		}
	}
}

func (s *ChatService) relay(ctx context.Context, log *zap.Logger, token *AbortToken, body io.Reader, status int) (int, error) {
	sessionID := token.SessionID()

	quit := make(chan struct{})
	defer close(quit)
	chunks := make(chan chunk)
	go pump(body, s.opts.ChunkSize, chunks, quit)

	var idleC <-chan time.Time
	var idle *time.Timer
	if s.opts.IdleTimeout > 0 {
		idle = time.NewTimer(s.opts.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	decoder := stream.NewDecoder(log)
	for {
		select {
		case <-token.Done():
			log.Info("回答被中止")
			s.emit(log, sessionID, stream.SentinelDone)
			return status, nil

		case <-ctx.Done():
			log.Info("请求已取消", zap.Error(ctx.Err()))
			s.emit(log, sessionID, stream.SentinelDone)
			return status, ctx.Err()

		case <-idleC:
			s.emit(log, sessionID, stream.SentinelError)
			return status, ErrStreamIdle

		case c, ok := <-chunks:
			if !ok {
				for _, data := range decoder.Flush() {
					if s.deliver(log, sessionID, data) {
						break
					}
				}
				return status, nil
			}

			if c.err != nil {
				if ctx.Err() != nil {
					s.emit(log, sessionID, stream.SentinelDone)
					return status, ctx.Err()
				}
				s.emit(log, sessionID, stream.SentinelError)
				return status, &client.TransportError{Op: "读取回答流", Err: c.err}
			}

			if !token.Live() {
				log.Info("回答被中止")
				s.emit(log, sessionID, stream.SentinelDone)
				return status, nil
			}

			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(s.opts.IdleTimeout)
			}

			log.Debug("收到数据块", zap.Int("size", len(c.data)))
			for _, data := range decoder.Feed(c.data) {
				if s.deliver(log, sessionID, data) {
					return status, nil
				}
			}
		}
	}
}

// deliver 解释并推送一条数据事件，返回是否遇到结束标记
func (s *ChatService) deliver(log *zap.Logger, sessionID, data string) bool {
	p := s.interpreter.Interpret(data)
	if msg, ok := stream.Message(p); ok {
		s.emit(log, sessionID, msg)
	}
	return stream.IsTerminal(p)
}

func (s *ChatService) emit(log *zap.Logger, sessionID, message string) {
	err := s.emitter.Publish(model.EventEnvelope{
		Event:     model.StreamEvent,
		SessionID: sessionID,
		Payload:   model.StreamPayload{Message: message},
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNoListener):
		log.Debug("没有界面接收事件", zap.String("message", message))
	default:
		log.Warn("推送事件失败", zap.Error(err))
	}
}
