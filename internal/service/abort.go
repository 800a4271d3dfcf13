package service

import (
	"errors"
	"sync"
)

// ErrChatInFlight 同一会话已有进行中的回答
var ErrChatInFlight = errors.New("该会话已有进行中的回答")

// AbortToken 单次回答的中止标记
type AbortToken struct {
	sessionID string
	mu        sync.Mutex
	live      bool
	done      chan struct{}
	once      sync.Once
}

func newAbortToken(sessionID string) *AbortToken {
	return &AbortToken{
		sessionID: sessionID,
		live:      true,
		done:      make(chan struct{}),
	}
}

// SessionID 所属会话
func (t *AbortToken) SessionID() string {
	return t.sessionID
}

// Live 回答是否仍应继续
func (t *AbortToken) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// Done 中止时关闭
func (t *AbortToken) Done() <-chan struct{} {
	return t.done
}

func (t *AbortToken) abort() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

// AbortRegistry 按会话管理中止标记
type AbortRegistry struct {
	mu     sync.Mutex
	tokens map[string]*AbortToken
}

// NewAbortRegistry 创建中止标记注册表
func NewAbortRegistry() *AbortRegistry {
	return &AbortRegistry{tokens: make(map[string]*AbortToken)}
}

// Begin 为会话创建新的中止标记
// 旧回答即使已被中止，在 End 之前同一会话也不能开始新回答
func (r *AbortRegistry) Begin(sessionID string) (*AbortToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[sessionID]; ok {
		return nil, ErrChatInFlight
	}
	t := newAbortToken(sessionID)
	r.tokens[sessionID] = t
	return t, nil
}

// Stop 中止会话的回答，sessionID 为空时中止全部，返回被中止的数量
func (r *AbortRegistry) Stop(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopped := 0
	for id, t := range r.tokens {
		if sessionID != "" && id != sessionID {
			continue
		}
		if t.Live() {
			stopped++
		}
		t.abort()
	}
	return stopped
}

// End 回答结束后释放标记
func (r *AbortRegistry) End(t *AbortToken) {
	if t == nil {
		return
	}
	t.abort()

	r.mu.Lock()
	if cur, ok := r.tokens[t.sessionID]; ok && cur == t {
		delete(r.tokens, t.sessionID)
	}
	r.mu.Unlock()
}

// Live 会话是否有进行中的回答
func (r *AbortRegistry) Live(sessionID string) bool {
	r.mu.Lock()
	t, ok := r.tokens[sessionID]
	r.mu.Unlock()
	return ok && t.Live()
}

// Active 进行中的回答数
func (r *AbortRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tokens {
		if t.Live() {
			n++
		}
	}
	return n
}
