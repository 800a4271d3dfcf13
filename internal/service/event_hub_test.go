package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingListener struct {
	id     string
	mu     sync.Mutex
	events []model.EventEnvelope
	closed bool
}

func (l *recordingListener) ID() string { return l.id }

func (l *recordingListener) Send(env model.EventEnvelope) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, env)
	return nil
}

func (l *recordingListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *recordingListener) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Payload.Message)
	}
	return out
}

type mockListener struct {
	mock.Mock
}

func (m *mockListener) ID() string { return m.Called().String(0) }

func (m *mockListener) Send(env model.EventEnvelope) error { return m.Called(env).Error(0) }

func (m *mockListener) Close() error { return m.Called().Error(0) }

type staleListener struct {
	recordingListener
	stale bool
}

func (l *staleListener) UpdateHeartbeat() { l.stale = false }

func (l *staleListener) CheckHeartbeat(time.Time) bool { return l.stale }

func TestEventHubEmitNoListener(t *testing.T) {
	h := NewEventHub(zap.NewNop())
	defer h.Close()

	err := h.Emit(model.StreamEvent, model.StreamPayload{Message: "x"})
	assert.ErrorIs(t, err, ErrNoListener)
}

func TestEventHubBroadcastInOrder(t *testing.T) {
	h := NewEventHub(zap.NewNop())
	defer h.Close()

	a := &recordingListener{id: "a"}
	b := &recordingListener{id: "b"}
	h.Register(a)
	h.Register(b)
	assert.Equal(t, 2, h.Count())

	for _, m := range []string{"1", "2", "[DONE]"} {
		require.NoError(t, h.Emit(model.StreamEvent, model.StreamPayload{Message: m}))
	}

	assert.Equal(t, []string{"1", "2", "[DONE]"}, a.messages())
	assert.Equal(t, []string{"1", "2", "[DONE]"}, b.messages())
	assert.Equal(t, model.StreamEvent, a.events[0].Event)
}

func TestEventHubDropsFailingListener(t *testing.T) {
	h := NewEventHub(zap.NewNop())
	defer h.Close()

	bad := &mockListener{}
	bad.On("ID").Return("bad")
	bad.On("Send", mock.Anything).Return(errors.New("broken pipe")).Once()
	bad.On("Close").Return(nil)

	good := &recordingListener{id: "good"}
	h.Register(bad)
	h.Register(good)

	require.NoError(t, h.Emit(model.StreamEvent, model.StreamPayload{Message: "1"}))
	require.NoError(t, h.Emit(model.StreamEvent, model.StreamPayload{Message: "2"}))

	assert.Equal(t, 1, h.Count())
	assert.Equal(t, []string{"1", "2"}, good.messages())
	bad.AssertExpectations(t)
}

func TestEventHubRegisterReplacesSameID(t *testing.T) {
	h := NewEventHub(zap.NewNop())
	defer h.Close()

	old := &recordingListener{id: "x"}
	h.Register(old)
	h.Register(&recordingListener{id: "x"})

	assert.True(t, old.closed)
	assert.Equal(t, 1, h.Count())
}

func TestEventHubHeartbeatCleanup(t *testing.T) {
	h := NewEventHub(zap.NewNop())
	defer h.Close()

	l := &staleListener{recordingListener: recordingListener{id: "ws"}, stale: true}
	h.Register(l)
	h.Register(&recordingListener{id: "sse"})

	assert.True(t, h.Heartbeat("ws"))
	h.checkHeartbeats(time.Now())
	assert.Equal(t, 2, h.Count())

	l.stale = true
	h.checkHeartbeats(time.Now())
	assert.Equal(t, 1, h.Count())
	assert.True(t, l.closed)
	assert.False(t, h.Heartbeat("ws"))
}
