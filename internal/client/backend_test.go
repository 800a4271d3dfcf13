package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eulercopilot/copilot-desktop-go/internal/config"
	"github.com/eulercopilot/copilot-desktop-go/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticSource struct {
	cfg *config.DesktopConfig
	err error
}

func (s staticSource) Load() (*config.DesktopConfig, error) {
	return s.cfg, s.err
}

func newTestClient(baseURL string) *BackendClient {
	return NewBackendClient(staticSource{cfg: &config.DesktopConfig{BaseURL: baseURL, APIKey: "secret"}}, 5*time.Second, zap.NewNop())
}

func assertBaseHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
	assert.Equal(t, "application/json; charset=UTF-8", r.Header.Get("Content-Type"))
	assert.Equal(t, "keep-alive", r.Header.Get("Connection"))
}

func TestEndpoint(t *testing.T) {
	u, err := Endpoint("https://copilot.example.com/some/prefix/", ChatPath)
	require.NoError(t, err)
	assert.Equal(t, "https://copilot.example.com/api/client/chat", u.String())

	for _, bad := range []string{"", "copilot.example.com", "ftp://host", "http://", "://x"} {
		_, err := Endpoint(bad, ChatPath)
		var cfgErr *config.ConfigError
		assert.True(t, errors.As(err, &cfgErr), "base %q", bad)
	}
}

func TestOpenChatStream(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ChatPath, r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assertBaseHeaders(t, r)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	status, body, err := c.OpenChatStream(context.Background(), model.ChatRequest{
		SessionID: "s1", Question: "hi", ConversationID: "c1", RecordID: model.StringPtr(""),
	})
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, http.StatusOK, status)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: [DONE]\n\n", string(data))

	assert.Equal(t, "zh", got["language"])
	assert.Equal(t, "s1", got["session_id"])
	assert.NotContains(t, got, "record_id")
}

func TestOpenChatStreamPassesThroughErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "data: [ERROR]\n\n")
	}))
	defer server.Close()

	status, body, err := newTestClient(server.URL).OpenChatStream(context.Background(), model.ChatRequest{SessionID: "s", Question: "q"})
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestOpenChatStreamConfigErrorBeforeIO(t *testing.T) {
	c := NewBackendClient(staticSource{cfg: &config.DesktopConfig{BaseURL: "not a url"}}, time.Second, zap.NewNop())
	_, _, err := c.OpenChatStream(context.Background(), model.ChatRequest{SessionID: "s", Question: "q"})

	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestOpenChatStreamSourceError(t *testing.T) {
	srcErr := &config.ConfigError{Path: "/tmp/desktop.json", Err: errors.New("bad json")}
	c := NewBackendClient(staticSource{err: srcErr}, time.Second, zap.NewNop())

	_, _, err := c.OpenChatStream(context.Background(), model.ChatRequest{SessionID: "s", Question: "q"})
	assert.ErrorIs(t, err, srcErr)
}

func TestOpenChatStreamTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, _, err := newTestClient(url).OpenChatStream(context.Background(), model.ChatRequest{SessionID: "s", Question: "q"})
	var tErr *TransportError
	assert.True(t, errors.As(err, &tErr))
}

func TestCreateConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ConversationPath, r.URL.Path)
		assertBaseHeaders(t, r)
		io.WriteString(w, `{"code":200,"result":{"conversation_id":"conv-1"}}`)
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).CreateConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "conv-1", id)
}

func TestCreateConversationMissingField(t *testing.T) {
	for _, body := range []string{`{"result":{}}`, `{"result":null}`, `{"result":{"conversation_id":null}}`, `{}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, body)
		}))

		_, err := newTestClient(server.URL).CreateConversation(context.Background())
		var pErr *ProtocolError
		require.True(t, errors.As(err, &pErr), "body %s", body)
		assert.Equal(t, "conversation_id", pErr.Field)
		server.Close()
	}
}

func TestCreateConversationWrongType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":{"conversation_id":42}}`)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateConversation(context.Background())
	var pErr *ProtocolError
	require.True(t, errors.As(err, &pErr))
	assert.ErrorIs(t, err, errFieldType)
}

func TestCreateConversationNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateConversation(context.Background())
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, http.StatusUnauthorized, tErr.Status)
}

func TestRefreshSession(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SessionPath, r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		io.WriteString(w, `{"result":{"session_id":"sess-2"}}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	id, err := c.RefreshSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-2", id)

	_, err = c.RefreshSession(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []string{`{"session_id":"sess-1"}`, `{}`}, bodies)
}

func TestStopAndPlugins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assertBaseHeaders(t, r)
		switch r.URL.Path {
		case StopPath:
			assert.Equal(t, http.MethodPost, r.Method)
		case PluginPath:
			assert.Equal(t, http.MethodGet, r.Method)
			io.WriteString(w, `{"result":[{"id":"p1"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	require.NoError(t, c.Stop(context.Background()))

	plugins, err := c.Plugins(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":[{"id":"p1"}]}`, string(plugins))
}

func TestPluginsInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>")
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Plugins(context.Background())
	var pErr *ProtocolError
	assert.True(t, errors.As(err, &pErr))
}
