package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/registry"
)

const testOrigin = "http://app.example.com"

func newTestServer(t *testing.T) (string, *registry.Room) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(registry.Options{TTL: time.Hour, Cooldown: time.Hour})
	t.Cleanup(func() { reg.Close(context.Background()) })

	room, err := reg.CreateRoom(context.Background(), false)
	require.NoError(t, err)

	hub := NewHub(reg, []string{testOrigin}, nil)
	router := gin.New()
	router.GET("/:code", hub.ServeWs)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/", room
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntilText reads frames until one matches want, failing on timeout.
func readUntilText(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", want)
		if msgType == websocket.TextMessage && string(data) == want {
			return
		}
	}
}

// readUntilBinary reads frames until a binary frame arrives.
func readUntilBinary(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for binary frame")
		if msgType == websocket.BinaryMessage {
			return data
		}
	}
}

func TestServeWsGreetsAcceptedConnections(t *testing.T) {
	base, room := newTestServer(t)
	conn := dial(t, base+room.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "Hello from WebSocket!", string(data))
}

func TestServeWsRejectsUnknownRoom(t *testing.T) {
	base, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"ZZZ999", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWsRejectsMalformedCode(t *testing.T) {
	base, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"nope", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWsRejectsDisallowedOrigin(t *testing.T) {
	base, room := newTestServer(t)

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(base+room.Code, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeWsAllowsConfiguredOrigin(t *testing.T) {
	base, room := newTestServer(t)

	header := http.Header{"Origin": []string{testOrigin}}
	conn, _, err := websocket.DefaultDialer.Dial(base+room.Code, header)
	require.NoError(t, err)
	_ = conn.Close()
}

// Full path through real sockets: speaker queues, listener attaches, grant
// flows, audio is relayed.
func TestEndToEndSpeakAndRelay(t *testing.T) {
	base, room := newTestServer(t)

	speaker := dial(t, base+room.Code)
	listener := dial(t, base+room.Code)

	require.NoError(t, speaker.WriteMessage(websocket.TextMessage, []byte("RTSalice")))
	require.NoError(t, listener.WriteMessage(websocket.TextMessage, []byte("LISTEN")))

	readUntilText(t, listener, "FROMalice")
	readUntilText(t, speaker, "CTS")

	require.NoError(t, speaker.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, readUntilBinary(t, listener))
}

// A queue snapshot arrives as JSON text in response to QUEUE_STATUS.
func TestQueueStatusOverSocket(t *testing.T) {
	base, room := newTestServer(t)

	conn := dial(t, base+room.Code)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("QUEUE_STATUS")))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.TextMessage && strings.Contains(string(data), `"queue-status"`) {
			assert.Contains(t, string(data), `"sortMode":"fifo"`)
			return
		}
	}
}
