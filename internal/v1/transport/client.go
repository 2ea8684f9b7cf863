package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/logging"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/metrics"
	"github.com/itsNatTan/SpeakUp-sub000/internal/v1/session"
)

const (
	// writeWait is the deadline for a single socket write.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before declaring the peer dead.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; audio chunks are well under this.
	maxMessageSize = 1 << 20

	// sendBufferSize is the outbound frame buffer. A consumer that falls this
	// far behind starts losing frames instead of stalling the room.
	sendBufferSize = 256
)

type outboundFrame struct {
	messageType int
	payload     []byte
}

// Client owns one WebSocket connection and pumps frames between the socket
// and the room's message handler. It satisfies session.Conn; all Send
// methods are non-blocking and drop on overflow.
type Client struct {
	conn    *websocket.Conn
	handler *session.Handler

	send      chan outboundFrame
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, handler *session.Handler) *Client {
	return &Client{
		conn:    conn,
		handler: handler,
		send:    make(chan outboundFrame, sendBufferSize),
		done:    make(chan struct{}),
	}
}

// run starts the pumps and blocks until the connection dies.
func (c *Client) run(ctx context.Context) {
	go c.writePump(ctx)
	c.readPump(ctx)
}

// SendText queues a text frame.
func (c *Client) SendText(msg string) {
	c.enqueue(websocket.TextMessage, []byte(msg))
}

// SendJSON marshals v and queues it as a text frame.
func (c *Client) SendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logging.Warn(context.Background(), "failed to marshal outbound message", zap.Error(err))
		return
	}
	c.enqueue(websocket.TextMessage, b)
}

// SendBinary queues a binary frame. The payload is copied.
func (c *Client) SendBinary(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	c.enqueue(websocket.BinaryMessage, cp)
}

// Close tears the connection down. Idempotent and safe from any goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	return nil
}

func (c *Client) enqueue(messageType int, payload []byte) {
	select {
	case <-c.done:
	case c.send <- outboundFrame{messageType: messageType, payload: payload}:
	default:
		// Buffer full: drop rather than block the room under the handler lock.
		metrics.WebsocketFramesDropped.Inc()
	}
}

// readPump reads frames off the socket into the handler until the peer
// disconnects, then runs the handler's cleanup.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.handler.HandleDisconnect(ctx, c)
		_ = c.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logging.Debug(ctx, "websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		c.handler.HandleFrame(ctx, c, messageType, data)
	}
}

// writePump serializes all socket writes: queued frames plus keepalive pings.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frame.messageType, frame.payload); err != nil {
				logging.Debug(ctx, "websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
