package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmcleod/steamrelay/internal/uuid"
)

// Client is one connected push channel peer.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.New(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.queueSize),
		done: make(chan struct{}),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Done is closed once the client is disconnected.
func (c *Client) Done() <-chan struct{} { return c.done }

// Emit sends an event to this client only.
func (c *Client) Emit(event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

// EmitError sends an "error" event carrying message.
func (c *Client) EmitError(message string) error {
	return c.Emit(eventError, ErrorPayload{Message: message})
}

func (c *Client) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientGone
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.close()
		return ErrQueueFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.close()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Debug("client read failed", "client_id", c.id, "error", err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
			_ = c.EmitError(malformedFrame)
			continue
		}
		if handler := c.hub.currentHandler(); handler != nil {
			handler.HandleFrame(ctx, c, f)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
