package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// DefaultMaxMessageSize caps one inbound frame. File uploads travel as a
	// single frame, so this is also the upload limit.
	DefaultMaxMessageSize = 10_000_000
	sendBufferSize        = 256
)

// Client is one live websocket connection. Its identity, if any, lives in the
// ChatServer's registry under id.
type Client struct {
	id             string
	conn           *websocket.Conn
	chatServer     *ChatServer
	log            *log.Logger
	send           chan *ServerMessage
	limiter        *rate.Limiter
	maxMessageSize int64
	stop           chan struct{}
	stopOnce       sync.Once
}

// NewClient wraps conn. A nil limiter disables inbound rate limiting and a
// non-positive maxMessageSize falls back to DefaultMaxMessageSize.
func NewClient(id string, conn *websocket.Conn, cs *ChatServer, l *log.Logger, limiter *rate.Limiter, maxMessageSize int64) *Client {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}

	return &Client{
		id:             id,
		conn:           conn,
		chatServer:     cs,
		log:            l,
		send:           make(chan *ServerMessage, sendBufferSize),
		limiter:        limiter,
		maxMessageSize: maxMessageSize,
		stop:           make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}

		if !c.allow(&msg) {
			continue
		}

		msg.client = c
		msg.Timestamp = Now()
		c.chatServer.dispatch(&msg)
	}
}

// allow applies the inbound rate limit to msg. stopTyping is never limited,
// since dropping it would leave the room's typing indicator stuck.
func (c *Client) allow(msg *ClientMessage) bool {
	if c.limiter == nil || msg.Event == EventStopTyping || c.limiter.Allow() {
		return true
	}

	c.log.Printf("rate limit exceeded for connection %q, dropping %q", c.id, msg.Event)
	if msg.Id > 0 {
		c.queueMessage(ErrRateLimited(msg.Id))
	}
	return false
}

// queueMessage hands msg to the write pump without blocking. A full buffer
// drops the message for this client only.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for connection %q, dropping %q", c.id, msg.Event)
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.Deregister(c)
	c.stopClient()
}
