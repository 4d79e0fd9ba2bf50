package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one authenticated websocket connection. The read side is driven
// by the HTTP handler; WritePump is the only goroutine writing to the
// underlying connection.
type Client struct {
	ID     string
	UserID uint

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, userID uint) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return c
}

// Read blocks for the next text message from the peer.
func (c *Client) Read() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Send queues an event for delivery, dropping the connection if its buffer is
// full so one slow client cannot stall a whole group.
func (c *Client) Send(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		logrus.WithError(err).Error("ws: marshal event")
		return
	}
	if !c.enqueue(data) {
		logrus.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).
			Warn("ws: send buffer full, closing connection")
		c.Close()
	}
}

func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// WritePump pumps queued messages to the peer and keeps the connection alive
// with pings. Runs in its own goroutine, one per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// Close terminates the connection. Safe to call from any goroutine, any
// number of times.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
