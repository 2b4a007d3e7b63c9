package room

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"docsync/internal/models"
)

// writeWait bounds a single frame write so one dead peer cannot hold a
// session's lock indefinitely.
const writeWait = 10 * time.Second

// Client is one collaboration socket together with the identity it arrived
// with. Identity fields are immutable after construction; which document the
// client joined is tracked by the orchestrator, not here.
type Client struct {
	ID     string
	UserID string
	Name   string
	Color  string

	Conn *websocket.Conn
	mu   sync.Mutex
	hook func(models.Event)
}

func NewClient(conn *websocket.Conn, id, userID, name, color string) *Client {
	return &Client{ID: id, UserID: userID, Name: name, Color: color, Conn: conn}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Event)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) Send(evt models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hook != nil {
		c.hook(evt)
		return
	}
	if c.Conn == nil {
		return
	}
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.Conn.WriteJSON(evt)
}
