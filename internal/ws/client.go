package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Client is one physical websocket connection.
type Client struct {
	conn *websocket.Conn
	info ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state connState
}

func newClient(conn *websocket.Conn, info ConnInfo, buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{
		conn: conn,
		info: info,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.info.ConnID
}

// UserID returns the bound identity, or ErrNotAuthenticated.
func (c *Client) UserID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.user()
}

func (c *Client) authenticated() bool {
	_, err := c.UserID()
	return err == nil
}

func (c *Client) bind(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := c.state.authenticate(userID)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

func (c *Client) unbind() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, userID := c.state.close()
	c.state = next
	return userID
}

// enqueue never blocks. A client whose buffer is full is too slow to keep
// and gets closed.
func (c *Client) enqueue(frame []byte) bool {
	if frame == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.close()
		return false
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

func (c *Client) closeWithReason(code int, reason string) {
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	}
	c.close()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
