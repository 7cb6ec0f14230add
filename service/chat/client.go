package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one connected session. A single user may have
// multiple devices/connections, each with its own Client. All writes to
// the socket go through the Send queue and a single writer goroutine;
// gorilla/websocket does not allow concurrent writers.
type Client struct {
	ConnID      string
	UserID      string
	DisplayName string
	WS          *websocket.Conn
	Send        chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

const (
	writeWait  = 5 * time.Second
	pingPeriod = 25 * time.Second
)

func NewClient(connID, userID, displayName string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID:      connID,
		UserID:      userID,
		DisplayName: displayName,
		WS:          ws,
		Send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Close releases the session. Safe to call more than once; the transport
// can deliver duplicate disconnect signals.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS != nil {
			_ = c.WS.Close()
		}
	})
}

func (c *Client) Done() <-chan struct{} { return c.done }

// WritePump drains the Send queue onto the socket. Run it in its own
// goroutine; it exits when Close is called or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a payload without blocking; a full queue drops the
// payload. Delivery is best-effort, slow readers miss events and catch
// up from the next history load.
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}
