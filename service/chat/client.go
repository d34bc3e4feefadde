package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TienThuan29/FreelanceIT-App-sub003/logger"
)

// Client is one authenticated websocket connection. A user may hold several
// clients (multiple tabs/devices), each with its own send queue consumed by a
// single writer goroutine.
type Client struct {
	ConnID string
	UserID string
	Role   string

	WS   *websocket.Conn
	Send chan []byte

	done     chan struct{}
	doneOnce sync.Once
}

func NewClient(connID string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands a payload to the writer without blocking. Slow clients drop
// frames instead of stalling the broadcaster.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[ws] send queue full, dropping frame conn=%s user=%s", c.ConnID, c.UserID)
		return false
	}
}

// close releases the writer. Safe to call more than once.
func (c *Client) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// writePump is the single writer for the connection: drains the send queue,
// pings on a ticker, and closes the socket on exit.
func (c *Client) writePump(pingInterval, writeWait time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WS.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("[ws] write failed conn=" + c.ConnID)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
