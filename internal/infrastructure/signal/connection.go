package signal

import (
	"sync"
	"time"

	"telemeet/internal/core/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// connection is one participant's transport. The outbox decouples the
// meeting loop from the socket: Enqueue never blocks, and overflow drops the
// oldest queued event so a stalled client only loses its own backlog.
type connection struct {
	id domain.ConnID
	ws *websocket.Conn

	outbox  chan domain.Outbound
	closing chan struct{}
	closed  sync.Once

	// closeReason is written once before closing fires.
	closeReason string

	writeTimeout time.Duration
	pingInterval time.Duration

	logger *zap.SugaredLogger
}

func newConnection(id domain.ConnID, ws *websocket.Conn, outboxSize int, writeTimeout, pingInterval time.Duration, logger *zap.SugaredLogger) *connection {
	if outboxSize <= 0 {
		outboxSize = 64
	}
	return &connection{
		id:           id,
		ws:           ws,
		outbox:       make(chan domain.Outbound, outboxSize),
		closing:      make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		logger:       logger.With("conn_id", id),
	}
}

func (c *connection) ID() domain.ConnID {
	return c.id
}

// Enqueue offers an event to the outbox without ever blocking the caller.
// When the queue is full the oldest entry is evicted to make room; false
// means the event itself was lost.
func (c *connection) Enqueue(ev domain.Outbound) bool {
	select {
	case <-c.closing:
		return false
	default:
	}

	select {
	case c.outbox <- ev:
		return true
	default:
	}

	// Full: evict the oldest queued event, then retry once. A concurrent
	// writer may win the freed slot; that is fine, the queue stays bounded.
	select {
	case <-c.outbox:
	default:
	}
	select {
	case c.outbox <- ev:
		return true
	default:
		return false
	}
}

// Shutdown asks the write pump to flush what is queued and close the socket.
func (c *connection) Shutdown(reason string) {
	c.closed.Do(func() {
		c.closeReason = reason
		close(c.closing)
	})
}

// writePump is the only goroutine writing to the socket. It drains the
// outbox, keeps the connection alive with pings, and on shutdown flushes the
// remaining backlog before the close frame.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case ev := <-c.outbox:
			if !c.write(ev) {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugw("ping failed", "error", err)
				return
			}
		case <-c.closing:
			c.flush()
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason))
			return
		}
	}
}

func (c *connection) write(ev domain.Outbound) bool {
	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteJSON(ev); err != nil {
		c.logger.Debugw("write failed", "type", ev.Type, "error", err)
		return false
	}
	return true
}

func (c *connection) flush() {
	for {
		select {
		case ev := <-c.outbox:
			if !c.write(ev) {
				return
			}
		default:
			return
		}
	}
}
