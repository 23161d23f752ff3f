package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"driftboard-relay-server/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 << 10
	sendQueueSize  = 256
)

// outbound pairs a frame with the channel its completion is reported on.
type outbound struct {
	payload []byte
	result  chan error
}

// Conn adapts a gorilla connection to domain.Connection. All frame writes
// funnel through a single write pump; pings go out as control frames, which
// gorilla allows concurrently with data writes. Sends report completion so
// callers can apply their own timeout and retry policy.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan outbound

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps ws and starts its write pump. The connection can send
// immediately; reading starts with Start.
func NewConn(id string, ws *websocket.Conn) *Conn {
	c := &Conn{
		id:   id,
		ws:   ws,
		send: make(chan outbound, sendQueueSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Conn) ID() string { return c.id }

// Ready reports whether the transport still accepts frames.
func (c *Conn) Ready() bool { return !c.closed.Load() }

// Send queues payload as one text frame and waits for the write to complete,
// racing ctx. Returns websocket.ErrCloseSent once the connection is closed.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	out := outbound{payload: payload, result: make(chan error, 1)}
	select {
	case c.send <- out:
	case <-c.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-out.result:
		return err
	case <-c.done:
		return websocket.ErrCloseSent
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping writes a transport-level ping control frame.
func (c *Conn) Ping() error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close shuts the connection down. Safe to call from any goroutine and more
// than once; pending senders are released with websocket.ErrCloseSent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Start begins reading frames and dispatching them to events. Events for one
// connection are dispatched sequentially from a single goroutine.
func (c *Conn) Start(events domain.ConnectionEvents) {
	go c.readPump(events)
}

func (c *Conn) readPump(events domain.ConnectionEvents) {
	defer func() {
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		events.OnPong()
		return nil
	})

	for {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			_ = c.Close()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				events.OnClose(err)
			} else {
				events.OnClose(nil)
			}
			return
		}
		events.OnMessage(data)
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case out := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.TextMessage, out.payload)
			out.result <- err
			if err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
