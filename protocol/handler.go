package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"driftboard-relay-server/domain"
	"driftboard-relay-server/hub"
	"driftboard-relay-server/metrics"
)

const (
	DefaultIdleTimeout = 10 * time.Second
	DefaultSendTimeout = 5 * time.Second
	DefaultMsgBurst    = 8
)

// Options tune per-connection protocol behavior.
type Options struct {
	IdleTimeout time.Duration // disconnect budget between inbound frames
	SendTimeout time.Duration // completion budget for direct replies
	MsgRate     float64       // sustained inbound frames per second, 0 disables limiting
	MsgBurst    int
}

func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.MsgBurst <= 0 {
		o.MsgBurst = DefaultMsgBurst
	}
	return o
}

// Handler accepts transports into the hub and builds the per-connection
// state machines that consume their events.
type Handler struct {
	hub  *hub.Hub
	opts Options
}

func NewHandler(h *hub.Hub, opts Options) *Handler {
	return &Handler{hub: h, opts: opts.withDefaults()}
}

// Accept admits the transport under requestedID, generating an id when the
// client supplied none, and sends the welcome frame. A carried-over room from
// a displaced session is announced right after the welcome. The returned Conn
// is ready to receive transport events.
func (h *Handler) Accept(conn domain.Connection, requestedID string) *Conn {
	clientID := requestedID
	if clientID == "" {
		clientID = generateClientID()
	}

	sess, resumedRoom := h.hub.Admit(clientID, conn)

	c := &Conn{h: h, sess: sess, conn: conn}
	if h.opts.MsgRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.MsgRate), h.opts.MsgBurst)
	}
	c.idle = time.AfterFunc(h.opts.IdleTimeout, c.idleExpire)

	c.sendWelcome()
	if resumedRoom != "" {
		h.hub.SendRoomUserCount(resumedRoom)
	}

	slog.Info("client connected", "clientId", clientID, "connId", conn.ID())
	return c
}

// Conn is the per-connection state machine. The transport serializes its
// events, so the methods below never run concurrently for one connection.
type Conn struct {
	h    *Handler
	sess *hub.ClientSession
	conn domain.Connection

	limiter *rate.Limiter
	idle    *time.Timer
}

// OnMessage consumes one inbound text frame. The idle disconnect timer is
// suspended for the duration of handling and re-armed on every path out.
func (c *Conn) OnMessage(data []byte) {
	c.idle.Stop()
	defer c.idle.Reset(c.h.opts.IdleTimeout)

	if c.limiter != nil && !c.limiter.Allow() {
		slog.Debug("rate limited", "clientId", c.sess.ClientID())
		return
	}
	metrics.MessagesReceived.Inc()

	if !json.Valid(data) {
		slog.Warn("invalid json frame", "clientId", c.sess.ClientID())
		c.replyError("Invalid JSON")
		return
	}

	// Valid JSON that is not an object passes through as a typeless event.
	var env domain.Envelope
	_ = json.Unmarshal(data, &env)

	if env.Type == domain.TypeJoin {
		c.handleJoin(env)
		return
	}
	c.handleRelay(env, data)
}

// handleJoin moves the session into the named room. The prior room, if any,
// is left first; rejoining the same room runs the same leave-then-join pair
// and still resends history and the user count.
func (c *Conn) handleJoin(env domain.Envelope) {
	clientID := c.sess.ClientID()
	if env.RoomID == "" {
		slog.Warn("join without roomId", "clientId", clientID)
		c.replyError("roomId is required")
		return
	}

	if prior := c.sess.Room(); prior != "" {
		c.h.hub.RemoveMember(prior, clientID)
	}
	c.sess.SetRoom(env.RoomID)
	c.h.hub.AddMember(env.RoomID, clientID)

	c.h.hub.SendRoomHistory(clientID, env.RoomID)
	c.h.hub.SendRoomUserCount(env.RoomID)

	slog.Info("client joined room", "clientId", clientID, "room", env.RoomID)
}

// handleRelay archives and fans out any non-join event. Events from a
// session outside every room are dropped without side effects, not even a
// lastActive update.
func (c *Conn) handleRelay(env domain.Envelope, data []byte) {
	clientID := c.sess.ClientID()
	rooms := c.h.hub.RoomsOf(clientID)
	if len(rooms) == 0 {
		slog.Debug("dropping event from client outside any room", "clientId", clientID, "type", env.Type)
		return
	}

	if env.Type == domain.TypeDraw {
		var x, y int
		if env.X != nil {
			x = int(*env.X)
		}
		if env.Y != nil {
			y = int(*env.Y)
		}
		c.sess.ApplyDraw(x, y, env.Color)
	}
	c.sess.Touch()

	for _, roomID := range rooms {
		c.h.hub.AppendHistory(roomID, domain.Event(data))
	}
	c.h.hub.Broadcast(clientID, data)
}

// OnPong records transport-level liveness.
func (c *Conn) OnPong() {
	c.idle.Stop()
	c.sess.Touch()
	c.idle.Reset(c.h.opts.IdleTimeout)
}

// OnClose tears the session down, unless a successor session has already
// displaced this one.
func (c *Conn) OnClose(err error) {
	c.idle.Stop()
	if !c.h.hub.DropSession(c.sess) {
		return
	}
	if err != nil {
		slog.Info("client disconnected", "clientId", c.sess.ClientID(), "error", err)
		return
	}
	slog.Info("client disconnected", "clientId", c.sess.ClientID())
}

// idleExpire fires when a connection produces no frame or pong within the
// idle budget. Closing the transport routes teardown through OnClose.
func (c *Conn) idleExpire() {
	slog.Info("closing idle connection", "clientId", c.sess.ClientID())
	_ = c.conn.Close()
}

func (c *Conn) sendWelcome() {
	c.reply(domain.Welcome{
		Type:     domain.TypeWelcome,
		ClientID: c.sess.ClientID(),
		State:    c.sess.State(),
	})
}

func (c *Conn) replyError(msg string) {
	c.reply(domain.ErrorMessage{Type: domain.TypeError, Message: msg})
}

// reply sends one frame straight to this connection, bypassing the
// broadcaster's retry loop.
func (c *Conn) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal reply", "clientId", c.sess.ClientID(), "error", err)
		return
	}
	if !c.conn.Ready() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.h.opts.SendTimeout)
	defer cancel()
	if err := c.conn.Send(ctx, payload); err != nil {
		slog.Warn("reply failed", "clientId", c.sess.ClientID(), "error", err)
	}
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// generateClientID builds a fallback identity for clients that connect
// without one: "client-<epoch millis>-<9 random base36 chars>".
func generateClientID() string {
	var b [9]byte
	for i := range b {
		b[i] = base36[rand.IntN(len(base36))]
	}
	return fmt.Sprintf("client-%d-%s", time.Now().UnixMilli(), b[:])
}
