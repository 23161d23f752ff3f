package hub

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"driftboard-relay-server/domain"
	"driftboard-relay-server/metrics"
)

// Protocol defaults. Options fields left zero fall back to these.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 10 * time.Second
	DefaultSendTimeout       = 5 * time.Second
	DefaultSendRetryDelay    = time.Second
	DefaultSendMaxAttempts   = 3
	DefaultHistoryLimit      = 100
)

// Options tune the hub's timing and capacity knobs.
type Options struct {
	HeartbeatInterval time.Duration // ping cadence
	HeartbeatTimeout  time.Duration // idle budget added to the cadence before eviction
	SendTimeout       time.Duration // per-pass send completion budget
	SendRetryDelay    time.Duration // pause between send passes
	SendMaxAttempts   int           // send passes per recipient
	HistoryLimit      int           // events retained per room
	StampSender       bool          // inject "sender" into relays; off keeps them verbatim
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.HeartbeatTimeout <= 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.SendRetryDelay <= 0 {
		o.SendRetryDelay = DefaultSendRetryDelay
	}
	if o.SendMaxAttempts <= 0 {
		o.SendMaxAttempts = DefaultSendMaxAttempts
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	return o
}

// PublishFunc forwards a local relay to peer nodes. See SetPublisher.
type PublishFunc func(roomID, senderID string, payload []byte)

// Hub owns the shared state of the relay: the room registry, the session
// directory, the broadcaster, and the heartbeat scheduler. Connection
// handlers go through the hub for every operation on shared state.
type Hub struct {
	opts Options

	registry    *RoomRegistry
	sessions    *SessionDirectory
	broadcaster *Broadcaster
	hb          *heartbeat

	publish PublishFunc

	started  atomic.Bool
	stopOnce sync.Once
}

func New(opts Options) *Hub {
	opts = opts.withDefaults()
	registry := NewRoomRegistry(opts.HistoryLimit)
	sessions := NewSessionDirectory()

	h := &Hub{
		opts:     opts,
		registry: registry,
		sessions: sessions,
	}
	h.broadcaster = &Broadcaster{
		registry:    registry,
		sessions:    sessions,
		sendTimeout: opts.SendTimeout,
		retryDelay:  opts.SendRetryDelay,
		maxAttempts: opts.SendMaxAttempts,
		stampSender: opts.StampSender,
	}
	h.hb = newHeartbeat(h, opts.HeartbeatInterval, opts.HeartbeatTimeout)
	return h
}

// SetPublisher installs a hook invoked after each local relay fan-out, once
// per room the sender belongs to. Must be set before Start.
func (h *Hub) SetPublisher(fn PublishFunc) {
	h.publish = fn
}

// Start launches the heartbeat scheduler.
func (h *Hub) Start() {
	if h.started.CompareAndSwap(false, true) {
		go h.hb.run()
	}
}

// Stop halts the scheduler, force-closes every session, and resets the
// registries. Sends already in flight are left to complete or time out.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		if h.started.Load() {
			close(h.hb.stop)
			<-h.hb.done
		}
		for _, sess := range h.sessions.Clear() {
			_ = sess.conn.Close()
		}
		h.registry.Reset()
		h.syncGauges()
		slog.Info("hub stopped")
	})
}

// Admit installs a fresh session for clientID. An existing session under the
// same clientId is force-closed and its room membership carries over to the
// new session. Returns the new session and the carried-over room, "" if
// none; the caller announces that room's user count after its welcome frame
// so the welcome stays the first frame the client sees.
func (h *Hub) Admit(clientID string, conn domain.Connection) (*ClientSession, string) {
	sess := newClientSession(clientID, conn)
	priorRoom, displaced := h.sessions.Admit(sess)
	if displaced {
		metrics.SessionsDisplaced.Inc()
		slog.Info("session displaced", "clientId", clientID, "connId", conn.ID())
	}
	if priorRoom != "" {
		h.registry.AddMember(priorRoom, clientID)
		slog.Info("session resumed", "clientId", clientID, "room", priorRoom)
	}
	h.syncGauges()
	return sess, priorRoom
}

// Lookup returns the live session for clientID, if any.
func (h *Hub) Lookup(clientID string) (*ClientSession, bool) {
	return h.sessions.Get(clientID)
}

// Drop removes clientID's session and its room memberships, announcing the
// new population to each affected room. No-op for unknown ids.
func (h *Hub) Drop(clientID string) {
	sess, ok := h.sessions.Remove(clientID)
	if !ok {
		return
	}
	h.detach(sess)
}

// DropSession removes sess only while it is still the live session for its
// clientId, so a displaced transport's close event cannot evict its
// successor. Reports whether the session was actually dropped.
func (h *Hub) DropSession(sess *ClientSession) bool {
	if !h.sessions.RemoveIf(sess) {
		return false
	}
	h.detach(sess)
	return true
}

func (h *Hub) detach(sess *ClientSession) {
	clientID := sess.ClientID()
	for _, roomID := range h.registry.RoomsOf(clientID) {
		if h.registry.RemoveMember(roomID, clientID) {
			h.broadcaster.SendRoomUserCount(roomID)
		}
	}
	h.syncGauges()
}

// AddMember inserts clientID into the room, creating it on first join.
func (h *Hub) AddMember(roomID, clientID string) {
	h.registry.AddMember(roomID, clientID)
	h.syncGauges()
}

// RemoveMember removes clientID from the room, deleting it once empty.
func (h *Hub) RemoveMember(roomID, clientID string) {
	h.registry.RemoveMember(roomID, clientID)
	h.syncGauges()
}

// RoomsOf lists the rooms clientID belongs to.
func (h *Hub) RoomsOf(clientID string) []string {
	return h.registry.RoomsOf(clientID)
}

// AppendHistory archives an event in the room's bounded history.
func (h *Hub) AppendHistory(roomID string, ev domain.Event) {
	h.registry.AppendHistory(roomID, ev)
}

// Broadcast relays payload to every other member of the sender's rooms and
// forwards it to peer nodes when a publisher is attached.
func (h *Hub) Broadcast(senderID string, payload []byte) {
	h.broadcaster.Broadcast(senderID, payload)
	if h.publish != nil {
		for _, roomID := range h.registry.RoomsOf(senderID) {
			h.publish(roomID, senderID, payload)
		}
	}
}

// SendRoomHistory replays the room's retained events to one client.
func (h *Hub) SendRoomHistory(clientID, roomID string) {
	h.broadcaster.SendRoomHistory(clientID, roomID)
}

// SendRoomUserCount announces the room's population to its members.
func (h *Hub) SendRoomUserCount(roomID string) {
	h.broadcaster.SendRoomUserCount(roomID)
}

// DeliverRemote fans a relay that originated on a peer node out to the local
// members of the room, skipping the original sender should it be local. The
// event joins the local history so late joiners here replay it too; history
// keeps the verbatim payload even when relays are stamped.
func (h *Hub) DeliverRemote(roomID, senderID string, payload []byte) {
	h.registry.AppendHistory(roomID, domain.Event(payload))
	relay := payload
	if h.opts.StampSender {
		relay = withSender(payload, senderID)
	}
	for _, memberID := range h.registry.MembersOf(roomID) {
		if memberID == senderID {
			continue
		}
		if h.broadcaster.sendTo(memberID, relay) {
			metrics.RelaysSent.Inc()
		}
	}
}

// Stats reports the live room and session counts.
func (h *Hub) Stats() (rooms, clients int) {
	return h.registry.Len(), h.sessions.Len()
}

func (h *Hub) syncGauges() {
	metrics.Rooms.Set(float64(h.registry.Len()))
	metrics.Sessions.Set(float64(h.sessions.Len()))
}
