package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"driftboard-relay-server/domain"
	"driftboard-relay-server/metrics"
)

// Broadcaster fans frames out to room members. Member lists are snapshotted
// under the registry lock and iterated after it is released, so a slow
// recipient never blocks room mutation. Recipients are processed sequentially
// on the caller's goroutine, which preserves per-sender delivery order to
// every receiver.
type Broadcaster struct {
	registry *RoomRegistry
	sessions *SessionDirectory

	sendTimeout time.Duration
	retryDelay  time.Duration
	maxAttempts int
	stampSender bool
}

// Broadcast relays payload to every other member of each room the sender is
// in. The payload travels verbatim unless sender stamping is enabled. A
// recipient that fails all send passes is logged and skipped; fan-out to the
// rest continues.
func (b *Broadcaster) Broadcast(senderID string, payload []byte) {
	if _, ok := b.sessions.Get(senderID); !ok {
		slog.Warn("broadcast from unknown client", "clientId", senderID)
		return
	}
	rooms := b.registry.RoomsOf(senderID)
	if len(rooms) == 0 {
		slog.Debug("broadcast from client outside any room", "clientId", senderID)
		return
	}
	if b.stampSender {
		payload = withSender(payload, senderID)
	}
	for _, roomID := range rooms {
		for _, memberID := range b.registry.MembersOf(roomID) {
			if memberID == senderID {
				continue
			}
			if b.sendTo(memberID, payload) {
				metrics.RelaysSent.Inc()
			}
		}
	}
}

// SendRoomUserCount announces the room's population to its current members.
func (b *Broadcaster) SendRoomUserCount(roomID string) {
	members := b.registry.MembersOf(roomID)
	payload, err := json.Marshal(domain.RoomUserCount{
		Type:   domain.TypeRoomUserCount,
		RoomID: roomID,
		Count:  len(members),
	})
	if err != nil {
		slog.Error("marshal roomUserCount", "room", roomID, "error", err)
		return
	}
	for _, memberID := range members {
		b.sendTo(memberID, payload)
	}
}

// SendRoomHistory replays the room's retained events to one client.
func (b *Broadcaster) SendRoomHistory(clientID, roomID string) {
	payload, err := json.Marshal(domain.RoomHistory{
		Type:    domain.TypeRoomHistory,
		RoomID:  roomID,
		History: b.registry.HistoryOf(roomID),
	})
	if err != nil {
		slog.Error("marshal roomHistory", "room", roomID, "error", err)
		return
	}
	b.sendTo(clientID, payload)
}

// sendTo resolves the recipient's live session and delivers with retries.
// Recipients without a session or with a transport that is no longer open are
// skipped; eviction is the heartbeat scheduler's job, never the sender's.
func (b *Broadcaster) sendTo(clientID string, payload []byte) bool {
	sess, ok := b.sessions.Get(clientID)
	if !ok {
		return false
	}
	if !sess.conn.Ready() {
		return false
	}
	return b.sendWithRetry(sess.conn, payload, clientID)
}

// sendWithRetry attempts up to maxAttempts deliveries, racing each against
// sendTimeout and pausing retryDelay between passes. Returns whether any pass
// succeeded. A send to a connection that has closed is an immediate false.
func (b *Broadcaster) sendWithRetry(conn domain.Connection, payload []byte, clientID string) bool {
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if !conn.Ready() {
			return false
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.sendTimeout)
		err := conn.Send(ctx, payload)
		cancel()
		if err == nil {
			return true
		}
		slog.Warn("send failed", "clientId", clientID, "attempt", attempt, "error", err)
		if attempt < b.maxAttempts {
			metrics.SendRetries.Inc()
			time.Sleep(b.retryDelay)
		}
	}
	metrics.SendFailures.Inc()
	return false
}

// withSender injects the sender's clientId into a relay payload. On any
// marshalling trouble the original payload is relayed untouched.
func withSender(payload []byte, senderID string) []byte {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return payload
	}
	m["sender"] = senderID
	out, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return out
}
