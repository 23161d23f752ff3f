package bus

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one relayed event crossing node boundaries.
type Message struct {
	ServerID string          `json:"serverId"`
	RoomID   string          `json:"roomId"`
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

// Bus fans relayed events out to peer nodes over redis pub/sub, one channel
// per room. Each node tags messages with its own id and skips them on the
// way back in, so local members never see an event twice.
type Bus struct {
	rdb      *redis.Client
	serverID string
}

// New connects to redis and verifies connectivity.
func New(ctx context.Context, addr string, db int) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Bus{rdb: rdb, serverID: uuid.NewString()}, nil
}

func (b *Bus) ServerID() string { return b.serverID }

// Publish forwards one local relay to the room's channel.
func (b *Bus) Publish(ctx context.Context, roomID, senderID string, payload []byte) error {
	raw, err := json.Marshal(Message{
		ServerID: b.serverID,
		RoomID:   roomID,
		SenderID: senderID,
		Payload:  payload,
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(roomID), raw).Err()
}

// Subscribe listens on every room channel and invokes fn for each message
// published by a peer node. Blocks until ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, fn func(Message)) {
	pubsub := b.rdb.PSubscribe(ctx, channel("*"))
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var m Message
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				slog.Warn("bus message dropped", "error", err)
				continue
			}
			if m.ServerID == b.serverID || m.RoomID == "" {
				continue
			}
			fn(m)
		}
	}
}

// Close shuts down the redis connection.
func (b *Bus) Close() { _ = b.rdb.Close() }

// channel namespaces room pub/sub.
func channel(roomID string) string { return "room:" + roomID }
