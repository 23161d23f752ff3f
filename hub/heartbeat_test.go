package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backdate(sess *ClientSession, by time.Duration) {
	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-by)
	sess.mu.Unlock()
}

func TestHeartbeat_SweepEvictsStale(t *testing.T) {
	h := New(Options{HeartbeatInterval: 30 * time.Second, HeartbeatTimeout: 10 * time.Second})
	staleConn := &mockConn{id: "stale-conn"}
	stale, _ := h.Admit("stale", staleConn)
	stale.SetRoom("r1")
	h.AddMember("r1", "stale")
	fresh := admitJoined(h, "fresh", "r1")
	staleSess, _ := h.Lookup("stale")
	require.Same(t, stale, staleSess)

	backdate(stale, time.Minute)
	h.hb.sweep()

	_, ok := h.Lookup("stale")
	assert.False(t, ok)
	assert.True(t, staleConn.isClosed())

	_, ok = h.Lookup("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, fresh.pingCount())

	// The survivor hears about the shrunken room.
	sent := fresh.getSent()
	require.Len(t, sent, 1)
	assert.JSONEq(t, `{"type":"roomUserCount","roomId":"r1","count":1}`, string(sent[0]))
}

func TestHeartbeat_SweepHonorsThreshold(t *testing.T) {
	h := New(Options{HeartbeatInterval: 30 * time.Second, HeartbeatTimeout: 10 * time.Second})
	conn := &mockConn{id: "edge-conn"}
	sess, _ := h.Admit("edge", conn)

	// 39s of silence is within interval+timeout; 41s is past it.
	backdate(sess, 39*time.Second)
	h.hb.sweep()
	_, ok := h.Lookup("edge")
	assert.True(t, ok)
	assert.False(t, conn.isClosed())

	backdate(sess, 41*time.Second)
	h.hb.sweep()
	_, ok = h.Lookup("edge")
	assert.False(t, ok)
	assert.True(t, conn.isClosed())
}

func TestHeartbeat_SweepSkipsClosedTransports(t *testing.T) {
	h := New(Options{})
	conn := &mockConn{id: "limbo-conn", notReady: true}
	h.Admit("limbo", conn)

	h.hb.sweep()

	assert.Equal(t, 0, conn.pingCount(), "no ping to a transport that cannot accept frames")
	_, ok := h.Lookup("limbo")
	assert.True(t, ok, "a quiet but recent session survives the sweep")
}

func TestHeartbeat_RunTicksAndStops(t *testing.T) {
	h := New(Options{})
	conn := &mockConn{id: "live-conn"}
	h.Admit("live", conn)

	hb := newHeartbeat(h, 5*time.Millisecond, time.Hour)
	go hb.run()

	assert.Eventually(t, func() bool {
		return conn.pingCount() >= 2
	}, time.Second, time.Millisecond)

	close(hb.stop)
	select {
	case <-hb.done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
}
