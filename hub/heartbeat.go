package hub

import (
	"log/slog"
	"time"

	"driftboard-relay-server/metrics"
)

// heartbeat is the process-wide liveness scheduler. Each tick it pings every
// session with an open transport and evicts those silent past the absolute
// threshold (interval + timeout since the last activity).
type heartbeat struct {
	hub      *Hub
	interval time.Duration
	timeout  time.Duration

	stop chan struct{}
	done chan struct{}
}

func newHeartbeat(h *Hub, interval, timeout time.Duration) *heartbeat {
	return &heartbeat{
		hub:      h,
		interval: interval,
		timeout:  timeout,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (hb *heartbeat) run() {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()
	defer close(hb.done)

	for {
		select {
		case <-hb.stop:
			return
		case <-ticker.C:
			hb.sweep()
		}
	}
}

// sweep scans every session once: stale ones are marked and then evicted via
// the normal drop path, live ones get a transport-level ping. Eviction also
// force-closes the transport so a zombie socket does not linger.
func (hb *heartbeat) sweep() {
	threshold := hb.interval + hb.timeout

	var stale []*ClientSession
	for _, sess := range hb.hub.sessions.Snapshot() {
		if time.Since(sess.LastActive()) > threshold {
			stale = append(stale, sess)
			continue
		}
		if sess.conn.Ready() {
			if err := sess.conn.Ping(); err != nil {
				slog.Debug("ping failed", "clientId", sess.ClientID(), "error", err)
			}
		}
	}

	for _, sess := range stale {
		slog.Info("evicting stale session", "clientId", sess.ClientID())
		hb.hub.DropSession(sess)
		_ = sess.conn.Close()
		metrics.Evictions.Inc()
	}
}
