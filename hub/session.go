package hub

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"driftboard-relay-server/domain"
)

// ClientSession is the server's record of one live connection for one
// clientId. The presentational state is mutated by the owning connection
// handler; the heartbeat scheduler only reads lastActive.
type ClientSession struct {
	clientID string
	conn     domain.Connection

	mu         sync.Mutex
	x, y       int
	color      string
	lastActive time.Time
	roomID     string
}

func newClientSession(clientID string, conn domain.Connection) *ClientSession {
	return &ClientSession{
		clientID:   clientID,
		conn:       conn,
		color:      randomColor(),
		lastActive: time.Now(),
	}
}

func (s *ClientSession) ClientID() string        { return s.clientID }
func (s *ClientSession) Conn() domain.Connection { return s.conn }

// Room returns the session's current room, or "" before any join.
func (s *ClientSession) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

func (s *ClientSession) SetRoom(roomID string) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()
}

// Touch records inbound activity for the liveness protocol.
func (s *ClientSession) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *ClientSession) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// ApplyDraw folds a draw event into the pointer state. The color is only
// replaced when the event carried one.
func (s *ClientSession) ApplyDraw(x, y int, color string) {
	s.mu.Lock()
	s.x, s.y = x, y
	if color != "" {
		s.color = color
	}
	s.mu.Unlock()
}

// State snapshots the presentational state, e.g. for the welcome frame.
func (s *ClientSession) State() domain.ClientState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ClientState{
		X:          s.x,
		Y:          s.y,
		Color:      s.color,
		LastActive: s.lastActive.UnixMilli(),
	}
}

// randomColor picks a uniformly random RGB value, "#rrggbb".
func randomColor() string {
	return fmt.Sprintf("#%06x", rand.IntN(0x1000000))
}

// SessionDirectory maps each clientId to its single live session. The admit
// rule below is what enforces at-most-one transport per clientId.
type SessionDirectory struct {
	mu       sync.Mutex
	sessions map[string]*ClientSession
}

func NewSessionDirectory() *SessionDirectory {
	return &SessionDirectory{
		sessions: make(map[string]*ClientSession),
	}
}

// Admit installs sess as the sole live session for its clientId. Any prior
// session under the same id is force-closed and replaced; its room carries
// over onto the new session so a reconnecting client resumes where it left
// off. Room membership is keyed by clientId, so it survives the replacement
// untouched and the room's history stays intact.
//
// The caller announces the user count after this returns; no sends happen
// under the directory lock.
func (d *SessionDirectory) Admit(sess *ClientSession) (priorRoom string, displaced bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.sessions[sess.clientID]; ok {
		displaced = true
		priorRoom = prev.Room()
		_ = prev.conn.Close()
		delete(d.sessions, sess.clientID)
	}
	if priorRoom != "" {
		sess.SetRoom(priorRoom)
	}
	d.sessions[sess.clientID] = sess
	return priorRoom, displaced
}

// Get returns the live session for clientID, if any.
func (d *SessionDirectory) Get(clientID string) (*ClientSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess, ok := d.sessions[clientID]
	return sess, ok
}

// Remove deletes and returns the session for clientID, if present.
func (d *SessionDirectory) Remove(clientID string) (*ClientSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sess, ok := d.sessions[clientID]
	if ok {
		delete(d.sessions, clientID)
	}
	return sess, ok
}

// RemoveIf deletes the entry for sess only while sess is still the live
// session for its clientId. This keeps a displaced transport's close event
// from evicting the successor session that replaced it.
func (d *SessionDirectory) RemoveIf(sess *ClientSession) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.sessions[sess.clientID]
	if !ok || current != sess {
		return false
	}
	delete(d.sessions, sess.clientID)
	return true
}

// Snapshot returns the current sessions, safe to iterate without the lock.
func (d *SessionDirectory) Snapshot() []*ClientSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*ClientSession, 0, len(d.sessions))
	for _, sess := range d.sessions {
		out = append(out, sess)
	}
	return out
}

func (d *SessionDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// Clear empties the directory and returns what it held. Used on shutdown.
func (d *SessionDirectory) Clear() []*ClientSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*ClientSession, 0, len(d.sessions))
	for _, sess := range d.sessions {
		out = append(out, sess)
	}
	d.sessions = make(map[string]*ClientSession)
	return out
}
