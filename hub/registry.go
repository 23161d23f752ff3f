package hub

import (
	"sync"

	"driftboard-relay-server/domain"
)

// room is an in-memory membership group with a bounded FIFO of recent events.
// Rooms exist exactly while they have at least one member.
type room struct {
	id      string
	members map[string]struct{}
	history []domain.Event
}

// RoomRegistry is the process-wide map of live rooms. All operations take the
// registry lock briefly; snapshot accessors return copies that are safe to
// iterate after the lock is released, so fan-out never holds it.
type RoomRegistry struct {
	mu           sync.Mutex
	rooms        map[string]*room
	historyLimit int
}

func NewRoomRegistry(historyLimit int) *RoomRegistry {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &RoomRegistry{
		rooms:        make(map[string]*room),
		historyLimit: historyLimit,
	}
}

// AddMember inserts clientID into the room, creating the room on first join.
// Returns the member count after insertion.
func (r *RoomRegistry) AddMember(roomID, clientID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:      roomID,
			members: make(map[string]struct{}),
			history: make([]domain.Event, 0),
		}
		r.rooms[roomID] = rm
	}
	rm.members[clientID] = struct{}{}
	return len(rm.members)
}

// RemoveMember removes clientID from the room, deleting the room once its
// last member leaves. Reports whether a membership was actually removed;
// absent rooms and non-members are no-ops.
func (r *RoomRegistry) RemoveMember(roomID, clientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := rm.members[clientID]; !member {
		return false
	}
	delete(rm.members, clientID)
	if len(rm.members) == 0 {
		delete(r.rooms, roomID)
	}
	return true
}

// MembersOf returns a snapshot of the room's member ids; empty if the room is
// absent.
func (r *RoomRegistry) MembersOf(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	return out
}

// UserCount returns the room's population; 0 if the room is absent.
func (r *RoomRegistry) UserCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// RoomsOf lists every room that counts clientID as a member. Sessions hold at
// most one room in practice, but the contract stays a list and callers must
// iterate.
func (r *RoomRegistry) RoomsOf(clientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for id, rm := range r.rooms {
		if _, member := rm.members[clientID]; member {
			out = append(out, id)
		}
	}
	return out
}

// AppendHistory archives an event in the room's history, dropping the oldest
// entry once the limit is reached. No-op if the room is absent.
func (r *RoomRegistry) AppendHistory(roomID string, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if len(rm.history) >= r.historyLimit {
		n := copy(rm.history, rm.history[1:])
		rm.history = rm.history[:n]
	}
	rm.history = append(rm.history, ev)
}

// HistoryOf returns a copy of the room's retained events in arrival order;
// empty if the room is absent.
func (r *RoomRegistry) HistoryOf(roomID string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return []domain.Event{}
	}
	out := make([]domain.Event, len(rm.history))
	copy(out, rm.history)
	return out
}

// Len returns the number of live rooms.
func (r *RoomRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Reset discards every room. Used on shutdown.
func (r *RoomRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = make(map[string]*room)
}
