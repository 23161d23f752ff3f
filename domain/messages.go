package domain

import "encoding/json"

// Event is one application frame as received, kept verbatim so relays and
// history replay are byte-identical to what the sender produced.
type Event = json.RawMessage

// Client-originated message types the server gives meaning to. Every other
// type is relayed and archived as-is.
const (
	TypeJoin = "join"
	TypeDraw = "draw"
)

// Server-originated message types.
const (
	TypeWelcome       = "welcome"
	TypeRoomHistory   = "roomHistory"
	TypeRoomUserCount = "roomUserCount"
	TypeError         = "error"
)

// ClientState is the presentational state carried per session: last pointer
// position, assigned color, and the last-activity timestamp in unix millis.
type ClientState struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Color      string `json:"color"`
	LastActive int64  `json:"lastActive"`
}

// Envelope is the decoded shape of an inbound frame. Only the fields the
// server routes on are declared; everything else rides along in the raw
// payload. Coordinates are pointers so absence is distinguishable from zero.
type Envelope struct {
	Type   string   `json:"type"`
	RoomID string   `json:"roomId"`
	X      *float64 `json:"x"`
	Y      *float64 `json:"y"`
	Color  string   `json:"color"`
}

// Welcome is the first application frame on every admitted connection.
type Welcome struct {
	Type     string      `json:"type"`
	ClientID string      `json:"clientId"`
	State    ClientState `json:"state"`
}

// RoomHistory replays the room's retained events to a joiner.
type RoomHistory struct {
	Type    string  `json:"type"`
	RoomID  string  `json:"roomId"`
	History []Event `json:"history"`
}

// RoomUserCount announces the room population after a membership change.
type RoomUserCount struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// ErrorMessage replies to malformed client input.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
