package board

import "encoding/json"

// Message types exchanged over a board connection.
const (
	MsgJoinRoom    = "join-room"    // client -> server: join a room by id
	MsgLoadCanvas  = "load-canvas"  // server -> client: full replay on join
	MsgDraw        = "draw"         // both directions: one operation
	MsgClearCanvas = "clear-canvas" // both directions: wipe the room
)

// Frame is one websocket message. Operations travel as raw JSON so the
// server can store and relay them without understanding their contents.
type Frame struct {
	Type string            `json:"type"`
	Room string            `json:"room,omitempty"`
	Op   json.RawMessage   `json:"op,omitempty"`
	Ops  []json.RawMessage `json:"ops,omitempty"`
}
