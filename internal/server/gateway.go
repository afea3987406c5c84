// Package server accepts websocket connections and relays drawing
// operations between the participants of a room.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"drawroom/internal/board"
	"drawroom/internal/session"
)

// sendBuffer is the per-connection outbound queue. Fan-out is
// fire-and-forget: a peer that cannot drain its queue loses frames.
const sendBuffer = 256

type eventKind int

const (
	evFrame eventKind = iota
	evLeave
)

type event struct {
	kind  eventKind
	c     *conn
	frame board.Frame
}

// conn is one websocket participant. The transport-assigned id exists for
// logging; room membership lives in the gateway's join table.
type conn struct {
	id   string
	sock *websocket.Conn
	send chan []byte
}

func (c *conn) writeLoop() {
	for msg := range c.send {
		if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Gateway owns the join table and relays inbound frames. All state
// mutation, including every write to the session registry, happens on a
// single dispatch goroutine: one inbound message is fully stored and
// fanned out before the next is looked at, across all rooms.
type Gateway struct {
	registry *session.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	events chan event
	stop   chan struct{}
	once   sync.Once

	// Owned by the dispatch goroutine.
	members map[*conn]string
	rooms   map[string]map[*conn]bool
}

// NewGateway starts a gateway over the given registry. The registry is an
// explicit handle, not an ambient singleton, so its growth is observable
// and the gateway is testable in isolation.
func NewGateway(registry *session.Registry, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		registry: registry,
		logger:   logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		events:  make(chan event),
		stop:    make(chan struct{}),
		members: make(map[*conn]string),
		rooms:   make(map[string]map[*conn]bool),
	}
	go g.run()
	return g
}

// Close stops the dispatch goroutine. In-flight connections unwind as
// their reads fail.
func (g *Gateway) Close() {
	g.once.Do(func() { close(g.stop) })
}

// Handle upgrades an HTTP request and serves the connection until it drops.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &conn{id: uuid.NewString(), sock: sock, send: make(chan []byte, sendBuffer)}
	go c.writeLoop()
	g.logger.Info("connected", "conn", c.id, "remote", r.RemoteAddr)

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			break
		}
		var f board.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			g.logger.Warn("bad frame", "conn", c.id, "err", err)
			continue
		}
		g.post(event{kind: evFrame, c: c, frame: f})
	}
	g.post(event{kind: evLeave, c: c})
	g.logger.Info("disconnected", "conn", c.id)
}

func (g *Gateway) post(ev event) {
	select {
	case g.events <- ev:
	case <-g.stop:
	}
}

func (g *Gateway) run() {
	for {
		select {
		case <-g.stop:
			return
		case ev := <-g.events:
			switch ev.kind {
			case evFrame:
				g.handleFrame(ev.c, ev.frame)
			case evLeave:
				g.drop(ev.c)
			}
		}
	}
}

func (g *Gateway) handleFrame(c *conn, f board.Frame) {
	switch f.Type {
	case board.MsgJoinRoom:
		g.join(c, f.Room)
	case board.MsgDraw:
		room := g.roomFor(c, f)
		if room == "" {
			g.logger.Warn("draw without room", "conn", c.id)
			return
		}
		g.registry.Append(room, f.Op)
		g.broadcast(room, c, board.Frame{Type: board.MsgDraw, Op: f.Op})
	case board.MsgClearCanvas:
		room := g.roomFor(c, f)
		if room == "" {
			g.logger.Warn("clear without room", "conn", c.id)
			return
		}
		g.registry.Clear(room)
		g.broadcast(room, c, board.Frame{Type: board.MsgClearCanvas})
	default:
		g.logger.Warn("unknown message", "conn", c.id, "type", f.Type)
	}
}

// roomFor resolves the room a frame targets: the explicit room field if
// present, else the connection's current membership.
func (g *Gateway) roomFor(c *conn, f board.Frame) string {
	if f.Room != "" {
		return f.Room
	}
	return g.members[c]
}

// join switches the connection's membership to room (a connection belongs
// to at most one room) and sends back the full replay.
func (g *Gateway) join(c *conn, room string) {
	g.leaveRoom(c)
	g.members[c] = room
	peers, ok := g.rooms[room]
	if !ok {
		peers = make(map[*conn]bool)
		g.rooms[room] = peers
	}
	peers[c] = true

	ops := g.registry.Snapshot(room)
	g.deliver(c, board.Frame{Type: board.MsgLoadCanvas, Ops: ops})
	g.logger.Info("joined", "conn", c.id, "room", room, "replay", len(ops))
}

// broadcast fans a frame out to every member of room except the sender.
func (g *Gateway) broadcast(room string, sender *conn, f board.Frame) {
	for peer := range g.rooms[room] {
		if peer != sender {
			g.deliver(peer, f)
		}
	}
}

func (g *Gateway) deliver(c *conn, f board.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		g.logger.Error("marshal frame", "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		g.logger.Warn("slow peer, frame dropped", "conn", c.id)
	}
}

func (g *Gateway) leaveRoom(c *conn) {
	room, ok := g.members[c]
	if !ok {
		return
	}
	delete(g.members, c)
	if peers := g.rooms[room]; peers != nil {
		delete(peers, c)
		if len(peers) == 0 {
			delete(g.rooms, room)
		}
	}
}

// drop removes the connection's membership. The room's log is untouched:
// history outlives everyone who drew it.
func (g *Gateway) drop(c *conn) {
	g.leaveRoom(c)
	close(c.send)
	c.sock.Close()
}
