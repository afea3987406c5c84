// Package client implements the participant side of a board session:
// sending locally drawn operations, applying remote ones, consuming the
// join replay, and the local-only undo stack.
package client

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"drawroom/internal/board"
	"drawroom/internal/history"
)

// Surface is the rendering collaborator. The controller draws through it
// and snapshots it for undo; it never interprets pixels itself.
type Surface interface {
	Apply(op board.Op)
	Snapshot() *image.RGBA
	Restore(snap *image.RGBA)
}

// State of the controller's join lifecycle.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateSynced
)

// Controller is one participant's sync endpoint.
//
// A single mutex serializes local actions against remote deliveries, so
// rendering happens one operation at a time in whatever order the two
// sides arrive. Callbacks run on the receive goroutine while that lock is
// held and must not call back into the controller.
type Controller struct {
	surface Surface
	logger  *slog.Logger

	// OnReplay fires once per join with the decoded replay, after it has
	// been rendered. OnRemote fires after each remotely received
	// operation has been rendered. OnDropped fires when the connection
	// dies; there is no automatic reconnect, rejoining on a fresh
	// connection is the only resync path.
	OnReplay  func([]board.Op)
	OnRemote  func(board.Op)
	OnDropped func(error)

	mu     sync.Mutex
	state  State
	room   string
	sock   *websocket.Conn
	hist   *history.Stack[*image.RGBA]
	joined chan error
}

// New returns an idle controller drawing onto surface.
func New(surface Surface, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		surface: surface,
		logger:  logger.With("component", "client"),
	}
}

// Connect dials the board server and starts the receive loop.
func (c *Controller) Connect(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock != nil {
		return errors.New("client: already connected")
	}
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", url, err)
	}
	c.sock = sock
	go c.readLoop(sock)
	return nil
}

// Join enters a room and blocks until the server's replay has been applied
// to the surface in order. The surface is cleared first, so joining (or
// rejoining) always reconstructs the room from its log alone.
func (c *Controller) Join(ctx context.Context, room string) error {
	c.mu.Lock()
	if c.sock == nil {
		c.mu.Unlock()
		return errors.New("client: not connected")
	}
	if c.state == StateJoining {
		c.mu.Unlock()
		return errors.New("client: join already in progress")
	}
	c.state = StateJoining
	c.room = room
	joined := make(chan error, 1)
	c.joined = joined
	err := c.sock.WriteJSON(board.Frame{Type: board.MsgJoinRoom, Room: room})
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.joined = nil
		c.mu.Unlock()
		return fmt.Errorf("client: join %s: %w", room, err)
	}

	select {
	case err := <-joined:
		if err != nil {
			return fmt.Errorf("client: join %s: %w", room, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoom generates a fresh room id and joins it.
func (c *Controller) CreateRoom(ctx context.Context) (string, error) {
	id := board.GenerateRoomID()
	return id, c.Join(ctx, id)
}

// State reports the join lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room reports the currently joined room id.
func (c *Controller) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Stroke renders and sends one freehand segment. Segments do not push
// undo snapshots; call EndStroke when the drag finishes.
func (c *Controller) Stroke(s board.Stroke) error {
	return c.apply(s)
}

// EndStroke records the finished stroke as one undo step.
func (c *Controller) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitLocked()
}

// DrawShape renders, sends and records a finalized shape.
func (c *Controller) DrawShape(s board.Shape) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.applyLocked(s); err != nil {
		return err
	}
	c.commitLocked()
	return nil
}

// InsertText renders, sends and records a text insertion.
func (c *Controller) InsertText(t board.Text) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.applyLocked(t); err != nil {
		return err
	}
	c.commitLocked()
	return nil
}

// Clear wipes the local surface, records the wipe as an undo step, and
// asks the server to clear the room for everyone.
func (c *Controller) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSynced {
		return errors.New("client: not synced")
	}
	c.surface.Apply(board.Clear{})
	c.commitLocked()
	if err := c.sock.WriteJSON(board.Frame{Type: board.MsgClearCanvas, Room: c.room}); err != nil {
		return fmt.Errorf("client: send clear: %w", err)
	}
	return nil
}

// Undo steps the local history back one snapshot. Purely local: nothing is
// sent and the shared log is untouched, so remote drawing applied since
// that snapshot disappears from this participant's view only.
func (c *Controller) Undo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hist == nil {
		return false
	}
	snap, ok := c.hist.Undo()
	if ok {
		c.surface.Restore(snap)
	}
	return ok
}

// Redo steps the local history forward one snapshot. Local-only, like Undo.
func (c *Controller) Redo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hist == nil {
		return false
	}
	snap, ok := c.hist.Redo()
	if ok {
		c.surface.Restore(snap)
	}
	return ok
}

// Close drops the connection. No graceful drain: anything not yet written
// is lost, and the server simply forgets this connection's membership.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	c.state = StateIdle
	return err
}

func (c *Controller) apply(op board.Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(op)
}

// applyLocked renders op locally and sends it. Local rendering is
// synchronous with the action; the network write goes to the socket
// buffer and is not acknowledged.
func (c *Controller) applyLocked(op board.Op) error {
	if c.state != StateSynced {
		return errors.New("client: not synced")
	}
	c.surface.Apply(op)
	raw, err := board.Encode(op)
	if err != nil {
		return err
	}
	if err := c.sock.WriteJSON(board.Frame{Type: board.MsgDraw, Room: c.room, Op: raw}); err != nil {
		return fmt.Errorf("client: send draw: %w", err)
	}
	return nil
}

func (c *Controller) commitLocked() {
	if c.state != StateSynced || c.hist == nil {
		return
	}
	c.hist.Push(c.surface.Snapshot())
}

func (c *Controller) readLoop(sock *websocket.Conn) {
	for {
		var f board.Frame
		if err := sock.ReadJSON(&f); err != nil {
			c.dropped(sock, err)
			return
		}
		c.handleFrame(f)
	}
}

func (c *Controller) handleFrame(f board.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch f.Type {
	case board.MsgLoadCanvas:
		if c.state != StateJoining {
			return
		}
		c.surface.Apply(board.Clear{})
		replay := make([]board.Op, 0, len(f.Ops))
		for _, raw := range f.Ops {
			op, err := board.Decode(raw)
			if err != nil {
				c.logger.Warn("skipping replay op", "err", err)
				continue
			}
			c.surface.Apply(op)
			replay = append(replay, op)
		}
		// The post-replay canvas is the undo baseline; nothing older is
		// reachable.
		c.hist = history.New(c.surface.Snapshot())
		c.state = StateSynced
		if c.joined != nil {
			close(c.joined)
			c.joined = nil
		}
		if c.OnReplay != nil {
			c.OnReplay(replay)
		}
	case board.MsgDraw:
		if c.state != StateSynced {
			return
		}
		op, err := board.Decode(f.Op)
		if err != nil {
			c.logger.Warn("skipping remote op", "err", err)
			return
		}
		// Remote work renders but never pushes an undo snapshot: undo
		// only walks this participant's own history.
		c.surface.Apply(op)
		if c.OnRemote != nil {
			c.OnRemote(op)
		}
	case board.MsgClearCanvas:
		if c.state != StateSynced {
			return
		}
		c.surface.Apply(board.Clear{})
		if c.OnRemote != nil {
			c.OnRemote(board.Clear{})
		}
	default:
		c.logger.Warn("unknown frame", "type", f.Type)
	}
}

func (c *Controller) dropped(sock *websocket.Conn, err error) {
	c.mu.Lock()
	if c.sock != sock && c.sock != nil {
		c.mu.Unlock()
		return
	}
	wasJoining := c.state == StateJoining
	closed := c.sock == nil
	c.sock = nil
	c.state = StateIdle
	joined := c.joined
	c.joined = nil
	cb := c.OnDropped
	c.mu.Unlock()

	if wasJoining && joined != nil {
		joined <- err
	}
	if cb != nil && !closed {
		cb(err)
	}
}
