package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"drawroom/internal/board"
	"drawroom/internal/session"
)

func newTestHost(t *testing.T) (string, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := NewGateway(registry, logger)
	t.Cleanup(gw.Close)
	srv := httptest.NewServer(http.HandlerFunc(gw.Handle))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), registry
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f board.Frame) {
	t.Helper()
	if err := conn.WriteJSON(f); err != nil {
		t.Fatalf("send %s: %v", f.Type, err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) board.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f board.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("recv: %v", err)
	}
	return f
}

// expectSilence asserts no frame arrives within the window. The read
// deadline poisons the connection, so this must be the last read on it.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var f board.Frame
	err := conn.ReadJSON(&f)
	if err == nil {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func join(t *testing.T, conn *websocket.Conn, room string) board.Frame {
	t.Helper()
	send(t, conn, board.Frame{Type: board.MsgJoinRoom, Room: room})
	f := recv(t, conn)
	if f.Type != board.MsgLoadCanvas {
		t.Fatalf("join reply = %s, want %s", f.Type, board.MsgLoadCanvas)
	}
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func strokeOp(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := board.Encode(board.Stroke{X1: 10, Y1: 10, Color: "#000000", Width: 2})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func TestJoinReplayAndClear(t *testing.T) {
	url, registry := newTestHost(t)

	a := dial(t, url)
	if f := join(t, a, "abc123"); len(f.Ops) != 0 {
		t.Fatalf("fresh room replayed %d ops", len(f.Ops))
	}

	op := strokeOp(t)
	send(t, a, board.Frame{Type: board.MsgDraw, Room: "abc123", Op: op})
	waitFor(t, "append", func() bool { return registry.Len("abc123") == 1 })

	b := dial(t, url)
	f := join(t, b, "abc123")
	if len(f.Ops) != 1 {
		t.Fatalf("late join replayed %d ops, want 1", len(f.Ops))
	}
	if string(f.Ops[0]) != string(op) {
		t.Fatalf("replay op = %s, want %s", f.Ops[0], op)
	}

	send(t, a, board.Frame{Type: board.MsgClearCanvas, Room: "abc123"})
	waitFor(t, "clear", func() bool { return registry.Len("abc123") == 0 })
	if f := recv(t, b); f.Type != board.MsgClearCanvas {
		t.Fatalf("b received %s, want %s", f.Type, board.MsgClearCanvas)
	}

	c := dial(t, url)
	if f := join(t, c, "abc123"); len(f.Ops) != 0 {
		t.Fatalf("post-clear join replayed %d ops", len(f.Ops))
	}
}

func TestBroadcastOrderMatchesAppendOrder(t *testing.T) {
	url, _ := newTestHost(t)

	a := dial(t, url)
	join(t, a, "order")
	b := dial(t, url)
	join(t, b, "order")

	var sent []string
	for i := 0; i < 20; i++ {
		raw, err := board.Encode(board.Stroke{X1: float64(i), Color: "#000000", Width: 1})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		sent = append(sent, string(raw))
		send(t, a, board.Frame{Type: board.MsgDraw, Room: "order", Op: raw})
	}
	for i := 0; i < 20; i++ {
		f := recv(t, b)
		if f.Type != board.MsgDraw {
			t.Fatalf("frame %d type = %s", i, f.Type)
		}
		if string(f.Op) != sent[i] {
			t.Fatalf("frame %d = %s, want %s", i, f.Op, sent[i])
		}
	}
}

func TestNoEcho(t *testing.T) {
	url, _ := newTestHost(t)

	a := dial(t, url)
	join(t, a, "room")
	b := dial(t, url)
	join(t, b, "room")

	send(t, a, board.Frame{Type: board.MsgDraw, Room: "room", Op: strokeOp(t)})
	if f := recv(t, b); f.Type != board.MsgDraw {
		t.Fatalf("b received %s, want draw", f.Type)
	}
	expectSilence(t, a)
}

func TestSessionIsolation(t *testing.T) {
	url, registry := newTestHost(t)

	a := dial(t, url)
	join(t, a, "a")
	b := dial(t, url)
	join(t, b, "b")

	send(t, a, board.Frame{Type: board.MsgDraw, Room: "a", Op: strokeOp(t)})
	waitFor(t, "append", func() bool { return registry.Len("a") == 1 })
	if got := registry.Len("b"); got != 0 {
		t.Fatalf("room b log has %d ops", got)
	}
	expectSilence(t, b)
}

func TestMembershipIndependence(t *testing.T) {
	url, _ := newTestHost(t)

	x := dial(t, url)
	join(t, x, "room")
	y := dial(t, url)
	join(t, y, "room")
	z := dial(t, url)
	join(t, z, "room")

	x.Close()
	// Give the gateway a beat to process the disconnect.
	time.Sleep(50 * time.Millisecond)

	send(t, y, board.Frame{Type: board.MsgDraw, Room: "room", Op: strokeOp(t)})
	if f := recv(t, z); f.Type != board.MsgDraw {
		t.Fatalf("z received %s, want draw", f.Type)
	}
}

func TestDisconnectLeavesLogIntact(t *testing.T) {
	url, registry := newTestHost(t)

	a := dial(t, url)
	join(t, a, "room")
	send(t, a, board.Frame{Type: board.MsgDraw, Room: "room", Op: strokeOp(t)})
	waitFor(t, "append", func() bool { return registry.Len("room") == 1 })

	a.Close()
	time.Sleep(50 * time.Millisecond)
	if got := registry.Len("room"); got != 1 {
		t.Fatalf("log has %d ops after disconnect, want 1", got)
	}
}

func TestRejoinSwitchesRoom(t *testing.T) {
	url, _ := newTestHost(t)

	a := dial(t, url)
	join(t, a, "first")
	join(t, a, "second")

	b := dial(t, url)
	join(t, b, "first")

	// a now belongs to "second" only; b's drawing in "first" must not
	// reach it.
	send(t, b, board.Frame{Type: board.MsgDraw, Room: "first", Op: strokeOp(t)})
	expectSilence(t, a)
}

func TestMalformedOpStoredAndRelayedVerbatim(t *testing.T) {
	url, registry := newTestHost(t)

	a := dial(t, url)
	join(t, a, "room")
	b := dial(t, url)
	join(t, b, "room")

	junk := json.RawMessage(`{"tool":"nonsense","payload":[1,2,3]}`)
	send(t, a, board.Frame{Type: board.MsgDraw, Room: "room", Op: junk})

	f := recv(t, b)
	if string(f.Op) != string(junk) {
		t.Fatalf("relayed %s, want %s", f.Op, junk)
	}
	waitFor(t, "append", func() bool { return registry.Len("room") == 1 })
	if got := string(registry.Snapshot("room")[0]); got != string(junk) {
		t.Fatalf("stored %s, want %s", got, junk)
	}
}

func TestUnknownFramesIgnored(t *testing.T) {
	url, _ := newTestHost(t)

	a := dial(t, url)
	join(t, a, "room")
	send(t, a, board.Frame{Type: "bogus"})
	if err := a.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// The connection survives both; a normal draw still round-trips.
	b := dial(t, url)
	join(t, b, "room")
	send(t, a, board.Frame{Type: board.MsgDraw, Room: "room", Op: strokeOp(t)})
	if f := recv(t, b); f.Type != board.MsgDraw {
		t.Fatalf("b received %s, want draw", f.Type)
	}
}
