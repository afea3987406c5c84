package session

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestGetOrCreateIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate("abc123")
	b := r.GetOrCreate("abc123")
	if a != b {
		t.Fatal("same id returned different logs")
	}
	if a.Len() != 0 {
		t.Fatalf("new log has %d ops", a.Len())
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		r.Append("room", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}
	snap := r.Snapshot("room")
	if len(snap) != 10 {
		t.Fatalf("snapshot has %d ops, want 10", len(snap))
	}
	for i, op := range snap {
		want := fmt.Sprintf(`{"n":%d}`, i)
		if string(op) != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, op, want)
		}
	}
}

func TestClearEmptiesLog(t *testing.T) {
	r := NewRegistry()
	r.Append("room", json.RawMessage(`{}`))
	r.Clear("room")
	if got := r.Len("room"); got != 0 {
		t.Fatalf("log has %d ops after clear", got)
	}
	if got := r.Snapshot("room"); len(got) != 0 {
		t.Fatalf("snapshot has %d ops after clear", len(got))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Append("room", json.RawMessage(`{"a":1}`))
	snap := r.Snapshot("room")
	snap[0] = json.RawMessage(`{"mutated":true}`)
	if got := string(r.Snapshot("room")[0]); got != `{"a":1}` {
		t.Fatalf("log mutated through snapshot: %s", got)
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	r := NewRegistry()
	r.Append("a", json.RawMessage(`{"room":"a"}`))
	if got := r.Len("b"); got != 0 {
		t.Fatalf("room b has %d ops", got)
	}
	r.Clear("b")
	if got := r.Len("a"); got != 1 {
		t.Fatalf("clearing b touched a, len = %d", got)
	}
}

func TestMalformedOpsStoredVerbatim(t *testing.T) {
	r := NewRegistry()
	junk := json.RawMessage(`{"tool":"nonsense","wat":[1,2,3]}`)
	r.Append("room", junk)
	if got := string(r.Snapshot("room")[0]); got != string(junk) {
		t.Fatalf("stored %s, want %s", got, junk)
	}
}
