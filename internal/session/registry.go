// Package session keeps the per-room operation logs that back late-join
// replay. A room's log, applied in order to an empty canvas, reconstructs
// the shared drawing exactly as every participant sees it.
package session

import (
	"encoding/json"
	"sync"
)

// Log is the ordered operation history of one room. Operations are kept in
// their raw wire form: the registry never inspects or validates them, it
// only preserves arrival order.
type Log struct {
	mu  sync.RWMutex
	ops []json.RawMessage
}

// Append records one operation at the tail of the log.
func (l *Log) Append(op json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

// Snapshot returns a copy of the log in replay order.
func (l *Log) Snapshot() []json.RawMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ops := make([]json.RawMessage, len(l.ops))
	copy(ops, l.ops)
	return ops
}

// Clear drops the whole history.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = nil
}

// Len reports the number of stored operations.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ops)
}

// Registry maps room ids to their logs. Any id is valid: referencing an
// unknown room materializes an empty one. Rooms are never evicted, so a
// long-lived process grows with everything ever drawn; that bound is an
// accepted scope limit, not something this layer papers over.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Log
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Log)}
}

// GetOrCreate returns the log for id, creating an empty one on first use.
func (r *Registry) GetOrCreate(id string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rooms[id]
	if !ok {
		l = &Log{}
		r.rooms[id] = l
	}
	return l
}

// Append appends op to the room's log, creating the room if needed.
func (r *Registry) Append(id string, op json.RawMessage) {
	r.GetOrCreate(id).Append(op)
}

// Snapshot returns the room's current history in replay order.
func (r *Registry) Snapshot(id string) []json.RawMessage {
	return r.GetOrCreate(id).Snapshot()
}

// Clear empties the room's log.
func (r *Registry) Clear(id string) {
	r.GetOrCreate(id).Clear()
}

// Len reports the room's current log length.
func (r *Registry) Len(id string) int {
	return r.GetOrCreate(id).Len()
}
