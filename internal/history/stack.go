// Package history implements the per-participant undo/redo stack. It is
// deliberately local-only: snapshots are pushed for the participant's own
// actions, never for remotely received drawing, so stepping through it can
// visually discard peer work without telling anyone.
package history

// Stack is a linear snapshot history with a cursor at the currently
// rendered entry. Pushing while the cursor is mid-stack discards the redo
// branch, classic linear undo.
type Stack[T any] struct {
	entries []T
	cursor  int
}

// New returns a stack seeded with the initial snapshot. The cursor always
// points at a valid entry, so a baseline is required up front.
func New[T any](initial T) *Stack[T] {
	return &Stack[T]{entries: []T{initial}}
}

// Push records a new snapshot, truncating anything past the cursor.
func (s *Stack[T]) Push(snap T) {
	s.entries = append(s.entries[:s.cursor+1], snap)
	s.cursor = len(s.entries) - 1
}

// Undo steps the cursor back and returns the snapshot to re-render.
// At the oldest entry it reports false and changes nothing.
func (s *Stack[T]) Undo() (T, bool) {
	if s.cursor == 0 {
		var zero T
		return zero, false
	}
	s.cursor--
	return s.entries[s.cursor], true
}

// Redo steps the cursor forward and returns the snapshot to re-render.
// At the newest entry it reports false and changes nothing.
func (s *Stack[T]) Redo() (T, bool) {
	if s.cursor >= len(s.entries)-1 {
		var zero T
		return zero, false
	}
	s.cursor++
	return s.entries[s.cursor], true
}

// Len reports the number of stored snapshots.
func (s *Stack[T]) Len() int { return len(s.entries) }

// Cursor reports the index of the currently rendered snapshot.
func (s *Stack[T]) Cursor() int { return s.cursor }
