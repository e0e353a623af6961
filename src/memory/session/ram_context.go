package session

import "sync"

// DefaultCapacity is the number of turns kept per session.
const DefaultCapacity = 8

// RAMContext is the ephemeral short-term buffer: the last N raw turns
// per session, FIFO-evicted. It is owned by the process serving the
// session and lost on restart. The design assumes a single writer per
// session; the mutex only guards the session map itself so unrelated
// sessions can be served from different goroutines.
type RAMContext struct {
	mu       sync.Mutex
	capacity int
	turns    map[string][]string
}

func NewRAMContext(capacity int) *RAMContext {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RAMContext{
		capacity: capacity,
		turns:    make(map[string][]string),
	}
}

// Add appends a turn, dropping the oldest once the buffer is full.
// Sessions are created lazily on first turn.
func (r *RAMContext) Add(sessionID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := append(r.turns[sessionID], text)
	if len(buf) > r.capacity {
		buf = buf[len(buf)-r.capacity:]
	}
	r.turns[sessionID] = buf
}

// Get returns an ordered copy of the session's turns, oldest first.
// Unknown sessions yield an empty slice.
func (r *RAMContext) Get(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.turns[sessionID]...)
}

// Recent returns up to n of the most recent turns, oldest first.
func (r *RAMContext) Recent(sessionID string, n int) []string {
	turns := r.Get(sessionID)
	if n <= 0 || len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// Len reports the number of buffered turns for a session. The slow
// pipe uses it as the turn counter when stamping edges.
func (r *RAMContext) Len(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns[sessionID])
}

// Clear drops every session.
func (r *RAMContext) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = make(map[string][]string)
}
