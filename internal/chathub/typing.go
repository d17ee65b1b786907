package chathub

import (
	"sync"
	"time"
)

// TypingBroadcast is invoked on every edge of the typing state machine:
// once when a user starts typing in a room and once when they stop.
type TypingBroadcast func(roomID, userID string, typing bool)

type typingKey struct {
	roomID string
	userID string
}

type typingState struct {
	timer *time.Timer
	gen   int // bumped on every refresh so a stale timer fire is a no-op
}

// TypingTracker holds the per (room, user) debounced typing state.
// Broadcasts are edge-triggered: a burst of typing events produces exactly
// one "typing" notice, and expiry or an explicit stop produces exactly one
// "stop typing" notice. The subject is the user, not the connection, so any
// tab's activity keeps the state alive and any tab's stop ends it.
type TypingTracker struct {
	mu     sync.Mutex
	expiry time.Duration
	notify TypingBroadcast
	states map[typingKey]*typingState
}

func NewTypingTracker(expiry time.Duration, notify TypingBroadcast) *TypingTracker {
	return &TypingTracker{
		expiry: expiry,
		notify: notify,
		states: make(map[typingKey]*typingState),
	}
}

// Typing handles a "typing" event. The first event in a burst broadcasts;
// every later one only pushes the expiry deadline out.
func (t *TypingTracker) Typing(roomID, userID string) {
	key := typingKey{roomID, userID}

	t.mu.Lock()
	if st, ok := t.states[key]; ok {
		st.gen++
		gen := st.gen
		st.timer.Stop()
		st.timer = time.AfterFunc(t.expiry, func() { t.expire(key, gen) })
		t.mu.Unlock()
		return
	}

	st := &typingState{gen: 1}
	st.timer = time.AfterFunc(t.expiry, func() { t.expire(key, 1) })
	t.states[key] = st
	t.mu.Unlock()

	// Broadcast after the state is committed, never under the lock.
	t.notify(roomID, userID, true)
}

// StopTyping handles an explicit "stop typing" event. Duplicate stops and
// stops for a user who was never typing are no-ops.
func (t *TypingTracker) StopTyping(roomID, userID string) {
	key := typingKey{roomID, userID}

	t.mu.Lock()
	st, ok := t.states[key]
	if !ok {
		t.mu.Unlock()
		return
	}
	st.timer.Stop()
	delete(t.states, key)
	t.mu.Unlock()

	t.notify(roomID, userID, false)
}

// expire fires when the expiry window elapses with no refresh. A timer that
// lost the race against a refresh or an explicit stop finds either a newer
// generation or no state at all, and does nothing.
func (t *TypingTracker) expire(key typingKey, gen int) {
	t.mu.Lock()
	st, ok := t.states[key]
	if !ok || st.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.states, key)
	t.mu.Unlock()

	t.notify(key.roomID, key.userID, false)
}

// Stop cancels every pending expiry timer. Used at hub shutdown; no final
// notices are emitted.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, st := range t.states {
		st.timer.Stop()
		delete(t.states, key)
	}
}
