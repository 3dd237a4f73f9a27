package game

import (
	"sync"
	"time"

	"github.com/tbourn/go-dating-realtime/internal/clock"
)

// TimerKind names one timer slot of a session.
type TimerKind string

const (
	TimerCountdown TimerKind = "countdown"
	TimerRound     TimerKind = "round"
	TimerAdvance   TimerKind = "advance"
)

// graceTimer is the reconnect grace slot of one player.
func graceTimer(userID string) TimerKind { return TimerKind("grace:" + userID) }

// Handle identifies one armed timer. A callback must Claim its handle under
// the session lock before acting; a cancelled or replaced handle loses.
type Handle struct {
	t clock.Timer
}

type timerKey struct {
	session string
	kind    TimerKind
}

// Timers owns every engine timer, keyed by (session, kind). Arming a slot
// cancels whatever was armed there before.
type Timers struct {
	clk clock.Clock

	mu sync.Mutex
	m  map[timerKey]*Handle
}

// NewTimers returns an empty registry.
func NewTimers(clk clock.Clock) *Timers {
	return &Timers{clk: clk, m: make(map[timerKey]*Handle)}
}

// Arm schedules fire after d in the (session, kind) slot.
func (r *Timers) Arm(session string, kind TimerKind, d time.Duration, fire func(*Handle)) *Handle {
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := timerKey{session, kind}
	if old, ok := r.m[k]; ok {
		old.t.Stop()
	}
	h := &Handle{}
	h.t = r.clk.AfterFunc(d, func() { fire(h) })
	r.m[k] = h
	return h
}

// Claim removes h from its slot and reports whether it was still current.
func (r *Timers) Claim(session string, kind TimerKind, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := timerKey{session, kind}
	if r.m[k] != h {
		return false
	}
	delete(r.m, k)
	return true
}

// Cancel stops the timer in one slot, if any.
func (r *Timers) Cancel(session string, kind TimerKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := timerKey{session, kind}
	if h, ok := r.m[k]; ok {
		h.t.Stop()
		delete(r.m, k)
	}
}

// CancelSession stops every timer of a session.
func (r *Timers) CancelSession(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.m {
		if k.session == session {
			h.t.Stop()
			delete(r.m, k)
		}
	}
}

// Has reports whether a slot is armed.
func (r *Timers) Has(session string, kind TimerKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[timerKey{session, kind}]
	return ok
}

// Len returns the number of armed timers.
func (r *Timers) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Shutdown stops all timers.
func (r *Timers) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, h := range r.m {
		h.t.Stop()
		delete(r.m, k)
	}
}
