// Package realtimetest provides an in-memory realtime.Conn that records
// every frame it is sent.
package realtimetest

import (
	"encoding/json"
	"sync"

	"github.com/tbourn/go-dating-realtime/internal/realtime"
)

// Frame is one decoded outbound event.
type Frame struct {
	Event string
	Data  map[string]any
	Raw   json.RawMessage
}

// Recorder implements realtime.Conn.
type Recorder struct {
	id     string
	userID string

	mu     sync.Mutex
	frames []Frame
	closed bool
}

var _ realtime.Conn = (*Recorder)(nil)

// New returns a Recorder with the given identities.
func New(id, userID string) *Recorder { return &Recorder{id: id, userID: userID} }

func (r *Recorder) ID() string     { return r.id }
func (r *Recorder) UserID() string { return r.userID }

func (r *Recorder) Send(payload []byte) error {
	var env realtime.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	f := Frame{Event: env.Event, Raw: env.Data}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &f.Data)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return realtime.ErrClosed
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *Recorder) Close(int, string) {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// Frames returns a copy of everything received.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Events returns the frames named event.
func (r *Recorder) Events(event string) []Frame {
	var out []Frame
	for _, f := range r.Frames() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// Count returns how many frames named event were received.
func (r *Recorder) Count(event string) int { return len(r.Events(event)) }

// Last returns the newest frame named event.
func (r *Recorder) Last(event string) (Frame, bool) {
	ev := r.Events(event)
	if len(ev) == 0 {
		return Frame{}, false
	}
	return ev[len(ev)-1], true
}

// Reset drops recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}
