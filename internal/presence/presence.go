// Package presence maps users to their live connections and publishes
// online/offline transitions to the conversation rooms of each user.
//
// State is process-local. The last-seen instant is also written to the
// users table and mirrored to the cache so other processes can read it.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-dating-realtime/internal/cache"
	"github.com/tbourn/go-dating-realtime/internal/clock"
	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/repo"
)

// EventStatus is emitted on every online/offline transition.
const EventStatus = "user:status"

const lastSeenTTL = 30 * 24 * time.Hour

// Fanout is the subset of the room router presence needs.
type Fanout interface {
	EmitToRoom(room, event string, data any) int
}

// Status is the payload of EventStatus.
type Status struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Registry is the identity and presence registry.
type Registry struct {
	DB     *gorm.DB
	Clock  clock.Clock
	Fanout Fanout
	Cache  cache.Cache
	Grace  time.Duration
	Log    zerolog.Logger

	mu       sync.Mutex
	conns    map[string]string              // connID -> userID
	users    map[string]map[string]struct{} // userID -> connIDs
	online   map[string]bool
	pending  map[string]*offlineTimer
	lastSeen map[string]time.Time
}

type offlineTimer struct{ t clock.Timer }

// New returns a Registry with the given offline grace.
func New(db *gorm.DB, clk clock.Clock, fan Fanout, c cache.Cache, grace time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		DB:       db,
		Clock:    clk,
		Fanout:   fan,
		Cache:    c,
		Grace:    grace,
		Log:      log,
		conns:    make(map[string]string),
		users:    make(map[string]map[string]struct{}),
		online:   make(map[string]bool),
		pending:  make(map[string]*offlineTimer),
		lastSeen: make(map[string]time.Time),
	}
}

// Attach records connID for userID. Repeating the call is a no-op. The
// first connection of an offline user publishes an online transition; a
// reconnect inside the grace window only cancels the pending offline.
func (r *Registry) Attach(ctx context.Context, connID, userID string) {
	now := r.Clock.Now()
	r.mu.Lock()
	if owner, ok := r.conns[connID]; ok && owner == userID {
		r.mu.Unlock()
		return
	}
	r.conns[connID] = userID
	set := r.users[userID]
	if set == nil {
		set = make(map[string]struct{})
		r.users[userID] = set
	}
	set[connID] = struct{}{}
	r.lastSeen[userID] = now
	if p, ok := r.pending[userID]; ok {
		p.t.Stop()
		delete(r.pending, userID)
	}
	transition := !r.online[userID]
	r.online[userID] = true
	r.mu.Unlock()

	if transition {
		r.publish(ctx, userID, true, now)
	}
}

// Detach forgets connID. When it was the last connection of its user an
// offline transition is scheduled after the grace period.
func (r *Registry) Detach(ctx context.Context, connID string) {
	now := r.Clock.Now()
	r.mu.Lock()
	userID, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, connID)
	set := r.users[userID]
	delete(set, connID)
	r.lastSeen[userID] = now
	if len(set) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.users, userID)
	if r.Grace <= 0 {
		r.online[userID] = false
		r.mu.Unlock()
		r.publish(ctx, userID, false, now)
		return
	}
	p := &offlineTimer{}
	p.t = r.Clock.AfterFunc(r.Grace, func() { r.expire(userID, p) })
	r.pending[userID] = p
	r.mu.Unlock()
}

func (r *Registry) expire(userID string, p *offlineTimer) {
	r.mu.Lock()
	if cur, ok := r.pending[userID]; !ok || cur != p {
		r.mu.Unlock()
		return
	}
	delete(r.pending, userID)
	if len(r.users[userID]) > 0 || !r.online[userID] {
		r.mu.Unlock()
		return
	}
	r.online[userID] = false
	seen := r.lastSeen[userID]
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.publish(ctx, userID, false, seen)
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[userID]) > 0
}

// ConnectionsOf lists the live connection ids of userID.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.users[userID]))
	for id := range r.users[userID] {
		out = append(out, id)
	}
	return out
}

// MarkSeen refreshes the last-seen instant of an active user.
func (r *Registry) MarkSeen(ctx context.Context, userID string) {
	now := r.Clock.Now()
	r.mu.Lock()
	r.lastSeen[userID] = now
	r.mu.Unlock()
	r.mirror(ctx, userID, now)
}

// LastSeen returns the freshest known last-seen instant, consulting the
// cache for users this process has never seen.
func (r *Registry) LastSeen(ctx context.Context, userID string) (time.Time, bool) {
	r.mu.Lock()
	t, ok := r.lastSeen[userID]
	r.mu.Unlock()
	if ok {
		return t, true
	}
	if r.Cache == nil {
		return time.Time{}, false
	}
	v, err := r.Cache.Get(ctx, lastSeenKey(userID))
	if err != nil {
		return time.Time{}, false
	}
	t, err = time.Parse(time.RFC3339Nano, v)
	return t, err == nil
}

// Shutdown cancels every pending offline transition.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		p.t.Stop()
		delete(r.pending, id)
	}
}

func (r *Registry) publish(ctx context.Context, userID string, online bool, at time.Time) {
	lg := r.Log.With().Str("user.id", userID).Bool("online", online).Logger()
	if r.DB != nil {
		if err := repo.SetPresence(ctx, r.DB, userID, online, at); err != nil {
			lg.Warn().Err(err).Msg("persist presence")
		}
	}
	r.mirror(ctx, userID, at)
	if r.DB == nil || r.Fanout == nil {
		return
	}
	ids, err := repo.ListConversationIDsForUser(ctx, r.DB, userID)
	if err != nil {
		lg.Warn().Err(err).Msg("list conversations for presence")
		return
	}
	st := Status{UserID: userID, IsOnline: online, LastSeen: at}
	for _, id := range ids {
		r.Fanout.EmitToRoom(realtime.ConversationRoom(id), EventStatus, st)
	}
	lg.Debug().Int("rooms", len(ids)).Msg("presence transition")
}

func (r *Registry) mirror(ctx context.Context, userID string, at time.Time) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Set(ctx, lastSeenKey(userID), at.Format(time.RFC3339Nano), lastSeenTTL); err != nil {
		r.Log.Debug().Err(err).Str("user.id", userID).Msg("mirror last seen")
	}
}

func lastSeenKey(userID string) string { return "presence:last_seen:" + userID }
