package realtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Router tracks connections, user identities and room membership. Unlike a
// one-socket-per-user hub it keeps every live connection of a user, so a
// phone and a tablet both receive events.
type Router struct {
	mu        sync.RWMutex
	conns     map[string]Conn                // connID -> conn
	userConns map[string]map[string]struct{} // userID -> connIDs
	rooms     map[string]map[string]Conn     // room -> connID -> conn
	connRooms map[string]map[string]struct{} // connID -> rooms
	log       zerolog.Logger
}

// NewRouter constructs an empty Router.
func NewRouter(log zerolog.Logger) *Router {
	return &Router{
		conns:     make(map[string]Conn),
		userConns: make(map[string]map[string]struct{}),
		rooms:     make(map[string]map[string]Conn),
		connRooms: make(map[string]map[string]struct{}),
		log:       log,
	}
}

// Register tracks conn and joins it to its user room. Registering the same
// connection twice is a no-op.
func (r *Router) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = conn
	set := r.userConns[conn.UserID()]
	if set == nil {
		set = make(map[string]struct{})
		r.userConns[conn.UserID()] = set
	}
	set[conn.ID()] = struct{}{}
	r.connRooms[conn.ID()] = make(map[string]struct{})
	r.joinLocked(UserRoom(conn.UserID()), conn)
}

// Unregister forgets conn and returns the rooms it was in, user room
// excluded.
func (r *Router) Unregister(conn Conn) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; !ok {
		return nil
	}
	var left []string
	for room := range r.connRooms[conn.ID()] {
		if room != UserRoom(conn.UserID()) {
			left = append(left, room)
		}
		r.leaveLocked(room, conn.ID())
	}
	delete(r.connRooms, conn.ID())
	delete(r.conns, conn.ID())
	if set := r.userConns[conn.UserID()]; set != nil {
		delete(set, conn.ID())
		if len(set) == 0 {
			delete(r.userConns, conn.UserID())
		}
	}
	sort.Strings(left)
	return left
}

// Join adds a registered conn to room.
func (r *Router) Join(room string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; !ok {
		return
	}
	r.joinLocked(room, conn)
}

// Leave removes conn from room.
func (r *Router) Leave(room string, conn Conn) {
	r.mu.Lock()
	r.leaveLocked(room, conn.ID())
	r.mu.Unlock()
}

// InRoom reports whether connID is a member of room.
func (r *Router) InRoom(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// UserInRoom reports whether any connection of userID is in room.
func (r *Router) UserInRoom(room, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.rooms[room] {
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

// HasConnections reports whether userID has at least one live connection.
func (r *Router) HasConnections(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

// ConnIDsOf lists the live connections of userID.
func (r *Router) ConnIDsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.userConns[userID]))
	for id := range r.userConns[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EmitToRoom sends event to every member of room and returns how many
// connections accepted the frame.
func (r *Router) EmitToRoom(room, event string, data any) int {
	return r.emit(room, event, data, func(Conn) bool { return true })
}

// EmitToRoomExcept skips the connection exceptConnID.
func (r *Router) EmitToRoomExcept(room, exceptConnID, event string, data any) int {
	return r.emit(room, event, data, func(c Conn) bool { return c.ID() != exceptConnID })
}

// EmitToRoomUser sends only to the connections of userID that are in room.
func (r *Router) EmitToRoomUser(room, userID, event string, data any) int {
	return r.emit(room, event, data, func(c Conn) bool { return c.UserID() == userID })
}

// EmitToUser sends to every connection of userID.
func (r *Router) EmitToUser(userID, event string, data any) int {
	return r.EmitToRoom(UserRoom(userID), event, data)
}

// EmitToConn sends to one connection.
func (r *Router) EmitToConn(connID, event string, data any) bool {
	r.mu.RLock()
	conn := r.conns[connID]
	r.mu.RUnlock()
	if conn == nil {
		return false
	}
	payload, err := Encode(event, data)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encode event")
		return false
	}
	return conn.Send(payload) == nil
}

// Close closes every connection and clears state.
func (r *Router) Close() {
	r.mu.Lock()
	all := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	r.conns = make(map[string]Conn)
	r.userConns = make(map[string]map[string]struct{})
	r.rooms = make(map[string]map[string]Conn)
	r.connRooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, c := range all {
		c.Close(1001, "server shutdown")
	}
}

// emit encodes once and sends under the read lock, so two emits to the
// same room never interleave per connection.
func (r *Router) emit(room, event string, data any, keep func(Conn) bool) int {
	payload, err := Encode(event, data)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("encode event")
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	delivered := 0
	for _, id := range ids {
		c := members[id]
		if !keep(c) {
			continue
		}
		if err := c.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Router) joinLocked(room string, conn Conn) {
	members := r.rooms[room]
	if members == nil {
		members = make(map[string]Conn)
		r.rooms[room] = members
	}
	members[conn.ID()] = conn
	if r.connRooms[conn.ID()] == nil {
		r.connRooms[conn.ID()] = make(map[string]struct{})
	}
	r.connRooms[conn.ID()][room] = struct{}{}
}

func (r *Router) leaveLocked(room, connID string) {
	if members := r.rooms[room]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if set := r.connRooms[connID]; set != nil {
		delete(set, room)
	}
}
