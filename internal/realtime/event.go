// Package realtime carries the push channel: websocket connections with a
// single writer each, and a router that fans events out to rooms.
//
// Rooms are plain strings in three namespaces: conversation:<id>,
// session:<id> and user:<id>. Every registered connection is a member of
// its user room.
package realtime

import "encoding/json"

// Envelope is the wire frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Encode renders an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// ConversationRoom names the room of a conversation.
func ConversationRoom(id string) string { return "conversation:" + id }

// SessionRoom names the room of a game session.
func SessionRoom(id string) string { return "session:" + id }

// UserRoom names the singleton room of a user.
func UserRoom(id string) string { return "user:" + id }
