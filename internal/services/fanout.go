package services

// Fanout is the part of the room router the chat services emit through.
// *realtime.Router implements it.
type Fanout interface {
	EmitToRoom(room, event string, data any) int
	EmitToRoomExcept(room, exceptConnID, event string, data any) int
	EmitToUser(userID, event string, data any) int
	HasConnections(userID string) bool
}

// Chat egress events.
const (
	EventMessageNew       = "message:new"
	EventMessageEdited    = "message:edited"
	EventMessageDeleted   = "message:deleted"
	EventMessageReaction  = "message:reaction"
	EventReadReceipt      = "message:read:receipt"
	EventMessageDelivered = "message:delivered"
	EventTypingStarted    = "typing:started"
	EventTypingStopped    = "typing:stopped"
)
