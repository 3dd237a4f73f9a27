package realtime_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-dating-realtime/internal/realtime"
	"github.com/tbourn/go-dating-realtime/internal/realtime/realtimetest"
)

func TestRouter_UserRoomAndMultipleConnections(t *testing.T) {
	r := realtime.NewRouter(zerolog.Nop())
	phone := realtimetest.New("c1", "alice")
	tablet := realtimetest.New("c2", "alice")
	r.Register(phone)
	r.Register(tablet)

	n := r.EmitToUser("alice", "ping", map[string]any{"n": 1})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, phone.Count("ping"))
	assert.Equal(t, 1, tablet.Count("ping"))
	assert.True(t, r.HasConnections("alice"))
	assert.Equal(t, []string{"c1", "c2"}, r.ConnIDsOf("alice"))
}

func TestRouter_RoomFanoutExceptAndUserScoped(t *testing.T) {
	r := realtime.NewRouter(zerolog.Nop())
	a := realtimetest.New("a1", "alice")
	b := realtimetest.New("b1", "bob")
	r.Register(a)
	r.Register(b)
	room := realtime.ConversationRoom("conv1")
	r.Join(room, a)
	r.Join(room, b)

	assert.Equal(t, 1, r.EmitToRoomExcept(room, "a1", "typing:started", nil))
	assert.Equal(t, 0, a.Count("typing:started"))
	assert.Equal(t, 1, b.Count("typing:started"))

	assert.Equal(t, 1, r.EmitToRoomUser(room, "alice", "only", nil))
	assert.Equal(t, 1, a.Count("only"))
	assert.Equal(t, 0, b.Count("only"))

	assert.True(t, r.UserInRoom(room, "bob"))
	r.Leave(room, b)
	assert.False(t, r.InRoom(room, "b1"))
	assert.Equal(t, 1, r.EmitToRoom(room, "message:new", nil))
}

func TestRouter_UnregisterReportsRooms(t *testing.T) {
	r := realtime.NewRouter(zerolog.Nop())
	a := realtimetest.New("a1", "alice")
	r.Register(a)
	r.Join(realtime.SessionRoom("s1"), a)
	r.Join(realtime.ConversationRoom("c1"), a)

	left := r.Unregister(a)
	require.Equal(t, []string{"conversation:c1", "session:s1"}, left)
	assert.False(t, r.HasConnections("alice"))
	assert.Equal(t, 0, r.EmitToUser("alice", "x", nil))
	assert.Nil(t, r.Unregister(a))
}

func TestRouter_PerConnectionOrder(t *testing.T) {
	r := realtime.NewRouter(zerolog.Nop())
	a := realtimetest.New("a1", "alice")
	r.Register(a)
	room := realtime.ConversationRoom("c1")
	r.Join(room, a)
	for i := 0; i < 5; i++ {
		r.EmitToRoom(room, "message:new", map[string]any{"seq": i})
	}
	frames := a.Events("message:new")
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.EqualValues(t, i, f.Data["seq"])
	}
}
