package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studycompanion/core/internal/modules/notetask"
	"go.uber.org/zap"
)

func TestNotifyTaskEnqueuesRoomMessage(t *testing.T) {
	h := NewHub(nil, zap.NewNop(), nil)

	h.NotifyTask(notetask.Event{TaskID: "t1", SessionID: "s1", Progress: 33})

	msg := <-h.broadcast
	assert.Equal(t, eventNoteTaskProgress, msg.Event)
	assert.Equal(t, SessionRoom("s1"), msg.Room)
	ev, ok := msg.Payload.(notetask.Event)
	require.True(t, ok)
	assert.Equal(t, 33, ev.Progress)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := NewHub(nil, zap.NewNop(), nil)

	// Overfill the queue with no consumer; extra messages are dropped.
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.Broadcast("stats", nil, "")
	}
	assert.Len(t, h.broadcast, cap(h.broadcast))
}

func TestHubRoomAccounting(t *testing.T) {
	h := NewHub(nil, zap.NewNop(), nil)

	h.registerClient(clientMeta{sid: "a"})
	h.registerClient(clientMeta{sid: "a", room: SessionRoom("s1")})
	h.registerClient(clientMeta{sid: "b", room: SessionRoom("s1")})
	h.registerClient(clientMeta{sid: "b", room: SessionRoom("s2")})

	assert.Equal(t, 2, h.ClientCount(""))
	assert.Equal(t, 2, h.ClientCount(SessionRoom("s1")))
	assert.Equal(t, 2, h.RoomCount())

	h.unregisterClient(clientMeta{sid: "b", room: SessionRoom("s1")})
	assert.Equal(t, 1, h.ClientCount(SessionRoom("s1")))

	h.unregisterClient(clientMeta{sid: "a"})
	assert.Equal(t, 1, h.ClientCount(""))
	assert.Equal(t, 1, h.RoomCount())
}
