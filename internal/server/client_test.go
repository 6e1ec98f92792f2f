package server

import (
	"testing"

	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/stats"
	"github.com/ncastellani/parlor/internal/testutil"
	"github.com/ncastellani/parlor/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNewClient(t *testing.T) {
	cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
	user := types.User{Id: 1, Username: "alice"}

	c := NewClient(user, nil, cs, testutil.TestLogger(t))
	assert.NotEmpty(t, c.sessionId, "expected a session id")
	assert.Equal(t, user, c.user)
	assert.Equal(t, cs, c.chatServer)
	assert.NotNil(t, c.send)
	assert.NotNil(t, c.rooms)
	assert.NotNil(t, c.stop)

	other := NewClient(user, nil, cs, testutil.TestLogger(t))
	assert.NotEqual(t, c.sessionId, other.sessionId, "each connection gets its own session id")
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})

	t.Run("channel full drops without blocking", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_stopClient(t *testing.T) {
	c := &Client{stop: make(chan struct{})}

	c.stopClient()
	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}

	// a second stop must not panic on a closed channel
	c.stopClient()
}

func Test_addRoom_getRoom_delRoom(t *testing.T) {
	c := &Client{rooms: make(map[string]*Room)}
	room := &Room{name: "general"}

	c.addRoom(room)
	assert.Equal(t, room, c.getRoom("general"))

	c.delRoom("general")
	assert.Nil(t, c.getRoom("general"))
	assert.Nil(t, c.getRoom("never-joined"))
}

func Test_leaveAllRooms(t *testing.T) {
	rooms := []*Room{
		{name: "room1", leaveChan: make(chan *ClientMessage, 1)},
		{name: "room2", leaveChan: make(chan *ClientMessage, 1)},
	}

	c := &Client{
		user:  types.User{Id: 1},
		rooms: make(map[string]*Room),
	}

	for _, room := range rooms {
		c.addRoom(room)
	}

	c.leaveAllRooms()

	for _, room := range rooms {
		select {
		case msg := <-room.leaveChan:
			assert.NotNil(t, msg.Leave, "expected leave message for room %s", room.name)
			assert.Equal(t, room.name, msg.Leave.Room)
			assert.Equal(t, c.user.Id, msg.UserId)
		default:
			t.Errorf("expected a leave message for room %s", room.name)
		}
	}
}
