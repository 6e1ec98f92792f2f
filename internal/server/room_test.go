package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ncastellani/parlor/internal/content"
	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/stats"
	"github.com/ncastellani/parlor/internal/testutil"
	"github.com/ncastellani/parlor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRoom(t *testing.T, cs *ChatServer, dbRoom database.Room) *Room {
	t.Helper()
	r := newRoom(dbRoom, cs)
	r.killTimer = time.NewTimer(time.Hour)
	r.killTimer.Stop()
	return r
}

func newTestClient(id int, username string) *Client {
	return &Client{
		user:  types.User{Id: id, Username: username},
		send:  make(chan *ServerMessage, 16),
		rooms: make(map[string]*Room),
	}
}

func Test_room_addClient_removeClient(t *testing.T) {
	cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

	c := newTestClient(1, "testuser")
	room.addClient(c)
	assert.Len(t, room.clients, 1, "expected 1 client after adding")
	assert.Contains(t, room.userMap, 1, "expected userMap entry for the user")
	assert.NotNil(t, c.getRoom("general"), "expected client to track the room")

	room.removeClient(c)
	assert.Len(t, room.clients, 0, "expected 0 clients after removal")
	assert.NotContains(t, room.userMap, 1, "expected userMap entry gone")
	assert.Nil(t, c.getRoom("general"), "expected client to drop the room")

	// removing an unknown client is a no-op
	room.removeClient(c)
}

func Test_handleRoomTimeout(t *testing.T) {
	t.Run("requests unload from the hub", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		room.handleRoomTimeout()
		select {
		case name := <-cs.unloadRoomChan:
			assert.Equal(t, "general", name)
		default:
			t.Error("expected unload request on unloadRoomChan")
		}
	})

	t.Run("retries when the hub is saturated", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		cs.unloadRoomChan = make(chan string, 1)
		cs.unloadRoomChan <- "another-room"

		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})
		room.handleRoomTimeout()
		assert.True(t, room.killTimer.Stop(), "expected kill timer to be re-armed")
	})
}

func Test_handleRoomExit(t *testing.T) {
	cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

	c := newTestClient(1, "testuser")
	room.addClient(c)

	room.handleRoomExit()

	select {
	case <-room.done:
	default:
		t.Error("expected done channel to be closed")
	}
	assert.Nil(t, c.getRoom("general"), "expected client to drop the room on exit")
}

func Test_room_handleJoin(t *testing.T) {
	t.Run("join announced to every member including the joiner", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general", Title: "General"})

		existing := newTestClient(1, "alice")
		room.addClient(existing)

		joiner := newTestClient(2, "bob")
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 5},
			Join:        &Join{Room: "general"},
			UserId:      2,
			client:      joiner,
		})

		ack := <-joiner.send
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)
		joined, ok := ack.Response.Data.(types.Room)
		assert.True(t, ok, "expected room payload in the ack")
		assert.Equal(t, "general", joined.Name)

		notice := <-joiner.send
		assert.NotNil(t, notice.System, "joiner receives the membership notice too")
		assert.Contains(t, notice.System.Text, "bob joined general")

		notice = <-existing.send
		assert.NotNil(t, notice.System)
		assert.Contains(t, notice.System.Text, "bob joined general")
	})

	t.Run("second device of a present user joins silently", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		member := newTestClient(2, "bob")
		room.addClient(member)

		phone := newTestClient(1, "alice")
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 3},
			Join:        &Join{Room: "general"},
			UserId:      1,
			client:      phone,
		})
		<-phone.send  // ack
		<-phone.send  // joined notice
		<-member.send // joined notice

		laptop := newTestClient(1, "alice")
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 4},
			Join:        &Join{Room: "general"},
			UserId:      1,
			client:      laptop,
		})

		ack := <-laptop.send
		assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

		select {
		case msg := <-member.send:
			t.Errorf("expected no notice for a second device, got %+v", msg)
		default:
		}
	})

	t.Run("private room rejects non-admin member", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "staff", Private: true})

		joiner := newTestClient(2, "bob")
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 5},
			Join:        &Join{Room: "staff"},
			UserId:      2,
			client:      joiner,
		})

		got := <-joiner.send
		assert.Equal(t, http.StatusForbidden, got.Response.ResponseCode)
		assert.Empty(t, room.clients, "rejected joiner must not become a member")
	})

	t.Run("private room admits admin", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "staff", Private: true})

		admin := newTestClient(3, "root")
		admin.user.IsAdmin = true
		room.handleJoin(&ClientMessage{
			BaseMessage: BaseMessage{Id: 5},
			Join:        &Join{Room: "staff"},
			UserId:      3,
			client:      admin,
		})

		got := <-admin.send
		assert.Equal(t, http.StatusOK, got.Response.ResponseCode)
		assert.Len(t, room.clients, 1)
	})
}

func Test_room_handleLeave(t *testing.T) {
	cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

	leaver := newTestClient(1, "alice")
	stayer := newTestClient(2, "bob")
	room.addClient(leaver)
	room.addClient(stayer)

	room.handleLeave(&ClientMessage{
		BaseMessage: BaseMessage{Id: 8},
		Leave:       &Leave{Room: "general"},
		UserId:      1,
		client:      leaver,
	})

	assert.NotContains(t, room.clients, leaver)

	ack := <-leaver.send
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

	notice := <-stayer.send
	assert.NotNil(t, notice.System)
	assert.Contains(t, notice.System.Text, "alice left general")
}

func Test_room_handleLeave_multiDevice(t *testing.T) {
	cs := newTestChatServer(t, &database.MockParlorRepository{}, &stats.MockStatsUpdater{})
	room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

	phone := newTestClient(1, "alice")
	laptop := newTestClient(1, "alice")
	stayer := newTestClient(2, "bob")
	room.addClient(phone)
	room.addClient(laptop)
	room.addClient(stayer)

	room.handleLeave(&ClientMessage{
		BaseMessage: BaseMessage{Id: 8},
		Leave:       &Leave{Room: "general"},
		UserId:      1,
		client:      phone,
	})

	ack := <-phone.send
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

	// alice is still present through her other device
	select {
	case msg := <-stayer.send:
		t.Errorf("expected no notice while another device remains, got %+v", msg)
	default:
	}

	room.handleLeave(&ClientMessage{
		BaseMessage: BaseMessage{Id: 9},
		Leave:       &Leave{Room: "general"},
		UserId:      1,
		client:      laptop,
	})

	ack = <-laptop.send
	assert.Equal(t, http.StatusOK, ack.Response.ResponseCode)

	notice := <-stayer.send
	assert.NotNil(t, notice.System)
	assert.Contains(t, notice.System.Text, "alice left general")
}

func Test_saveAndBroadcast(t *testing.T) {
	sender := database.User{Id: 1, Username: "alice", Avatar: "a.png"}

	publish := func(c *Client, content, media string) *ClientMessage {
		return &ClientMessage{
			BaseMessage: BaseMessage{Id: 11},
			Publish:     &Publish{Room: "general", Content: content, Media: media},
			UserId:      1,
			client:      c,
		}
	}

	t.Run("ordered pipeline with fan-out after persist", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil).Once()
		allowPosting(db, 1)
		db.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.RoomId.Int64 == 1 && m.UserId == 1 && m.Content == "hello"
		})).Return(database.Message{Id: 42, Content: "hello", CreatedAt: Now()}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.TotalMessages).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		member := newTestClient(2, "bob")
		room.addClient(author)
		room.addClient(member)

		room.saveAndBroadcast(publish(author, "hello", ""))

		ack := <-author.send
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode)

		got := <-author.send
		assert.NotNil(t, got.Message)
		assert.Equal(t, 42, got.Message.Id)
		assert.Equal(t, "alice", got.Message.Username)

		got = <-member.send
		assert.NotNil(t, got.Message)
		assert.Equal(t, "hello", got.Message.Content)
		assert.Equal(t, "general", got.Message.Room)
	})

	t.Run("profanity is censored before persist", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil).Once()
		allowPosting(db, 1)
		db.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			// the stored text is already masked
			return m.Content != "what the shit" && strings.Contains(m.Content, "*")
		})).Return(database.Message{Id: 43, CreatedAt: Now()}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", stats.TotalMessages).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServer(t, db, su)
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		room.addClient(author)

		room.saveAndBroadcast(publish(author, "what the shit", ""))

		<-author.send // ack
		got := <-author.send
		assert.NotContains(t, got.Message.Content, "shit")
	})

	t.Run("moderation denial leaves connection open", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Banned: true}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Times(4)
		su.On("Incr", stats.RejectedMessages).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServerWithStats(t, db, su)
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		member := newTestClient(2, "bob")
		room.addClient(author)
		room.addClient(member)

		room.saveAndBroadcast(publish(author, "hello", ""))

		got := <-author.send
		assert.Equal(t, http.StatusForbidden, got.Response.ResponseCode)

		select {
		case <-member.send:
			t.Error("rejected message must not reach other members")
		default:
		}
		db.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("muted sender posts once the mute lapses", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil).Twice()
		db.On("ActiveBan", 1, 1).Return(database.Ban{}, sql.ErrNoRows).Twice()
		db.On("ActiveMute", 1, 1, mock.Anything).
			Return(database.Mute{ExpiresAt: Now().Add(20 * time.Minute)}, nil).Once()
		db.On("ActiveMute", 1, 1, mock.Anything).
			Return(database.Mute{}, sql.ErrNoRows).Once()
		db.On("CreateMessage", mock.Anything).
			Return(database.Message{Id: 45, Content: "hello again", CreatedAt: Now()}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Times(4)
		su.On("Incr", stats.RejectedMessages).Once()
		su.On("Incr", stats.TotalMessages).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServerWithStats(t, db, su)
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		member := newTestClient(2, "bob")
		room.addClient(author)
		room.addClient(member)

		room.saveAndBroadcast(publish(author, "hello", ""))
		got := <-author.send
		assert.Equal(t, http.StatusForbidden, got.Response.ResponseCode)
		assert.Contains(t, got.Response.Error, "muted")

		room.saveAndBroadcast(publish(author, "hello again", ""))
		got = <-author.send
		assert.Equal(t, http.StatusAccepted, got.Response.ResponseCode)

		delivered := <-member.send
		assert.NotNil(t, delivered.Message, "the post after expiry reaches other members")
		assert.Equal(t, "hello again", delivered.Message.Content)
	})

	t.Run("empty after cleaning rejected unless media attached", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil)
		allowPosting(db, 1)
		db.On("CreateMessage", mock.MatchedBy(func(m database.Message) bool {
			return m.Media == "cat.png" && m.Content == ""
		})).Return(database.Message{Id: 44, Media: "cat.png", CreatedAt: Now()}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("RegisterMetric", mock.Anything).Times(4)
		su.On("Incr", stats.RejectedMessages).Once()
		su.On("Incr", stats.TotalMessages).Once()
		defer su.AssertExpectations(t)

		cs := newTestChatServerWithStats(t, db, su)
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		room.addClient(author)

		// markup-only text with no media is rejected
		room.saveAndBroadcast(publish(author, "<br/>", ""))
		got := <-author.send
		assert.Equal(t, http.StatusBadRequest, got.Response.ResponseCode)

		// the same text with media persists as a media message
		room.saveAndBroadcast(publish(author, "<br/>", "cat.png"))
		got = <-author.send
		assert.Equal(t, http.StatusAccepted, got.Response.ResponseCode)
	})

	t.Run("persist failure reported to sender only", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil).Once()
		allowPosting(db, 1)
		db.On("CreateMessage", mock.Anything).Return(database.Message{}, errors.New("db down")).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		room.addClient(author)

		room.saveAndBroadcast(publish(author, "hello", ""))
		got := <-author.send
		assert.Equal(t, http.StatusInternalServerError, got.Response.ResponseCode)
	})

	t.Run("infra error during moderation is an internal error", func(t *testing.T) {
		db := &database.MockParlorRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 1).Return(sender, nil).Once()
		db.On("ActiveBan", 1, 1).Return(database.Ban{}, sql.ErrConnDone).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		room := newTestRoom(t, cs, database.Room{Id: 1, Name: "general"})

		author := newTestClient(1, "alice")
		room.addClient(author)

		room.saveAndBroadcast(publish(author, "hello", ""))
		got := <-author.send
		assert.Equal(t, http.StatusInternalServerError, got.Response.ResponseCode)
	})
}

// newTestChatServerWithStats is newTestChatServer without the implicit
// RegisterMetric expectations, for tests that set their own.
func newTestChatServerWithStats(t *testing.T, db database.ParlorRepository, su *stats.MockStatsUpdater) *ChatServer {
	t.Helper()
	logger := testutil.TestLogger(t)
	cs, err := NewChatServer(logger, db, moderation.NewEngine(db, logger), content.NewFilter(nil), su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}
