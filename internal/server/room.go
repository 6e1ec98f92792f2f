package server

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/stats"
	"github.com/ncastellani/parlor/internal/types"
	"go.uber.org/zap"
)

// idleRoomTimeout is how long a room with no live members stays loaded.
const idleRoomTimeout = time.Second * 5

type Room struct {
	id      int
	name    string
	title   string
	private bool

	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *zap.SugaredLogger
	// killTimer unloads the room once it has no live members
	killTimer *time.Timer
	exit      chan struct{}
	done      chan struct{}
}

func newRoom(dbRoom database.Room, cs *ChatServer) *Room {
	return &Room{
		id:            dbRoom.Id,
		name:          dbRoom.Name,
		title:         dbRoom.Title,
		private:       dbRoom.Private,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Infof("starting room %q", r.name)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			if msg.Publish != nil {
				r.saveAndBroadcast(msg)
			}
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case <-r.exit:
			r.handleRoomExit()
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Infof("room %q timed out", r.name)
	select {
	case r.cs.unloadRoomChan <- r.name:
	default:
		// retry on the next tick if the hub is saturated
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit() {
	r.log.Infof("room %q is exiting", r.name)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.name)
	}
	r.clientLock.Unlock()

	close(r.done)
}

// handleJoin adds the client to the room's member set and announces the
// join to every current member, the joiner included.
func (r *Room) handleJoin(join *ClientMessage) {
	c := join.client

	if r.private && !c.user.IsAdmin {
		c.queueMessage(ErrForbidden(join.Id))
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		return
	}

	// stop the kill timer since we have a new client
	r.killTimer.Stop()

	first := r.addClient(c)

	c.queueMessage(NoErrOK(join.Id, types.Room{
		Id:      r.id,
		Name:    r.name,
		Title:   r.title,
		Private: r.private,
	}))

	// a second device of an already-present user joins silently
	if first {
		r.broadcast(&ServerMessage{
			System: &SystemNotice{
				Room: r.name,
				Text: fmt.Sprintf("%s joined %s", c.user.Username, r.name),
			},
		})
	}
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	c := leaveMsg.client
	last := r.removeClient(c)

	if leaveMsg.Id != 0 {
		c.queueMessage(NoErrOK(leaveMsg.Id, nil))
	}

	if last {
		r.broadcast(&ServerMessage{
			System: &SystemNotice{
				Room: r.name,
				Text: fmt.Sprintf("%s left %s", c.user.Username, r.name),
			},
		})
	}
}

// saveAndBroadcast runs the message pipeline: moderation gate, markup
// sanitization, profanity censoring, empty-check, durable persist, then
// fan-out to the room's live members. Every rejection is an inline error
// event to the sender; the connection stays open.
func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	sender, err := r.cs.db.GetAccountById(msg.UserId)
	if err != nil {
		r.log.Errorw("GetAccountById", "user_id", msg.UserId, "err", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	if err := r.cs.mod.CanPost(sender, r.id); err != nil {
		if moderation.IsDenial(err) {
			r.cs.stats.Incr(stats.RejectedMessages)
			msg.client.queueMessage(ErrModerationDenied(msg.Id, err.Error()))
		} else {
			r.log.Errorw("CanPost", "user_id", msg.UserId, "err", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	text := r.cs.filter.Clean(msg.Publish.Content)
	if text == "" && msg.Publish.Media == "" {
		r.cs.stats.Incr(stats.RejectedMessages)
		msg.client.queueMessage(ErrEmptyMessage(msg.Id))
		return
	}

	saved, err := r.cs.db.CreateMessage(database.Message{
		RoomId:    sql.NullInt64{Int64: int64(r.id), Valid: true},
		UserId:    msg.UserId,
		Content:   text,
		Media:     msg.Publish.Media,
		ReplyTo:   nullableReplyTo(msg.Publish.ReplyTo),
		CreatedAt: Now(),
	})
	if err != nil {
		r.log.Errorw("CreateMessage", "room", r.name, "err", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	r.cs.stats.Incr(stats.TotalMessages)
	msg.client.queueMessage(NoErrAccepted(msg.Id))

	// the message is durable at this point; a crash before the fan-out
	// below loses only live delivery, never history
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{
			Id:        msg.Id,
			Timestamp: saved.CreatedAt,
		},
		Message: &types.Message{
			Id:        saved.Id,
			Room:      r.name,
			UserId:    sender.Id,
			Username:  sender.Username,
			Avatar:    sender.Avatar,
			Content:   text,
			Media:     saved.Media,
			ReplyTo:   msg.Publish.ReplyTo,
			Timestamp: saved.CreatedAt,
		},
	})
}

// addClient reports whether this is the user's first live connection in the
// room, so the caller can announce the join once per user.
func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	first := len(r.userMap[c.user.Id]) == 0
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
	return first
}

// removeClient reports whether the user has no remaining connections in the
// room.
func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		r.log.Debugf("client %q not found in room %q", c.user.Username, r.name)
		return false
	}

	delete(r.clients, c)
	c.delRoom(r.name)

	last := false
	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
			last = true
		}
	}

	if len(r.clients) == 0 {
		r.log.Infof("no clients in %q, starting kill timer", r.name)
		r.killTimer.Reset(idleRoomTimeout)
	}

	return last
}

func (r *Room) memberCount() int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients)
}

func (r *Room) broadcast(msg *ServerMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = Now()
	}

	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func nullableReplyTo(id int) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}
