package server

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/ncastellani/parlor/internal/content"
	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/stats"
	"github.com/ncastellani/parlor/internal/types"
	"go.uber.org/zap"
)

type ChatServer struct {
	log    *zap.SugaredLogger
	db     database.ParlorRepository
	mod    *moderation.Engine
	filter *content.Filter
	stats  stats.StatsProvider

	clients     map[*Client]struct{}
	userMap     map[int]map[*Client]struct{}
	clientsLock sync.Mutex

	rooms          map[string]*Room
	joinChan       chan *ClientMessage
	privateChan    chan *ClientMessage
	broadcastChan  chan *ServerMessage
	unloadRoomChan chan string
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *zap.SugaredLogger, db database.ParlorRepository, mod *moderation.Engine, filter *content.Filter, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		mod:            mod,
		filter:         filter,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		joinChan:       make(chan *ClientMessage, 256),
		privateChan:    make(chan *ClientMessage, 256),
		broadcastChan:  make(chan *ServerMessage, 256),
		unloadRoomChan: make(chan string, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	su.RegisterMetric(stats.NumActiveClients)
	su.RegisterMetric(stats.NumActiveRooms)
	su.RegisterMetric(stats.TotalMessages)
	su.RegisterMetric(stats.RejectedMessages)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoin(joinMsg)
		case msg := <-cs.privateChan:
			cs.handlePrivate(msg)
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case name := <-cs.unloadRoomChan:
			cs.removeRoom(name)
		case <-cs.stop:
			cs.log.Info("shutting down rooms")
			for _, r := range cs.rooms {
				close(r.exit)
				<-r.done
			}

			close(cs.done)
			return
		}
	}
}

// handleJoin routes a join request to the target room, loading the room from
// the registry if it has no live members yet. Private rooms admit admins
// only.
func (cs *ChatServer) handleJoin(joinMsg *ClientMessage) {
	if room, ok := cs.rooms[joinMsg.Join.Room]; ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Warnf("join channel full on room %q", room.name)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByName(joinMsg.Join.Room)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			cs.log.Errorw("GetRoomByName", "room", joinMsg.Join.Room, "err", err)
		}
		joinMsg.client.queueMessage(ErrRoomNotFound(joinMsg.Id))
		return
	}

	if dbRoom.Private && !joinMsg.client.user.IsAdmin {
		joinMsg.client.queueMessage(ErrForbidden(joinMsg.Id))
		return
	}

	room := newRoom(dbRoom, cs)
	cs.addRoom(room.name, room)
	room.joinChan <- joinMsg

	go room.start()
}

// handlePrivate runs the message pipeline for a 1:1 message and fans it out
// over both parties' per-user channels, so every live device of either user
// receives it.
func (cs *ChatServer) handlePrivate(msg *ClientMessage) {
	sender, err := cs.db.GetAccountById(msg.UserId)
	if err != nil {
		cs.log.Errorw("GetAccountById", "user_id", msg.UserId, "err", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	if err := cs.mod.CanPost(sender, 0); err != nil {
		if moderation.IsDenial(err) {
			cs.stats.Incr(stats.RejectedMessages)
			msg.client.queueMessage(ErrModerationDenied(msg.Id, err.Error()))
		} else {
			cs.log.Errorw("CanPost", "user_id", msg.UserId, "err", err)
			msg.client.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	if _, err := cs.db.GetAccountById(msg.Private.RecipientId); err != nil {
		msg.client.queueMessage(ErrUserNotFound(msg.Id))
		return
	}

	text := cs.filter.Clean(msg.Private.Content)
	if text == "" {
		cs.stats.Incr(stats.RejectedMessages)
		msg.client.queueMessage(ErrEmptyMessage(msg.Id))
		return
	}

	saved, err := cs.db.CreateMessage(database.Message{
		UserId:      msg.UserId,
		RecipientId: sql.NullInt64{Int64: int64(msg.Private.RecipientId), Valid: true},
		Content:     text,
		Private:     true,
		CreatedAt:   Now(),
	})
	if err != nil {
		cs.log.Errorw("CreateMessage", "err", err)
		msg.client.queueMessage(ErrInternalError(msg.Id))
		return
	}

	cs.stats.Incr(stats.TotalMessages)
	msg.client.queueMessage(NoErrAccepted(msg.Id))

	payload := &types.Message{
		Id:          saved.Id,
		UserId:      sender.Id,
		Username:    sender.Username,
		Avatar:      sender.Avatar,
		RecipientId: msg.Private.RecipientId,
		Content:     text,
		Private:     true,
		Timestamp:   saved.CreatedAt,
	}

	for _, userId := range []int{msg.Private.RecipientId, msg.UserId} {
		cs.handleBroadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: saved.CreatedAt},
			Message:     payload,
			UserId:      userId,
		})
	}
}

// handleBroadcast delivers msg to every live connection of msg.UserId.
func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	for _, client := range cs.getClients(msg.UserId) {
		if client == msg.SkipClient {
			continue
		}

		client.queueMessage(msg)
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.addClient(c)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	if cs.userMap[c.user.Id] == nil {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}

	cs.stats.Incr(stats.NumActiveClients)
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return
	}

	delete(cs.clients, c)
	if userClients, ok := cs.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(cs.userMap, c.user.Id)
		}
	}

	cs.stats.Decr(stats.NumActiveClients)
}

func (cs *ChatServer) getClients(userId int) []*Client {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	clients := make([]*Client, 0, len(cs.userMap[userId]))
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (cs *ChatServer) addRoom(name string, r *Room) {
	cs.rooms[name] = r
	cs.stats.Incr(stats.NumActiveRooms)
}

func (cs *ChatServer) getRoom(name string) (*Room, bool) {
	r, ok := cs.rooms[name]
	return r, ok
}

func (cs *ChatServer) removeRoom(name string) {
	r, ok := cs.rooms[name]
	if !ok {
		return
	}

	// a join may have raced the unload request; keep the room alive
	if len(r.joinChan) > 0 || r.memberCount() > 0 {
		return
	}

	cs.log.Infof("unloading room %q", name)
	close(r.exit)
	<-r.done
	delete(cs.rooms, name)
	cs.stats.Decr(stats.NumActiveRooms)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	cs.clientsLock.Lock()
	for c := range cs.clients {
		c.stopClient()
	}
	cs.clientsLock.Unlock()

	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
