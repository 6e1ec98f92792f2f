package database

import "time"

type ParlorRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateAccount(params UpdateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByIdentity(usernameOrEmail string) (User, error)
	SetAvatar(accountId int, avatar string) error
	SetBanned(accountId int, banned bool) error
	ListRooms(includePrivate bool) ([]Room, error)
	GetRoomByName(name string) (Room, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	CreateBan(ban Ban) error
	DeleteBans(accountId int) error
	ActiveBan(accountId, roomId int) (Ban, error)
	CreateMute(mute Mute) error
	ActiveMute(accountId, roomId int, now time.Time) (Mute, error)
	CreateMessage(msg Message) (Message, error)
	GetMessageById(messageId int) (Message, error)
	GetMessages(roomId, limit int) ([]Message, error)
	CreateReaction(reaction Reaction) (Reaction, error)
	CreatePin(pin PinnedMessage) (PinnedMessage, error)
}
