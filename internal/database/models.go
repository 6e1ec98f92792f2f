package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	DisplayName  string
	Bio          string
	Avatar       string
	IsAdmin      bool
	Banned       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id        int
	Name      string
	Title     string
	Private   bool
	OwnerId   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id          int
	RoomId      sql.NullInt64
	UserId      int
	RecipientId sql.NullInt64
	Content     string
	Media       string
	ReplyTo     sql.NullInt64
	Private     bool
	CreatedAt   time.Time
}

// Ban is a moderation record. A null RoomId means the ban is global.
type Ban struct {
	Id        int
	UserId    int
	RoomId    sql.NullInt64
	Reason    string
	CreatedAt time.Time
}

// Mute expires passively: rows are never deleted, the gate compares
// ExpiresAt against the wall clock. A null RoomId means the mute is global.
type Mute struct {
	Id        int
	UserId    int
	RoomId    sql.NullInt64
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Reaction struct {
	Id        int
	MessageId int
	UserId    int
	Reaction  string
	CreatedAt time.Time
}

type PinnedMessage struct {
	Id        int
	MessageId int
	RoomId    int
	PinnedBy  int
	PinnedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
	DisplayName  string
}

type UpdateAccountParams struct {
	UserId       int
	DisplayName  string
	Bio          string
	PasswordHash string
}

type CreateRoomParams struct {
	Name    string
	Title   string
	Private bool
	OwnerId int
}
