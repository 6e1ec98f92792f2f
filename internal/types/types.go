package types

import (
	"time"
)

type User struct {
	Id          int       `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	IsAdmin     bool      `json:"is_admin,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id        int       `json:"id"`
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	Private   bool      `json:"private"`
	OwnerId   int       `json:"owner_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id          int       `json:"id"`
	Room        string    `json:"room,omitempty"`
	UserId      int       `json:"user_id"`
	Username    string    `json:"username,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	RecipientId int       `json:"recipient_id,omitempty"`
	Content     string    `json:"content"`
	Media       string    `json:"media,omitempty"`
	ReplyTo     int       `json:"reply_to,omitempty"`
	Private     bool      `json:"private,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type Reaction struct {
	Id        int       `json:"id"`
	MessageId int       `json:"message_id"`
	UserId    int       `json:"user_id"`
	Reaction  string    `json:"reaction"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type PinnedMessage struct {
	Id        int       `json:"id"`
	MessageId int       `json:"message_id"`
	RoomId    int       `json:"room_id"`
	PinnedBy  int       `json:"pinned_by"`
	PinnedAt  time.Time `json:"pinned_at"`
}
