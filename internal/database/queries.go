package database

import (
	"database/sql"
	"time"
)

const maxMessageHistory = 200

func (db *PgParlorRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, display_name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, username, email, display_name, created_at, updated_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		params.DisplayName,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.DisplayName,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgParlorRepository) UpdateAccount(params UpdateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET display_name = $2, bio = $3, "+
			"password_hash = CASE WHEN $4 = '' THEN password_hash ELSE $4 END, updated_at = $5 "+
			"WHERE id = $1 RETURNING id, username, email, display_name, bio, avatar, is_admin, created_at, updated_at",
		params.UserId,
		params.DisplayName,
		params.Bio,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.DisplayName,
		&u.Bio,
		&u.Avatar,
		&u.IsAdmin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgParlorRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, display_name, bio, avatar, is_admin, banned, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		id,
	)

	return scanAccount(row)
}

// GetAccountByIdentity looks up an account by email or username, in that
// order, matching the login form which accepts either.
func (db *PgParlorRepository) GetAccountByIdentity(usernameOrEmail string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, display_name, bio, avatar, is_admin, banned, created_at, updated_at "+
			"FROM accounts WHERE email = $1 OR username = $1 LIMIT 1",
		usernameOrEmail,
	)

	return scanAccount(row)
}

func scanAccount(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Bio,
		&u.Avatar,
		&u.IsAdmin,
		&u.Banned,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgParlorRepository) SetAvatar(accountId int, avatar string) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET avatar = $2, updated_at = $3 WHERE id = $1",
		accountId,
		avatar,
		time.Now().UTC(),
	)

	return err
}

func (db *PgParlorRepository) SetBanned(accountId int, banned bool) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET banned = $2, updated_at = $3 WHERE id = $1",
		accountId,
		banned,
		time.Now().UTC(),
	)

	return err
}

func (db *PgParlorRepository) ListRooms(includePrivate bool) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, title, private, owner_id, created_at, updated_at FROM rooms "+
			"WHERE private = false OR $1 ORDER BY name ASC",
		includePrivate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(&room.Id, &room.Name, &room.Title, &room.Private, &room.OwnerId, &room.CreatedAt, &room.UpdatedAt); err != nil {
			break
		}

		rooms = append(rooms, room)
	}

	return rooms, err
}

func (db *PgParlorRepository) GetRoomByName(name string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, title, private, owner_id, created_at, updated_at FROM rooms "+
			"WHERE name = $1 LIMIT 1",
		name,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Title,
		&room.Private,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgParlorRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (name, title, private, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, name, title, private, owner_id, created_at, updated_at",
		params.Name,
		params.Title,
		params.Private,
		params.OwnerId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.Name,
		&room.Title,
		&room.Private,
		&room.OwnerId,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgParlorRepository) CreateBan(ban Ban) error {
	_, err := db.conn.Exec(
		"INSERT INTO bans (user_id, room_id, reason, created_at) VALUES ($1, $2, $3, $4)",
		ban.UserId,
		ban.RoomId,
		ban.Reason,
		time.Now().UTC(),
	)

	return err
}

func (db *PgParlorRepository) DeleteBans(accountId int) error {
	_, err := db.conn.Exec("DELETE FROM bans WHERE user_id = $1", accountId)

	return err
}

// ActiveBan returns a ban matching the user and either the given room or the
// global scope. sql.ErrNoRows means the user is not banned.
func (db *PgParlorRepository) ActiveBan(accountId, roomId int) (Ban, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, room_id, reason, created_at FROM bans "+
			"WHERE user_id = $1 AND (room_id IS NULL OR room_id = $2) LIMIT 1",
		accountId,
		roomId,
	)

	var ban Ban
	err := row.Scan(
		&ban.Id,
		&ban.UserId,
		&ban.RoomId,
		&ban.Reason,
		&ban.CreatedAt,
	)

	return ban, err
}

func (db *PgParlorRepository) CreateMute(mute Mute) error {
	_, err := db.conn.Exec(
		"INSERT INTO mutes (user_id, room_id, expires_at, created_at) VALUES ($1, $2, $3, $4)",
		mute.UserId,
		mute.RoomId,
		mute.ExpiresAt,
		time.Now().UTC(),
	)

	return err
}

// ActiveMute returns a mute whose expiry is strictly after now, matching the
// user and either the given room or the global scope. Expired rows stay in
// the table; they simply stop matching.
func (db *PgParlorRepository) ActiveMute(accountId, roomId int, now time.Time) (Mute, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, room_id, expires_at, created_at FROM mutes "+
			"WHERE user_id = $1 AND (room_id IS NULL OR room_id = $2) AND expires_at > $3 "+
			"ORDER BY expires_at DESC LIMIT 1",
		accountId,
		roomId,
		now,
	)

	var mute Mute
	err := row.Scan(
		&mute.Id,
		&mute.UserId,
		&mute.RoomId,
		&mute.ExpiresAt,
		&mute.CreatedAt,
	)

	return mute, err
}

func (db *PgParlorRepository) CreateMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (room_id, user_id, recipient_id, content, media, reply_to, private, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at",
		msg.RoomId,
		msg.UserId,
		msg.RecipientId,
		msg.Content,
		msg.Media,
		msg.ReplyTo,
		msg.Private,
		msg.CreatedAt,
	)

	err := res.Scan(&msg.Id, &msg.CreatedAt)

	return msg, err
}

func (db *PgParlorRepository) GetMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, user_id, recipient_id, content, media, reply_to, private, created_at "+
			"FROM messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.RecipientId,
		&msg.Content,
		&msg.Media,
		&msg.ReplyTo,
		&msg.Private,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgParlorRepository) GetMessages(roomId, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxMessageHistory {
		limit = maxMessageHistory
	}

	// newest rows win the cap, returned oldest first
	rows, err := db.conn.Query(
		"SELECT id, room_id, user_id, recipient_id, content, media, reply_to, private, created_at FROM ("+
			"SELECT id, room_id, user_id, recipient_id, content, media, reply_to, private, created_at "+
			"FROM messages WHERE room_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2"+
			") recent ORDER BY created_at ASC, id ASC",
		roomId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.Id, &msg.RoomId, &msg.UserId, &msg.RecipientId, &msg.Content, &msg.Media, &msg.ReplyTo, &msg.Private, &msg.CreatedAt); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}

func (db *PgParlorRepository) CreateReaction(reaction Reaction) (Reaction, error) {
	res := db.conn.QueryRow(
		"INSERT INTO reactions (message_id, user_id, reaction, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		reaction.MessageId,
		reaction.UserId,
		reaction.Reaction,
		time.Now().UTC(),
	)

	err := res.Scan(&reaction.Id, &reaction.CreatedAt)

	return reaction, err
}

func (db *PgParlorRepository) CreatePin(pin PinnedMessage) (PinnedMessage, error) {
	res := db.conn.QueryRow(
		"INSERT INTO pinned_messages (message_id, room_id, pinned_by, pinned_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, pinned_at",
		pin.MessageId,
		pin.RoomId,
		pin.PinnedBy,
		time.Now().UTC(),
	)

	err := res.Scan(&pin.Id, &pin.PinnedAt)

	return pin, err
}
