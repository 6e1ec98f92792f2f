// Package moderation gates message posting on a user's standing and carries
// the admin-only ban/unban/mute actions.
package moderation

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ncastellani/parlor/internal/database"
	"go.uber.org/zap"
)

// DefaultMuteDuration is applied when an admin mutes without a duration.
const DefaultMuteDuration = 30 * time.Minute

// ErrNotAdmin is returned when a non-admin attempts a moderation action.
var ErrNotAdmin = errors.New("admin role required")

// Denial is a user-visible refusal to post. It is an error so the gate can
// short-circuit the pipeline, but it is never a server fault.
type Denial struct {
	Reason string
}

func (d *Denial) Error() string {
	return d.Reason
}

// IsDenial reports whether err is a moderation denial rather than an
// infrastructure failure.
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}

type Engine struct {
	db  database.ParlorRepository
	log *zap.SugaredLogger
	// now is swappable for expiry tests
	now func() time.Time
}

func NewEngine(db database.ParlorRepository, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		db:  db,
		log: logger,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// CanPost returns nil if user may post in the room (roomId 0 means the
// global scope, used for private messages). It denies when the account is
// banned, when a ban record matches the room or the global scope, or when a
// mute record's expiry is still in the future for the matching scope.
func (e *Engine) CanPost(user database.User, roomId int) error {
	if user.Banned {
		return &Denial{Reason: "you are banned"}
	}

	_, err := e.db.ActiveBan(user.Id, roomId)
	if err == nil {
		return &Denial{Reason: "you are banned"}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check ban: %w", err)
	}

	mute, err := e.db.ActiveMute(user.Id, roomId, e.now())
	if err == nil {
		return &Denial{Reason: fmt.Sprintf("you are muted until %s", mute.ExpiresAt.Format(time.RFC3339))}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check mute: %w", err)
	}

	return nil
}

// Ban marks the subject banned and records the ban. roomId 0 records a
// global ban. Re-banning an already banned user is not an error.
func (e *Engine) Ban(actor database.User, subjectId, roomId int, reason string) error {
	if !actor.IsAdmin {
		return ErrNotAdmin
	}

	if roomId == 0 {
		if err := e.db.SetBanned(subjectId, true); err != nil {
			return fmt.Errorf("set banned: %w", err)
		}
	}

	ban := database.Ban{
		UserId: subjectId,
		RoomId: nullableRoom(roomId),
		Reason: reason,
	}
	if err := e.db.CreateBan(ban); err != nil {
		return fmt.Errorf("create ban: %w", err)
	}

	e.log.Infow("user banned", "subject_id", subjectId, "room_id", roomId, "actor", actor.Username)
	return nil
}

// Unban clears the banned flag and removes the subject's ban records.
// Unbanning a user who is not banned is a no-op.
func (e *Engine) Unban(actor database.User, subjectId int) error {
	if !actor.IsAdmin {
		return ErrNotAdmin
	}

	if err := e.db.SetBanned(subjectId, false); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}

	if err := e.db.DeleteBans(subjectId); err != nil {
		return fmt.Errorf("delete bans: %w", err)
	}

	e.log.Infow("user unbanned", "subject_id", subjectId, "actor", actor.Username)
	return nil
}

// Mute records a mute expiring after duration (DefaultMuteDuration when
// zero). Muting an already muted user records a fresh expiry.
func (e *Engine) Mute(actor database.User, subjectId, roomId int, duration time.Duration) error {
	if !actor.IsAdmin {
		return ErrNotAdmin
	}

	if duration <= 0 {
		duration = DefaultMuteDuration
	}

	mute := database.Mute{
		UserId:    subjectId,
		RoomId:    nullableRoom(roomId),
		ExpiresAt: e.now().Add(duration),
	}
	if err := e.db.CreateMute(mute); err != nil {
		return fmt.Errorf("create mute: %w", err)
	}

	e.log.Infow("user muted", "subject_id", subjectId, "room_id", roomId, "until", mute.ExpiresAt, "actor", actor.Username)
	return nil
}

func nullableRoom(roomId int) sql.NullInt64 {
	if roomId == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(roomId), Valid: true}
}
