package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/moderation"
	"github.com/ncastellani/parlor/internal/types"
)

type ModerationRequest struct {
	// Room scopes the action to a single room, empty means everywhere
	Room     string `json:"room"`
	Reason   string `json:"reason" validate:"max=500"`
	Duration string `json:"duration"`
}

// moderationTarget resolves the acting admin, the subject account and the
// optional room scope shared by the ban/unban/mute handlers.
func (s *ParlorApp) moderationTarget(r *http.Request, roomName string) (actor database.User, subject database.User, roomId int, apiErr *ApiError) {
	actorId, ok := UserId(r.Context())
	if !ok {
		return actor, subject, 0, NewUnauthorizedError()
	}

	actor, err := s.db.GetAccountById(actorId)
	if err != nil {
		return actor, subject, 0, NewInternalServerError(err)
	}

	subjectId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		return actor, subject, 0, NewBadRequestError()
	}

	subject, err = s.db.GetAccountById(subjectId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return actor, subject, 0, NewNotFoundError()
		}
		return actor, subject, 0, NewInternalServerError(err)
	}

	if roomName != "" {
		room, err := s.db.GetRoomByName(roomName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return actor, subject, 0, NewNotFoundError()
			}
			return actor, subject, 0, NewInternalServerError(err)
		}
		roomId = room.Id
	}

	return actor, subject, roomId, nil
}

func moderationError(err error) *ApiError {
	if errors.Is(err, moderation.ErrNotAdmin) {
		return NewForbiddenError()
	}
	return NewInternalServerError(err)
}

func (s *ParlorApp) banUser(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if r.ContentLength > 0 {
		if err := s.decodeAndValidate(r, &req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	actor, subject, roomId, apiErr := s.moderationTarget(r, req.Room)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if err := s.mod.Ban(actor, subject.Id, roomId, req.Reason); err != nil {
		errResp := moderationError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"status":  "banned",
		"user_id": subject.Id,
	})
}

func (s *ParlorApp) unbanUser(w http.ResponseWriter, r *http.Request) {
	actor, subject, _, apiErr := s.moderationTarget(r, "")
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if err := s.mod.Unban(actor, subject.Id); err != nil {
		errResp := moderationError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"status":  "unbanned",
		"user_id": subject.Id,
	})
}

func (s *ParlorApp) muteUser(w http.ResponseWriter, r *http.Request) {
	var req ModerationRequest
	if r.ContentLength > 0 {
		if err := s.decodeAndValidate(r, &req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	durationStr := req.Duration
	if q := r.URL.Query().Get("duration"); q != "" {
		durationStr = q
	}

	var duration time.Duration
	if durationStr != "" {
		var err error
		duration, err = time.ParseDuration(durationStr)
		if err != nil || duration < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	actor, subject, roomId, apiErr := s.moderationTarget(r, req.Room)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	if err := s.mod.Mute(actor, subject.Id, roomId, duration); err != nil {
		errResp := moderationError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if duration <= 0 {
		duration = moderation.DefaultMuteDuration
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"status":   "muted",
		"user_id":  subject.Id,
		"duration": duration.String(),
	})
}

func (s *ParlorApp) createPin(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreatePinRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomByName(req.Room)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetMessageById(req.MessageId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pin, err := s.db.CreatePin(database.PinnedMessage{
		MessageId: req.MessageId,
		RoomId:    room.Id,
		PinnedBy:  userId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.PinnedMessage{
		Id:        pin.Id,
		MessageId: pin.MessageId,
		RoomId:    pin.RoomId,
		PinnedBy:  pin.PinnedBy,
		PinnedAt:  pin.PinnedAt,
	})
}
