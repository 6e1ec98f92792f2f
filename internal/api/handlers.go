package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ncastellani/parlor/internal/database"
	"github.com/ncastellani/parlor/internal/files"
	"github.com/ncastellani/parlor/internal/server"
	"github.com/ncastellani/parlor/internal/types"
)

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=80"`
	Email       string `json:"email" validate:"required,email,max=200"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Password    string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	// Identity is a username or an email address
	Identity string `json:"identity" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type UpdateAccountRequest struct {
	DisplayName string `json:"display_name" validate:"max=120"`
	Bio         string `json:"bio" validate:"max=2000"`
	Password    string `json:"password" validate:"omitempty,min=6"`
}

type CreateRoomRequest struct {
	Name    string `json:"name" validate:"required,min=1,max=120"`
	Title   string `json:"title" validate:"max=200"`
	Private bool   `json:"private"`
}

type CreateReactionRequest struct {
	MessageId int    `json:"message_id" validate:"required"`
	Reaction  string `json:"reaction" validate:"required,max=50"`
}

type CreatePinRequest struct {
	MessageId int    `json:"message_id" validate:"required"`
	Room      string `json:"room" validate:"required"`
}

func (s *ParlorApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("json encode", "err", err)
	}
}

func (s *ParlorApp) decodeAndValidate(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}

	return s.validate.Struct(v)
}

func userResponse(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		Email:       u.EmailAddress,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		Avatar:      u.Avatar,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

func (s *ParlorApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Errorw("health check", "err", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ParlorApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateAccountParams{
		Username:     req.Username,
		EmailAddress: req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: pwdHash,
	}

	newUser, err := s.db.CreateAccount(params)
	if err != nil {
		var errResp *ApiError
		if database.IsUniqueViolation(err) {
			errResp = NewConflictError("username or email already registered")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, userResponse(newUser))
}

func (s *ParlorApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := s.decodeAndValidate(r, &lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountByIdentity(lr.Identity)
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

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the ban check runs after credential verification so the state is
	// only disclosed to the account owner
	if dbUser.Banned {
		errResp := NewForbiddenError()
		errResp.Message = "account is banned"
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createJwtForSession(dbUser.Id, defaultJwtExpiration)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, http.StatusOK, userResponse(dbUser))
}

func (s *ParlorApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", -time.Hour))
	w.WriteHeader(http.StatusNoContent)
}

func (s *ParlorApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
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

	s.writeJson(w, http.StatusOK, userResponse(user))
}

func (s *ParlorApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.session(w, r)
	case http.MethodPut:
		userId, ok := UserId(r.Context())
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var req UpdateAccountRequest
		if err := s.decodeAndValidate(r, &req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		var pwdHash string
		if req.Password != "" {
			var err error
			pwdHash, err = hashPassword(req.Password)
			if err != nil {
				errResp := NewInternalServerError(err)
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}

		params := database.UpdateAccountParams{
			UserId:       userId,
			DisplayName:  req.DisplayName,
			Bio:          req.Bio,
			PasswordHash: pwdHash,
		}

		dbUser, err := s.db.UpdateAccount(params)
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

		s.writeJson(w, http.StatusOK, userResponse(dbUser))
	default:
		errResp := NewMethodNotAllowedError()
		s.writeJson(w, errResp.StatusCode, errResp)
	}
}

func (s *ParlorApp) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := r.ParseMultipartForm(files.MaxUploadSize); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	key, err := s.uploads.Save(file, header.Filename)
	if err != nil {
		s.log.Errorw("save avatar", "err", err)
		errResp := NewBadRequestError()
		if errors.Is(err, files.ErrFileTooLarge) {
			errResp = NewPayloadTooLargeError()
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetAvatar(userId, key); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"avatar": key})
}

// uploadMedia stores an attachment and returns its key, which clients
// reference in the media field of published messages.
func (s *ParlorApp) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(files.MaxUploadSize); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	key, err := s.uploads.Save(file, header.Filename)
	if err != nil {
		s.log.Errorw("save upload", "err", err)
		errResp := NewBadRequestError()
		if errors.Is(err, files.ErrFileTooLarge) {
			errResp = NewPayloadTooLargeError()
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, map[string]string{"key": key})
}

func (s *ParlorApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbRooms, err := s.db.ListRooms(user.IsAdmin)
	if err != nil {
		s.log.Errorw("list rooms", "err", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms := make([]types.Room, 0, len(dbRooms))
	for _, dbRoom := range dbRooms {
		rooms = append(rooms, roomResponse(dbRoom))
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func roomResponse(r database.Room) types.Room {
	return types.Room{
		Id:        r.Id,
		Name:      r.Name,
		Title:     r.Title,
		Private:   r.Private,
		OwnerId:   r.OwnerId,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *ParlorApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var createRoomReq CreateRoomRequest
	if err := s.decodeAndValidate(r, &createRoomReq); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	params := database.CreateRoomParams{
		Name:    createRoomReq.Name,
		Title:   createRoomReq.Title,
		Private: createRoomReq.Private,
		OwnerId: userId,
	}

	newRoom, err := s.db.CreateRoom(params)
	if err != nil {
		var errResp *ApiError
		if database.IsUniqueViolation(err) {
			errResp = NewConflictError("room already exists")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, roomResponse(newRoom))
}

// getRoomForUser resolves a room by name and enforces private-room
// visibility for the requesting user.
func (s *ParlorApp) getRoomForUser(r *http.Request, name string) (database.Room, *ApiError) {
	userId, ok := UserId(r.Context())
	if !ok {
		return database.Room{}, NewUnauthorizedError()
	}

	user, err := s.db.GetAccountById(userId)
	if err != nil {
		return database.Room{}, NewInternalServerError(err)
	}

	room, err := s.db.GetRoomByName(name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Room{}, NewNotFoundError()
		}
		return database.Room{}, NewInternalServerError(err)
	}

	if room.Private && !user.IsAdmin {
		return database.Room{}, NewForbiddenError()
	}

	return room, nil
}

func (s *ParlorApp) getRoom(w http.ResponseWriter, r *http.Request) {
	room, apiErr := s.getRoomForUser(r, r.PathValue("name"))
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	messages, err := s.db.GetMessages(room.Id, 0)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]any{
		"room":     roomResponse(room),
		"messages": messageResponses(room.Name, messages),
	})
}

func messageResponses(roomName string, messages []database.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, types.Message{
			Id:        msg.Id,
			Room:      roomName,
			UserId:    msg.UserId,
			Content:   msg.Content,
			Media:     msg.Media,
			ReplyTo:   int(msg.ReplyTo.Int64),
			Private:   msg.Private,
			Timestamp: msg.CreatedAt,
		})
	}
	return out
}

func (s *ParlorApp) getMessages(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("room")
	if name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, apiErr := s.getRoomForUser(r, name)
	if apiErr != nil {
		s.writeJson(w, apiErr.StatusCode, apiErr)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.GetMessages(room.Id, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messageResponses(room.Name, messages))
}

func (s *ParlorApp) createReaction(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateReactionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		errResp := NewBadRequestError()
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

	reaction, err := s.db.CreateReaction(database.Reaction{
		MessageId: req.MessageId,
		UserId:    userId,
		Reaction:  req.Reaction,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Reaction{
		Id:        reaction.Id,
		MessageId: reaction.MessageId,
		UserId:    reaction.UserId,
		Reaction:  reaction.Reaction,
		CreatedAt: reaction.CreatedAt,
	})
}

func (s *ParlorApp) serveUpload(w http.ResponseWriter, r *http.Request) {
	path, err := s.uploads.Path(r.PathValue("file"))
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.ServeFile(w, r, path)
}

func (s *ParlorApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountById(id)
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

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorw("upgrade connection", "err", err)
		return
	}

	client := server.NewClient(types.User{
		Id:          user.Id,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Avatar:      user.Avatar,
		IsAdmin:     user.IsAdmin,
	}, conn, s.cs, s.log)

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
