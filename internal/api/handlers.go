package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/fdrpot/chat/internal/database"
	"github.com/fdrpot/chat/internal/server"
	"github.com/fdrpot/chat/internal/types"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const defaultMessageLimit = 50

type RegisterRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	Color      string `json:"color"`
	Password   string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Patronymic string `json:"patronymic"`
	Color      string `json:"color"`
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type UpdateRoomRequest struct {
	RoomId      string `json:"room_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type MembershipRequest struct {
	RoomId   string `json:"room_id"`
	Action   string `json:"action"`
	TargetId int    `json:"target_id"`
	Admin    bool   `json:"admin"`
}

type EnterRoomRequest struct {
	RoomId string `json:"room_id"`
}

type PostMessageRequest struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

type DeleteMessageRequest struct {
	MessageId int `json:"message_id"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if body == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Printf("failed to write response: %v", err)
	}
}

func (s *ChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Printf("%s: %v", errResp.Message, errResp.Err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *ChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Email == "" || req.LastName == "" || req.Password == "" {
		s.writeError(w, NewBadRequestError().WithMessage("email, last name and password are required"))
		return
	}

	if _, err := s.db.GetAccountByEmail(req.Email); err == nil {
		s.writeError(w, NewBadRequestError().WithMessage("email is already registered"))
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	passwdHash, err := hashPassword(req.Password)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	activationToken, err := shortid.Generate()
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	acct, err := s.db.CreateAccount(database.CreateAccountParams{
		EmailAddress:    req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Patronymic:      req.Patronymic,
		Color:           req.Color,
		PasswordHash:    passwdHash,
		ActivationToken: activationToken,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	activationURL := s.baseURL + "/api/auth/activate?token=" + activationToken
	if err := s.mailer.SendActivationEmail(acct.EmailAddress, acct.FirstName, activationURL); err != nil {
		// the account exists either way; activation can be retried
		s.log.Printf("failed to send activation email to %s: %v", acct.EmailAddress, err)
	}

	s.writeJson(w, http.StatusCreated, presentUser(acct))
}

func (s *ChatApp) activateAccount(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.writeError(w, NewBadRequestError().WithMessage("token is required"))
		return
	}

	if _, err := s.db.ActivateAccount(token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "account activated"})
}

func (s *ChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	acct, err := s.db.GetAccountByEmail(req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !acct.IsActive {
		s.writeError(w, NewForbiddenError().WithMessage("account is not activated"))
		return
	}

	if !verifyPassword(acct.PasswordHash, req.Password) {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	tokenString, err := createJwtForSession(acct.Id, defaultJwtExpiration, s.signingKey)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(tokenString, defaultJwtExpiration))
	s.writeJson(w, http.StatusOK, presentUser(acct))
}

func (s *ChatApp) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieKey,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

func (s *ChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	acct, err := s.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, presentUser(acct))
}

func (s *ChatApp) account(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.session(w, r)
	case http.MethodPut:
		s.updateAccount(w, r)
	default:
		s.writeError(w, NewMethodNotAllowedError())
	}
}

func (s *ChatApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.LastName == "" {
		s.writeError(w, NewBadRequestError().WithMessage("last name is required"))
		return
	}

	acct, err := s.db.UpdateProfile(database.UpdateProfileParams{
		UserId:     userId,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Patronymic: req.Patronymic,
		Color:      req.Color,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	// a profile edit may change the user's display name or color in rooms
	s.cs.BroadcastOnlineMain()

	s.writeJson(w, http.StatusOK, presentUser(acct))
}

func (s *ChatApp) createRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Name == "" {
		s.writeError(w, NewBadRequestError().WithMessage("name is required"))
		return
	}

	externalId, err := shortid.Generate()
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	room, err := s.db.CreateRoom(database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		CreatorId:   userId,
		ExternalId:  externalId,
	})
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, s.presentRoom(room, userId, false))
}

func (s *ChatApp) getRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		s.writeError(w, NewBadRequestError().WithMessage("id is required"))
		return
	}

	room, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !slices.Contains(room.MemberIds, userId) {
		s.writeError(w, NewForbiddenError().WithMessage(server.ErrNotMember.Error()))
		return
	}

	s.writeJson(w, http.StatusOK, s.presentRoom(room, userId, true))
}

func (s *ChatApp) updateRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req UpdateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.RoomId == "" || req.Name == "" {
		s.writeError(w, NewBadRequestError().WithMessage("room id and name are required"))
		return
	}

	room, err := s.db.GetRoomByExternalId(req.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, NewNotFoundError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if !slices.Contains(room.AdminIds, userId) {
		s.writeError(w, NewForbiddenError().WithMessage(server.ErrNotAdmin.Error()))
		return
	}

	updated, err := s.db.UpdateRoom(room.Id, req.Name, req.Description)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, s.presentRoom(updated, userId, false))
}

func (s *ChatApp) listRooms(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	rooms, err := s.db.ListRoomsForAccount(userId)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	resp := make([]types.Room, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, s.presentRoom(room, userId, false))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) changeMembership(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req MembershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.RoomId == "" || req.Action == "" || req.TargetId == 0 {
		s.writeError(w, NewBadRequestError().WithMessage("room id, action and target are required"))
		return
	}

	err := s.cs.ChangeMembership(userId, req.RoomId, server.MembershipAction(req.Action), req.TargetId, req.Admin)
	if err != nil {
		s.writeError(w, membershipError(err))
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "membership updated"})
}

// membershipError maps role hierarchy violations onto HTTP statuses. Who-you-
// are failures are 403s, what-you-asked-for failures are 400s.
func membershipError(err error) *ApiError {
	switch {
	case errors.Is(err, server.ErrRoomNotFound):
		return NewNotFoundError()
	case errors.Is(err, server.ErrNotAdmin),
		errors.Is(err, server.ErrNotCreator):
		return NewForbiddenError().WithMessage(err.Error())
	case errors.Is(err, server.ErrTargetNotMember),
		errors.Is(err, server.ErrTargetNotAdmin),
		errors.Is(err, server.ErrAlreadyMember),
		errors.Is(err, server.ErrSelfTarget),
		errors.Is(err, server.ErrCreatorImmutable):
		return NewBadRequestError().WithMessage(err.Error())
	default:
		return NewInternalServerError(err)
	}
}

func (s *ChatApp) enterRoom(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req EnterRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.cs.EnterRoom(userId, server.ParseRoomRef(req.RoomId)); err != nil {
		switch {
		case errors.Is(err, server.ErrRoomNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, server.ErrNotMember):
			s.writeError(w, NewForbiddenError().WithMessage(err.Error()))
		default:
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "entered room"})
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	room := server.ParseRoomRef(r.URL.Query().Get("room_id"))

	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, NewBadRequestError().WithMessage("invalid limit"))
			return
		}
		limit = parsed
	}

	var roomId *int
	if !room.IsMain() {
		dbRoom, err := s.db.GetRoomByExternalId(room.Id())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s.writeError(w, NewNotFoundError())
				return
			}
			s.writeError(w, NewInternalServerError(err))
			return
		}
		if !slices.Contains(dbRoom.MemberIds, userId) {
			s.writeError(w, NewForbiddenError().WithMessage(server.ErrNotMember.Error()))
			return
		}
		roomId = &dbRoom.Id
	}

	msgs, err := s.db.GetMessages(roomId, limit)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	// the store returns the latest window newest first; render oldest first
	slices.Reverse(msgs)

	senders := make(map[int]types.User)
	resp := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		sender, ok := senders[msg.SenderId]
		if !ok {
			acct, err := s.db.GetAccountById(msg.SenderId)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				s.writeError(w, NewInternalServerError(err))
				return
			}
			sender = presentUser(acct)
			senders[msg.SenderId] = sender
		}
		resp = append(resp, server.RenderMessage(msg, sender, room))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.Text == "" {
		s.writeError(w, NewBadRequestError().WithMessage("text is required"))
		return
	}

	msg, err := s.cs.PostMessage(userId, server.ParseRoomRef(req.RoomId), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, server.ErrRoomNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, server.ErrNotMember):
			s.writeError(w, NewForbiddenError().WithMessage(err.Error()))
		default:
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())

	var req DeleteMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if err := s.cs.DeleteMessage(userId, req.MessageId); err != nil {
		switch {
		case errors.Is(err, server.ErrMessageNotFound):
			s.writeError(w, NewNotFoundError())
		case errors.Is(err, server.ErrNotMessageSender):
			s.writeError(w, NewForbiddenError().WithMessage(err.Error()))
		default:
			s.writeError(w, NewInternalServerError(err))
		}
		return
	}

	s.writeJson(w, http.StatusOK, MessageResponse{Message: "message deleted"})
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.allowedOrigins) == 0 {
				return true
			}
			for _, allowed := range s.allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	tokenCookie, err := r.Cookie(tokenCookieKey)
	if err != nil {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("failed to upgrade connection: %v", err)
		return
	}

	if _, err := s.cs.Connect(tokenCookie.Value, conn); err != nil {
		s.log.Printf("failed to register connection: %v", err)
	}
}

func presentUser(acct database.User) types.User {
	return types.User{
		Id:           acct.Id,
		EmailAddress: acct.EmailAddress,
		FirstName:    acct.FirstName,
		LastName:     acct.LastName,
		Patronymic:   acct.Patronymic,
		Color:        acct.Color,
		CreatedAt:    acct.CreatedAt,
		UpdatedAt:    acct.UpdatedAt,
	}
}

// presentRoom builds the wire form of a room. Member records are only loaded
// when the caller asks for them.
func (s *ChatApp) presentRoom(room database.Room, userId int, withMembers bool) types.Room {
	resp := types.Room{
		ExternalId:   room.ExternalId,
		Name:         room.Name,
		Description:  room.Description,
		CreatorId:    room.CreatorId,
		AdminIds:     room.AdminIds,
		CountOfUsers: len(room.MemberIds),
		IsAdmin:      slices.Contains(room.AdminIds, userId),
		CreatedAt:    room.CreatedAt,
		UpdatedAt:    room.UpdatedAt,
	}

	if withMembers {
		members := make([]types.User, 0, len(room.MemberIds))
		for _, memberId := range room.MemberIds {
			acct, err := s.db.GetAccountById(memberId)
			if err != nil {
				s.log.Printf("failed to load member %d of room %s: %v", memberId, room.ExternalId, err)
				continue
			}
			members = append(members, presentUser(acct))
		}
		resp.Members = members
	}

	return resp
}
