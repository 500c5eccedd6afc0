package server

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/fdrpot/chat/internal/database"
	"github.com/fdrpot/chat/internal/stats"
	"github.com/fdrpot/chat/internal/types"
	"github.com/gorilla/websocket"
)

var (
	ErrNoSession        = errors.New("no session for connection")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotMessageSender = errors.New("only the sender may delete a message")
	ErrNoRoomSelected   = errors.New("no room selected")
)

// SessionResolver maps a transport handshake's session cookie to an account
// id. The chat server consults it at connection open and again at teardown;
// identity cached on a socket is never treated as authoritative.
type SessionResolver interface {
	ResolveSession(cookie string) (int, error)
}

// connTable maps each user id to at most one live connection.
type connTable struct {
	mu    sync.Mutex
	conns map[int]*Client
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[int]*Client)}
}

// register inserts or replaces the entry for the client's user and returns
// the evicted client, if any.
func (t *connTable) register(c *Client) *Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.conns[c.user.Id]
	if prev == c {
		return nil
	}
	t.conns[c.user.Id] = c

	return prev
}

// unregister removes the entry for userId only if it still points at c, so
// an evicted connection's teardown cannot remove its replacement.
func (t *connTable) unregister(userId int, c *Client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[userId] != c {
		return false
	}
	delete(t.conns, userId)

	return true
}

func (t *connTable) find(userId int) (*Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[userId]
	return c, ok
}

func (t *connTable) snapshot() map[int]*Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := make(map[int]*Client, len(t.conns))
	for id, c := range t.conns {
		snap[id] = c
	}

	return snap
}

type ChatServer struct {
	log      *log.Logger
	db       database.ChatRepository
	stats    stats.StatsProvider
	sessions SessionResolver
	conns    *connTable
	presence *presenceTable
	// broadcastLock serializes fan-outs: all sends for one event complete
	// before the next event's fan-out begins.
	broadcastLock sync.Mutex
	// postLock serializes persist-and-broadcast pairs so messages fan out
	// in the order they were stored.
	postLock sync.Mutex
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, sessions SessionResolver, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:      logger,
		db:       db,
		stats:    su,
		sessions: sessions,
		conns:    newConnTable(),
		presence: newPresenceTable(),
	}

	for _, metric := range []string{"NumConnections", "NumMessagesBroadcast", "NumEventsDropped", "NumSweptConnections"} {
		su.RegisterMetric(metric)
	}

	return cs, nil
}

// bindSession resolves a handshake cookie to a full user record. Failure
// means the connection must be closed with no registry mutation.
func (cs *ChatServer) bindSession(cookie string) (types.User, error) {
	userId, err := cs.sessions.ResolveSession(cookie)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	acct, err := cs.db.GetAccountById(userId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNoSession
		}
		return types.User{}, fmt.Errorf("get account: %w", err)
	}

	return userFromAccount(acct), nil
}

// Connect authenticates an upgraded websocket connection and registers it.
// Anonymous connections are closed immediately.
func (cs *ChatServer) Connect(cookie string, conn *websocket.Conn) (*Client, error) {
	user, err := cs.bindSession(cookie)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := NewClient(user, cookie, conn, cs, cs.log)
	cs.registerClient(c)

	go c.Write()
	go c.Read()

	return c, nil
}

// registerClient inserts the client, evicting any stale connection for the
// same user (last connection wins), then broadcasts the user's presence.
func (cs *ChatServer) registerClient(c *Client) {
	cs.log.Printf("adding connection for user %d", c.user.Id)
	if prev := cs.conns.register(c); prev != nil {
		cs.log.Printf("evicting stale connection for user %d", c.user.Id)
		prev.stopClient()
	} else {
		cs.stats.Incr("NumConnections")
	}

	cs.BroadcastPresenceChange(c.user.Id)
}

// handleDisconnect runs when a connection's read pump exits. Identity is
// re-resolved from the connection's original cookie rather than taken from
// the client object.
func (cs *ChatServer) handleDisconnect(c *Client) {
	c.stopClient()

	userId, err := cs.sessions.ResolveSession(c.cookie)
	if err != nil {
		cs.log.Printf("disconnect without session: %v", err)
		return
	}

	if !cs.conns.unregister(userId, c) {
		// already replaced by a newer connection
		return
	}

	cs.log.Printf("removing connection for user %d", userId)
	cs.stats.Decr("NumConnections")
	cs.BroadcastPresenceChange(userId)
}

// EnterRoom records that the user is now viewing room and notifies both the
// vacated and the entered room. Membership is enforced for private rooms.
func (cs *ChatServer) EnterRoom(userId int, room RoomRef) error {
	if room.IsNone() {
		return ErrNoRoomSelected
	}

	if !room.IsMain() {
		dbRoom, err := cs.db.GetRoomByExternalId(room.Id())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrRoomNotFound
			}
			return fmt.Errorf("get room: %w", err)
		}
		if !slices.Contains(dbRoom.MemberIds, userId) {
			return ErrNotMember
		}
	}

	cs.presence.enterRoom(userId, room)
	cs.BroadcastPresenceChange(userId)

	return nil
}

// PostMessage persists a message and fans it out to the room's current
// audience. The broadcast never runs for a failed persist, and concurrent
// posts fan out in the order they were stored.
func (cs *ChatServer) PostMessage(userId int, room RoomRef, rawText string) (types.Message, error) {
	if room.IsNone() {
		return types.Message{}, ErrNoRoomSelected
	}

	var roomId *int
	if !room.IsMain() {
		dbRoom, err := cs.db.GetRoomByExternalId(room.Id())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.Message{}, ErrRoomNotFound
			}
			return types.Message{}, fmt.Errorf("get room: %w", err)
		}
		if !slices.Contains(dbRoom.MemberIds, userId) {
			return types.Message{}, ErrNotMember
		}
		roomId = &dbRoom.Id
	}

	sender, err := cs.db.GetAccountById(userId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get sender: %w", err)
	}

	cs.postLock.Lock()
	defer cs.postLock.Unlock()

	dbMsg, err := cs.db.CreateMessage(database.CreateMessageParams{
		SenderId: userId,
		RoomId:   roomId,
		Body:     rawText,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	msg := RenderMessage(dbMsg, userFromAccount(sender), room)
	cs.broadcastMessage(room, msg)

	return msg, nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete; the
// acting user receives a point-to-point confirmation or rejection, never a
// room broadcast.
func (cs *ChatServer) DeleteMessage(userId, messageId int) error {
	msg, err := cs.db.GetMessageById(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("get message: %w", err)
	}

	if msg.SenderId != userId {
		cs.sendToUser(userId, userNoticeEvent("You cannot delete another user's message"))
		return ErrNotMessageSender
	}

	if err := cs.db.MarkMessageDeleted(messageId, deletedPlaceholder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("mark deleted: %w", err)
	}

	cs.sendToUser(userId, userNoticeEvent("Message deleted"))

	return nil
}

// RenderMessage converts a stored message into its wire form: rendered body
// and a timestamp formatted per delivery room.
func RenderMessage(dbMsg database.Message, sender types.User, room RoomRef) types.Message {
	format := timeFormatRoom
	if room.IsMain() {
		format = timeFormatMain
	}

	return types.Message{
		Id:          dbMsg.Id,
		RoomId:      room.Id(),
		Sender:      sender.DisplayName(),
		SenderId:    sender.Id,
		SenderColor: sender.Color,
		Text:        FormatMessageBody(dbMsg.Body),
		Time:        dbMsg.CreatedAt.Format(format),
		IsDeleted:   dbMsg.IsDeleted,
		CreatedAt:   dbMsg.CreatedAt,
	}
}

func (cs *ChatServer) Shutdown() {
	cs.log.Println("closing client connections")
	for _, c := range cs.conns.snapshot() {
		c.stopClient()
	}
}

func userFromAccount(acct database.User) types.User {
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
