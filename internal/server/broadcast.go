package server

import (
	"database/sql"
	"errors"

	"github.com/fdrpot/chat/internal/types"
)

// broadcastMessage fans a rendered message out to everyone whose presence is
// room and who has a live connection. Offline occupants are skipped; they
// read the message from history on their next page load.
func (cs *ChatServer) broadcastMessage(room RoomRef, msg types.Message) {
	cs.broadcastLock.Lock()
	defer cs.broadcastLock.Unlock()

	event := newMessageEvent(msg.Sender, msg.SenderColor, msg.Text, msg.Time)
	for _, userId := range cs.presence.occupantsOf(room) {
		c, ok := cs.conns.find(userId)
		if !ok {
			continue
		}
		c.queueEvent(event)
	}

	cs.stats.Incr("NumMessagesBroadcast")
}

// BroadcastPresenceChange notifies the room a user just vacated and the room
// they now occupy. For the main room that is the full online list; for a
// private room the member count plus the connected occupants.
func (cs *ChatServer) BroadcastPresenceChange(userId int) {
	entry, ok := cs.presence.snapshotFor(userId)

	cs.broadcastLock.Lock()
	defer cs.broadcastLock.Unlock()

	if !ok {
		// no room context yet; refresh the main room's online list
		cs.broadcastOnlineMain()
		return
	}

	cs.notifyRoom(entry.previous, true)
	if entry.current != entry.previous {
		cs.notifyRoom(entry.current, false)
	}
}

// BroadcastOnlineMain recomputes and pushes the main room's online list to
// every live connection.
func (cs *ChatServer) BroadcastOnlineMain() {
	cs.broadcastLock.Lock()
	defer cs.broadcastLock.Unlock()

	cs.broadcastOnlineMain()
}

func (cs *ChatServer) notifyRoom(room RoomRef, vacated bool) {
	switch {
	case room.IsNone():
		// nothing to notify
	case room.IsMain():
		cs.broadcastOnlineMain()
	default:
		cs.broadcastRoomCount(room, vacated)
	}
}

// broadcastOnlineMain sends the "Online list" event to every live
// connection. Callers hold broadcastLock.
func (cs *ChatServer) broadcastOnlineMain() {
	cs.sweep()

	conns := cs.conns.snapshot()

	var users []UserInfo
	for _, userId := range cs.presence.occupantsOf(MainRoom) {
		if _, ok := conns[userId]; !ok {
			continue
		}
		info, err := cs.userInfo(userId)
		if err != nil {
			cs.log.Printf("online list: user %d: %v", userId, err)
			continue
		}
		users = append(users, info)
	}

	event := onlineListEvent(users)
	for _, c := range conns {
		c.queueEvent(event)
	}
}

// broadcastRoomCount sends the "Count of users" event for a private room to
// the room's connected occupants. Callers hold broadcastLock.
func (cs *ChatServer) broadcastRoomCount(room RoomRef, vacated bool) {
	dbRoom, err := cs.db.GetRoomByExternalId(room.Id())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			cs.log.Printf("room count for %q: %v", room.Id(), err)
		}
		return
	}

	occupants := cs.presence.occupantsOf(room)

	var online []UserInfo
	var audience []*Client
	for _, userId := range occupants {
		c, ok := cs.conns.find(userId)
		if !ok {
			continue
		}
		audience = append(audience, c)

		info, err := cs.userInfo(userId)
		if err != nil {
			cs.log.Printf("room count: user %d: %v", userId, err)
			continue
		}
		online = append(online, info)
	}

	event := countOfUsersEvent(len(dbRoom.MemberIds), online, vacated)
	for _, c := range audience {
		c.queueEvent(event)
	}
}

// sweep removes connection entries whose account no longer exists in the
// store. Invoked opportunistically before main-room broadcasts.
func (cs *ChatServer) sweep() {
	for userId, c := range cs.conns.snapshot() {
		_, err := cs.db.GetAccountById(userId)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			continue
		}

		cs.log.Printf("sweeping connection for deleted account %d", userId)
		if cs.conns.unregister(userId, c) {
			cs.stats.Decr("NumConnections")
		}
		cs.presence.remove(userId)
		c.stopClient()
		cs.stats.Incr("NumSweptConnections")
	}
}

// sendToUser delivers a point-to-point event to the user's live connection,
// if any.
func (cs *ChatServer) sendToUser(userId int, event Event) {
	c, ok := cs.conns.find(userId)
	if !ok {
		return
	}
	c.queueEvent(event)
}

func (cs *ChatServer) userInfo(userId int) (UserInfo, error) {
	acct, err := cs.db.GetAccountById(userId)
	if err != nil {
		return UserInfo{}, err
	}

	return UserInfo{
		LastName:  acct.LastName,
		FirstName: acct.FirstName,
		Color:     acct.Color,
	}, nil
}
