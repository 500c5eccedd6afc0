package server

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/fdrpot/chat/internal/database"
	"github.com/fdrpot/chat/internal/testutil"
	"github.com/fdrpot/chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func connectUser(t *testing.T, cs *ChatServer, id int) *Client {
	c := NewClient(types.User{Id: id}, "cookie", nil, cs, testutil.TestLogger(t))
	cs.conns.register(c)
	return c
}

// drainEvents empties the client's send buffer without blocking.
func drainEvents(c *Client) []Event {
	var events []Event
	for {
		select {
		case event := <-c.send:
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestBroadcastMessageAudience(t *testing.T) {
	db := &database.MockChatRepository{}
	cs := newTestChatServer(t, db, nil)

	inRoom := connectUser(t, cs, 1)
	elsewhere := connectUser(t, cs, 2)
	cs.presence.enterRoom(1, PrivateRoom("r1"))
	cs.presence.enterRoom(2, MainRoom)
	// user 3 occupies the room but has no connection
	cs.presence.enterRoom(3, PrivateRoom("r1"))

	cs.broadcastMessage(PrivateRoom("r1"), types.Message{Sender: "Petrov Ivan", Text: "hi", Time: "13:05"})

	got := drainEvents(inRoom)
	assert.Len(t, got, 1)
	event, ok := got[0].(*NewMessageEvent)
	assert.True(t, ok)
	assert.Equal(t, "New message", event.Type)
	assert.Equal(t, "hi", event.Text)

	assert.Empty(t, drainEvents(elsewhere))
}

func TestBroadcastOnlineMain(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetAccountById", 1).Return(testAccount(1), nil)
	db.On("GetAccountById", 2).Return(testAccount(2), nil)

	cs := newTestChatServer(t, db, nil)

	inMain := connectUser(t, cs, 1)
	inPrivate := connectUser(t, cs, 2)
	cs.presence.enterRoom(1, MainRoom)
	cs.presence.enterRoom(2, PrivateRoom("r1"))

	cs.BroadcastOnlineMain()

	// every live connection gets the list, but only main room occupants
	// appear in it
	for _, c := range []*Client{inMain, inPrivate} {
		got := drainEvents(c)
		assert.Len(t, got, 1)
		event, ok := got[0].(*OnlineListEvent)
		assert.True(t, ok)
		assert.Equal(t, "Online list", event.Type)
		assert.Equal(t, []UserInfo{{LastName: "Petrov1", FirstName: "Ivan", Color: "#336699"}}, event.Users)
	}
}

func TestBroadcastRoomMove(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetAccountById", 1).Return(testAccount(1), nil)
	db.On("GetAccountById", 2).Return(testAccount(2), nil)
	db.On("GetRoomByExternalId", "r1").Return(database.Room{Id: 10, ExternalId: "r1", MemberIds: []int{1, 2, 3}}, nil)
	db.On("GetRoomByExternalId", "r2").Return(database.Room{Id: 11, ExternalId: "r2", MemberIds: []int{2}}, nil)

	cs := newTestChatServer(t, db, nil)

	stayer := connectUser(t, cs, 1)
	mover := connectUser(t, cs, 2)
	cs.presence.enterRoom(1, PrivateRoom("r1"))
	cs.presence.enterRoom(2, PrivateRoom("r1"))
	drainEvents(stayer)
	drainEvents(mover)

	cs.presence.enterRoom(2, PrivateRoom("r2"))
	cs.BroadcastPresenceChange(2)

	t.Run("vacated room sees prev_online_users", func(t *testing.T) {
		got := drainEvents(stayer)
		assert.Len(t, got, 1)
		event, ok := got[0].(*CountOfUsersEvent)
		assert.True(t, ok)
		assert.Equal(t, "Count of users", event.Type)
		assert.Equal(t, 3, event.CountOfUsers)
		assert.Equal(t, []UserInfo{{LastName: "Petrov1", FirstName: "Ivan", Color: "#336699"}}, event.PrevOnlineUsers)
		assert.Nil(t, event.OnlineUsers)
	})

	t.Run("entered room sees online_users", func(t *testing.T) {
		got := drainEvents(mover)
		assert.Len(t, got, 1)
		event, ok := got[0].(*CountOfUsersEvent)
		assert.True(t, ok)
		assert.Equal(t, 1, event.CountOfUsers)
		assert.Equal(t, []UserInfo{{LastName: "Petrov2", FirstName: "Ivan", Color: "#336699"}}, event.OnlineUsers)
		assert.Nil(t, event.PrevOnlineUsers)
	})
}

func TestSweepDeletedAccounts(t *testing.T) {
	db := &database.MockChatRepository{}
	db.On("GetAccountById", 1).Return(testAccount(1), nil)
	db.On("GetAccountById", 2).Return(database.User{}, sql.ErrNoRows)

	cs := newTestChatServer(t, db, nil)

	alive := connectUser(t, cs, 1)
	deleted := connectUser(t, cs, 2)
	cs.presence.enterRoom(1, MainRoom)
	cs.presence.enterRoom(2, MainRoom)

	cs.BroadcastOnlineMain()

	_, ok := cs.conns.find(2)
	assert.False(t, ok)
	_, ok = cs.presence.snapshotFor(2)
	assert.False(t, ok)

	got := drainEvents(alive)
	assert.Len(t, got, 1)
	event := got[0].(*OnlineListEvent)
	assert.Equal(t, []UserInfo{{LastName: "Petrov1", FirstName: "Ivan", Color: "#336699"}}, event.Users)

	assert.Empty(t, drainEvents(deleted))
}

func TestConcurrentPostsBroadcastInStorageOrder(t *testing.T) {
	firstStored := make(chan struct{})

	db := &database.MockChatRepository{}
	db.On("GetAccountById", 1).Return(testAccount(1), nil)
	db.On("GetAccountById", 2).Return(testAccount(2), nil)
	// the first post lingers between persist and fan-out, giving the second
	// post every chance to overtake it
	db.On("CreateMessage", database.CreateMessageParams{SenderId: 1, Body: "first"}).
		Run(func(args mock.Arguments) {
			close(firstStored)
			time.Sleep(50 * time.Millisecond)
		}).
		Return(database.Message{Id: 1, SenderId: 1, Body: "first", CreatedAt: time.Now()}, nil)
	db.On("CreateMessage", database.CreateMessageParams{SenderId: 2, Body: "second"}).
		Return(database.Message{Id: 2, SenderId: 2, Body: "second", CreatedAt: time.Now()}, nil)

	cs := newTestChatServer(t, db, nil)

	reader := connectUser(t, cs, 3)
	cs.presence.enterRoom(3, MainRoom)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := cs.PostMessage(1, MainRoom, "first")
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		<-firstStored
		_, err := cs.PostMessage(2, MainRoom, "second")
		assert.NoError(t, err)
	}()
	wg.Wait()

	got := drainEvents(reader)
	assert.Len(t, got, 2)
	assert.Equal(t, "first", got[0].(*NewMessageEvent).Text)
	assert.Equal(t, "second", got[1].(*NewMessageEvent).Text)
}

func TestSendToUser(t *testing.T) {
	cs := newTestChatServer(t, &database.MockChatRepository{}, nil)

	c := connectUser(t, cs, 1)

	cs.sendToUser(1, userNoticeEvent("Message deleted"))
	cs.sendToUser(99, userNoticeEvent("nobody home"))

	got := drainEvents(c)
	assert.Len(t, got, 1)
	event := got[0].(*UserNoticeEvent)
	assert.Equal(t, "Message to user", event.Type)
	assert.Equal(t, "Message deleted", event.Text)
}
