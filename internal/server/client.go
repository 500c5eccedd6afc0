package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/fdrpot/chat/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client is one live websocket connection bound to an authenticated user.
// The protocol is push-only: the browser triggers actions over HTTP and the
// server fans events out here.
type Client struct {
	conn   *websocket.Conn
	cs     *ChatServer
	log    *log.Logger
	user   types.User
	cookie string
	send   chan Event
	stop   chan struct{}
	once   sync.Once
}

func NewClient(user types.User, cookie string, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:   conn,
		cs:     cs,
		log:    l,
		user:   user,
		cookie: cookie,
		send:   make(chan Event, 256),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// Read consumes the connection until it closes. The client sends no
// application frames; the pump exists to run the pong handler and detect
// disconnects.
func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cs.handleDisconnect(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}
	}
}

// queueEvent hands an event to the write pump without blocking. A full
// channel drops the event for this recipient only.
func (c *Client) queueEvent(event Event) bool {
	select {
	case c.send <- event:
	default:
		c.log.Printf("dropping %q event for user %d, send buffer full", event.eventType(), c.user.Id)
		c.cs.stats.Incr("NumEventsDropped")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.once.Do(func() { close(c.stop) })
}
