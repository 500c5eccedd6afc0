package server

// Wire events pushed over the realtime channel. Every payload is a JSON
// object with a "type" discriminator; field names follow the browser
// client's expectations.

const (
	timeFormatMain = "15:04:05 02.01.2006"
	timeFormatRoom = "15:04"

	deletedPlaceholder = "Deleted"
)

type Event interface {
	eventType() string
}

// UserInfo carries the display attributes broadcast for an online user.
type UserInfo struct {
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	Color     string `json:"color"`
}

type NewMessageEvent struct {
	Type        string `json:"type"`
	Sender      string `json:"sender"`
	SenderColor string `json:"sender_color"`
	Text        string `json:"text"`
	Time        string `json:"time"`
}

func (e *NewMessageEvent) eventType() string { return e.Type }

type OnlineListEvent struct {
	Type  string     `json:"type"`
	Users []UserInfo `json:"users"`
}

func (e *OnlineListEvent) eventType() string { return e.Type }

type CountOfUsersEvent struct {
	Type         string `json:"type"`
	CountOfUsers int    `json:"count_of_users"`
	// OnlineUsers is set when the event describes the room the user moved
	// into, PrevOnlineUsers when it describes the room they vacated.
	OnlineUsers     []UserInfo `json:"online_users,omitempty"`
	PrevOnlineUsers []UserInfo `json:"prev_online_users,omitempty"`
}

func (e *CountOfUsersEvent) eventType() string { return e.Type }

// UserNoticeEvent is a point-to-point notice for a single user, used for
// moderation confirmations and rejections.
type UserNoticeEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (e *UserNoticeEvent) eventType() string { return e.Type }

func newMessageEvent(sender, color, text, time string) *NewMessageEvent {
	return &NewMessageEvent{
		Type:        "New message",
		Sender:      sender,
		SenderColor: color,
		Text:        text,
		Time:        time,
	}
}

func onlineListEvent(users []UserInfo) *OnlineListEvent {
	if users == nil {
		users = []UserInfo{}
	}
	return &OnlineListEvent{
		Type:  "Online list",
		Users: users,
	}
}

func countOfUsersEvent(count int, online []UserInfo, vacated bool) *CountOfUsersEvent {
	e := &CountOfUsersEvent{
		Type:         "Count of users",
		CountOfUsers: count,
	}
	if vacated {
		e.PrevOnlineUsers = online
	} else {
		e.OnlineUsers = online
	}
	return e
}

func userNoticeEvent(text string) *UserNoticeEvent {
	return &UserNoticeEvent{
		Type: "Message to user",
		Text: text,
	}
}
