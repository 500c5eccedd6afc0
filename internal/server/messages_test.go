package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func marshal(t *testing.T, event Event) string {
	bytes, err := json.Marshal(event)
	assert.NoError(t, err)
	return string(bytes)
}

func TestEventWireFormat(t *testing.T) {
	t.Run("new message", func(t *testing.T) {
		event := newMessageEvent("Petrov Ivan", "#336699", "hi", "13:05:07 09.03.2024")
		assert.JSONEq(t,
			`{"type":"New message","sender":"Petrov Ivan","sender_color":"#336699","text":"hi","time":"13:05:07 09.03.2024"}`,
			marshal(t, event))
	})

	t.Run("online list", func(t *testing.T) {
		event := onlineListEvent([]UserInfo{{LastName: "Petrov", FirstName: "Ivan", Color: "#336699"}})
		assert.JSONEq(t,
			`{"type":"Online list","users":[{"last_name":"Petrov","first_name":"Ivan","color":"#336699"}]}`,
			marshal(t, event))
	})

	t.Run("empty online list marshals as an array", func(t *testing.T) {
		event := onlineListEvent(nil)
		assert.JSONEq(t, `{"type":"Online list","users":[]}`, marshal(t, event))
	})

	t.Run("count of users on entry", func(t *testing.T) {
		event := countOfUsersEvent(3, []UserInfo{{LastName: "Petrov", FirstName: "Ivan", Color: "#336699"}}, false)
		assert.JSONEq(t,
			`{"type":"Count of users","count_of_users":3,"online_users":[{"last_name":"Petrov","first_name":"Ivan","color":"#336699"}]}`,
			marshal(t, event))
	})

	t.Run("count of users on exit", func(t *testing.T) {
		event := countOfUsersEvent(3, nil, true)
		assert.JSONEq(t, `{"type":"Count of users","count_of_users":3}`, marshal(t, event))
	})

	t.Run("user notice", func(t *testing.T) {
		event := userNoticeEvent("Message deleted")
		assert.JSONEq(t, `{"type":"Message to user","text":"Message deleted"}`, marshal(t, event))
	})
}
