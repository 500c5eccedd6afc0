package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	EmailAddress string    `json:"email_address,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Patronymic   string    `json:"patronymic,omitempty"`
	Color        string    `json:"color,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// DisplayName is the name rendered next to a user's messages.
func (u User) DisplayName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.LastName + " " + u.FirstName
}

type Room struct {
	ExternalId   string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatorId    int       `json:"creator_id"`
	Members      []User    `json:"members,omitempty"`
	AdminIds     []int     `json:"admin_ids,omitempty"`
	CountOfUsers int       `json:"count_of_users"`
	IsAdmin      bool      `json:"is_admin,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id          int       `json:"id"`
	RoomId      string    `json:"room_id,omitempty"`
	Sender      string    `json:"sender"`
	SenderId    int       `json:"sender_id"`
	SenderColor string    `json:"sender_color,omitempty"`
	Text        string    `json:"text"`
	Time        string    `json:"time"`
	IsDeleted   bool      `json:"is_deleted,omitempty"`
	CreatedAt   time.Time `json:"-"`
}
