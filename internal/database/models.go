package database

import "time"

type User struct {
	Id              int
	EmailAddress    string
	FirstName       string
	LastName        string
	Patronymic      string
	Color           string
	PasswordHash    string
	IsActive        bool
	ActivationToken string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Room struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	CreatorId   int
	// MemberIds and AdminIds are the full membership sets for the room.
	// AdminIds is always a subset of MemberIds and contains CreatorId.
	MemberIds []int
	AdminIds  []int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	Id       int
	SenderId int
	// RoomId is nil for messages posted to the public main room.
	RoomId    *int
	Body      string
	IsDeleted bool
	CreatedAt time.Time
}

type CreateAccountParams struct {
	EmailAddress    string
	FirstName       string
	LastName        string
	Patronymic      string
	Color           string
	PasswordHash    string
	ActivationToken string
}

type UpdateProfileParams struct {
	UserId     int
	FirstName  string
	LastName   string
	Patronymic string
	Color      string
}

type CreateRoomParams struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatorId   int    `json:"-"`
	ExternalId  string `json:"external_id"`
}

type CreateMessageParams struct {
	SenderId int
	RoomId   *int
	Body     string
}
