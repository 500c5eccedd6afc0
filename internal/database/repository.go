package database

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	UpdateProfile(params UpdateProfileParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	ActivateAccount(token string) (User, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	UpdateRoom(roomId int, name, description string) (Room, error)
	ListRoomsForAccount(accountId int) ([]Room, error)
	AddMember(roomId, accountId int, isAdmin bool) error
	RemoveMember(roomId, accountId int) error
	SetAdmin(roomId, accountId int, isAdmin bool) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(id int) (Message, error)
	MarkMessageDeleted(id int, placeholder string) error
	// GetMessages returns up to limit of the room's most recent messages,
	// newest first.
	GetMessages(roomId *int, limit int) ([]Message, error)
}
