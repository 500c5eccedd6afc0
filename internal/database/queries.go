package database

import (
	"database/sql"
	"time"
)

const accountColumns = "id, email, first_name, last_name, patronymic, color, password_hash, is_active, activation_token, created_at, updated_at"

func scanAccount(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.FirstName,
		&u.LastName,
		&u.Patronymic,
		&u.Color,
		&u.PasswordHash,
		&u.IsActive,
		&u.ActivationToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRow(
		"INSERT INTO accounts (email, first_name, last_name, patronymic, color, password_hash, is_active, activation_token, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $8) RETURNING "+accountColumns,
		params.EmailAddress,
		params.FirstName,
		params.LastName,
		params.Patronymic,
		params.Color,
		params.PasswordHash,
		params.ActivationToken,
		now,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) UpdateProfile(params UpdateProfileParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET first_name = $2, last_name = $3, patronymic = $4, color = $5, updated_at = $6 "+
			"WHERE id = $1 RETURNING "+accountColumns,
		params.UserId,
		params.FirstName,
		params.LastName,
		params.Patronymic,
		params.Color,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgChatRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	return scanAccount(row)
}

func (db *PgChatRepository) ActivateAccount(token string) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE accounts SET is_active = TRUE, activation_token = '', updated_at = $2 "+
			"WHERE activation_token = $1 AND activation_token <> '' RETURNING "+accountColumns,
		token,
		time.Now().UTC(),
	)

	return scanAccount(row)
}

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	row := tx.QueryRow(
		"INSERT INTO chats (external_id, name, description, creator_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, external_id, name, description, creator_id, created_at, updated_at",
		params.ExternalId,
		params.Name,
		params.Description,
		params.CreatorId,
		now,
	)

	var room Room
	if err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.CreatorId,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return Room{}, err
	}

	// the creator is always a member and an admin
	if _, err := tx.Exec(
		"INSERT INTO chat_members (chat_id, account_id, is_admin, created_at) VALUES ($1, $2, TRUE, $3)",
		room.Id, params.CreatorId, now,
	); err != nil {
		return Room{}, err
	}

	if err := tx.Commit(); err != nil {
		return Room{}, err
	}

	room.MemberIds = []int{params.CreatorId}
	room.AdminIds = []int{params.CreatorId}
	return room, nil
}

func (db *PgChatRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, description, creator_id, created_at, updated_at FROM chats "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	if err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.CreatorId,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return Room{}, err
	}

	if err := db.loadMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) loadMembers(room *Room) error {
	rows, err := db.conn.Query(
		"SELECT account_id, is_admin FROM chat_members WHERE chat_id = $1 ORDER BY created_at",
		room.Id,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var accountId int
		var isAdmin bool
		if err := rows.Scan(&accountId, &isAdmin); err != nil {
			return err
		}
		room.MemberIds = append(room.MemberIds, accountId)
		if isAdmin {
			room.AdminIds = append(room.AdminIds, accountId)
		}
	}

	return rows.Err()
}

func (db *PgChatRepository) UpdateRoom(roomId int, name, description string) (Room, error) {
	row := db.conn.QueryRow(
		"UPDATE chats SET name = $2, description = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, external_id, name, description, creator_id, created_at, updated_at",
		roomId,
		name,
		description,
		time.Now().UTC(),
	)

	var room Room
	if err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.Name,
		&room.Description,
		&room.CreatorId,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return Room{}, err
	}

	if err := db.loadMembers(&room); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgChatRepository) ListRoomsForAccount(accountId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.external_id, c.name, c.description, c.creator_id, c.created_at, c.updated_at "+
			"FROM chats c JOIN chat_members m ON m.chat_id = c.id "+
			"WHERE m.account_id = $1 ORDER BY c.created_at",
		accountId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.Name,
			&room.Description,
			&room.CreatorId,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range rooms {
		if err := db.loadMembers(&rooms[i]); err != nil {
			return nil, err
		}
	}

	return rooms, nil
}

func (db *PgChatRepository) AddMember(roomId, accountId int, isAdmin bool) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_members (chat_id, account_id, is_admin, created_at) VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (chat_id, account_id) DO NOTHING",
		roomId, accountId, isAdmin, time.Now().UTC(),
	)
	return err
}

func (db *PgChatRepository) RemoveMember(roomId, accountId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM chat_members WHERE chat_id = $1 AND account_id = $2",
		roomId, accountId,
	)
	return err
}

func (db *PgChatRepository) SetAdmin(roomId, accountId int, isAdmin bool) error {
	_, err := db.conn.Exec(
		"UPDATE chat_members SET is_admin = $3 WHERE chat_id = $1 AND account_id = $2",
		roomId, accountId, isAdmin,
	)
	return err
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (sender_id, chat_id, body, is_deleted, created_at) "+
			"VALUES ($1, $2, $3, FALSE, $4) RETURNING id, sender_id, chat_id, body, is_deleted, created_at",
		params.SenderId,
		nullableInt(params.RoomId),
		params.Body,
		time.Now().UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetMessageById(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, sender_id, chat_id, body, is_deleted, created_at FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) MarkMessageDeleted(id int, placeholder string) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_deleted = TRUE, body = $2 WHERE id = $1",
		id, placeholder,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// GetMessages returns the room's most recent messages, newest first, so a
// limit keeps the latest window rather than the oldest.
func (db *PgChatRepository) GetMessages(roomId *int, limit int) ([]Message, error) {
	query := "SELECT id, sender_id, chat_id, body, is_deleted, created_at FROM messages WHERE chat_id IS NULL ORDER BY created_at DESC, id DESC"
	args := []any{}
	if roomId != nil {
		query = "SELECT id, sender_id, chat_id, body, is_deleted, created_at FROM messages WHERE chat_id = $1 ORDER BY created_at DESC, id DESC"
		args = append(args, *roomId)
	}
	if limit > 0 {
		args = append(args, limit)
		if roomId != nil {
			query += " LIMIT $2"
		} else {
			query += " LIMIT $1"
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var chatId sql.NullInt64
		if err := rows.Scan(&m.Id, &m.SenderId, &chatId, &m.Body, &m.IsDeleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		if chatId.Valid {
			id := int(chatId.Int64)
			m.RoomId = &id
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func scanMessage(row *sql.Row) (Message, error) {
	var m Message
	var chatId sql.NullInt64
	err := row.Scan(&m.Id, &m.SenderId, &chatId, &m.Body, &m.IsDeleted, &m.CreatedAt)
	if chatId.Valid {
		id := int(chatId.Int64)
		m.RoomId = &id
	}
	return m, err
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
