package server

import (
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/fdrpot/chat/internal/database"
)

type MembershipAction string

const (
	ActionAddMember    MembershipAction = "add_member"
	ActionRemoveMember MembershipAction = "remove_member"
	ActionPromoteAdmin MembershipAction = "promote_admin"
	ActionDemoteAdmin  MembershipAction = "demote_admin"
)

// Authorization failures. Each violated precondition has its own error so
// the caller can report exactly what was wrong; no state is mutated on any
// of them.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrNotAdmin         = errors.New("you are not an admin of this room")
	ErrNotCreator       = errors.New("only the room's creator may do this")
	ErrNotMember        = errors.New("you are not a member of this room")
	ErrTargetNotMember  = errors.New("the user is not a member of this room")
	ErrTargetNotAdmin   = errors.New("the user is not an admin of this room")
	ErrAlreadyMember    = errors.New("the user is already a member of this room")
	ErrSelfTarget       = errors.New("you cannot target yourself")
	ErrCreatorImmutable = errors.New("the room's creator cannot be removed or demoted")
)

// authorizeMembership validates a structural room change against the
// creator/admin/member hierarchy. It is a pure check: validate fully, then
// the caller mutates, then persists.
func authorizeMembership(room database.Room, actor, target int, action MembershipAction) error {
	if !slices.Contains(room.AdminIds, actor) {
		return ErrNotAdmin
	}

	switch action {
	case ActionAddMember:
		if slices.Contains(room.MemberIds, target) {
			return ErrAlreadyMember
		}
	case ActionRemoveMember:
		if !slices.Contains(room.MemberIds, target) {
			return ErrTargetNotMember
		}
		if target == actor {
			return ErrSelfTarget
		}
		if target == room.CreatorId {
			return ErrCreatorImmutable
		}
		if slices.Contains(room.AdminIds, target) && actor != room.CreatorId {
			return ErrNotCreator
		}
	case ActionPromoteAdmin:
		if !slices.Contains(room.MemberIds, target) {
			return ErrTargetNotMember
		}
	case ActionDemoteAdmin:
		if !slices.Contains(room.AdminIds, target) {
			return ErrTargetNotAdmin
		}
		if target == actor {
			return ErrSelfTarget
		}
		if target == room.CreatorId {
			return ErrCreatorImmutable
		}
		if actor != room.CreatorId {
			return ErrNotCreator
		}
	default:
		return fmt.Errorf("unknown membership action %q", action)
	}

	return nil
}

// ChangeMembership applies a structural action to a room after validating it
// against the role hierarchy.
func (cs *ChatServer) ChangeMembership(actor int, roomId string, action MembershipAction, target int, asAdmin bool) error {
	room, err := cs.db.GetRoomByExternalId(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("get room: %w", err)
	}

	if err := authorizeMembership(room, actor, target, action); err != nil {
		return err
	}

	switch action {
	case ActionAddMember:
		err = cs.db.AddMember(room.Id, target, asAdmin)
	case ActionRemoveMember:
		err = cs.db.RemoveMember(room.Id, target)
	case ActionPromoteAdmin:
		err = cs.db.SetAdmin(room.Id, target, true)
	case ActionDemoteAdmin:
		err = cs.db.SetAdmin(room.Id, target, false)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}

	return nil
}
