// Package authority decides whether a role permits an action. It is the
// single source of truth for permissions: every mutating operation asks this
// package before touching state.
package authority

import "github.com/gatherhq/community-api/internal/models"

// Action is one of the closed set of gated operations.
type Action string

const (
	ActionManageMembers       Action = "manage_members"
	ActionChangeRole          Action = "change_role"
	ActionCreateEvent         Action = "create_event"
	ActionEditEvent           Action = "edit_event"
	ActionDeleteEvent         Action = "delete_event"
	ActionManageEventSettings Action = "manage_event_settings"
	ActionCheckIn             Action = "check_in"
	ActionMarkPaid            Action = "mark_paid"
	ActionCancelRegistration  Action = "cancel_registration"
	ActionRefund              Action = "refund"
	ActionAddWalkIn           Action = "add_walk_in"
	ActionRegister            Action = "register"
)

// grants lists the actions each role may perform. Owner and manager share the
// full vocabulary; the manager's limits are target-based and enforced in
// CanTarget. Event creators hold event CRUD, door people hold attendee
// operations, and everyone (member or not) may register.
var grants = map[models.Role]map[Action]struct{}{
	models.RoleOwner:   allActions(),
	models.RoleManager: allActions(),
	models.RoleEventCreator: {
		ActionCreateEvent: {},
		ActionEditEvent:   {},
		ActionDeleteEvent: {},
		ActionRegister:    {},
	},
	models.RoleDoorPerson: {
		ActionCheckIn:            {},
		ActionMarkPaid:           {},
		ActionAddWalkIn:          {},
		ActionCancelRegistration: {},
		ActionRegister:           {},
	},
	models.RoleMember: {
		ActionRegister: {},
	},
	models.RoleNone: {
		ActionRegister: {},
	},
}

func allActions() map[Action]struct{} {
	return map[Action]struct{}{
		ActionManageMembers:       {},
		ActionChangeRole:          {},
		ActionCreateEvent:         {},
		ActionEditEvent:           {},
		ActionDeleteEvent:         {},
		ActionManageEventSettings: {},
		ActionCheckIn:             {},
		ActionMarkPaid:            {},
		ActionCancelRegistration:  {},
		ActionRefund:              {},
		ActionAddWalkIn:           {},
		ActionRegister:            {},
	}
}

// Can reports whether the actor's role permits the action.
func Can(actor models.Role, action Action) bool {
	actions, ok := grants[actor]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// CanTarget reports whether the actor's role permits the action against a
// target role. The owner may act on anyone; a manager may not act on an owner
// nor grant the owner role. Other roles never hold target-based actions.
func CanTarget(actor models.Role, action Action, target models.Role) bool {
	if !Can(actor, action) {
		return false
	}
	switch actor {
	case models.RoleOwner:
		return true
	case models.RoleManager:
		return target != models.RoleOwner
	default:
		return false
	}
}

// Actions returns the set of actions the role may perform, for callers that
// need to decide which controls to expose.
func Actions(role models.Role) []Action {
	actions, ok := grants[role]
	if !ok {
		return nil
	}
	out := make([]Action, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	return out
}

// ValidRole reports whether the value names a grantable role.
func ValidRole(role models.Role) bool {
	switch role {
	case models.RoleOwner, models.RoleManager, models.RoleEventCreator,
		models.RoleDoorPerson, models.RoleMember:
		return true
	}
	return false
}
