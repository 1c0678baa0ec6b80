// Package permission evaluates what a role may do in a meeting.
// Everything here is read-only after init and safe without locking.
package permission

import (
	"orchestra/domain/meeting"

	"github.com/samber/lo"
)

type Action string

const (
	CreateMeeting      Action = "create_meeting"
	DeleteMeeting      Action = "delete_meeting"
	ManagePhases       Action = "manage_phases"
	ForceTokenRelease  Action = "force_token_release"
	ManageParticipants Action = "manage_participants"
	CreateAnnotations  Action = "create_annotations"
	CreateDecisions    Action = "create_decisions"
	ViewStats          Action = "view_stats"
	ExportAudit        Action = "export_audit"
)

var allActions = []Action{
	CreateMeeting, DeleteMeeting, ManagePhases, ForceTokenRelease, ManageParticipants,
	CreateAnnotations, CreateDecisions, ViewStats, ExportAudit,
}

type set map[Action]struct{}

func setOf(actions ...Action) set {
	return lo.SliceToMap(actions, func(a Action) (Action, struct{}) {
		return a, struct{}{}
	})
}

// rolePermissions is the process-wide RolePermissionMap.
var rolePermissions = map[meeting.Role]set{
	meeting.RoleAdmin: setOf(allActions...),
	meeting.RoleFacilitator: setOf(lo.Filter(allActions, func(a Action, _ int) bool {
		return a != DeleteMeeting
	})...),
	meeting.RoleParticipant: setOf(CreateAnnotations, ViewStats),
	meeting.RoleObserver:    setOf(ViewStats),
}

// Evaluate reports whether role is allowed to perform action.
// Unknown roles are allowed nothing.
func Evaluate(role meeting.Role, action Action) bool {
	_, ok := rolePermissions[role][action]
	return ok
}

// Actions lists the actions granted to role, in declaration order.
func Actions(role meeting.Role) []Action {
	return lo.Filter(allActions, func(a Action, _ int) bool {
		return Evaluate(role, a)
	})
}

// CanClaim is the contextual rule for claiming the expression token.
// heldByOther must be computed inside the room critical section.
func CanClaim(role meeting.Role, heldByOther bool) bool {
	switch role {
	case meeting.RoleAdmin, meeting.RoleFacilitator:
		return true
	case meeting.RoleParticipant:
		return !heldByOther
	default:
		return false
	}
}
