// Package actor models the closed role hierarchy and the area scope each
// role may administer. Workflow operations receive an Actor explicitly;
// nothing in the core reads the caller from ambient state.
package actor

import "landgov/api/internal/area"

type Role string
type Action string

const (
	RoleCitizen       Role = "citizen"
	RoleBlockAdmin    Role = "block_admin"
	RoleDistrictAdmin Role = "district_admin"
	RoleStateAdmin    Role = "state_admin"
)

const (
	ActionSubmitRequest     Action = "submit_request"
	ActionDistrictDecide    Action = "district_decide"
	ActionStateDecide       Action = "state_decide"
	ActionFlagLease         Action = "flag_lease"
	ActionFlagViolation     Action = "flag_violation"
	ActionRunAnalysis       Action = "run_analysis"
	ActionSubmitAppeal      Action = "submit_appeal"
	ActionSubmitApplication Action = "submit_application"
	ActionDecideApplication Action = "decide_application"
	ActionAssignPlot        Action = "assign_plot"
	ActionAdminRead         Action = "admin_read"
)

// Actor is the resolved caller identity handed to every workflow operation.
type Actor struct {
	ID     string
	Name   string
	Email  string
	Role   Role
	PlotID string
	AreaID area.ID
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleBlockAdmin || a.Role == RoleDistrictAdmin || a.Role == RoleStateAdmin
}

// Can is the single role/operation predicate. District and state decisions
// are tier-exclusive; the remaining admin actions are open to every admin
// tier, subject to the area scope check.
func Can(role Role, action Action) bool {
	switch action {
	case ActionSubmitRequest, ActionSubmitAppeal, ActionSubmitApplication:
		return role == RoleCitizen
	case ActionDistrictDecide:
		return role == RoleDistrictAdmin
	case ActionStateDecide:
		return role == RoleStateAdmin
	case ActionFlagLease, ActionFlagViolation, ActionRunAnalysis,
		ActionDecideApplication, ActionAssignPlot, ActionAdminRead:
		return role == RoleBlockAdmin || role == RoleDistrictAdmin || role == RoleStateAdmin
	default:
		return false
	}
}

// ScopeForRole returns the areas a role may administer. Citizens have no
// administrative scope; they act on their own plot and violation only.
func ScopeForRole(role Role) []area.ID {
	switch role {
	case RoleStateAdmin:
		return area.AllIDs()
	case RoleDistrictAdmin:
		return []area.ID{area.Area1, area.Area2}
	case RoleBlockAdmin:
		return []area.ID{area.Area1}
	default:
		return nil
	}
}

// InScope reports whether a role's administrative scope covers the area.
func InScope(role Role, id area.ID) bool {
	for _, scoped := range ScopeForRole(role) {
		if scoped == id {
			return true
		}
	}
	return false
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleCitizen, RoleBlockAdmin, RoleDistrictAdmin, RoleStateAdmin:
		return Role(role)
	default:
		return RoleCitizen
	}
}
