package permission

import "vizspace/internal/role"

// Action names an operation on workspace-scoped data.
type Action string

const (
	WorkspaceView        Action = "workspace.view"
	WorkspaceUpdate      Action = "workspace.update"
	WorkspaceDelete      Action = "workspace.delete"
	WorkspaceSwitch      Action = "workspace.switch"
	MembersList          Action = "members.list"
	MembersInvite        Action = "members.invite"
	MembersRemove        Action = "members.remove"
	MembersChangeRole    Action = "members.change_role"
	SettingsView         Action = "settings.view"
	SettingsUpdate       Action = "settings.update"
	ActivityView         Action = "activity.view"
	DashboardsView       Action = "dashboards.view"
	DashboardsCreate     Action = "dashboards.create"
	DashboardsModify     Action = "dashboards.modify"
	ChartsView           Action = "charts.view"
	ChartsCreate         Action = "charts.create"
	ChartsModify         Action = "charts.modify"
	DataSourcesView      Action = "data_sources.view"
	DataSourcesCreate    Action = "data_sources.create"
	DataSourcesModify    Action = "data_sources.modify"
	ConnectionsView      Action = "connections.view"
	ConnectionsCreate    Action = "connections.create"
	ConnectionsModify    Action = "connections.modify"
	ConnectionsManageACL Action = "connections.manage_permissions"
)

// requiredRoles is the single table of minimum workspace roles.
// Resource-level rules (ownership, connection grants) apply on top.
var requiredRoles = map[Action]role.Role{
	WorkspaceView:        role.Viewer,
	WorkspaceUpdate:      role.Admin,
	WorkspaceDelete:      role.Admin,
	WorkspaceSwitch:      role.Viewer,
	MembersList:          role.Viewer,
	MembersInvite:        role.Admin,
	MembersRemove:        role.Admin,
	MembersChangeRole:    role.Admin,
	SettingsView:         role.Viewer,
	SettingsUpdate:       role.Admin,
	ActivityView:         role.Admin,
	DashboardsView:       role.Viewer,
	DashboardsCreate:     role.Editor,
	DashboardsModify:     role.Editor,
	ChartsView:           role.Viewer,
	ChartsCreate:         role.Editor,
	ChartsModify:         role.Editor,
	DataSourcesView:      role.Viewer,
	DataSourcesCreate:    role.Editor,
	DataSourcesModify:    role.Editor,
	ConnectionsView:      role.Viewer,
	ConnectionsCreate:    role.Editor,
	ConnectionsModify:    role.Editor,
	ConnectionsManageACL: role.Viewer,
}

// Required returns the minimum workspace role for an action.
func Required(a Action) (role.Role, bool) {
	r, ok := requiredRoles[a]
	return r, ok
}

// Allows reports whether a held role may perform the action.
// Unknown actions are denied.
func Allows(held role.Role, a Action) bool {
	required, ok := requiredRoles[a]
	if !ok {
		return false
	}
	return role.Satisfies(held, required)
}

// Actions lists every known action.
func Actions() []Action {
	out := make([]Action, 0, len(requiredRoles))
	for a := range requiredRoles {
		out = append(out, a)
	}
	return out
}
