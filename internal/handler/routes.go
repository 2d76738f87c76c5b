package handler

import (
	"net/http"

	"vizspace/internal/auth"
	"vizspace/internal/middleware"
	"vizspace/internal/permission"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Deps is everything RegisterRoutes wires together.
type Deps struct {
	Authenticator auth.Authenticator
	Guard         *middleware.WorkspaceGuard
	Gatherer      prometheus.Gatherer
	Logger        *logrus.Logger

	Health      *HealthHandler
	Accounts    *AccountHandler
	Users       *UserHandler
	Workspaces  *WorkspaceHandler
	Members     *MemberHandler
	Connections *ConnectionHandler
	Dashboards  *DashboardHandler
	Charts      *ChartHandler
}

// scopedRoute is a route that runs inside a workspace with a minimum role.
type scopedRoute struct {
	pattern string
	action  permission.Action
	handler http.HandlerFunc
}

// scopedRoutes lists every workspace-scoped route with the action it requires.
func scopedRoutes(d Deps) []scopedRoute {
	return []scopedRoute{
		{"GET /api/workspaces/{workspace_id}", permission.WorkspaceView, d.Workspaces.Get},
		{"PATCH /api/workspaces/{workspace_id}", permission.WorkspaceUpdate, d.Workspaces.Rename},
		{"DELETE /api/workspaces/{workspace_id}", permission.WorkspaceDelete, d.Workspaces.Delete},
		{"POST /api/workspaces/{workspace_id}/switch", permission.WorkspaceSwitch, d.Workspaces.Switch},
		{"GET /api/workspaces/{workspace_id}/settings", permission.SettingsView, d.Workspaces.Settings},
		{"PATCH /api/workspaces/{workspace_id}/settings", permission.SettingsUpdate, d.Workspaces.UpdateSettings},
		{"GET /api/workspaces/{workspace_id}/activity", permission.ActivityView, d.Workspaces.Activity},
		{"GET /api/workspaces/{workspace_id}/members", permission.MembersList, d.Members.List},
		{"POST /api/workspaces/{workspace_id}/invite", permission.MembersInvite, d.Members.Invite},
		{"DELETE /api/workspaces/{workspace_id}/members/{user_id}", permission.MembersRemove, d.Members.Remove},
		{"PATCH /api/workspaces/{workspace_id}/members/{user_id}/role", permission.MembersChangeRole, d.Members.ChangeRole},

		{"GET /api/connections", permission.ConnectionsView, d.Connections.List},
		{"POST /api/connections", permission.ConnectionsCreate, d.Connections.Create},
		{"GET /api/connections/{id}", permission.ConnectionsView, d.Connections.Get},
		{"PUT /api/connections/{id}", permission.ConnectionsModify, d.Connections.Update},
		{"DELETE /api/connections/{id}", permission.ConnectionsModify, d.Connections.Delete},
		{"GET /api/connections/{id}/permissions", permission.ConnectionsManageACL, d.Connections.ListGrants},
		{"PUT /api/connections/{id}/permissions/{user_id}", permission.ConnectionsManageACL, d.Connections.SetGrant},
		{"DELETE /api/connections/{id}/permissions/{user_id}", permission.ConnectionsManageACL, d.Connections.RevokeGrant},

		{"GET /api/dashboards", permission.DashboardsView, d.Dashboards.List},
		{"POST /api/dashboards", permission.DashboardsCreate, d.Dashboards.Create},
		{"GET /api/dashboards/{id}", permission.DashboardsView, d.Dashboards.Get},
		{"PUT /api/dashboards/{id}", permission.DashboardsModify, d.Dashboards.Update},
		{"DELETE /api/dashboards/{id}", permission.DashboardsModify, d.Dashboards.Delete},
		{"POST /api/dashboards/{id}/share", permission.DashboardsModify, d.Dashboards.Share},
		{"DELETE /api/dashboards/{id}/share", permission.DashboardsModify, d.Dashboards.Unshare},

		{"GET /api/charts", permission.ChartsView, d.Charts.ListCharts},
		{"POST /api/charts", permission.ChartsCreate, d.Charts.CreateChart},
		{"GET /api/charts/{id}", permission.ChartsView, d.Charts.GetChart},
		{"PUT /api/charts/{id}", permission.ChartsModify, d.Charts.UpdateChart},
		{"DELETE /api/charts/{id}", permission.ChartsModify, d.Charts.DeleteChart},

		{"GET /api/data-sources", permission.DataSourcesView, d.Charts.ListDataSources},
		{"POST /api/data-sources", permission.DataSourcesCreate, d.Charts.CreateDataSource},
		{"GET /api/data-sources/{id}", permission.DataSourcesView, d.Charts.GetDataSource},
		{"PUT /api/data-sources/{id}", permission.DataSourcesModify, d.Charts.UpdateDataSource},
		{"DELETE /api/data-sources/{id}", permission.DataSourcesModify, d.Charts.DeleteDataSource},
	}
}

// RegisterRoutes registers all HTTP routes with the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	requireAuth := middleware.RequireAuth(d.Authenticator, d.Logger)

	// Health, metrics and public endpoints (no auth required)
	mux.HandleFunc("GET /health", d.Health.Live)
	mux.HandleFunc("GET /health/ready", d.Health.Ready)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/auth/register", d.Accounts.Register)
	mux.HandleFunc("POST /api/auth/login", d.Accounts.Login)
	mux.HandleFunc("GET /api/dashboards/public/{token}", d.Dashboards.Public)

	// Authenticated, not tied to one workspace
	mux.Handle("GET /api/auth/me", requireAuth(http.HandlerFunc(d.Accounts.Me)))
	mux.Handle("POST /api/users/me/password", requireAuth(http.HandlerFunc(d.Accounts.ChangePassword)))
	mux.Handle("GET /api/users", requireAuth(http.HandlerFunc(d.Users.List)))
	mux.Handle("GET /api/users/{user_id}", requireAuth(http.HandlerFunc(d.Users.Get)))
	mux.Handle("PATCH /api/users/{user_id}", requireAuth(http.HandlerFunc(d.Users.Update)))
	mux.Handle("DELETE /api/users/{user_id}", requireAuth(http.HandlerFunc(d.Users.Deactivate)))
	mux.Handle("GET /api/users/{user_id}/workspaces", requireAuth(http.HandlerFunc(d.Users.Workspaces)))
	mux.Handle("POST /api/users/{user_id}/reset-password", requireAuth(http.HandlerFunc(d.Users.ResetPassword)))
	mux.Handle("GET /api/workspaces", requireAuth(http.HandlerFunc(d.Workspaces.List)))
	mux.Handle("POST /api/workspaces", requireAuth(http.HandlerFunc(d.Workspaces.Create)))
	mux.Handle("POST /api/workspaces/accept-invitation", requireAuth(http.HandlerFunc(d.Members.AcceptInvitation)))

	for _, rt := range scopedRoutes(d) {
		mux.Handle(rt.pattern, requireAuth(d.Guard.Require(rt.action, rt.handler)))
	}
}
